// Package address enhances and sanity-checks the address fields of a record
// using postal and geocoding lookups. Lookups are best-effort: a failed call
// degrades to heuristics and never fails the record.
package address

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/pkg/geocode"
)

const enhancedConfidence = 0.95

// Field keys the enhancer owns.
const (
	keyStreet = "street_address"
	keyCity   = "city"
	keyState  = "state"
	keyZip    = "zip_code"
)

// Processors disagree on the street key; first present alias wins.
var streetKeys = []string{keyStreet, "address", "street"}

var addressKeys = []string{keyStreet, "address", "street", keyCity, keyState, keyZip}

// streetKey resolves which street alias this record uses.
func streetKey(fields model.FieldRecord) string {
	for _, k := range streetKeys {
		if e, ok := fields[k]; ok && e != nil {
			return k
		}
	}
	return keyStreet
}

// Enhancer backfills and verifies address fields.
type Enhancer struct {
	geo geocode.Client
}

func NewEnhancer(geo geocode.Client) *Enhancer {
	return &Enhancer{geo: geo}
}

// Enhance mutates the address fields of the record in place. It always
// returns nil error semantics to the pipeline; lookup failures are logged
// and absorbed.
func (e *Enhancer) Enhance(ctx context.Context, fields model.FieldRecord) {
	e.backfillFromZip(ctx, fields)
	e.verifyStreet(ctx, fields)
	flagRequiredEmpty(fields)
}

// backfillFromZip fills city/state/zip from a postal lookup when a usable
// zip is present.
func (e *Enhancer) backfillFromZip(ctx context.Context, fields model.FieldRecord) {
	zip := digitsPrefix(value(fields, keyZip))
	if len(zip) < 5 {
		return
	}

	res, err := e.geo.LookupZip(ctx, zip[:5])
	if err != nil {
		zap.L().Warn("zip lookup failed", zap.String("zip", zip[:5]), zap.Error(err))
		return
	}
	if !res.Matched {
		return
	}

	place(fields, keyCity, res.City, "city filled from zip lookup")
	place(fields, keyState, res.State, "state filled from zip lookup")
	place(fields, keyZip, res.Zip, "zip normalized from lookup")
}

// verifyStreet geocodes the full address. A match replaces a weak street
// value with the normalized one; a miss falls back to plausibility checks.
func (e *Enhancer) verifyStreet(ctx context.Context, fields model.FieldRecord) {
	skey := streetKey(fields)
	street := value(fields, skey)
	if street == "" {
		return
	}

	res, err := e.geo.Geocode(ctx, geocode.AddressInput{
		Street:  street,
		City:    value(fields, keyCity),
		State:   value(fields, keyState),
		ZipCode: value(fields, keyZip),
	})
	if err != nil {
		zap.L().Warn("address geocode failed", zap.Error(err))
		checkPlausibility(fields, skey)
		return
	}
	if !res.Matched || res.StreetAddress == "" {
		checkPlausibility(fields, skey)
		return
	}

	place(fields, skey, res.StreetAddress, "street verified by geocoder")
	place(fields, keyCity, res.City, "city filled from geocoder")
	place(fields, keyState, res.State, "state filled from geocoder")
	place(fields, keyZip, res.Zip, "zip filled from geocoder")
}

var placeholderValues = map[string]bool{
	"n/a":           true,
	"na":            true,
	"none":          true,
	"test":          true,
	"123 main st":   true,
	"123 main":      true,
	"same as above": true,
	"unknown":       true,
}

var leadingNumberRe = regexp.MustCompile(`^\d`)

// checkPlausibility flags street values a geocoder could not confirm and
// that look wrong on their face.
func checkPlausibility(fields model.FieldRecord, skey string) {
	entry := fields[skey]
	if entry.Blank() || !entry.Enabled {
		return
	}
	v := strings.ToLower(strings.TrimSpace(entry.Value))

	var reason string
	switch {
	case placeholderValues[v]:
		reason = "Street address looks like a placeholder"
	case !leadingNumberRe.MatchString(v):
		reason = "Street address has no leading street number"
	case len(v) < 5:
		reason = "Street address is too short to be real"
	default:
		return
	}

	entry.RequiresHumanReview = true
	entry.ReviewNotes = reason
}

// flagRequiredEmpty marks required address fields that are still empty after
// enhancement. The decider would catch these too; doing it here attaches an
// address-specific note.
func flagRequiredEmpty(fields model.FieldRecord) {
	for _, key := range addressKeys {
		entry, ok := fields[key]
		if !ok || entry == nil || !entry.Enabled || !entry.Required {
			continue
		}
		if entry.Blank() {
			entry.RequiresHumanReview = true
			entry.ReviewNotes = "Required address field is empty"
		}
	}
}

func value(fields model.FieldRecord, key string) string {
	if e, ok := fields[key]; ok && e != nil {
		return strings.TrimSpace(e.Value)
	}
	return ""
}

// place writes an enhanced value through the shared overwrite policy.
func place(fields model.FieldRecord, key, candidate, note string) {
	if !model.ShouldReplace(fields[key], candidate) {
		return
	}
	entry, ok := fields[key]
	if !ok || entry == nil {
		entry = &model.FieldEntry{Enabled: true}
		fields[key] = entry
	}
	entry.Value = candidate
	entry.Confidence = enhancedConfidence
	entry.Source = model.SourceValidation
	entry.ReviewNotes = note
}

// digitsPrefix returns the leading run of digits in s.
func digitsPrefix(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s[:i]
		}
	}
	return s
}
