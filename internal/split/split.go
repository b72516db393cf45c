// Package split breaks combined location fields ("City, ST ZIP") into their
// component fields and removes the combined keys from the record.
package split

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/cardcapture/internal/model"
)

// CombinedKeys lists field keys whose values hold several logical fields in
// one string. They are split into components and never persisted as-is.
var CombinedKeys = []string{
	"city_state",
	"city_state_zip",
	"citystatezip",
	"address_line",
	"high_school_class_rank",
	"city_state_country",
	"full_address",
	"address_combined",
}

const (
	patternConfidence  = 0.8
	fallbackConfidence = 0.6
)

// Components is the result of splitting one combined value.
type Components struct {
	City  string
	State string
	Zip   string
}

// Ordered: the comma forms are unambiguous, the space forms less so.
var combinedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(.+?),\s*([A-Za-z]{2})\s+(\d{5}(?:-\d{4})?)$`),
	regexp.MustCompile(`^(.+?),\s*([A-Za-z]{2})$`),
	regexp.MustCompile(`^(.+?)\s+([A-Z]{2})\s+(\d{5}(?:-\d{4})?)$`),
	regexp.MustCompile(`^(.+?)\s+([A-Z]{2})$`),
}

var zipRe = regexp.MustCompile(`^\d{5}(?:-\d{4})?$`)

// Split parses a combined city/state/zip value. The second return is the
// confidence to assign to the derived entries, 0 when nothing matched.
func Split(value string) (Components, float64) {
	v := strings.TrimSpace(value)
	if v == "" {
		return Components{}, 0
	}

	for _, re := range combinedPatterns {
		m := re.FindStringSubmatch(v)
		if m == nil {
			continue
		}
		c := Components{
			City:  strings.TrimSpace(m[1]),
			State: strings.ToUpper(m[2]),
		}
		if len(m) > 3 {
			c.Zip = m[3]
		}
		return c, patternConfidence
	}

	return tokenScan(v)
}

// tokenScan handles loose values the anchored patterns reject: find a
// two-letter uppercase state token, treat everything before it as the city
// and a trailing zip token as the zip.
func tokenScan(v string) (Components, float64) {
	tokens := strings.Fields(v)
	for i, tok := range tokens {
		if len(tok) != 2 || tok != strings.ToUpper(tok) || !isAlpha(tok) {
			continue
		}
		c := Components{
			City:  strings.TrimSuffix(strings.Join(tokens[:i], " "), ","),
			State: tok,
		}
		if i+1 < len(tokens) && zipRe.MatchString(tokens[i+1]) {
			c.Zip = tokens[i+1]
		}
		if c.City == "" && c.Zip == "" {
			continue
		}
		return c, fallbackConfidence
	}
	return Components{}, 0
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Apply splits every combined key present in the record into city/state/zip
// entries. Existing good component values are kept. The combined entry itself
// stays in the record so later stages still see the raw value; FilterCombined
// removes it before persistence. Safe to call more than once.
func Apply(fields model.FieldRecord) {
	for _, key := range CombinedKeys {
		entry, ok := fields[key]
		if !ok {
			continue
		}
		comps, conf := Split(entry.Value)
		if conf == 0 {
			continue
		}
		place(fields, "city", comps.City, conf)
		place(fields, "state", comps.State, conf)
		place(fields, "zip_code", comps.Zip, conf)
		zap.L().Debug("combined field split",
			zap.String("key", key),
			zap.Float64("confidence", conf),
		)
	}
}

func place(fields model.FieldRecord, key, value string, conf float64) {
	if value == "" {
		return
	}
	if !model.ShouldReplace(fields[key], value) {
		return
	}
	fields[key] = &model.FieldEntry{
		Value:      value,
		Confidence: conf,
		Source:     model.SourceSplitting,
		Enabled:    true,
	}
}

// FilterCombined removes combined keys from a record without splitting.
// Used as a final guard before persisting.
func FilterCombined(fields model.FieldRecord) {
	for _, key := range CombinedKeys {
		delete(fields, key)
	}
}

// IsCombined reports whether key is one of the combined field keys.
func IsCombined(key string) bool {
	for _, k := range CombinedKeys {
		if k == key {
			return true
		}
	}
	return false
}
