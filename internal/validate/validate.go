// Package validate normalizes field values into canonical formats: phone
// numbers, dates, and placeholder null tokens.
package validate

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/cardcapture/internal/model"
)

// Field keys treated as phone numbers.
var phoneKeys = map[string]bool{
	"phone":         true,
	"phone_number":  true,
	"cell_phone":    true,
	"cell":          true,
	"mobile":        true,
	"mobile_phone":  true,
	"home_phone":    true,
	"work_phone":    true,
	"parent_phone":  true,
	"student_phone": true,
}

// Field keys treated as dates.
var dateKeys = map[string]bool{
	"date":            true,
	"birth_date":      true,
	"birthdate":       true,
	"date_of_birth":   true,
	"dob":             true,
	"graduation_date": true,
	"event_date":      true,
}

// Upper-cased tokens that mean "no value".
var nullTokens = map[string]bool{
	"N/A":  true,
	"NA":   true,
	"NONE": true,
	"NULL": true,
}

// Apply normalizes every enabled entry in place. Entries whose value changes
// get source=validation; confidence is untouched.
func Apply(fields model.FieldRecord) {
	for key, entry := range fields {
		if entry == nil || !entry.Enabled {
			continue
		}
		normalized := Normalize(key, entry.Value)
		if normalized != entry.Value {
			entry.Value = normalized
			entry.Source = model.SourceValidation
		}
	}
}

// Normalize returns the canonical form of value for the given field key.
// Values that cannot be parsed come back unchanged.
func Normalize(key, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	if nullTokens[strings.ToUpper(v)] {
		return ""
	}
	switch {
	case phoneKeys[key]:
		return normalizePhone(v)
	case dateKeys[key]:
		return normalizeDate(v)
	}
	return v
}

// normalizePhone reformats 10-digit (optionally 1-prefixed) numbers as
// NNN-NNN-NNNN. Anything else passes through.
func normalizePhone(v string) string {
	var digits []byte
	for i := 0; i < len(v); i++ {
		if v[i] >= '0' && v[i] <= '9' {
			digits = append(digits, v[i])
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return v
	}
	return fmt.Sprintf("%s-%s-%s", digits[0:3], digits[3:6], digits[6:10])
}

var dateLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"2006-1-2",
}

// normalizeDate parses common date shapes and reformats them as MM/DD/YYYY.
// time.Parse rejects impossible calendar dates (2/30, 13/1).
func normalizeDate(v string) string {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		return t.Format("01/02/2006")
	}
	return v
}

var titleCaser = cases.Title(language.AmericanEnglish)

// Keys whose display label isn't plain title case.
var knownLabels = map[string]string{
	"gpa":       "GPA",
	"dob":       "Date of Birth",
	"sat_score": "SAT Score",
	"act_score": "ACT Score",
	"email":     "Email",
}

// Label renders a field key for display: "first_name" -> "First Name".
func Label(key string) string {
	if lbl, ok := knownLabels[key]; ok {
		return lbl
	}
	return titleCaser.String(strings.ReplaceAll(key, "_", " "))
}
