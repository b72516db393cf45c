package review

import "strings"

// Clarity and certainty grades the model reports per field.
const (
	ClarityClear       = "clear"
	ClarityMostlyClear = "mostly_clear"
	ClarityUnclear     = "unclear"
	ClarityUnreadable  = "unreadable"

	CertaintyCertain       = "certain"
	CertaintyMostlyCertain = "mostly_certain"
	CertaintyUncertain     = "uncertain"
)

var clarityScores = map[string]float64{
	ClarityClear:       0.95,
	ClarityMostlyClear: 0.85,
	ClarityUnclear:     0.40,
	ClarityUnreadable:  0.10,
}

var certaintyScores = map[string]float64{
	CertaintyCertain:       1.0,
	CertaintyMostlyCertain: 0.9,
	CertaintyUncertain:     0.5,
}

// Deterministic edits (reformatting, cross-checking against another field)
// cost nothing; guesses about unclear text cost a lot.
var editTypeModifiers = map[string]float64{
	"format_correction":    1.0,
	"ocr_correction":       0.95,
	"typo_fix":             0.95,
	"cross_validation_fix": 1.0,
	"missing_data":         0.75,
	"unclear_text":         0.3,
	"none":                 1.0,
	"":                     1.0,
}

// Edit types mechanical enough that "mostly certain" on clear text is
// effectively certain.
var obviousEdits = map[string]bool{
	"format_correction":    true,
	"typo_fix":             true,
	"cross_validation_fix": true,
}

// scoreConfidence converts the model's per-field quality grades into a
// review confidence. An empty value is floored at 0.1 regardless of grades.
func scoreConfidence(value, clarity, certainty, editType string) float64 {
	if strings.TrimSpace(value) == "" {
		return 0.1
	}

	cl, ok := clarityScores[clarity]
	if !ok {
		cl = clarityScores[ClarityUnclear]
	}

	if certainty == CertaintyMostlyCertain && clarity == ClarityClear && obviousEdits[editType] {
		certainty = CertaintyCertain
	}
	ce, ok := certaintyScores[certainty]
	if !ok {
		ce = certaintyScores[CertaintyUncertain]
	}

	mod, ok := editTypeModifiers[editType]
	if !ok {
		mod = 1.0
	}

	return cl * ce * mod
}
