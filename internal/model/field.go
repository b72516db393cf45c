// Package model defines the shared data types for the card processing pipeline.
package model

import "strings"

// FieldSource identifies which pipeline stage produced a field value.
type FieldSource string

const (
	SourceExtraction FieldSource = "extraction"
	SourceSplitting  FieldSource = "splitting"
	SourceAIReview   FieldSource = "ai_review"
	SourceValidation FieldSource = "validation"
	SourceManual     FieldSource = "manual"
	SourceFallback   FieldSource = "fallback"
)

// BoundingRegion is a pixel-space rectangle on the source image.
type BoundingRegion struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Empty reports whether the region covers no area.
func (r BoundingRegion) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// FieldEntry is one named value extracted from a card, with the metadata the
// review pipeline accumulates around it.
type FieldEntry struct {
	Value               string          `json:"value"`
	Confidence          float64         `json:"confidence"`
	ReviewConfidence    float64         `json:"review_confidence"`
	Source              FieldSource     `json:"source"`
	Enabled             bool            `json:"enabled"`
	Required            bool            `json:"required"`
	RequiresHumanReview bool            `json:"requires_human_review"`
	ReviewNotes         string          `json:"review_notes,omitempty"`
	Region              *BoundingRegion `json:"bounding_region,omitempty"`
}

// EffectiveConfidence is the single confidence rule used everywhere: the max
// of the extraction confidence and any AI-review confidence.
func (e *FieldEntry) EffectiveConfidence() float64 {
	if e.ReviewConfidence > e.Confidence {
		return e.ReviewConfidence
	}
	return e.Confidence
}

// Blank reports whether the entry carries no usable value.
func (e *FieldEntry) Blank() bool {
	return e == nil || strings.TrimSpace(e.Value) == ""
}

// Clone returns a deep copy of the entry.
func (e *FieldEntry) Clone() *FieldEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Region != nil {
		r := *e.Region
		c.Region = &r
	}
	return &c
}

// FieldRecord maps field keys to entries. Keys are tenant vocabulary,
// lowercased snake_case; insertion order is irrelevant.
type FieldRecord map[string]*FieldEntry

// Clone returns a deep copy of the record.
func (fr FieldRecord) Clone() FieldRecord {
	out := make(FieldRecord, len(fr))
	for k, v := range fr {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the field keys in unspecified order.
func (fr FieldRecord) Keys() []string {
	keys := make([]string, 0, len(fr))
	for k := range fr {
		keys = append(keys, k)
	}
	return keys
}

// goodConfidenceThreshold is the effective confidence above which an existing
// non-blank value is treated as good data and never replaced.
const goodConfidenceThreshold = 0.8

// ShouldReplace is the single overwrite policy shared by requirements-apply
// and the address enhancer: a candidate replaces the current entry only when
// it is non-empty and the current entry is blank or below the good-data
// confidence threshold.
func ShouldReplace(current *FieldEntry, candidate string) bool {
	if strings.TrimSpace(candidate) == "" {
		return false
	}
	if current.Blank() {
		return true
	}
	return current.EffectiveConfidence() < goodConfidenceThreshold
}
