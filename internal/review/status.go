package review

import (
	"fmt"

	"github.com/sells-group/cardcapture/internal/model"
)

// reviewFlagThreshold is the effective confidence below which a required
// field is routed to a human.
const reviewFlagThreshold = 0.7

// Decide sets per-field review flags and returns the record's status.
// Disabled fields are skipped, non-required fields never block a record, and
// a required field blocks when it was already flagged, is empty, or sits
// below the confidence threshold.
func Decide(fields model.FieldRecord) model.ReviewStatus {
	anyFlagged := false
	for key, entry := range fields {
		if entry == nil || !entry.Enabled {
			continue
		}
		if !entry.Required {
			entry.RequiresHumanReview = false
			continue
		}

		switch {
		case entry.RequiresHumanReview:
			// keep the reviewer's flag and reason
		case entry.Blank():
			entry.RequiresHumanReview = true
			entry.ReviewNotes = "Required field is empty"
		case entry.EffectiveConfidence() < reviewFlagThreshold:
			entry.RequiresHumanReview = true
			entry.ReviewNotes = fmt.Sprintf("Low confidence (%.2f) for required field %s", entry.EffectiveConfidence(), key)
		}
		if entry.RequiresHumanReview {
			anyFlagged = true
		}
	}

	if anyFlagged {
		return model.ReviewStatusNeedsHuman
	}
	return model.ReviewStatusReviewed
}
