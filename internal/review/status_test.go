package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/cardcapture/internal/model"
)

func TestDecideAllGood(t *testing.T) {
	fields := model.FieldRecord{
		"first_name": {Value: "Jane", Confidence: 0.9, Enabled: true, Required: true},
		"email":      {Value: "jane@example.com", Confidence: 0.95, Enabled: true, Required: true},
	}
	assert.Equal(t, model.ReviewStatusReviewed, Decide(fields))
}

func TestDecideRequiredEmpty(t *testing.T) {
	fields := model.FieldRecord{
		"first_name": {Value: "", Enabled: true, Required: true},
	}
	assert.Equal(t, model.ReviewStatusNeedsHuman, Decide(fields))
	assert.True(t, fields["first_name"].RequiresHumanReview)
	assert.Equal(t, "Required field is empty", fields["first_name"].ReviewNotes)
}

func TestDecideLowConfidenceRequired(t *testing.T) {
	fields := model.FieldRecord{
		"first_name": {Value: "Jane", Confidence: 0.5, ReviewConfidence: 0.6, Enabled: true, Required: true},
	}
	assert.Equal(t, model.ReviewStatusNeedsHuman, Decide(fields))
	assert.Contains(t, fields["first_name"].ReviewNotes, "Low confidence")
}

func TestDecideReviewConfidenceRescues(t *testing.T) {
	fields := model.FieldRecord{
		"first_name": {Value: "Jane", Confidence: 0.5, ReviewConfidence: 0.9, Enabled: true, Required: true},
	}
	assert.Equal(t, model.ReviewStatusReviewed, Decide(fields))
}

func TestDecideKeepsPresetFlag(t *testing.T) {
	fields := model.FieldRecord{
		"first_name": {Value: "Jane", Confidence: 0.95, Enabled: true, Required: true, RequiresHumanReview: true, ReviewNotes: "handwriting ambiguous"},
	}
	assert.Equal(t, model.ReviewStatusNeedsHuman, Decide(fields))
	assert.Equal(t, "handwriting ambiguous", fields["first_name"].ReviewNotes)
}

func TestDecideNonRequiredClearsFlag(t *testing.T) {
	fields := model.FieldRecord{
		"notes": {Value: "", Confidence: 0.1, Enabled: true, RequiresHumanReview: true},
	}
	assert.Equal(t, model.ReviewStatusReviewed, Decide(fields))
	assert.False(t, fields["notes"].RequiresHumanReview)
}

func TestDecideSkipsDisabled(t *testing.T) {
	fields := model.FieldRecord{
		"fax": {Value: "", Required: true},
	}
	assert.Equal(t, model.ReviewStatusReviewed, Decide(fields))
	assert.False(t, fields["fax"].RequiresHumanReview)
}
