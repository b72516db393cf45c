package model

import "time"

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusComplete   JobStatus = "complete"
	JobStatusFailed     JobStatus = "failed"
)

// ProcessingJob tracks one card image through the pipeline. Only the
// orchestrator mutates it; complete and failed are terminal, except that a
// failed job below the retry ceiling re-enters queued.
type ProcessingJob struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	EventID      string    `json:"event_id,omitempty"`
	ImageRef     string    `json:"image_ref"`
	Status       JobStatus `json:"status"`
	RetryCount   int       `json:"retry_count"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReviewStatus is the card-level disposition of a reviewed record.
type ReviewStatus string

const (
	ReviewStatusReviewed   ReviewStatus = "reviewed"
	ReviewStatusNeedsHuman ReviewStatus = "needs_human_review"
	ReviewStatusAIFailed   ReviewStatus = "ai_failed"
)

// ReviewedRecord is the finalized field set for one card, written exactly once
// per job at pipeline completion and keyed 1:1 to the job by document ID.
type ReviewedRecord struct {
	DocumentID      string       `json:"document_id"`
	TenantID        string       `json:"tenant_id"`
	EventID         string       `json:"event_id,omitempty"`
	Fields          FieldRecord  `json:"fields"`
	ReviewStatus    ReviewStatus `json:"review_status"`
	ImageRef        string       `json:"image_ref"`
	CroppedImageRef string       `json:"cropped_image_ref,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
