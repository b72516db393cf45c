// Package store persists processing jobs, tenant field catalogs, and
// reviewed records. SQLite backs local runs; Postgres backs deployments.
package store

import (
	"context"

	"github.com/sells-group/cardcapture/internal/model"
)

// Store defines the persistence interface for the card processing pipeline.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, tenantID, eventID, imageRef string) (*model.ProcessingJob, error)
	NextQueuedJob(ctx context.Context) (*model.ProcessingJob, error)
	ClaimJob(ctx context.Context, jobID string) (bool, error)
	RequeueJob(ctx context.Context, jobID, message string) error
	CompleteJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, message string) error
	GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error)

	// Field catalogs
	GetCatalog(ctx context.Context, tenantID string) (*model.Catalog, error)
	PutCatalog(ctx context.Context, catalog *model.Catalog) error

	// Tenant vocabularies
	TenantVocabulary(ctx context.Context, tenantID, name string) ([]string, error)
	PutTenantVocabulary(ctx context.Context, tenantID, name string, values []string) error

	// Reviewed records
	UpsertReviewedRecord(ctx context.Context, rec *model.ReviewedRecord) error
	GetReviewedRecord(ctx context.Context, documentID string) (*model.ReviewedRecord, error)
	ListReviewedRecords(ctx context.Context, tenantID string) ([]model.ReviewedRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
