package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/model"
)

// Pool is the slice of pgxpool.Pool the store uses. pgxmock implements it
// for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	event_id      TEXT NOT NULL DEFAULT '',
	image_ref     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS field_catalogs (
	tenant_id  TEXT PRIMARY KEY,
	fields     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tenant_vocabularies (
	tenant_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	terms     JSONB NOT NULL,
	PRIMARY KEY (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS reviewed_records (
	document_id       TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	event_id          TEXT NOT NULL DEFAULT '',
	fields            JSONB NOT NULL,
	review_status     TEXT NOT NULL,
	image_ref         TEXT NOT NULL,
	cropped_image_ref TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reviewed_records_tenant ON reviewed_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reviewed_records_status ON reviewed_records(review_status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, tenantID, eventID, imageRef string) (*model.ProcessingJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, tenant_id, event_id, image_ref, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, tenantID, eventID, imageRef, string(model.JobStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.ProcessingJob{
		ID:        id,
		TenantID:  tenantID,
		EventID:   eventID,
		ImageRef:  imageRef,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) NextQueuedJob(ctx context.Context) (*model.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at ASC, id ASC LIMIT 1`,
		string(model.JobStatusQueued),
	)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (s *PostgresStore) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(model.JobStatusProcessing), time.Now().UTC(), jobID, string(model.JobStatusQueued),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim job %s", jobID)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, jobID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, retry_count = retry_count + 1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(model.JobStatusQueued), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue job %s", jobID)
	}
	return checkTag(tag, "job", jobID)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = '', updated_at = $2 WHERE id = $3`,
		string(model.JobStatusComplete), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	return checkTag(tag, "job", jobID)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(model.JobStatusFailed), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	return checkTag(tag, "job", jobID)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	return job, err
}

func (s *PostgresStore) GetCatalog(ctx context.Context, tenantID string) (*model.Catalog, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fields FROM field_catalogs WHERE tenant_id = $1`,
		tenantID,
	)
	var fieldsJSON []byte
	err := row.Scan(&fieldsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get catalog")
	}

	cat := &model.Catalog{TenantID: tenantID}
	if err := json.Unmarshal(fieldsJSON, &cat.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal catalog")
	}
	return cat, nil
}

func (s *PostgresStore) PutCatalog(ctx context.Context, catalog *model.Catalog) error {
	fieldsJSON, err := json.Marshal(catalog.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal catalog")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO field_catalogs (tenant_id, fields, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		catalog.TenantID, fieldsJSON, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: put catalog")
}

func (s *PostgresStore) TenantVocabulary(ctx context.Context, tenantID, name string) ([]string, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT terms FROM tenant_vocabularies WHERE tenant_id = $1 AND name = $2`,
		tenantID, name,
	)
	var termsJSON []byte
	err := row.Scan(&termsJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get vocabulary")
	}

	var terms []string
	if err := json.Unmarshal(termsJSON, &terms); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal vocabulary")
	}
	return terms, nil
}

func (s *PostgresStore) PutTenantVocabulary(ctx context.Context, tenantID, name string, values []string) error {
	termsJSON, err := json.Marshal(values)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal vocabulary")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO tenant_vocabularies (tenant_id, name, terms) VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, name) DO UPDATE SET terms = excluded.terms`,
		tenantID, name, termsJSON,
	)
	return eris.Wrap(err, "postgres: put vocabulary")
}

func (s *PostgresStore) UpsertReviewedRecord(ctx context.Context, rec *model.ReviewedRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal fields")
	}
	now := time.Now().UTC()

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reviewed_records (document_id, tenant_id, event_id, fields, review_status, image_ref, cropped_image_ref, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (document_id) DO UPDATE SET
			fields = excluded.fields,
			review_status = excluded.review_status,
			cropped_image_ref = excluded.cropped_image_ref,
			updated_at = excluded.updated_at`,
		rec.DocumentID, rec.TenantID, rec.EventID, fieldsJSON,
		string(rec.ReviewStatus), rec.ImageRef, rec.CroppedImageRef, now, now,
	)
	return eris.Wrapf(err, "postgres: upsert reviewed record %s", rec.DocumentID)
}

func (s *PostgresStore) GetReviewedRecord(ctx context.Context, documentID string) (*model.ReviewedRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM reviewed_records WHERE document_id = $1`,
		documentID,
	)
	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *PostgresStore) ListReviewedRecords(ctx context.Context, tenantID string) ([]model.ReviewedRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM reviewed_records WHERE tenant_id = $1 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list reviewed records")
	}
	defer rows.Close()

	var recs []model.ReviewedRecord
	for rows.Next() {
		r, err := scanPgRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list reviewed records iterate")
}

// helpers

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanPgJob(row pgx.Row) (*model.ProcessingJob, error) {
	var j model.ProcessingJob
	err := row.Scan(&j.ID, &j.TenantID, &j.EventID, &j.ImageRef, &j.Status, &j.RetryCount, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	return &j, nil
}

func scanPgRecord(row pgx.Row) (*model.ReviewedRecord, error) {
	var r model.ReviewedRecord
	var fieldsJSON []byte
	err := row.Scan(&r.DocumentID, &r.TenantID, &r.EventID, &fieldsJSON, &r.ReviewStatus, &r.ImageRef, &r.CroppedImageRef, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan reviewed record")
	}
	if err := json.Unmarshal(fieldsJSON, &r.Fields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal fields")
	}
	return &r, nil
}
