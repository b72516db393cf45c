package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cardcapture/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	event_id      TEXT NOT NULL DEFAULT '',
	image_ref     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS field_catalogs (
	tenant_id  TEXT PRIMARY KEY,
	fields     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tenant_vocabularies (
	tenant_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	terms     TEXT NOT NULL,
	PRIMARY KEY (tenant_id, name)
);

CREATE TABLE IF NOT EXISTS reviewed_records (
	document_id       TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL,
	event_id          TEXT NOT NULL DEFAULT '',
	fields            TEXT NOT NULL,
	review_status     TEXT NOT NULL,
	image_ref         TEXT NOT NULL,
	cropped_image_ref TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at        DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant ON jobs(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reviewed_records_tenant ON reviewed_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_reviewed_records_status ON reviewed_records(review_status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, tenantID, eventID, imageRef string) (*model.ProcessingJob, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, tenant_id, event_id, image_ref, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, tenantID, eventID, imageRef, string(model.JobStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

const jobColumns = `id, tenant_id, event_id, image_ref, status, retry_count, error_message, created_at, updated_at`

func (s *SQLiteStore) NextQueuedJob(ctx context.Context) (*model.ProcessingJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
		string(model.JobStatusQueued),
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

// ClaimJob flips a queued job to processing. The conditional update makes the
// claim atomic: a second claimer sees zero rows affected and reports false.
func (s *SQLiteStore) ClaimJob(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.JobStatusProcessing), time.Now().UTC(), jobID, string(model.JobStatusQueued),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) RequeueJob(ctx context.Context, jobID, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, retry_count = retry_count + 1, error_message = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusQueued), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: requeue job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		string(model.JobStatusComplete), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(model.JobStatusFailed), message, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	return job, err
}

func (s *SQLiteStore) GetCatalog(ctx context.Context, tenantID string) (*model.Catalog, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT fields FROM field_catalogs WHERE tenant_id = ?`,
		tenantID,
	)
	var fieldsJSON string
	err := row.Scan(&fieldsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get catalog")
	}

	cat := &model.Catalog{TenantID: tenantID}
	if err := json.Unmarshal([]byte(fieldsJSON), &cat.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal catalog")
	}
	return cat, nil
}

func (s *SQLiteStore) PutCatalog(ctx context.Context, catalog *model.Catalog) error {
	fieldsJSON, err := json.Marshal(catalog.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal catalog")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO field_catalogs (tenant_id, fields, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		catalog.TenantID, string(fieldsJSON), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: put catalog")
}

func (s *SQLiteStore) TenantVocabulary(ctx context.Context, tenantID, name string) ([]string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT terms FROM tenant_vocabularies WHERE tenant_id = ? AND name = ?`,
		tenantID, name,
	)
	var termsJSON string
	err := row.Scan(&termsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get vocabulary")
	}

	var terms []string
	if err := json.Unmarshal([]byte(termsJSON), &terms); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal vocabulary")
	}
	return terms, nil
}

func (s *SQLiteStore) PutTenantVocabulary(ctx context.Context, tenantID, name string, values []string) error {
	termsJSON, err := json.Marshal(values)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal vocabulary")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tenant_vocabularies (tenant_id, name, terms) VALUES (?, ?, ?)
		 ON CONFLICT(tenant_id, name) DO UPDATE SET terms = excluded.terms`,
		tenantID, name, string(termsJSON),
	)
	return eris.Wrap(err, "sqlite: put vocabulary")
}

func (s *SQLiteStore) UpsertReviewedRecord(ctx context.Context, rec *model.ReviewedRecord) error {
	fieldsJSON, err := json.Marshal(rec.Fields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal fields")
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reviewed_records (document_id, tenant_id, event_id, fields, review_status, image_ref, cropped_image_ref, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET
			fields = excluded.fields,
			review_status = excluded.review_status,
			cropped_image_ref = excluded.cropped_image_ref,
			updated_at = excluded.updated_at`,
		rec.DocumentID, rec.TenantID, rec.EventID, string(fieldsJSON),
		string(rec.ReviewStatus), rec.ImageRef, rec.CroppedImageRef, now, now,
	)
	return eris.Wrapf(err, "sqlite: upsert reviewed record %s", rec.DocumentID)
}

const recordColumns = `document_id, tenant_id, event_id, fields, review_status, image_ref, cropped_image_ref, created_at, updated_at`

func (s *SQLiteStore) GetReviewedRecord(ctx context.Context, documentID string) (*model.ReviewedRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM reviewed_records WHERE document_id = ?`,
		documentID,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) ListReviewedRecords(ctx context.Context, tenantID string) ([]model.ReviewedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM reviewed_records WHERE tenant_id = ? ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list reviewed records")
	}
	defer rows.Close()

	var recs []model.ReviewedRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list reviewed records iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.ProcessingJob, error) {
	var j model.ProcessingJob
	err := row.Scan(&j.ID, &j.TenantID, &j.EventID, &j.ImageRef, &j.Status, &j.RetryCount, &j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	return &j, nil
}

func scanRecord(row scannable) (*model.ReviewedRecord, error) {
	var r model.ReviewedRecord
	var fieldsJSON string
	err := row.Scan(&r.DocumentID, &r.TenantID, &r.EventID, &fieldsJSON, &r.ReviewStatus, &r.ImageRef, &r.CroppedImageRef, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan reviewed record")
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &r.Fields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal fields")
	}
	return &r, nil
}
