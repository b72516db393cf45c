package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/pkg/docai"
)

// memStore is an in-memory store.Store for pipeline tests.
type memStore struct {
	mu        sync.Mutex
	jobs      map[string]*model.ProcessingJob
	order     []string
	catalogs  map[string]*model.Catalog
	vocabs    map[string][]string
	records   map[string]*model.ReviewedRecord
	requeued  int
	failed    int
	completed int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[string]*model.ProcessingJob{},
		catalogs: map[string]*model.Catalog{},
		vocabs:   map[string][]string{},
		records:  map[string]*model.ReviewedRecord{},
	}
}

func (s *memStore) CreateJob(_ context.Context, tenantID, eventID, imageRef string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := "job-" + imageRef
	job := &model.ProcessingJob{ID: id, TenantID: tenantID, EventID: eventID, ImageRef: imageRef, Status: model.JobStatusQueued}
	s.jobs[id] = job
	s.order = append(s.order, id)
	return job, nil
}

func (s *memStore) NextQueuedJob(_ context.Context) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if s.jobs[id].Status == model.JobStatusQueued {
			j := *s.jobs[id]
			return &j, nil
		}
	}
	return nil, nil
}

func (s *memStore) ClaimJob(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != model.JobStatusQueued {
		return false, nil
	}
	job.Status = model.JobStatusProcessing
	return true, nil
}

func (s *memStore) RequeueJob(_ context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return eris.Errorf("job not found: %s", jobID)
	}
	job.Status = model.JobStatusQueued
	job.RetryCount++
	job.ErrorMessage = message
	s.requeued++
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return eris.Errorf("job not found: %s", jobID)
	}
	job.Status = model.JobStatusComplete
	s.completed++
	return nil
}

func (s *memStore) FailJob(_ context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return eris.Errorf("job not found: %s", jobID)
	}
	job.Status = model.JobStatusFailed
	job.ErrorMessage = message
	s.failed++
	return nil
}

func (s *memStore) GetJob(_ context.Context, jobID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, eris.Errorf("job not found: %s", jobID)
	}
	j := *job
	return &j, nil
}

func (s *memStore) GetCatalog(_ context.Context, tenantID string) (*model.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat, ok := s.catalogs[tenantID]
	if !ok {
		return nil, nil
	}
	return cat.Clone(), nil
}

func (s *memStore) PutCatalog(_ context.Context, catalog *model.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalogs[catalog.TenantID] = catalog.Clone()
	return nil
}

func (s *memStore) TenantVocabulary(_ context.Context, tenantID, name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vocabs[tenantID+"/"+name], nil
}

func (s *memStore) PutTenantVocabulary(_ context.Context, tenantID, name string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vocabs[tenantID+"/"+name] = values
	return nil
}

func (s *memStore) UpsertReviewedRecord(_ context.Context, rec *model.ReviewedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	clone.Fields = rec.Fields.Clone()
	s.records[rec.DocumentID] = &clone
	return nil
}

func (s *memStore) GetReviewedRecord(_ context.Context, documentID string) (*model.ReviewedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[documentID]
	if !ok {
		return nil, nil
	}
	clone := *rec
	clone.Fields = rec.Fields.Clone()
	return &clone, nil
}

func (s *memStore) ListReviewedRecords(_ context.Context, tenantID string) ([]model.ReviewedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ReviewedRecord
	for _, rec := range s.records {
		if rec.TenantID == tenantID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// memBlobs is an in-memory blob.Store.
type memBlobs struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{blobs: map[string][]byte{}}
}

func (b *memBlobs) Fetch(ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[ref]
	if !ok {
		return nil, eris.Errorf("blob not found: %s", ref)
	}
	return data, nil
}

func (b *memBlobs) Put(ref string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[ref] = data
	return ref, nil
}

// fakeExtractor returns a canned document or error.
type fakeExtractor struct {
	doc   *docai.Document
	err   error
	calls int
}

func (f *fakeExtractor) Process(_ context.Context, _ []byte, _ string, _ string) (*docai.Document, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}
