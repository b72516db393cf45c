package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cardcapture/internal/address"
	"github.com/sells-group/cardcapture/internal/config"
	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/internal/resilience"
	"github.com/sells-group/cardcapture/internal/review"
	"github.com/sells-group/cardcapture/pkg/anthropic"
	"github.com/sells-group/cardcapture/pkg/docai"
	"github.com/sells-group/cardcapture/pkg/geocode"
)

type fakeAnthropicClient struct {
	resp    string
	err     error
	calls   int
	lastReq anthropic.MessageRequest
}

func (f *fakeAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{Text: f.resp}, nil
}

type fakeGeoClient struct {
	zipResult *geocode.Result
}

func (f *fakeGeoClient) Geocode(_ context.Context, _ geocode.AddressInput) (*geocode.Result, error) {
	return &geocode.Result{}, nil
}

func (f *fakeGeoClient) LookupZip(_ context.Context, _ string) (*geocode.Result, error) {
	if f.zipResult == nil {
		return &geocode.Result{}, nil
	}
	return f.zipResult, nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 200, 200))))
	return buf.Bytes()
}

func workerCfg() config.WorkerConfig {
	return config.WorkerConfig{MaxRetries: 3, Concurrency: 1, IdleSleepSecs: 1, CropMarginExpand: 0.5}
}

// testCatalog keeps the enabled key set small so review responses stay
// manageable.
func testCatalog(tenantID string) *model.Catalog {
	return &model.Catalog{
		TenantID: tenantID,
		Fields: []model.FieldRequirement{
			{Key: "first_name", Label: "First Name", Enabled: true, Required: true},
			{Key: "email", Label: "Email", Enabled: true, Required: true},
			{Key: "city", Label: "City", Enabled: true},
			{Key: "state", Label: "State", Enabled: true},
			{Key: "zip_code", Label: "Zip Code", Enabled: true},
		},
	}
}

func testDocument() *docai.Document {
	return &docai.Document{
		Pages: []docai.PageGeometry{{Width: 200, Height: 200}},
		Entities: []docai.Entity{
			{Type: "first_name", Text: "Jqne", Confidence: 0.85, Vertices: [][2]float64{{10, 10}, {90, 10}, {90, 30}, {10, 30}}},
			{Type: "email", Text: "jane@example.com", Confidence: 0.92},
			{Type: "city_state_zip", Text: "Austin, TX 78701", Confidence: 0.9},
		},
	}
}

const goodReviewResponse = `{
	"first_name": {"value": "Jane", "edit_made": true, "edit_type": "ocr_correction", "text_clarity": "clear", "certainty": "certain", "notes": "q misread", "requires_human_review": false},
	"email": {"value": "jane@example.com", "edit_made": false, "edit_type": "none", "text_clarity": "clear", "certainty": "certain", "notes": "", "requires_human_review": false},
	"city": {"value": "Austin", "edit_made": false, "edit_type": "none", "text_clarity": "clear", "certainty": "certain", "notes": "", "requires_human_review": false},
	"state": {"value": "TX", "edit_made": false, "edit_type": "none", "text_clarity": "clear", "certainty": "certain", "notes": "", "requires_human_review": false},
	"zip_code": {"value": "78701", "edit_made": false, "edit_type": "none", "text_clarity": "clear", "certainty": "certain", "notes": "", "requires_human_review": false},
	"city_state_zip": {"value": "Austin, TX 78701", "edit_made": false, "edit_type": "none", "text_clarity": "clear", "certainty": "certain", "notes": "", "requires_human_review": false}
}`

func newTestPipeline(t *testing.T, st *memStore, blobs *memBlobs, extractor *fakeExtractor, ai *fakeAnthropicClient) *Pipeline {
	t.Helper()
	reviewer := review.NewReviewer(ai, config.ReviewConfig{Model: "test-model", MaxTokens: 2048})
	enhancer := address.NewEnhancer(&fakeGeoClient{
		zipResult: &geocode.Result{City: "Austin", State: "TX", Zip: "78701", Matched: true},
	})
	return New(st, blobs, extractor, reviewer, enhancer, "proc-1", workerCfg())
}

func TestProcessJob_HappyPath(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	require.NoError(t, st.PutCatalog(ctx, testCatalog("tenant-a")))
	_, err := blobs.Put("card.png", testPNG(t))
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, "tenant-a", "event-1", "card.png")
	require.NoError(t, err)

	ai := &fakeAnthropicClient{resp: goodReviewResponse}
	p := newTestPipeline(t, st, blobs, &fakeExtractor{doc: testDocument()}, ai)
	require.NoError(t, p.ProcessJob(ctx, job))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusComplete, got.Status)

	// the raw combined value reaches the reviewer, but not the stored record
	require.NotEmpty(t, ai.lastReq.Messages)
	assert.Contains(t, ai.lastReq.Messages[0].Content, "Austin, TX 78701")

	rec, err := st.GetReviewedRecord(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.ReviewStatusReviewed, rec.ReviewStatus)
	assert.Equal(t, "Jane", rec.Fields["first_name"].Value)
	assert.Equal(t, "Austin", rec.Fields["city"].Value)
	assert.NotContains(t, rec.Fields, "city_state_zip")

	// cropped derivative stored and referenced
	assert.NotEmpty(t, rec.CroppedImageRef)
	_, err = blobs.Fetch(rec.CroppedImageRef)
	assert.NoError(t, err)
}

func TestProcessJob_AIFailureFallsBack(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	require.NoError(t, st.PutCatalog(ctx, testCatalog("tenant-a")))
	_, err := blobs.Put("card.png", testPNG(t))
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, "tenant-a", "", "card.png")
	require.NoError(t, err)

	ai := &fakeAnthropicClient{resp: "sorry, I cannot help with that"}
	p := newTestPipeline(t, st, blobs, &fakeExtractor{doc: testDocument()}, ai)
	require.NoError(t, p.ProcessJob(ctx, job))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusComplete, got.Status)

	rec, err := st.GetReviewedRecord(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.ReviewStatusAIFailed, rec.ReviewStatus)

	// original extraction value preserved verbatim
	assert.Equal(t, "Jqne", rec.Fields["first_name"].Value)
	assert.InDelta(t, 0.2, rec.Fields["first_name"].ReviewConfidence, 1e-9)
	assert.False(t, rec.Fields["first_name"].RequiresHumanReview)
}

func TestProcessJob_TransientFailureRequeues(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	_, err := blobs.Put("card.png", testPNG(t))
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, "tenant-a", "", "card.png")
	require.NoError(t, err)

	extractor := &fakeExtractor{err: resilience.NewTransientError(errors.New("service unavailable"), 503)}
	p := newTestPipeline(t, st, blobs, extractor, &fakeAnthropicClient{})

	err = p.ProcessJob(ctx, job)
	require.Error(t, err)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, 1, st.requeued)
}

func TestProcessJob_TransientAtCeilingFails(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	_, err := blobs.Put("card.png", testPNG(t))
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, "tenant-a", "", "card.png")
	require.NoError(t, err)
	job.RetryCount = 3

	extractor := &fakeExtractor{err: resilience.NewTransientError(errors.New("service unavailable"), 503)}
	p := newTestPipeline(t, st, blobs, extractor, &fakeAnthropicClient{})

	err = p.ProcessJob(ctx, job)
	require.Error(t, err)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
	assert.Zero(t, st.requeued)
}

func TestProcessJob_PermanentFailureFailsImmediately(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	_, err := blobs.Put("card.png", testPNG(t))
	require.NoError(t, err)
	job, err := st.CreateJob(ctx, "tenant-a", "", "card.png")
	require.NoError(t, err)

	extractor := &fakeExtractor{err: errors.New("invalid api key")}
	p := newTestPipeline(t, st, blobs, extractor, &fakeAnthropicClient{})

	err = p.ProcessJob(ctx, job)
	require.Error(t, err)

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Zero(t, st.requeued)
}

func TestProcessJob_MissingImageFails(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	job, err := st.CreateJob(ctx, "tenant-a", "", "nope.png")
	require.NoError(t, err)

	p := newTestPipeline(t, st, newMemBlobs(), &fakeExtractor{doc: testDocument()}, &fakeAnthropicClient{})
	require.Error(t, p.ProcessJob(ctx, job))

	got, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
}

func TestRetryAIReview(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	_, err := blobs.Put("card.png", testPNG(t))
	require.NoError(t, err)
	require.NoError(t, st.UpsertReviewedRecord(ctx, &model.ReviewedRecord{
		DocumentID:   "doc-1",
		TenantID:     "tenant-a",
		ReviewStatus: model.ReviewStatusAIFailed,
		ImageRef:     "card.png",
		Fields: model.FieldRecord{
			"first_name": {Value: "Jqne", Confidence: 0.85, Source: model.SourceExtraction, Enabled: true, Required: true},
			"email":      {Value: "jane@example.com", Confidence: 0.92, Source: model.SourceExtraction, Enabled: true, Required: true},
			"city":       {Value: "Austin", Confidence: 0.8, Source: model.SourceSplitting, Enabled: true},
			"state":      {Value: "TX", Confidence: 0.8, Source: model.SourceSplitting, Enabled: true},
			"zip_code":   {Value: "78701", Confidence: 0.8, Source: model.SourceSplitting, Enabled: true},
		},
	}))

	p := newTestPipeline(t, st, blobs, &fakeExtractor{}, &fakeAnthropicClient{resp: goodReviewResponse})

	rec, err := p.RetryAIReview(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusReviewed, rec.ReviewStatus)
	assert.Equal(t, "Jane", rec.Fields["first_name"].Value)

	stored, err := st.GetReviewedRecord(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewStatusReviewed, stored.ReviewStatus)
}

func TestRetryAIReview_WrongStatus(t *testing.T) {
	st := newMemStore()
	ctx := context.Background()

	require.NoError(t, st.UpsertReviewedRecord(ctx, &model.ReviewedRecord{
		DocumentID:   "doc-1",
		TenantID:     "tenant-a",
		ReviewStatus: model.ReviewStatusReviewed,
		ImageRef:     "card.png",
		Fields:       model.FieldRecord{},
	}))

	p := newTestPipeline(t, st, newMemBlobs(), &fakeExtractor{}, &fakeAnthropicClient{})

	_, err := p.RetryAIReview(ctx, "doc-1")
	assert.Error(t, err)
}

func TestRetryAIReview_NotFound(t *testing.T) {
	p := newTestPipeline(t, newMemStore(), newMemBlobs(), &fakeExtractor{}, &fakeAnthropicClient{})
	_, err := p.RetryAIReview(context.Background(), "missing")
	assert.Error(t, err)
}
