// Package pipeline orchestrates card processing: image fetch, entity
// extraction, field splitting, requirements sync, AI review, address
// enhancement, validation, and the final reviewed record.
package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cardcapture/internal/address"
	"github.com/sells-group/cardcapture/internal/blob"
	"github.com/sells-group/cardcapture/internal/config"
	"github.com/sells-group/cardcapture/internal/extract"
	"github.com/sells-group/cardcapture/internal/model"
	"github.com/sells-group/cardcapture/internal/requirements"
	"github.com/sells-group/cardcapture/internal/resilience"
	"github.com/sells-group/cardcapture/internal/review"
	"github.com/sells-group/cardcapture/internal/split"
	"github.com/sells-group/cardcapture/internal/store"
	"github.com/sells-group/cardcapture/internal/validate"
	"github.com/sells-group/cardcapture/pkg/docai"
)

// Pipeline runs one card image through every processing stage.
type Pipeline struct {
	store       store.Store
	blobs       blob.Store
	extractor   docai.Client
	reviewer    *review.Reviewer
	enhancer    *address.Enhancer
	reqs        *requirements.Manager
	processorID string
	cfg         config.WorkerConfig
}

func New(st store.Store, blobs blob.Store, extractor docai.Client, reviewer *review.Reviewer, enhancer *address.Enhancer, processorID string, cfg config.WorkerConfig) *Pipeline {
	return &Pipeline{
		store:       st,
		blobs:       blobs,
		extractor:   extractor,
		reviewer:    reviewer,
		enhancer:    enhancer,
		reqs:        requirements.NewManager(st),
		processorID: processorID,
		cfg:         cfg,
	}
}

// ProcessJob runs a claimed job to completion, ending in either CompleteJob,
// RequeueJob, or FailJob. The returned error is the terminal processing
// failure, if any; requeued jobs also return their error.
func (p *Pipeline) ProcessJob(ctx context.Context, job *model.ProcessingJob) error {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("tenant_id", job.TenantID))
	log.Info("processing job", zap.String("image_ref", job.ImageRef))

	rec, err := p.run(ctx, job, log)
	if err != nil {
		return p.dispose(ctx, job, err, log)
	}

	if err := p.store.UpsertReviewedRecord(ctx, rec); err != nil {
		return p.dispose(ctx, job, err, log)
	}
	if err := p.store.CompleteJob(ctx, job.ID); err != nil {
		return eris.Wrap(err, "pipeline: complete job")
	}
	log.Info("job complete", zap.String("review_status", string(rec.ReviewStatus)))
	return nil
}

// run executes the stage sequence and builds the reviewed record.
func (p *Pipeline) run(ctx context.Context, job *model.ProcessingJob, log *zap.Logger) (*model.ReviewedRecord, error) {
	image, err := p.blobs.Fetch(job.ImageRef)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch image")
	}
	mimeType := mimeFromRef(job.ImageRef)

	doc, err := p.extractor.Process(ctx, image, mimeType, p.processorID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extraction")
	}

	res := extract.Normalize(doc, p.cfg.CropMarginExpand)
	fields := res.Fields
	split.Apply(fields)

	cat, err := p.reqs.Sync(ctx, job.TenantID, fields)
	if err != nil {
		return nil, err
	}
	requirements.Apply(fields, cat)

	reviewImage, reviewMime, croppedRef := p.cropForReview(job, image, mimeType, res.CropRegion, log)

	vocab, err := p.store.TenantVocabulary(ctx, job.TenantID, "majors")
	if err != nil {
		log.Warn("vocabulary lookup failed", zap.Error(err))
		vocab = nil
	}

	status := model.ReviewStatusReviewed
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "review")
	aiErr := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return p.reviewer.Review(ctx, fields, reviewImage, reviewMime, vocab)
	})
	if aiErr != nil {
		log.Warn("ai review failed, using fallback", zap.Error(aiErr))
		review.Fallback(fields)
		status = model.ReviewStatusAIFailed
	}

	validate.Apply(fields)
	p.enhancer.Enhance(ctx, fields)

	if status != model.ReviewStatusAIFailed {
		status = review.Decide(fields)
	}
	split.FilterCombined(fields)

	return &model.ReviewedRecord{
		DocumentID:      job.ID,
		TenantID:        job.TenantID,
		EventID:         job.EventID,
		Fields:          fields,
		ReviewStatus:    status,
		ImageRef:        job.ImageRef,
		CroppedImageRef: croppedRef,
	}, nil
}

// cropForReview produces the image the reviewer sees and stores the cropped
// derivative best-effort. Failures fall back to the original image.
func (p *Pipeline) cropForReview(job *model.ProcessingJob, image []byte, mimeType string, region model.BoundingRegion, log *zap.Logger) ([]byte, string, string) {
	if region.Empty() {
		return image, mimeType, ""
	}

	cropped, croppedMime, err := extract.CropImage(image, region)
	if err != nil {
		log.Warn("crop failed, reviewing full image", zap.Error(err))
		return image, mimeType, ""
	}

	ref := "cropped/" + job.ID + extFor(croppedMime)
	if _, err := p.blobs.Put(ref, cropped); err != nil {
		log.Warn("cropped image store failed", zap.Error(err))
		ref = ""
	}
	return cropped, croppedMime, ref
}

// dispose routes a processing failure: transient errors requeue until the
// retry ceiling, everything else fails the job.
func (p *Pipeline) dispose(ctx context.Context, job *model.ProcessingJob, procErr error, log *zap.Logger) error {
	if resilience.IsTransient(procErr) && job.RetryCount < p.cfg.MaxRetries {
		log.Warn("transient failure, requeuing job",
			zap.Int("retry_count", job.RetryCount+1),
			zap.Error(procErr),
		)
		if err := p.store.RequeueJob(ctx, job.ID, procErr.Error()); err != nil {
			return eris.Wrap(err, "pipeline: requeue job")
		}
		return procErr
	}

	log.Error("job failed", zap.Error(procErr))
	if err := p.store.FailJob(ctx, job.ID, procErr.Error()); err != nil {
		return eris.Wrap(err, "pipeline: fail job")
	}
	return procErr
}

// RetryAIReview re-runs only the AI stage for a record that previously ended
// ai_failed, then re-validates, re-enhances, and re-decides.
func (p *Pipeline) RetryAIReview(ctx context.Context, documentID string) (*model.ReviewedRecord, error) {
	rec, err := p.store.GetReviewedRecord(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, eris.Errorf("pipeline: reviewed record not found: %s", documentID)
	}
	if rec.ReviewStatus != model.ReviewStatusAIFailed {
		return nil, eris.Errorf("pipeline: record %s is %s, not %s", documentID, rec.ReviewStatus, model.ReviewStatusAIFailed)
	}

	imageRef := rec.CroppedImageRef
	if imageRef == "" {
		imageRef = rec.ImageRef
	}
	image, err := p.blobs.Fetch(imageRef)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch image for retry")
	}

	vocab, err := p.store.TenantVocabulary(ctx, rec.TenantID, "majors")
	if err != nil {
		vocab = nil
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "review")
	if err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		return p.reviewer.Review(ctx, rec.Fields, image, mimeFromRef(imageRef), vocab)
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: retry review")
	}

	validate.Apply(rec.Fields)
	p.enhancer.Enhance(ctx, rec.Fields)
	rec.ReviewStatus = review.Decide(rec.Fields)
	split.FilterCombined(rec.Fields)

	if err := p.store.UpsertReviewedRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func mimeFromRef(ref string) string {
	lower := strings.ToLower(ref)
	if strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg") {
		return "image/jpeg"
	}
	return "image/png"
}

func extFor(mimeType string) string {
	if mimeType == "image/jpeg" {
		return ".jpg"
	}
	return ".png"
}
