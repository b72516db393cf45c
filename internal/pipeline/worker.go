package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cardcapture/internal/model"
)

// Worker polls the job queue and runs claimed jobs through the pipeline with
// bounded concurrency.
type Worker struct {
	pipeline    *Pipeline
	concurrency int
	idleSleep   time.Duration
	jobTimeout  time.Duration
}

func NewWorker(p *Pipeline) *Worker {
	concurrency := p.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	idle := time.Duration(p.cfg.IdleSleepSecs) * time.Second
	if idle <= 0 {
		idle = time.Second
	}
	return &Worker{
		pipeline:    p,
		concurrency: concurrency,
		idleSleep:   idle,
		jobTimeout:  time.Duration(p.cfg.JobTimeoutSecs) * time.Second,
	}
}

// Run loops until the context is cancelled: claim the next queued job, hand
// it to a bounded worker group, sleep when the queue is empty. Claim losses
// are silent; another worker took the job.
func (w *Worker) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	zap.L().Info("worker started", zap.Int("concurrency", w.concurrency))

	for {
		select {
		case <-ctx.Done():
			err := g.Wait()
			zap.L().Info("worker stopped")
			if err != nil {
				return err
			}
			return ctx.Err()
		default:
		}

		job, err := w.pipeline.store.NextQueuedJob(ctx)
		if err != nil {
			zap.L().Error("queue poll failed", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.sleep(ctx)
			continue
		}

		claimed, err := w.pipeline.store.ClaimJob(ctx, job.ID)
		if err != nil {
			zap.L().Error("claim failed", zap.String("job_id", job.ID), zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if !claimed {
			continue
		}

		g.Go(func() error {
			w.process(gctx, job)
			return nil
		})
	}
}

func (w *Worker) process(ctx context.Context, job *model.ProcessingJob) {
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	if err := w.pipeline.ProcessJob(ctx, job); err != nil {
		// already disposed (requeued or failed) by the pipeline
		zap.L().Debug("job did not complete", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.idleSleep):
	}
}
