package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cardcapture/internal/model"
)

func TestWorkerProcessesQueue(t *testing.T) {
	st := newMemStore()
	blobs := newMemBlobs()
	ctx := context.Background()

	require.NoError(t, st.PutCatalog(ctx, testCatalog("tenant-a")))
	img := testPNG(t)
	for _, ref := range []string{"one.png", "two.png", "three.png"} {
		_, err := blobs.Put(ref, img)
		require.NoError(t, err)
		_, err = st.CreateJob(ctx, "tenant-a", "", ref)
		require.NoError(t, err)
	}

	p := newTestPipeline(t, st, blobs, &fakeExtractor{doc: testDocument()}, &fakeAnthropicClient{resp: goodReviewResponse})
	w := NewWorker(p)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	deadline := time.After(10 * time.Second)
	for {
		st.mu.Lock()
		completed := st.completed
		st.mu.Unlock()
		if completed == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker did not finish jobs in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)

	for _, id := range []string{"job-one.png", "job-two.png", "job-three.png"} {
		job, err := st.GetJob(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusComplete, job.Status)
	}
}

func TestWorkerIdlesOnEmptyQueue(t *testing.T) {
	st := newMemStore()
	p := newTestPipeline(t, st, newMemBlobs(), &fakeExtractor{}, &fakeAnthropicClient{})
	w := NewWorker(p)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, st.completed)
}
