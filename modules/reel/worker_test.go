package reel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"pose-reel-server/modules/common/model"
	"pose-reel-server/modules/compositor"
	"pose-reel-server/modules/generation"
)

type fakeGenerator struct {
	mu        sync.Mutex
	calls     int
	failing   map[string]error
	available bool
}

func (g *fakeGenerator) Available() bool { return g.available }

func (g *fakeGenerator) Generate(ctx context.Context, payload *model.EncodedPayload, directive string) (*model.GeneratedAsset, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if err, ok := g.failing[directive]; ok {
		return nil, err
	}
	return &model.GeneratedAsset{Data: []byte("img:" + directive), MIMEType: "image/png"}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func okRender(ctx context.Context, assets []*model.GeneratedAsset, onProgress compositor.ProgressFunc) (*model.VideoAsset, error) {
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return &model.VideoAsset{Data: []byte("video"), MIMEType: "video/mp4"}, nil
}

func newTestProcessor(store *Store, gen generation.Generator, render RenderFunc) *Processor {
	return &Processor{
		Store:       store,
		Generator:   gen,
		Render:      render,
		Cancelled:   func(string) bool { return false },
		Concurrency: 2,
	}
}

func testPayload() *model.EncodedPayload {
	return &model.EncodedPayload{Data: []byte("payload"), MIMEType: "image/webp", Width: 768, Height: 1024}
}

func TestProcessJobAllSucceed(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: true}
	p := newTestProcessor(store, gen, okRender)

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed (%s)", got.Status, got.ErrorMessage)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if !got.HasVideo || got.Video == nil {
		t.Error("expected a video asset")
	}
	if got.Batch == nil || len(got.Batch.Assets) != len(DefaultDirectives) {
		t.Fatalf("expected %d assets", len(DefaultDirectives))
	}
	if got.Batch.Missing != 0 {
		t.Errorf("missing = %d, want 0", got.Batch.Missing)
	}
}

func TestProcessJobNoCredentials(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: false}
	p := newTestProcessor(store, gen, okRender)

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if gen.callCount() != 0 {
		t.Errorf("expected no generation calls, got %d", gen.callCount())
	}
	if got.Batch != nil {
		t.Error("expected no partial results")
	}
}

func TestProcessJobPartialSuccess(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{
		available: true,
		failing: map[string]error{
			DefaultDirectives[1]: generation.ErrRemoteError,
			DefaultDirectives[3]: generation.ErrRemoteTimeout,
		},
	}
	p := newTestProcessor(store, gen, okRender)

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusCompleted {
		t.Fatalf("status = %s, want completed (%s)", got.Status, got.ErrorMessage)
	}
	if len(got.Batch.Assets) != 2 || got.Batch.Missing != 2 {
		t.Errorf("got %d assets / %d missing, want 2/2", len(got.Batch.Assets), got.Batch.Missing)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	// 실패한 자리는 absence로 남고 순서는 디렉티브 순서
	if got.Batch.Results[1].Asset != nil || got.Batch.Results[3].Asset != nil {
		t.Error("failed directives should have no asset")
	}
	if got.Batch.Results[0].Asset == nil || got.Batch.Results[2].Asset == nil {
		t.Error("successful directives should carry assets")
	}
}

func TestProcessJobAllFail(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: true, failing: map[string]error{}}
	for _, d := range DefaultDirectives {
		gen.failing[d] = generation.ErrRemoteError
	}
	p := newTestProcessor(store, gen, okRender)

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "All image generations failed") {
		t.Errorf("unexpected error message: %s", got.ErrorMessage)
	}
	if got.HasVideo {
		t.Error("failed batch must not produce a video")
	}
}

func TestProcessJobRenderFailureKeepsStills(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: true}
	p := newTestProcessor(store, gen, func(ctx context.Context, assets []*model.GeneratedAsset, onProgress compositor.ProgressFunc) (*model.VideoAsset, error) {
		return nil, errors.New("encoder exploded")
	})

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Batch == nil || len(got.Batch.Assets) != len(DefaultDirectives) {
		t.Error("render failure must not discard generated stills")
	}
	if got.HasVideo {
		t.Error("no video expected after render failure")
	}
}

func TestProcessJobCancelledBeforeStart(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: true}
	p := newTestProcessor(store, gen, okRender)
	p.Cancelled = func(string) bool { return true }

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusUserCancelled {
		t.Fatalf("status = %s, want user_cancelled", got.Status)
	}
	if gen.callCount() != 0 {
		t.Errorf("expected no generation calls, got %d", gen.callCount())
	}
}

func TestProcessJobRenderCancelled(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: true}
	// 취소된 렌더의 계약: (nil, nil)
	p := newTestProcessor(store, gen, func(ctx context.Context, assets []*model.GeneratedAsset, onProgress compositor.ProgressFunc) (*model.VideoAsset, error) {
		return nil, nil
	})

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	got, _ := store.Get(job.JobID)
	if got.Status != model.StatusUserCancelled {
		t.Fatalf("status = %s, want user_cancelled", got.Status)
	}
	if got.HasVideo {
		t.Error("cancelled render must not produce a video")
	}
}

func TestProcessJobProgressMonotonic(t *testing.T) {
	store := NewStore()
	gen := &fakeGenerator{available: true}
	p := newTestProcessor(store, gen, okRender)

	var mu sync.Mutex
	last := -1
	store.SetNotifier(func(job model.ReelJob) {
		mu.Lock()
		defer mu.Unlock()
		if job.Progress < last {
			t.Errorf("progress regressed: %d after %d", job.Progress, last)
		}
		last = job.Progress
	})

	job := store.CreateJob(testPayload(), DefaultDirectives)
	p.ProcessJob(context.Background(), job.JobID)

	mu.Lock()
	defer mu.Unlock()
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}
