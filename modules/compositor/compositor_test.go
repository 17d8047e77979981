package compositor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"pose-reel-server/modules/common/model"
)

type fakeSink struct {
	mu        sync.Mutex
	started   bool
	frames    int
	finalized bool
	aborted   bool
	slow      time.Duration
}

func (s *fakeSink) Start(enc Encoding, cfg RenderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSink) WriteFrame(frame *image.RGBA) error {
	if s.slow > 0 {
		time.Sleep(s.slow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *fakeSink) Finalize() (*model.VideoAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized = true
	return &model.VideoAsset{Data: []byte("video-bytes"), MIMEType: "video/webm"}, nil
}

func (s *fakeSink) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

func testAsset(t *testing.T, w, h int) *model.GeneratedAsset {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 64, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test png: %v", err)
	}
	return &model.GeneratedAsset{Data: buf.Bytes(), MIMEType: "image/png"}
}

func fastRenderConfig() RenderConfig {
	return RenderConfig{
		Width:        36,
		Height:       64,
		FPS:          10,
		Duration:     time.Second,
		MaxZoomDelta: 0.12,
		MaxPanDelta:  8,
		FlashFrames:  3,
	}
}

func TestRenderCompletes(t *testing.T) {
	sink := &fakeSink{}
	prober := &fakeProber{supported: map[string]bool{"libx264": true}}
	cfg := fastRenderConfig()
	c := New(cfg, sink, prober)

	assets := []*model.GeneratedAsset{
		testAsset(t, 40, 70),
		testAsset(t, 40, 70),
		testAsset(t, 40, 70),
		testAsset(t, 40, 70),
	}

	var lastPct int
	video, err := c.Render(context.Background(), assets, func(pct int) {
		if pct < lastPct {
			t.Errorf("progress went backwards: %d after %d", pct, lastPct)
		}
		lastPct = pct
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if video == nil || len(video.Data) == 0 {
		t.Fatal("expected a video asset")
	}
	if video.MIMEType != "video/webm" {
		t.Errorf("mime = %s, want video/webm", video.MIMEType)
	}
	if sink.frames != cfg.TotalFrames() {
		t.Errorf("wrote %d frames, want %d", sink.frames, cfg.TotalFrames())
	}
	if !sink.finalized {
		t.Error("sink was never finalized")
	}
	if lastPct != 100 {
		t.Errorf("final progress = %d, want 100", lastPct)
	}
	if c.State() != StateDone {
		t.Errorf("state = %v, want Done", c.State())
	}
}

func TestRenderReportsFullProgressOnlyAfterDone(t *testing.T) {
	sink := &fakeSink{}
	prober := &fakeProber{supported: map[string]bool{"libx264": true}}
	c := New(fastRenderConfig(), sink, prober)

	first := -1
	_, err := c.Render(context.Background(), []*model.GeneratedAsset{testAsset(t, 40, 70)}, func(pct int) {
		if first < 0 {
			first = pct
		}
		if pct == 100 {
			sink.mu.Lock()
			finalized := sink.finalized
			sink.mu.Unlock()
			if !finalized {
				t.Error("100 reported before the encoder was finalized")
			}
			if c.State() != StateDone {
				t.Errorf("100 reported in state %v, want Done", c.State())
			}
		}
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if first != 0 {
		t.Errorf("first tick progress = %d, want 0", first)
	}
}

func TestRenderSingleAsset(t *testing.T) {
	sink := &fakeSink{}
	prober := &fakeProber{supported: map[string]bool{"libx264": true}}
	c := New(fastRenderConfig(), sink, prober)

	video, err := c.Render(context.Background(), []*model.GeneratedAsset{testAsset(t, 40, 70)}, nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if video == nil {
		t.Fatal("expected a video asset")
	}
}

func TestRenderNoAssets(t *testing.T) {
	c := New(fastRenderConfig(), &fakeSink{}, &fakeProber{supported: map[string]bool{"libx264": true}})
	if _, err := c.Render(context.Background(), nil, nil); err != ErrNoAssets {
		t.Errorf("expected ErrNoAssets, got %v", err)
	}
	if c.State() != StateFailed {
		t.Errorf("state = %v, want Failed", c.State())
	}
}

func TestRenderBadAsset(t *testing.T) {
	c := New(fastRenderConfig(), &fakeSink{}, &fakeProber{supported: map[string]bool{"libx264": true}})
	bad := []*model.GeneratedAsset{{Data: []byte("not an image"), MIMEType: "image/png"}}
	_, err := c.Render(context.Background(), bad, nil)
	if err == nil {
		t.Fatal("expected decode error")
	}
	if c.State() != StateFailed {
		t.Errorf("state = %v, want Failed", c.State())
	}
}

func TestRenderNoEncoding(t *testing.T) {
	c := New(fastRenderConfig(), &fakeSink{}, &fakeProber{supported: map[string]bool{}})
	_, err := c.Render(context.Background(), []*model.GeneratedAsset{testAsset(t, 40, 70)}, nil)
	if err != ErrNoSupportedEncoding {
		t.Errorf("expected ErrNoSupportedEncoding, got %v", err)
	}
}

func TestRenderStop(t *testing.T) {
	sink := &fakeSink{slow: 5 * time.Millisecond}
	c := New(fastRenderConfig(), sink, &fakeProber{supported: map[string]bool{"libx264": true}})

	type result struct {
		video *model.VideoAsset
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.Render(context.Background(), []*model.GeneratedAsset{testAsset(t, 40, 70)}, nil)
		done <- result{v, err}
	}()

	time.Sleep(20 * time.Millisecond)
	c.Stop()

	res := <-done
	if res.err != nil {
		t.Fatalf("stopped render returned error: %v", res.err)
	}
	if res.video != nil {
		t.Error("stopped render should not produce a video")
	}
	if !sink.aborted {
		t.Error("sink was not aborted")
	}
	if c.State() != StateIdle {
		t.Errorf("state after stop = %v, want Idle", c.State())
	}
}

func TestRenderAlreadyRendering(t *testing.T) {
	sink := &fakeSink{slow: 5 * time.Millisecond}
	c := New(fastRenderConfig(), sink, &fakeProber{supported: map[string]bool{"libx264": true}})

	go c.Render(context.Background(), []*model.GeneratedAsset{testAsset(t, 40, 70)}, nil)
	time.Sleep(20 * time.Millisecond)

	if _, err := c.Render(context.Background(), []*model.GeneratedAsset{testAsset(t, 40, 70)}, nil); err != ErrAlreadyRendering {
		t.Errorf("expected ErrAlreadyRendering, got %v", err)
	}
	c.Stop()
}
