package preprocess

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestBoundedSize(t *testing.T) {
	cases := []struct {
		name       string
		w, h, max  int
		wantW      int
		wantH      int
	}{
		{"landscape downscale", 4000, 3000, 1024, 1024, 768},
		{"portrait downscale", 3000, 4000, 1024, 768, 1024},
		{"square downscale", 2048, 2048, 1024, 1024, 1024},
		{"already small", 800, 600, 1024, 800, 600},
		{"exactly max", 1024, 512, 1024, 1024, 512},
		{"extreme aspect", 5000, 10, 1024, 1024, 2},
	}

	for _, tc := range cases {
		gotW, gotH := BoundedSize(tc.w, tc.h, tc.max)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Errorf("%s: BoundedSize(%d,%d,%d) = %dx%d, want %dx%d",
				tc.name, tc.w, tc.h, tc.max, gotW, gotH, tc.wantW, tc.wantH)
		}
		if max(gotW, gotH) > tc.max && max(tc.w, tc.h) > tc.max {
			t.Errorf("%s: longest edge %d exceeds max %d", tc.name, max(gotW, gotH), tc.max)
		}
	}
}

func TestBoundedSize_preserves_aspect_ratio(t *testing.T) {
	w, h := BoundedSize(4000, 3000, 1024)
	srcRatio := 4000.0 / 3000.0
	dstRatio := float64(w) / float64(h)
	if diff := srcRatio - dstRatio; diff > 0.01 || diff < -0.01 {
		t.Errorf("aspect ratio drifted: src=%.4f dst=%.4f", srcRatio, dstRatio)
	}
}

func TestProcess_rejects_non_image_mime(t *testing.T) {
	_, err := Process([]byte("hello"), "application/pdf", DefaultOptions())
	if !errors.Is(err, ErrInvalidInputKind) {
		t.Errorf("expected ErrInvalidInputKind, got %v", err)
	}
}

func TestProcess_rejects_undecodable_bytes(t *testing.T) {
	_, err := Process([]byte("not actually an image"), "image/png", DefaultOptions())
	if !errors.Is(err, ErrInvalidInputKind) {
		t.Errorf("expected ErrInvalidInputKind for undecodable payload, got %v", err)
	}
}

func TestProcess_downscales_and_reencodes(t *testing.T) {
	src := testPNG(t, 200, 100)

	payload, err := Process(src, "image/png", Options{MaxEdge: 50, Quality: 80})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if payload.MIMEType != "image/webp" {
		t.Errorf("expected image/webp payload, got %s", payload.MIMEType)
	}
	if payload.Width != 50 || payload.Height != 25 {
		t.Errorf("expected 50x25, got %dx%d", payload.Width, payload.Height)
	}
	if len(payload.Data) == 0 {
		t.Error("expected non-empty payload data")
	}
}

func TestProcess_never_upscales(t *testing.T) {
	src := testPNG(t, 40, 30)

	payload, err := Process(src, "image/png", Options{MaxEdge: 1024, Quality: 80})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if payload.Width != 40 || payload.Height != 30 {
		t.Errorf("small input must keep its size, got %dx%d", payload.Width, payload.Height)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x % 256), uint8(y % 256), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test PNG: %v", err)
	}
	return buf.Bytes()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
