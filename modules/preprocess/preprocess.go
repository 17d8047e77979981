package preprocess

import (
	"errors"
	"fmt"
	"image"
	"log"
	"strings"

	"pose-reel-server/modules/common/model"
	"pose-reel-server/modules/common/utils"
)

// ErrInvalidInputKind - 업로드 타입이 이미지가 아님
var ErrInvalidInputKind = errors.New("input is not an image type")

// Options - 전처리 설정
type Options struct {
	MaxEdge int     // 긴 변 최대 픽셀 (기본 1024)
	Quality float32 // WebP 손실 품질 (기본 80)
}

// DefaultOptions - 기본 전처리 설정
func DefaultOptions() Options {
	return Options{MaxEdge: 1024, Quality: 80}
}

// Process - 업로드 원본을 업로드 가능한 크기의 WebP 페이로드로 정규화.
// 원본은 수정하지 않는다. 긴 변이 MaxEdge를 넘으면 비율 유지 축소,
// 넘지 않으면 치수 유지 (업스케일 없음).
func Process(data []byte, mimeType string, opts Options) (*model.EncodedPayload, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInputKind, mimeType)
	}
	if opts.MaxEdge <= 0 {
		opts = DefaultOptions()
	}

	img, format, err := utils.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable %s payload", ErrInvalidInputKind, mimeType)
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	dstW, dstH := BoundedSize(srcW, srcH, opts.MaxEdge)

	log.Printf("🖼️  [Preprocess] %s %dx%d → %dx%d (max edge: %d)",
		format, srcW, srcH, dstW, dstH, opts.MaxEdge)

	var scaled image.Image = img
	if dstW != srcW || dstH != srcH {
		scaled = utils.ScaleImage(img, dstW, dstH)
	}

	encoded, err := utils.EncodeWebP(scaled, opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	return &model.EncodedPayload{
		Data:     encoded,
		MIMEType: "image/webp",
		Width:    dstW,
		Height:   dstH,
	}, nil
}

// BoundedSize - 긴 변이 maxEdge 이하가 되는 목표 치수 계산 (비율 유지)
func BoundedSize(w, h, maxEdge int) (int, int) {
	longest := w
	if h > w {
		longest = h
	}
	if longest <= maxEdge {
		return w, h
	}

	scale := float64(maxEdge) / float64(longest)
	newW := int(float64(w)*scale + 0.5)
	newH := int(float64(h)*scale + 0.5)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	return newW, newH
}
