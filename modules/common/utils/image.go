package utils

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// ConvertImageToBase64 - 이미지 바이너리를 base64로 변환
func ConvertImageToBase64(imageData []byte) string {
	return base64.StdEncoding.EncodeToString(imageData)
}

// DecodeImage - 포맷 자동 감지 디코딩 (JPEG/PNG/WebP)
func DecodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return img, format, nil
	}

	// stdlib 레지스트리에 없는 WebP는 go-webp로 직접 디코딩
	if webpImg, werr := webp.Decode(bytes.NewReader(data), &decoder.Options{}); werr == nil {
		return webpImg, "webp", nil
	}

	return nil, "", fmt.Errorf("failed to decode image: %w", err)
}

// EncodeWebP - 디코딩된 이미지를 손실 WebP로 인코딩
func EncodeWebP(img image.Image, quality float32) ([]byte, error) {
	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}
	return buf.Bytes(), nil
}

// ScaleImage - Nearest Neighbor 방식으로 지정 크기로 리사이즈.
// 비율 판단은 호출자 책임 (레터박스 없음, 전체 영역 사용).
func ScaleImage(src image.Image, newWidth, newHeight int) *image.RGBA {
	srcBounds := src.Bounds()
	srcWidth := srcBounds.Dx()
	srcHeight := srcBounds.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))

	scaleX := float64(srcWidth) / float64(newWidth)
	scaleY := float64(srcHeight) / float64(newHeight)

	for y := 0; y < newHeight; y++ {
		for x := 0; x < newWidth; x++ {
			srcX := srcBounds.Min.X + int(float64(x)*scaleX)
			srcY := srcBounds.Min.Y + int(float64(y)*scaleY)
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}

	return dst
}
