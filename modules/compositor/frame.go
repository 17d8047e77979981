package compositor

import (
	"image"
)

// RenderFrame - 틱 하나의 변환 파라미터. 저장하지 않고 매 틱 재계산한다.
type RenderFrame struct {
	Index      int
	T          float64 // 정규화 시간 [0,1)
	Eased      float64 // smoothstep 적용 진행률
	Scale      float64 // 1.0에서 단조 증가
	Pan        float64 // 팬 오프셋 픽셀 (x축), 단조
	FlashAlpha float64 // 오프닝 플래시 알파 [0,1], 선형 감소
}

// Smoothstep - t²(3−2t). 양 끝에서 속도가 0이라 줌/팬이 기계적으로
// 보이지 않는다 (선형 보간 대비).
func Smoothstep(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

// Transform - 세그먼트 내 프레임 인덱스에서 변환 파라미터 계산.
// withFlash는 전체 렌더의 첫 세그먼트에서만 true.
func Transform(frame, segmentFrames int, cfg RenderConfig, withFlash bool) RenderFrame {
	t := float64(frame) / float64(segmentFrames)
	e := Smoothstep(t)

	alpha := 0.0
	if withFlash && cfg.FlashFrames > 0 && frame < cfg.FlashFrames {
		alpha = 1.0 - float64(frame)/float64(cfg.FlashFrames)
	}

	return RenderFrame{
		Index:      frame,
		T:          t,
		Eased:      e,
		Scale:      1.0 + cfg.MaxZoomDelta*e,
		Pan:        cfg.MaxPanDelta * e,
		FlashAlpha: alpha,
	}
}

// CoverScale - 이미지가 캔버스를 완전히 덮는 최소 배율 (비율 유지, 초과분 크롭).
// 이미지/캔버스 비율을 비교해 구속 축 기준으로 맞춘다.
func CoverScale(imgW, imgH, dstW, dstH int) float64 {
	scaleX := float64(dstW) / float64(imgW)
	scaleY := float64(dstH) / float64(imgH)
	if scaleX > scaleY {
		return scaleX
	}
	return scaleY
}

// paintFrame - 배경 채움 → cover fit + 줌/팬 변환으로 이미지 그리기 →
// 플래시 오버레이. dst는 렌더 패스 동안 재사용되는 단일 캔버스.
func paintFrame(dst *image.RGBA, src image.Image, rf RenderFrame, cfg RenderConfig) {
	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()

	// cover 기본 배율 위에 줌 배율을 곱한다
	scale := CoverScale(srcW, srcH, cfg.Width, cfg.Height) * rf.Scale

	dstCx := float64(cfg.Width) / 2
	dstCy := float64(cfg.Height) / 2
	srcCx := float64(srcW) / 2
	srcCy := float64(srcH) / 2

	for y := 0; y < cfg.Height; y++ {
		for x := 0; x < cfg.Width; x++ {
			// 캔버스 중앙 정렬 후 팬 오프셋 적용, 역변환으로 소스 좌표 샘플
			sx := (float64(x)-dstCx-rf.Pan)/scale + srcCx
			sy := (float64(y)-dstCy)/scale + srcCy

			i := dst.PixOffset(x, y)
			if sx < 0 || sy < 0 || int(sx) >= srcW || int(sy) >= srcH {
				// 배경 (검정)
				dst.Pix[i+0] = 0
				dst.Pix[i+1] = 0
				dst.Pix[i+2] = 0
				dst.Pix[i+3] = 255
				continue
			}

			r, g, b, _ := src.At(srcBounds.Min.X+int(sx), srcBounds.Min.Y+int(sy)).RGBA()
			dst.Pix[i+0] = uint8(r >> 8)
			dst.Pix[i+1] = uint8(g >> 8)
			dst.Pix[i+2] = uint8(b >> 8)
			dst.Pix[i+3] = 255
		}
	}

	if rf.FlashAlpha > 0 {
		overlayFlash(dst, rf.FlashAlpha)
	}
}

// overlayFlash - 반투명 흰색 오버레이 (오프닝 플래시 전환)
func overlayFlash(dst *image.RGBA, alpha float64) {
	if alpha > 1 {
		alpha = 1
	}
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i+0] = blendWhite(dst.Pix[i+0], alpha)
		dst.Pix[i+1] = blendWhite(dst.Pix[i+1], alpha)
		dst.Pix[i+2] = blendWhite(dst.Pix[i+2], alpha)
	}
}

func blendWhite(c uint8, alpha float64) uint8 {
	return uint8(float64(c) + (255-float64(c))*alpha)
}
