package compositor

import (
	"errors"
	"image"
	"time"

	"pose-reel-server/modules/common/model"
)

var (
	// ErrAssetDecode - 입력 이미지 디코딩 실패
	ErrAssetDecode = errors.New("failed to decode source asset")
	// ErrNoSupportedEncoding - 선호 목록의 어떤 인코딩도 런타임이 지원하지 않음
	ErrNoSupportedEncoding = errors.New("no supported video encoding")
	// ErrAlreadyRendering - 인스턴스당 렌더 패스는 하나만 허용
	ErrAlreadyRendering = errors.New("render already in progress")
	// ErrNoAssets - 입력 이미지가 없음
	ErrNoAssets = errors.New("at least one source asset is required")
)

// State - 렌더 패스 상태 머신
type State int

const (
	StateIdle State = iota
	StateLoadingAssets
	StateEncoding
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadingAssets:
		return "loading_assets"
	case StateEncoding:
		return "encoding"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// RenderConfig - 렌더 패스 설정
type RenderConfig struct {
	Width        int           // 캔버스 픽셀 폭
	Height       int           // 캔버스 픽셀 높이
	FPS          int           // 고정 프레임레이트
	Duration     time.Duration // 전체 길이
	MaxZoomDelta float64       // 줌인 최대 증가량 (scale = 1 + delta*eased)
	MaxPanDelta  float64       // 팬 최대 픽셀 (한 축)
	FlashFrames  int           // 오프닝 플래시가 걸리는 프레임 수
}

// DefaultRenderConfig - 3초 / 30fps 세로 릴
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		Width:        720,
		Height:       1280,
		FPS:          30,
		Duration:     3 * time.Second,
		MaxZoomDelta: 0.12,
		MaxPanDelta:  48,
		FlashFrames:  10,
	}
}

// TotalFrames - 전체 프레임 수
func (c RenderConfig) TotalFrames() int {
	frames := int(float64(c.FPS)*c.Duration.Seconds() + 0.5)
	if frames < 1 {
		frames = 1
	}
	return frames
}

// Encoding - 협상 대상 컨테이너/코덱 조합
type Encoding struct {
	MIMEType  string // 결과 에셋에 태깅되는 타입
	Container string // ffmpeg 출력 컨테이너 확장자
	Codec     string // ffmpeg 비디오 인코더 이름
}

// PreferredEncodings - 선호 순서. 첫 번째로 지원되는 항목이 선택된다.
var PreferredEncodings = []Encoding{
	{MIMEType: "video/mp4", Container: "mp4", Codec: "libx264"},
	{MIMEType: "video/webm;codecs=vp9", Container: "webm", Codec: "libvpx-vp9"},
	{MIMEType: "video/webm;codecs=vp8", Container: "webm", Codec: "libvpx"},
	{MIMEType: "video/x-matroska;codecs=h264", Container: "mkv", Codec: "libx264"},
	{MIMEType: "video/webm", Container: "webm", Codec: "libvpx"},
}

// EncodingProber - 런타임 인코딩 지원 여부 확인 능력
type EncodingProber interface {
	Supports(enc Encoding) bool
}

// FrameSink - 프레임레이트 고정 캡처/인코딩 싱크.
// Start → WriteFrame × N → Finalize, 또는 언제든 Abort.
type FrameSink interface {
	Start(enc Encoding, cfg RenderConfig) error
	WriteFrame(frame *image.RGBA) error
	Finalize() (*model.VideoAsset, error)
	Abort()
}

// Negotiate - 선호 목록에서 첫 번째로 지원되는 인코딩 선택
func Negotiate(prober EncodingProber, prefs []Encoding) (Encoding, error) {
	for _, enc := range prefs {
		if prober.Supports(enc) {
			return enc, nil
		}
	}
	return Encoding{}, ErrNoSupportedEncoding
}
