package generation

import (
	"errors"
	"time"
)

// 호출 실패 분류. Batch Orchestrator가 errors.Is로 구분한다.
var (
	// ErrRemoteUnavailable - API 키/엔드포인트 미설정. 네트워크 호출 전에 반환.
	ErrRemoteUnavailable = errors.New("generation API is not configured")
	// ErrRemoteError - 전송/상태 오류 (상태 설명 포함)
	ErrRemoteError = errors.New("generation API call failed")
	// ErrRemoteTimeout - 호출자 타임아웃 초과
	ErrRemoteTimeout = errors.New("generation API call timed out")
	// ErrEmptyResult - 응답은 파싱됐지만 이미지 페이로드가 없음
	ErrEmptyResult = errors.New("no image data in response")
)

// ResponseKind - 원격에 요청하는 에셋 종류
type ResponseKind string

const (
	ResponseKindImage ResponseKind = "IMAGE"
	// ResponseKindVideo - 원격 비디오 생성 변형. 대부분의 이미지 모델에서
	// 지원되지 않으므로 기본 경로가 아님 (로컬 합성이 기본).
	ResponseKindVideo ResponseKind = "VIDEO"
)

// Options - Generation Client 생성 설정. 전역 상태 대신 명시적으로 주입한다.
type Options struct {
	APIKeys     []string      // 순서대로 시도 (429 재시도 풀)
	Model       string        // 예: "gemini-2.5-flash-image"
	AspectRatio string        // 생성 이미지 비율 (기본 "3:4")
	Temperature float32       // 기본 0.45
	Kind        ResponseKind  // 기본 IMAGE
	Timeout     time.Duration // 호출 한 건의 상한 (기본 90s)
}

func (o Options) withDefaults() Options {
	if o.AspectRatio == "" {
		o.AspectRatio = "3:4"
	}
	if o.Temperature == 0 {
		o.Temperature = 0.45
	}
	if o.Kind == "" {
		o.Kind = ResponseKindImage
	}
	if o.Timeout == 0 {
		o.Timeout = 90 * time.Second
	}
	return o
}
