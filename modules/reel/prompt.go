package reel

// DefaultDirectives - 포즈 릴 생성에 쓰는 고정 스타일 디렉티브.
// 순서가 결과 순서를 결정한다 (첫 결과가 비디오 시드).
var DefaultDirectives = []string{
	"a confident standing pose, arms relaxed, facing slightly left of camera, soft studio lighting",
	"a candid walking pose mid-stride, natural motion blur on background, golden hour street scene",
	"a seated editorial pose, leaning forward with elbows on knees, moody window light",
	"a dynamic three-quarter turn pose looking back over the shoulder, clean gradient backdrop",
}

// DirectiveCount - 디렉티브 카탈로그 크기
func DirectiveCount() int {
	return len(DefaultDirectives)
}
