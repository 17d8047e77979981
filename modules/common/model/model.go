package model

import "time"

// Job 상태
const (
	StatusPending       = "pending"
	StatusProcessing    = "processing"
	StatusRendering     = "rendering"
	StatusCompleted     = "completed"
	StatusFailed        = "failed"
	StatusUserCancelled = "user_cancelled"
)

// EncodedPayload - 업로드 이미지를 재인코딩한 전송용 페이로드.
// 긴 변이 MaxImageEdge 이하로 보장된다.
type EncodedPayload struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// GeneratedAsset - 생성 API가 돌려준 단일 이미지(또는 비디오) 에셋
type GeneratedAsset struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// GenerationResult - 디렉티브 하나의 결과. Asset이 nil이면 실패(absence).
type GenerationResult struct {
	Directive string          `json:"directive"`
	Asset     *GeneratedAsset `json:"asset,omitempty"`
	Err       string          `json:"error,omitempty"`
}

// BatchResult - 배치 전체의 결과 요약
type BatchResult struct {
	Results []GenerationResult `json:"results"`
	Assets  []GeneratedAsset   `json:"-"` // 성공분만, 디렉티브 순서 유지
	Missing int                `json:"missing"`
}

// VideoAsset - 합성이 끝난 비디오. MIMEType은 협상된 컨테이너 타입.
type VideoAsset struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// ReelJob - 업로드 한 건의 전체 수명주기. 저장소는 메모리뿐이다.
type ReelJob struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Payload *EncodedPayload `json:"payload,omitempty"`

	Directives []string     `json:"directives"`
	Batch      *BatchResult `json:"batch,omitempty"`

	Video    *VideoAsset `json:"-"`
	HasVideo bool        `json:"has_video"`

	ShareURL     string `json:"share_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
