package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"pose-reel-server/modules/common/model"
)

// promptFrame - 디렉티브를 감싸는 고정 지시문. 포토리얼 / 텍스트 금지 /
// 인물 동일성 유지가 핵심 제약이다.
const promptFrame = `You are given one reference photograph of a person.

TASK: Generate ONE new photorealistic photograph of the EXACT SAME person, restyled as follows:
%s

CRITICAL REQUIREMENTS:
- The generated image MUST preserve the person's identity: face, skin tone, hair, body proportions
- Photorealistic output only - no illustration, painting or cartoon look
- NO text, NO watermarks, NO logos, NO captions anywhere in the image
- Natural lighting and a coherent single scene
- Fill the entire frame, no letterboxing or borders

OUTPUT: Generate ONLY the image, no text or explanations.`

// Generator - 배치 오케스트레이터가 사용하는 계약.
// 테스트에서는 가짜 구현으로 대체한다.
type Generator interface {
	Generate(ctx context.Context, payload *model.EncodedPayload, directive string) (*model.GeneratedAsset, error)
}

// callFunc - 실제 원격 호출 지점. 테스트에서 바꿔치기한다.
type callFunc func(ctx context.Context, apiKeys []string, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// Client - Gemini 기반 Generation Client
type Client struct {
	opts Options
	call callFunc
}

// NewClient - 명시적 설정으로 클라이언트 생성
func NewClient(opts Options) *Client {
	return &Client{
		opts: opts.withDefaults(),
		call: generateContentWithRetry,
	}
}

// Available - 자격 증명이 설정돼 있는지. 배치가 시작 전에 확인한다.
func (c *Client) Available() bool {
	return len(c.opts.APIKeys) > 0
}

// BuildPrompt - 디렉티브를 지시문 프레임에 끼워 최종 프롬프트 생성
func BuildPrompt(directive string) string {
	return fmt.Sprintf(promptFrame, strings.TrimSpace(directive))
}

// Generate - 이미지 + 디렉티브 한 건 생성 호출.
// 호출자 입장에서 멱등 (재시도 안전). 자동 재시도는 429 한정.
func (c *Client) Generate(ctx context.Context, payload *model.EncodedPayload, directive string) (*model.GeneratedAsset, error) {
	if len(c.opts.APIKeys) == 0 {
		// 네트워크 호출 전에 차단
		return nil, ErrRemoteUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	prompt := BuildPrompt(directive)

	content := &genai.Content{
		Parts: []*genai.Part{
			{
				InlineData: &genai.Blob{
					MIMEType: payload.MIMEType,
					Data:     payload.Data,
				},
			},
			genai.NewPartFromText(prompt),
		},
	}

	genConfig := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: c.opts.AspectRatio,
		},
		Temperature: floatPtr(c.opts.Temperature),
	}
	if c.opts.Kind == ResponseKindVideo {
		// 원격 비디오 변형 - 모델이 지원하지 않으면 빈 응답/오류로 끝난다
		genConfig.ResponseModalities = []string{"VIDEO"}
	}

	log.Printf("🎨 [Generation] Calling %s (prompt: %d chars, payload: %d bytes)",
		c.opts.Model, len(prompt), len(payload.Data))

	result, err := c.call(callCtx, c.opts.APIKeys, c.opts.Model, []*genai.Content{content}, genConfig)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrRemoteTimeout, c.opts.Timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrRemoteError, err)
	}

	asset := extractAsset(result)
	if asset == nil {
		return nil, ErrEmptyResult
	}

	log.Printf("✅ [Generation] Received %s asset: %d bytes", asset.MIMEType, len(asset.Data))
	return asset, nil
}

// extractAsset - 응답 candidates에서 첫 InlineData 추출
func extractAsset(result *genai.GenerateContentResponse) *model.GeneratedAsset {
	if result == nil {
		return nil
	}
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &model.GeneratedAsset{
					Data:     part.InlineData.Data,
					MIMEType: mime,
				}
			}
		}
	}
	return nil
}

// floatPtr - float32 포인터 변환
func floatPtr(f float32) *float32 {
	return &f
}
