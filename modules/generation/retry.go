package generation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"google.golang.org/genai"
)

// generateContentWithRetry - 429 에러 시 여러 API 키로 재시도하는 헬퍼.
// 각 키당 최대 3번 시도. 429가 아닌 에러는 즉시 반환 (재시도 정책은
// 레이트 리밋 한정, 나머지 재시도 여부는 호출자 판단).
func generateContentWithRetry(
	ctx context.Context,
	apiKeys []string,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {

	if len(apiKeys) == 0 {
		return nil, fmt.Errorf("no API keys provided")
	}

	const maxRetriesPerKey = 3
	var lastErr error

	for keyIndex, apiKey := range apiKeys {
		for attempt := 1; attempt <= maxRetriesPerKey; attempt++ {
			if attempt > 1 {
				log.Printf("   🔄 [Generation] Retry attempt %d/%d for key #%d", attempt, maxRetriesPerKey, keyIndex+1)
			}

			client, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				lastErr = err
				continue
			}

			result, err := client.Models.GenerateContent(ctx, model, contents, config)
			if err == nil {
				return result, nil
			}
			lastErr = err

			if ctx.Err() != nil {
				// 타임아웃/취소는 키를 바꿔도 소용없음
				return nil, err
			}

			if !is429Error(err) {
				return nil, err
			}

			log.Printf("⚠️  [Generation] Key #%d hit rate limit (429) on attempt %d/%d", keyIndex+1, attempt, maxRetriesPerKey)
			if attempt < maxRetriesPerKey {
				time.Sleep(2 * time.Second)
			}
		}

		log.Printf("⚠️  [Generation] Key #%d exhausted, trying next key...", keyIndex+1)
	}

	return nil, fmt.Errorf("all %d API keys exhausted, last error: %w", len(apiKeys), lastErr)
}

// is429Error - 429 Rate Limit 에러인지 확인
func is429Error(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(strings.ToLower(errStr), "rate limit") ||
		strings.Contains(strings.ToLower(errStr), "quota")
}
