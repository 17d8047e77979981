package batch

import (
	"context"
	"errors"
	"log"
	"sync"

	"pose-reel-server/modules/common/model"
	"pose-reel-server/modules/generation"
)

var (
	// ErrNoResultsGenerated - 배치 전체가 빈손으로 끝남
	ErrNoResultsGenerated = errors.New("no results generated")
	// ErrCancelled - 사용자 취소로 배치 중단. 이미 생성된 결과는 보존된다.
	ErrCancelled = errors.New("batch cancelled")
)

// Config - 배치 진행률 윈도우와 동시 처리 설정
type Config struct {
	ProgressBase    int // 시작 퍼센트
	ProgressSpan    int // 배치가 차지하는 구간 폭
	ProgressCeiling int // 전부 끝나기 전까지의 상한
	Concurrency     int // 동시 생성 호출 수 (기본 2)
}

// DefaultConfig - 레퍼런스 동작: 0에서 시작, 95 상한, 완료 시 100
func DefaultConfig() Config {
	return Config{ProgressBase: 0, ProgressSpan: 95, ProgressCeiling: 95, Concurrency: 2}
}

// ProgressFunc - 진행률 콜백 (0~100)
type ProgressFunc func(percent int)

// CancelCheck - 외부 취소 플래그 확인 (없으면 nil)
type CancelCheck func() bool

// Run - 디렉티브별로 Generation Client를 독립 호출하고 결과를 모은다.
// 한 디렉티브의 실패는 나머지를 중단시키지 않고 해당 위치의 absence로
// 기록된다. 결과 순서는 완료 순서와 무관하게 디렉티브 순서를 따른다.
// 진행률은 base + completed*(span/total)로 단조 증가하며, 배치가 전부
// 풀리기 전에는 ceiling을 넘지 않고 끝나면 100이 된다.
func Run(
	ctx context.Context,
	gen generation.Generator,
	payload *model.EncodedPayload,
	directives []string,
	cfg Config,
	onProgress ProgressFunc,
	cancelled CancelCheck,
) (*model.BatchResult, error) {
	if len(directives) == 0 {
		return nil, ErrNoResultsGenerated
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if onProgress == nil {
		onProgress = func(int) {}
	}
	if cancelled == nil {
		cancelled = func() bool { return false }
	}

	// 키 미설정은 배치 시작 전에 치명 실패로 올린다 (호출 시도 금지)
	if err := probeAvailability(gen); err != nil {
		return nil, err
	}

	total := len(directives)
	results := make([]model.GenerationResult, total)

	var mu sync.Mutex
	var wg sync.WaitGroup
	completed := 0
	wasCancelled := false

	// Semaphore로 동시 처리 수 제한 (디렉티브 수가 고정이라 폭주 위험 없음)
	semaphore := make(chan struct{}, cfg.Concurrency)

	reportLocked := func() {
		// mu 보유 상태에서 호출. 윈도우 내 단조 증가 보장.
		pct := cfg.ProgressBase + completed*cfg.ProgressSpan/total
		if pct > cfg.ProgressCeiling {
			pct = cfg.ProgressCeiling
		}
		onProgress(pct)
	}

	for i, directive := range directives {
		wg.Add(1)
		go func(idx int, dir string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[idx] = model.GenerationResult{Directive: dir}

			// 아직 시작 안 한 호출은 취소 플래그로 스킵
			if ctx.Err() != nil || cancelled() {
				mu.Lock()
				wasCancelled = true
				results[idx].Err = "cancelled before start"
				completed++
				reportLocked()
				mu.Unlock()
				return
			}

			log.Printf("🎨 [Batch] Generating %d/%d: %q", idx+1, total, dir)
			asset, err := gen.Generate(ctx, payload, dir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// 형제 작업은 계속 진행, 이 위치는 absence로 기록
				log.Printf("❌ [Batch] Directive %d/%d failed: %v", idx+1, total, err)
				results[idx].Err = err.Error()
			} else {
				results[idx].Asset = asset
			}
			completed++
			reportLocked()
		}(i, directive)
	}

	wg.Wait()

	if wasCancelled || cancelled() || ctx.Err() != nil {
		return collect(results), ErrCancelled
	}

	batch := collect(results)
	if len(batch.Assets) == 0 {
		return nil, ErrNoResultsGenerated
	}

	// 배치가 전부 풀린 뒤에만 100
	onProgress(100)

	log.Printf("✅ [Batch] Completed: %d/%d succeeded (%d missing)",
		len(batch.Assets), total, batch.Missing)
	return batch, nil
}

// probeAvailability - 자격 증명 부재를 네트워크 호출 없이 감지.
// Available()을 구현한 클라이언트는 배치 시작 전에 거부할 수 있다.
func probeAvailability(gen generation.Generator) error {
	type availabilityProber interface {
		Available() bool
	}
	if p, ok := gen.(availabilityProber); ok && !p.Available() {
		return generation.ErrRemoteUnavailable
	}
	return nil
}

// collect - 순서 유지 결과에서 성공분만 추려 BatchResult로 조립
func collect(results []model.GenerationResult) *model.BatchResult {
	batch := &model.BatchResult{Results: results}
	for _, r := range results {
		if r.Asset != nil {
			batch.Assets = append(batch.Assets, *r.Asset)
		} else {
			batch.Missing++
		}
	}
	return batch
}
