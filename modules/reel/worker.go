package reel

import (
	"context"
	"errors"
	"log"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pose-reel-server/modules/batch"
	"pose-reel-server/modules/common/model"
	redisutil "pose-reel-server/modules/common/redis"
	"pose-reel-server/modules/compositor"
	"pose-reel-server/modules/generation"
)

// 배치/합성이 차지하는 Job 진행률 윈도우.
// 핸들러가 0→5를 쓰고, 배치가 5→60, 합성이 60→95, 완료 시 100.
const (
	progressBatchBase    = 5
	progressBatchSpan    = 55
	progressBatchCeiling = 60
	progressRenderBase   = 60
	progressRenderSpan   = 35
)

// RenderFunc - 스틸 이미지들을 비디오로 합성하는 함수.
// 취소된 렌더는 (nil, nil)을 반환한다.
type RenderFunc func(ctx context.Context, assets []*model.GeneratedAsset, onProgress compositor.ProgressFunc) (*model.VideoAsset, error)

// Processor - Job 하나를 생성→합성까지 끌고 가는 워커 본체
type Processor struct {
	Store     *Store
	Generator generation.Generator
	Render    RenderFunc
	Cancelled func(jobID string) bool

	Concurrency int
}

// NewProcessor - 운영 구성: ffmpeg 싱크 + Redis 취소 플래그
func NewProcessor(store *Store, gen generation.Generator, renderCfg compositor.RenderConfig, ffmpegBin string, rdb *goredis.Client) *Processor {
	prober := compositor.NewFFmpegProber(ffmpegBin)

	return &Processor{
		Store:     store,
		Generator: gen,
		Render: func(ctx context.Context, assets []*model.GeneratedAsset, onProgress compositor.ProgressFunc) (*model.VideoAsset, error) {
			// 렌더 패스마다 새 싱크 (ffmpeg 프로세스 1개 = 렌더 1개)
			comp := compositor.New(renderCfg, compositor.NewFFmpegSink(ffmpegBin), prober)
			return comp.Render(ctx, assets, onProgress)
		},
		Cancelled: func(jobID string) bool {
			if rdb == nil {
				return false
			}
			return redisutil.IsJobCancelled(rdb, jobID)
		},
		Concurrency: 2,
	}
}

// ProcessJob - Job 전체 수명주기 처리
func (p *Processor) ProcessJob(ctx context.Context, jobID string) {
	log.Printf("🚀 [Reel] Processing job: %s", jobID)

	job, ok := p.Store.Get(jobID)
	if !ok {
		log.Printf("❌ [Reel] Unknown job: %s", jobID)
		return
	}
	if job.Payload == nil {
		p.Store.FailJob(jobID, "Missing preprocessed payload")
		return
	}
	if p.isCancelled(jobID) {
		p.Store.MarkCancelled(jobID)
		return
	}

	// Phase 1: 상태 → processing
	p.Store.SetStatus(jobID, model.StatusProcessing)

	// Phase 2: 배치 생성 (부분 실패 허용)
	batchCfg := batch.Config{
		ProgressBase:    progressBatchBase,
		ProgressSpan:    progressBatchSpan,
		ProgressCeiling: progressBatchCeiling,
		Concurrency:     p.Concurrency,
	}

	result, err := batch.Run(ctx, p.Generator, job.Payload, job.Directives, batchCfg,
		func(pct int) {
			// 배치 내부의 100은 윈도우 상한으로 재해석
			if pct >= 100 {
				pct = progressBatchCeiling
			}
			p.Store.SetProgress(jobID, pct)
		},
		func() bool { return p.isCancelled(jobID) },
	)
	if err != nil {
		switch {
		case errors.Is(err, batch.ErrCancelled):
			if result != nil {
				p.Store.SetBatch(jobID, result)
			}
			p.Store.MarkCancelled(jobID)
		case errors.Is(err, generation.ErrRemoteUnavailable):
			p.Store.FailJob(jobID, "Generation service is not configured")
		case errors.Is(err, batch.ErrNoResultsGenerated):
			p.Store.FailJob(jobID, "All image generations failed")
		default:
			p.Store.FailJob(jobID, err.Error())
		}
		return
	}

	p.Store.SetBatch(jobID, result)
	if result.Missing > 0 {
		log.Printf("⚠️ [Reel] Partial batch for job %s: %d/%d generated",
			jobID, len(result.Assets), len(job.Directives))
	}

	if p.isCancelled(jobID) {
		p.Store.MarkCancelled(jobID)
		return
	}

	// Phase 3: 비디오 합성
	p.Store.SetStatus(jobID, model.StatusRendering)

	assets := make([]*model.GeneratedAsset, len(result.Assets))
	for i := range result.Assets {
		assets[i] = &result.Assets[i]
	}

	// 렌더 중 취소 플래그 감시 → ctx 취소로 전달
	renderCtx, cancelRender := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-renderCtx.Done():
				return
			case <-ticker.C:
				if p.isCancelled(jobID) {
					cancelRender()
					return
				}
			}
		}
	}()

	video, err := p.Render(renderCtx, assets, func(pct int) {
		p.Store.SetProgress(jobID, progressRenderBase+pct*progressRenderSpan/100)
	})
	cancelRender()
	<-watchDone

	if err != nil {
		// 스틸 이미지는 이미 저장돼 있으므로 렌더 실패만 표면화
		p.Store.FailJob(jobID, "Video rendering failed: "+err.Error())
		return
	}
	if video == nil {
		p.Store.MarkCancelled(jobID)
		return
	}

	// Phase 4: 완료
	p.Store.SetVideo(jobID, video)
	log.Printf("✅ [Reel] Job completed: %s (%d stills, video %d bytes)",
		jobID, len(result.Assets), len(video.Data))
}

func (p *Processor) isCancelled(jobID string) bool {
	return p.Cancelled != nil && p.Cancelled(jobID)
}
