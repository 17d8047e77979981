package reel

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pose-reel-server/modules/common/model"
)

// Notifier - Job 상태가 바뀔 때마다 스냅샷을 받는 콜백 (WS 푸시용)
type Notifier func(job model.ReelJob)

// Store - 인메모리 Job 저장소. 서버 수명 동안의 유일한 상태 소유자.
// 새 런이 시작되면 이전 런의 에셋은 해제된다.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*model.ReelJob
	notify Notifier
}

// NewStore - 저장소 생성
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*model.ReelJob),
	}
}

// SetNotifier - 상태 변경 콜백 등록 (main에서 WS 허브 연결)
func (s *Store) SetNotifier(fn Notifier) {
	s.mu.Lock()
	s.notify = fn
	s.mu.Unlock()
}

// CreateJob - 새 Job 생성. 이전 Job들의 대용량 에셋은 이 시점에 해제된다.
func (s *Store) CreateJob(payload *model.EncodedPayload, directives []string) *model.ReelJob {
	s.mu.Lock()
	defer s.mu.Unlock()

	// 새 런 시작 = 이전 비디오/이미지 에셋 무효화
	for _, old := range s.jobs {
		s.releaseAssetsLocked(old)
	}

	now := time.Now()
	job := &model.ReelJob{
		JobID:      uuid.New().String(),
		Status:     model.StatusPending,
		Progress:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
		Payload:    payload,
		Directives: append([]string(nil), directives...),
	}
	s.jobs[job.JobID] = job

	log.Printf("📋 [Store] Job created: %s (%d directives)", job.JobID, len(directives))
	return s.snapshotLocked(job)
}

// releaseAssetsLocked - 완료/실패한 이전 Job의 바이트 덩어리 해제 (메타데이터는 유지).
// 이미 발행된 스냅샷이 이전 Batch 포인터를 들고 있을 수 있으므로
// 제자리 수정 대신 새 BatchResult로 통째로 교체한다.
func (s *Store) releaseAssetsLocked(job *model.ReelJob) {
	job.Video = nil
	job.Payload = nil
	if job.Batch == nil {
		return
	}

	released := &model.BatchResult{
		Results: make([]model.GenerationResult, len(job.Batch.Results)),
		Missing: job.Batch.Missing,
	}
	for i, r := range job.Batch.Results {
		released.Results[i] = model.GenerationResult{
			Directive: r.Directive,
			Err:       r.Err,
		}
	}
	job.Batch = released
}

// Get - Job 스냅샷 조회
func (s *Store) Get(jobID string) (*model.ReelJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return s.snapshotLocked(job), true
}

// snapshotLocked - 호출자에게 내부 포인터가 새지 않도록 얕은 복사본 반환.
// Batch/Video는 발행 이후 제자리 수정하지 않고 교체만 하므로 공유해도 안전하다.
func (s *Store) snapshotLocked(job *model.ReelJob) *model.ReelJob {
	cp := *job
	return &cp
}

// SetStatus - 상태 전이
func (s *Store) SetStatus(jobID, status string) {
	s.update(jobID, func(job *model.ReelJob) {
		job.Status = status
	})
}

// SetProgress - 진행률 갱신. 퇴보(감소)는 무시해 단조 증가를 보장한다.
func (s *Store) SetProgress(jobID string, pct int) {
	s.update(jobID, func(job *model.ReelJob) {
		if pct > 100 {
			pct = 100
		}
		if pct > job.Progress {
			job.Progress = pct
		}
	})
}

// SetBatch - 배치 결과 저장 (부분 성공 포함)
func (s *Store) SetBatch(jobID string, batch *model.BatchResult) {
	s.update(jobID, func(job *model.ReelJob) {
		job.Batch = batch
	})
}

// SetVideo - 완성된 비디오 저장 및 완료 처리
func (s *Store) SetVideo(jobID string, video *model.VideoAsset) {
	s.update(jobID, func(job *model.ReelJob) {
		job.Video = video
		job.HasVideo = video != nil
		job.Status = model.StatusCompleted
		job.Progress = 100
	})
}

// SetShareURL - 공유 URL 기록
func (s *Store) SetShareURL(jobID, url string) {
	s.update(jobID, func(job *model.ReelJob) {
		job.ShareURL = url
	})
}

// FailJob - 실패 처리. 이미 저장된 스틸 이미지는 버리지 않는다.
func (s *Store) FailJob(jobID, message string) {
	s.update(jobID, func(job *model.ReelJob) {
		job.Status = model.StatusFailed
		job.ErrorMessage = message
	})
	log.Printf("❌ [Store] Job failed: %s - %s", jobID, message)
}

// MarkCancelled - 사용자 취소 처리
func (s *Store) MarkCancelled(jobID string) {
	s.update(jobID, func(job *model.ReelJob) {
		job.Status = model.StatusUserCancelled
	})
	log.Printf("🛑 [Store] Job cancelled: %s", jobID)
}

func (s *Store) update(jobID string, fn func(*model.ReelJob)) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
	notify := s.notify
	snapshot := *job
	s.mu.Unlock()

	if notify != nil {
		notify(snapshot)
	}
}
