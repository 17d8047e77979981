package reel

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	goredis "github.com/redis/go-redis/v9"

	"pose-reel-server/modules/common/config"
	"pose-reel-server/modules/common/model"
	redisutil "pose-reel-server/modules/common/redis"
	"pose-reel-server/modules/common/storage"
	"pose-reel-server/modules/preprocess"
)

const maxUploadBytes = 32 << 20

type Handler struct {
	store *Store
	rdb   *goredis.Client
	share *storage.Client
}

func NewHandler(store *Store, rdb *goredis.Client, share *storage.Client) *Handler {
	return &Handler{
		store: store,
		rdb:   rdb,
		share: share,
	}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/reels", h.HandleCreate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/reels/{jobId}", h.HandleStatus).Methods("GET")
	r.HandleFunc("/api/reels/{jobId}/video", h.HandleVideo).Methods("GET")
	r.HandleFunc("/api/reels/{jobId}/images/{index}", h.HandleImage).Methods("GET")
	r.HandleFunc("/api/reels/{jobId}/share", h.HandleShare).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/reels/{jobId}/cancel", h.HandleCancel).Methods("POST", "OPTIONS")
	log.Println("✅ Reel routes registered")
}

// HandleCreate - POST /api/reels
// 멀티파트 업로드 → 전처리 → Job 생성 → 큐 등록
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}

	cfg := config.GetConfig()
	payload, err := preprocess.Process(data, mimeType, preprocess.Options{
		MaxEdge: cfg.MaxImageEdge,
		Quality: cfg.PayloadWebPQuality,
	})
	if err != nil {
		if errors.Is(err, preprocess.ErrInvalidInputKind) {
			writeError(w, http.StatusBadRequest, "Uploaded file is not a supported image")
			return
		}
		log.Printf("❌ [Reel] Preprocess failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process image")
		return
	}

	job := h.store.CreateJob(payload, DefaultDirectives)

	if h.rdb == nil {
		h.store.FailJob(job.JobID, "Job queue unavailable")
		writeError(w, http.StatusServiceUnavailable, "Job queue unavailable")
		return
	}
	if _, err := redisutil.EnqueueJob(r.Context(), h.rdb, job.JobID); err != nil {
		log.Printf("❌ [Reel] Failed to enqueue job %s: %v", job.JobID, err)
		h.store.FailJob(job.JobID, "Failed to enqueue job")
		writeError(w, http.StatusServiceUnavailable, "Failed to enqueue job")
		return
	}

	// 전처리+큐 등록 구간 = 0→5
	h.store.SetProgress(job.JobID, 5)

	log.Printf("📨 [Reel] Job enqueued: %s (%dx%d payload)", job.JobID, payload.Width, payload.Height)

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"job_id":  job.JobID,
		"status":  job.Status,
		"payload": payload,
	})
}

// HandleStatus - GET /api/reels/{jobId}
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	missing := 0
	generated := 0
	if job.Batch != nil {
		missing = job.Batch.Missing
		generated = len(job.Batch.Results) - job.Batch.Missing
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       true,
		"job":           job,
		"generated":     generated,
		"missing":       missing,
		"partial":       missing > 0 && generated > 0,
		"video_ready":   job.HasVideo,
	})
}

// HandleVideo - GET /api/reels/{jobId}/video
func (h *Handler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if job.Video == nil {
		writeError(w, http.StatusNotFound, "Video not ready")
		return
	}

	w.Header().Set("Content-Type", job.Video.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(job.Video.Data)))
	w.Write(job.Video.Data)
}

// HandleImage - GET /api/reels/{jobId}/images/{index}
// index는 디렉티브 순서 기준, 실패한 자리는 404
func (h *Handler) HandleImage(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	idx, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil || job.Batch == nil || idx < 0 || idx >= len(job.Batch.Results) {
		writeError(w, http.StatusNotFound, "Image not found")
		return
	}

	asset := job.Batch.Results[idx].Asset
	if asset == nil {
		writeError(w, http.StatusNotFound, "Generation failed for this directive")
		return
	}

	w.Header().Set("Content-Type", asset.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(asset.Data)))
	w.Write(asset.Data)
}

// HandleShare - POST /api/reels/{jobId}/share
// 완성된 릴을 Supabase Storage에 올려 공유 URL 반환 (설정 시에만)
func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if h.share == nil {
		writeError(w, http.StatusServiceUnavailable, "Share upload is not configured")
		return
	}
	if job.Video == nil {
		writeError(w, http.StatusConflict, "Video not ready to share")
		return
	}
	if job.ShareURL != "" {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"share_url": job.ShareURL,
		})
		return
	}

	url, err := h.share.UploadReel(r.Context(), job.JobID, job.Video.Data, job.Video.MIMEType)
	if err != nil {
		log.Printf("❌ [Reel] Share upload failed for %s: %v", job.JobID, err)
		writeError(w, http.StatusBadGateway, "Share upload failed")
		return
	}
	h.store.SetShareURL(job.JobID, url)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":   true,
		"share_url": url,
	})
}

// HandleCancel - POST /api/reels/{jobId}/cancel
// Redis 취소 플래그를 세워 배치/렌더 어느 단계든 중단시킨다
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	job, ok := h.lookup(w, r)
	if !ok {
		return
	}

	switch job.Status {
	case model.StatusCompleted, model.StatusFailed, model.StatusUserCancelled:
		writeError(w, http.StatusConflict, "Job already finished")
		return
	}

	if h.rdb != nil {
		if err := redisutil.SetJobCancelled(h.rdb, job.JobID); err != nil {
			log.Printf("⚠️ [Reel] Failed to set cancel flag for %s: %v", job.JobID, err)
		}
	}

	// 아직 큐에서 안 빠진 Job은 즉시 상태 반영
	if job.Status == model.StatusPending {
		h.store.MarkCancelled(job.JobID)
	}

	log.Printf("🛑 [Reel] Cancel requested: %s", job.JobID)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"job_id":  job.JobID,
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*model.ReelJob, bool) {
	jobID := mux.Vars(r)["jobId"]
	job, ok := h.store.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	return job, true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":      false,
		"errorMessage": message,
	})
}
