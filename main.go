package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"pose-reel-server/modules/common/config"
	"pose-reel-server/modules/common/model"
	redisutil "pose-reel-server/modules/common/redis"
	"pose-reel-server/modules/common/storage"
	"pose-reel-server/modules/compositor"
	"pose-reel-server/modules/generation"
	"pose-reel-server/modules/reel"
	"pose-reel-server/modules/worker"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 개발용 - 모든 origin 허용
		return true
	},
}

// 연결된 클라이언트 정보
type Client struct {
	conn  *websocket.Conn
	jobID string
	send  chan []byte
}

// ProgressHub - Job별 진행률 구독 관리
type ProgressHub struct {
	mutex   sync.RWMutex
	clients map[string]map[*Client]bool
}

// 진행률 메시지
type ProgressMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Missing  int    `json:"missing,omitempty"`
	HasVideo bool   `json:"hasVideo"`
	Error    string `json:"error,omitempty"`
}

var progressHub = &ProgressHub{
	clients: make(map[string]map[*Client]bool),
}

// 클라이언트를 Job 구독에 추가
func (h *ProgressHub) addClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.clients[client.jobID] == nil {
		h.clients[client.jobID] = make(map[*Client]bool)
	}
	h.clients[client.jobID][client] = true
	log.Printf("👤 Client subscribed to job %s (subscribers: %d)",
		client.jobID, len(h.clients[client.jobID]))
}

// 클라이언트 제거
func (h *ProgressHub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if subs, ok := h.clients[client.jobID]; ok {
		if _, exists := subs[client]; exists {
			delete(subs, client)
			close(client.send)
		}
		if len(subs) == 0 {
			delete(h.clients, client.jobID)
		}
	}
}

// Job 상태 변경을 구독자에게 푸시
func (h *ProgressHub) broadcast(job model.ReelJob) {
	msg := ProgressMessage{
		Type:     "job_update",
		JobID:    job.JobID,
		Status:   job.Status,
		Progress: job.Progress,
		HasVideo: job.HasVideo,
		Error:    job.ErrorMessage,
	}
	if job.Batch != nil {
		msg.Missing = job.Batch.Missing
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients[job.JobID] {
		select {
		case client.send <- data:
		default:
			// 느린 클라이언트는 건너뛴다 (다음 업데이트로 따라잡음)
		}
	}
}

// WebSocket 핸들러 - /ws?job=<jobId>
func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	jobID := r.URL.Query().Get("job")
	if jobID == "" {
		log.Printf("Missing job parameter")
		conn.Close()
		return
	}

	client := &Client{
		conn:  conn,
		jobID: jobID,
		send:  make(chan []byte, 64),
	}

	log.Printf("🔍 New WebSocket connection - Job: %s", jobID)
	progressHub.addClient(client)

	go client.writePump()
	go client.readPump()
}

// 클라이언트로 메시지 쓰기
func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write error: %v", err)
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// 연결 종료 감지 전용 (클라이언트→서버 메시지는 없음)
func (c *Client) readPump() {
	defer func() {
		progressHub.removeClient(c)
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "pose-reel-server",
	})
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Redis 연결 (큐 + 취소 플래그)
	rdb := redisutil.Connect(cfg)
	if rdb == nil {
		log.Fatal("❌ Failed to connect to Redis")
	}
	log.Println("✅ Redis connected successfully")

	// Generation Client (키가 없어도 생성은 가능, 배치 시작 시 거부됨)
	gen := generation.NewClient(generation.Options{
		APIKeys: cfg.AllGeminiKeys(),
		Model:   cfg.GeminiModel,
	})

	// 렌더 설정
	renderCfg := compositor.DefaultRenderConfig()
	renderCfg.FPS = cfg.ReelFPS
	renderCfg.Duration = time.Duration(cfg.ReelDurationSec) * time.Second

	// Job 저장소 + 진행률 허브
	store := reel.NewStore()
	store.SetNotifier(progressHub.broadcast)

	// 공유 업로드 (선택)
	share := storage.NewClient()

	// Redis Queue Worker 시작 (백그라운드)
	processor := reel.NewProcessor(store, gen, renderCfg, cfg.FFmpegBin, rdb)
	go worker.StartWorker(context.Background(), rdb, processor)

	// 라우터 설정
	r := mux.NewRouter()
	r.Use(enableCORS)

	r.HandleFunc("/", healthCheck).Methods("GET")
	r.HandleFunc("/health", healthCheck).Methods("GET")
	r.HandleFunc("/ws", handleWebSocket)

	reelHandler := reel.NewHandler(store, rdb, share)
	reelHandler.RegisterRoutes(r)

	log.Printf("🚀 Pose Reel Server starting on port %s", cfg.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws?job=<jobId>", cfg.Port)
	log.Printf("❤️  Health check: http://localhost:%s/health", cfg.Port)

	// 서버 시작
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
