package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/supabase-community/supabase-go"

	"pose-reel-server/modules/common/config"
)

const shareBucket = "reel-shares"

// Client - 완성된 릴 비디오를 Supabase Storage에 올려 공유 링크를 만든다.
// 공유 기능이 꺼져 있으면(NewClient가 nil 반환) 파이프라인은 그대로 동작한다.
type Client struct {
	supabase *supabase.Client
}

// NewClient - 공유 업로드 클라이언트 생성. 설정이 없으면 nil 반환.
func NewClient() *Client {
	cfg := config.GetConfig()
	if !cfg.ShareEnabled() {
		log.Printf("ℹ️ [Storage] Share upload disabled (no Supabase config)")
		return nil
	}

	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		log.Printf("❌ [Storage] Failed to create Supabase client: %v", err)
		return nil
	}

	return &Client{supabase: supabaseClient}
}

// UploadReel - 비디오 바이트를 Storage에 업로드하고 공개 URL 반환
func (c *Client) UploadReel(ctx context.Context, jobID string, videoData []byte, mimeType string) (string, error) {
	cfg := config.GetConfig()

	ext := "mp4"
	if mimeType == "video/webm" {
		ext = "webm"
	}

	timestamp := time.Now().UnixNano() / int64(time.Millisecond)
	randomID := rand.Intn(999999)
	filePath := fmt.Sprintf("reels/%s/reel_%d_%d.%s", jobID, timestamp, randomID, ext)

	log.Printf("📤 [Storage] Uploading reel to storage: %s (%d bytes)", filePath, len(videoData))

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", cfg.SupabaseURL, shareBucket, filePath)

	req, err := http.NewRequestWithContext(ctx, "POST", uploadURL, bytes.NewReader(videoData))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SupabaseServiceKey)
	req.Header.Set("Content-Type", mimeType)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload reel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", cfg.SupabaseURL, shareBucket, filePath)

	if err := c.recordShare(jobID, filePath, int64(len(videoData)), mimeType); err != nil {
		// 인덱스 기록 실패는 공유 자체를 막지 않는다
		log.Printf("⚠️ [Storage] Failed to record share entry: %v", err)
	}

	log.Printf("✅ [Storage] Reel uploaded: %s", publicURL)
	return publicURL, nil
}

// recordShare - reel_shares 테이블에 공유 인덱스 행 추가
func (c *Client) recordShare(jobID, filePath string, fileSize int64, mimeType string) error {
	insertData := map[string]interface{}{
		"job_id":    jobID,
		"file_path": filePath,
		"file_size": fileSize,
		"mime_type": mimeType,
	}

	_, _, err := c.supabase.From("reel_shares").
		Insert(insertData, false, "", "", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert share record: %w", err)
	}
	return nil
}
