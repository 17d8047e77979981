package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Gemini API
	GeminiAPIKey  string
	GeminiAPIKeys []string // 429 재시도용 키 풀 (비어있으면 GeminiAPIKey 하나만 사용)
	GeminiModel   string

	// Supabase (공유 기능 전용, 선택)
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string

	// Server
	Port string

	// Preprocess
	MaxImageEdge       int
	PayloadWebPQuality float32

	// Reel 렌더링
	ReelFPS         int
	ReelDurationSec int
	FFmpegBin       string
}

var globalConfig *Config

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := false // 기본값 (로컬 Redis)
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	globalConfig = &Config{
		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,

		// Gemini API
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiAPIKeys: splitKeys(os.Getenv("GEMINI_API_KEYS")),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		// Supabase (없으면 공유 기능 비활성화)
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),

		// Server
		Port: getEnv("PORT", "8080"),

		// Preprocess
		MaxImageEdge:       getEnvInt("MAX_IMAGE_EDGE", 1024),
		PayloadWebPQuality: float32(getEnvInt("PAYLOAD_WEBP_QUALITY", 80)),

		// Reel
		ReelFPS:         getEnvInt("REEL_FPS", 30),
		ReelDurationSec: getEnvInt("REEL_DURATION_SEC", 3),
		FFmpegBin:       getEnv("FFMPEG_BIN", "ffmpeg"),
	}

	// 필수 환경변수 검증
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v)", globalConfig.RedisHost, globalConfig.RedisPort, globalConfig.RedisUseTLS)
	log.Printf("   Gemini: %s (%d keys)", globalConfig.GeminiModel, len(globalConfig.AllGeminiKeys()))
	log.Printf("   Reel: %dfps / %ds", globalConfig.ReelFPS, globalConfig.ReelDurationSec)
	if globalConfig.ShareEnabled() {
		log.Printf("   Share upload: %s", globalConfig.SupabaseURL)
	} else {
		log.Printf("   Share upload: disabled")
	}

	return globalConfig, nil
}

// GetConfig - 로드된 설정 가져오기
func GetConfig() *Config {
	if globalConfig == nil {
		log.Fatal("❌ Config not loaded. Call LoadConfig() first.")
	}
	return globalConfig
}

// validate - 필수 환경변수 검증
// GEMINI_API_KEY는 여기서 강제하지 않음: 키가 없으면 배치 시작 시점에
// ErrRemoteUnavailable로 거부된다 (업로드/전처리는 키 없이도 가능해야 함).
func (c *Config) validate() error {
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.MaxImageEdge <= 0 {
		return fmt.Errorf("MAX_IMAGE_EDGE must be positive")
	}
	if c.ReelFPS <= 0 || c.ReelDurationSec <= 0 {
		return fmt.Errorf("REEL_FPS and REEL_DURATION_SEC must be positive")
	}
	return nil
}

// AllGeminiKeys - 단일 키 + 키 풀 합치기 (순서 유지, 중복 제거)
func (c *Config) AllGeminiKeys() []string {
	seen := make(map[string]bool)
	keys := []string{}
	for _, k := range append([]string{c.GeminiAPIKey}, c.GeminiAPIKeys...) {
		if k != "" && !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// ShareEnabled - Supabase 공유 업로드 사용 가능 여부
func (c *Config) ShareEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt - 숫자 환경변수 가져오기 (기본값 지원)
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// splitKeys - 콤마로 구분된 API 키 목록 파싱
func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
