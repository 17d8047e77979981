package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"pose-reel-server/modules/common/config"
)

// QueueKey - Reel Job 큐
const QueueKey = "reels:queue"

// cancelKeyPrefix + jobID 에 플래그를 세팅하면 워커가 중단한다
const cancelKeyPrefix = "reels:cancel:"

// cancelTTL - 취소 플래그 보존 시간 (Job 수명보다 충분히 길게)
const cancelTTL = 30 * time.Minute

// Connect - Redis 연결 생성
func Connect(cfg *config.Config) *redis.Client {
	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	// TLS 설정
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // 관리형 Redis용
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// 연결 테스트
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		return nil
	}

	return rdb
}

// EnqueueJob - Job ID를 큐에 넣기
func EnqueueJob(ctx context.Context, rdb *redis.Client, jobID string) (int64, error) {
	if _, err := rdb.LPush(ctx, QueueKey, jobID).Result(); err != nil {
		return 0, err
	}
	return rdb.LLen(ctx, QueueKey).Val(), nil
}

// DequeueJob - 큐에서 Job ID 하나 꺼내기 (블로킹)
func DequeueJob(ctx context.Context, rdb *redis.Client) (string, error) {
	result, err := rdb.BRPop(ctx, 0, QueueKey).Result()
	if err != nil {
		return "", err
	}
	// result[0]은 큐 이름, result[1]이 실제 job_id
	return result[1], nil
}

// SetJobCancelled - 취소 플래그 세팅
func SetJobCancelled(rdb *redis.Client, jobID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return rdb.Set(ctx, cancelKeyPrefix+jobID, "1", cancelTTL).Err()
}

// IsJobCancelled - 취소 플래그 확인. Redis 장애 시 false (작업 계속)
func IsJobCancelled(rdb *redis.Client, jobID string) bool {
	if rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	val, err := rdb.Get(ctx, cancelKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("⚠️  Failed to check cancel flag for %s: %v", jobID, err)
		return false
	}
	return val == "1"
}
