package worker

import (
	"context"
	"log"
	"time"

	redisutil "pose-reel-server/modules/common/redis"
	"pose-reel-server/modules/reel"

	goredis "github.com/redis/go-redis/v9"
)

// StartWorker - Redis Queue Worker 시작. 큐에서 Job ID를 꺼내
// reel.Processor로 넘긴다. Job마다 goroutine 하나.
func StartWorker(ctx context.Context, rdb *goredis.Client, processor *reel.Processor) {
	log.Println("🔄 Redis Queue Worker starting...")
	log.Println("👀 Watching queue: reels:queue")

	for {
		if ctx.Err() != nil {
			log.Println("🛑 Queue worker stopped")
			return
		}

		jobID, err := redisutil.DequeueJob(ctx, rdb)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("❌ Redis BRPOP error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		log.Printf("🎯 Received new job: %s", jobID)
		go processor.ProcessJob(ctx, jobID)
	}
}
