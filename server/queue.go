package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"zkdraw/draw-prover/logging"
)

const (
	ProveQueueName      = "draw_prove_queue"
	ProcessingQueueName = "draw_prove_processing_queue"
	FailedQueueName     = "draw_failed_queue"

	resultKeyPrefix = "draw_result_"
	resultTTL       = 1 * time.Hour
)

type RedisQueue struct {
	Client *redis.Client
	Ctx    context.Context
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 50
	opts.MinIdleConns = 5
	opts.DialTimeout = 10 * time.Second
	opts.ReadTimeout = 30 * time.Second // BLPOP blocks up to its own timeout
	opts.WriteTimeout = 10 * time.Second
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Logger().Info().
		Str("addr", opts.Addr).
		Int("pool_size", opts.PoolSize).
		Msg("Redis queue connected")
	return &RedisQueue{Client: client, Ctx: context.Background()}, nil
}

func (rq *RedisQueue) EnqueueProof(queueName string, job *ProofJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := rq.Client.RPush(rq.Ctx, queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	logging.Logger().Info().
		Str("job_id", job.ID).
		Str("queue", queueName).
		Msg("job enqueued")
	return nil
}

// DequeueProof blocks up to timeout; a nil job means the queue stayed empty.
func (rq *RedisQueue) DequeueProof(queueName string, timeout time.Duration) (*ProofJob, error) {
	result, err := rq.Client.BLPop(rq.Ctx, timeout, queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result from Redis")
	}
	var job ProofJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (rq *RedisQueue) StoreResult(jobID string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	key := resultKeyPrefix + jobID
	if err := rq.Client.Set(rq.Ctx, key, data, resultTTL).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	logging.Logger().Info().
		Str("job_id", jobID).
		Str("key", key).
		Msg("result stored")
	return nil
}

// GetResult returns redis.Nil when the job has no stored result yet.
func (rq *RedisQueue) GetResult(jobID string) (json.RawMessage, error) {
	data, err := rq.Client.Get(rq.Ctx, resultKeyPrefix+jobID).Result()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (rq *RedisQueue) GetQueueStats() (map[string]int64, error) {
	stats := make(map[string]int64)
	for _, queueName := range []string{ProveQueueName, ProcessingQueueName, FailedQueueName} {
		length, err := rq.Client.LLen(rq.Ctx, queueName).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get length of %s: %w", queueName, err)
		}
		stats[queueName] = length
	}
	return stats, nil
}

// FindJob scans the known queues for a job ID and reports which queue holds
// it, translated into a caller-facing status.
func (rq *RedisQueue) FindJob(jobID string) (string, bool) {
	queues := map[string]string{
		ProveQueueName:      "queued",
		ProcessingQueueName: "processing",
		FailedQueueName:     "failed",
	}
	for queueName, status := range queues {
		items, err := rq.Client.LRange(rq.Ctx, queueName, 0, -1).Result()
		if err != nil {
			logging.Logger().Error().
				Err(err).
				Str("queue", queueName).
				Msg("error searching queue")
			continue
		}
		for _, item := range items {
			var job ProofJob
			if json.Unmarshal([]byte(item), &job) == nil && job.ID == jobID {
				return status, true
			}
		}
	}
	return "", false
}

func (rq *RedisQueue) Close() error {
	return rq.Client.Close()
}
