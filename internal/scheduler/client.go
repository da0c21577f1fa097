package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"glasswallet_backend/internal/pixels/ports"
	"glasswallet_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// pixelRetryDelay is the wait before the first retry of a failed sync.
const pixelRetryDelay = time.Minute

// enqueuer is the part of *asynq.Client the scheduler uses.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type Client struct {
	client enqueuer
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, queue, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{client: asynq.NewClient(opt), queue: queue}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueuePixelSyncRetry schedules a re-push of leads to one connection.
func (c *Client) EnqueuePixelSyncRetry(ctx context.Context, retry ports.SyncRetry) error {
	if c == nil || c.client == nil {
		return nil
	}
	task, err := NewPixelSyncRetryTask(retry)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.ProcessIn(pixelRetryDelay),
		asynq.MaxRetry(pixelSyncMaxRetry),
	)
	return err
}

var _ ports.RetryScheduler = (*Client)(nil)

func connOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, string, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return asynq.RedisClientOpt{}, "", fmt.Errorf("redis url not configured")
	}
	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return asynq.RedisClientOpt{}, "", err
	}
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return opt, queue, nil
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
