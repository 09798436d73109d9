package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"

	"leadflow_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Client enqueues lead sync tasks for the worker.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := connOpt(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueRun queues a full ingest, allocate and dispatch run.
func (c *Client) EnqueueRun(ctx context.Context, trigger string) (string, error) {
	task, err := NewLeadSyncRunTask(LeadSyncRunPayload{Trigger: trigger})
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task)
}

// EnqueueDialerSync queues an allocate and dispatch run.
func (c *Client) EnqueueDialerSync(ctx context.Context, trigger string) (string, error) {
	task, err := NewLeadSyncDialerTask(LeadSyncRunPayload{Trigger: trigger})
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task)
}

// EnqueueCursorReset queues a manual cursor move for one website.
func (c *Client) EnqueueCursorReset(ctx context.Context, websiteID uuid.UUID, formID int64) (string, error) {
	task, err := NewCursorResetTask(websiteID, formID)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("scheduler client not configured")
	}
	info, err := c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func connOpt(cfg config.RedisConfig) (asynq.RedisClientOpt, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}
	return redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
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
