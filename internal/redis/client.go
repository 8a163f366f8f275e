package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/podpairer/server/internal/config"
)

const podChannelPrefix = "pods:"

// Client carries pod events between server instances and backs the
// pod-action rate limiter.
type Client struct {
	*redis.Client
}

func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, config.RedisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{client}, nil
}

// Healthy reports whether Redis answers within ctx.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.Ping(ctx).Err() == nil
}

// PodChannel is the pub/sub channel carrying pod events for one participant.
func PodChannel(participantID string) string {
	return podChannelPrefix + participantID
}
