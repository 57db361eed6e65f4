package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"auction-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisChannelPrefix is followed by the auction id: "auction_events:<auctionID>".
const RedisChannelPrefix = "auction_events:"

// RedisPublisher publishes events on Redis Pub/Sub for real-time fan-out.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to Redis at addr and verifies the connection.
func NewRedisPublisher(addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("notifier: failed to connect to Redis: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.AuctionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notifier: failed to marshal event: %w", err)
	}
	return p.client.Publish(ctx, RedisChannelPrefix+event.AuctionID, data).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
