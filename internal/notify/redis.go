package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/go-sales-ledger/internal/models"
)

// Message is the JSON payload published for each low-stock signal.
type Message struct {
	ProductID   int64     `json:"product_id"`
	SKU         string    `json:"sku"`
	ProductName string    `json:"product_name"`
	Stock       int       `json:"stock"`
	At          time.Time `json:"at"`
}

type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(redisURL, channel string) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisNotifier{client: client, channel: channel}, nil
}

func (n *RedisNotifier) Notify(ctx context.Context, level models.StockLevel) error {
	data, err := json.Marshal(Message{
		ProductID:   level.ProductID,
		SKU:         level.SKU,
		ProductName: level.ProductName,
		Stock:       level.Stock,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal low stock message: %w", err)
	}

	if err := n.client.Publish(ctx, n.channel, data).Err(); err != nil {
		return fmt.Errorf("publish low stock: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
