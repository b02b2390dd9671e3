package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pricehawk/pricehawk-engine/internal/models"
)

const keyPrefix = "pricehawk:"

// Redis is a Ledger shared across processes. History is a list per
// competitor (RPUSH), the latest success a plain key.
type Redis struct {
	client    redis.Cmdable
	retention time.Duration
}

func NewRedis(client redis.Cmdable, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Redis{client: client, retention: retention}
}

// DialRedis connects using a redis:// URL and verifies the connection.
func DialRedis(ctx context.Context, rawURL string, retention time.Duration) (*Redis, *redis.Client, error) {
	if rawURL == "" {
		return nil, nil, errors.New("redis url cannot be empty")
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, retention), client, nil
}

func lastKey(id string) string    { return keyPrefix + "last:" + id }
func historyKey(id string) string { return keyPrefix + "history:" + id }

func (r *Redis) LastSuccess(ctx context.Context, competitorID string, since time.Time) (*models.ExtractionResult, error) {
	raw, err := r.client.Get(ctx, lastKey(competitorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last success: %w", err)
	}
	var res models.ExtractionResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode last success: %w", err)
	}
	if res.ScrapedAt.Before(since) {
		return nil, nil
	}
	return &res, nil
}

func (r *Redis) Record(ctx context.Context, res models.ExtractionResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, historyKey(res.CompetitorID), raw)
		p.Expire(ctx, historyKey(res.CompetitorID), r.retention)
		if res.Status == models.StatusSuccess {
			p.Set(ctx, lastKey(res.CompetitorID), raw, r.retention)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (r *Redis) History(ctx context.Context, competitorID string) ([]models.ExtractionResult, error) {
	items, err := r.client.LRange(ctx, historyKey(competitorID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	out := make([]models.ExtractionResult, 0, len(items))
	for _, it := range items {
		var res models.ExtractionResult
		if err := json.Unmarshal([]byte(it), &res); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		out = append(out, res)
	}
	return out, nil
}
