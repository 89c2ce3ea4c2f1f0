package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"didex/internal/models"
)

// DealEvent — событие смены статуса сделки для ленты истории.
type DealEvent struct {
	DealID  string            `json:"dealID"`
	Status  models.DealStatus `json:"status"`
	Comment string            `json:"comment,omitempty"`
	At      time.Time         `json:"at"`
}

// DealEventCache хранит последние события по сделке в Redis.
type DealEventCache struct {
	client *redis.Client
	limit  int64
}

func NewDealEventCache(client *redis.Client, limit int64) *DealEventCache {
	return &DealEventCache{client: client, limit: limit}
}

func (c *DealEventCache) AddEvent(ctx context.Context, dealID string, ev DealEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	key := "deal:" + dealID + ":events"
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, c.limit-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *DealEventCache) GetHistory(ctx context.Context, dealID string) ([]DealEvent, error) {
	key := "deal:" + dealID + ":events"
	vals, err := c.client.LRange(ctx, key, 0, c.limit-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	res := make([]DealEvent, 0, len(vals))
	for i := len(vals) - 1; i >= 0; i-- {
		var ev DealEvent
		if e := json.Unmarshal([]byte(vals[i]), &ev); e == nil {
			res = append(res, ev)
		}
	}
	return res, nil
}
