package redis

import (
	"context"
	"time"
)

// EventDedupe remembers webhook event ids so redelivered events are applied
// at most once. SETNX is the claim: the first delivery wins, every replay
// within the retention window sees the key and is dropped. A claim whose
// dispatch failed is released with Forget so the redelivery is processed.
type EventDedupe struct {
	client    RedisClient
	retention time.Duration
}

func NewEventDedupe(client RedisClient, retention time.Duration) *EventDedupe {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &EventDedupe{client: client, retention: retention}
}

// FirstSeen returns true when this event id has not been processed before,
// atomically marking it as seen.
func (d *EventDedupe) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.client.SetNX(ctx, "billing_event:"+eventID, 1, d.retention)
}

// Forget drops the claim on an event id whose handling failed.
func (d *EventDedupe) Forget(ctx context.Context, eventID string) error {
	return d.client.Del(ctx, "billing_event:"+eventID)
}
