package app

import (
	"context"
	"fmt"
	"time"

	"word_armor/internal/codec"
	"word_armor/internal/model"
)

const pendingTTL = 48 * time.Hour

// StateStore is the slice of the redis service the client persists
// half-assembled messages in.
type StateStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Del(ctx context.Context, key string) error
}

func pendingKey(user, from string) string {
	return fmt.Sprintf("pending:%s:%s", user, from)
}

func SavePending(ctx context.Context, store StateStore, user string, p *model.Pending) error {
	data, err := codec.Marshal(p)
	if err != nil {
		return err
	}
	return store.Set(ctx, pendingKey(user, p.From), data, pendingTTL)
}

// LoadPending returns nil, nil when nothing is stored for from.
func LoadPending(ctx context.Context, store StateStore, user, from string) (*model.Pending, error) {
	data, ok, err := store.Get(ctx, pendingKey(user, from))
	if err != nil || !ok {
		return nil, err
	}

	var p model.Pending
	if err := codec.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func ClearPending(ctx context.Context, store StateStore, user, from string) error {
	return store.Del(ctx, pendingKey(user, from))
}
