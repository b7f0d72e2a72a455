// Package livefeed fans committed session changes out to websocket watchers
// through Redis pub/sub.
package livefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/chess-session-api/internal/domain"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "chess:events:"

// Channel is the pub/sub channel carrying events of one session.
func Channel(gameID string) string { return channelPrefix + strings.TrimSpace(gameID) }

type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.GameEvent) error {
	if p == nil || p.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.rdb.Publish(ctx, Channel(ev.GameID), payload).Err(); err != nil {
		return fmt.Errorf("%w: publish: %w", domain.ErrUnavailable, err)
	}
	return nil
}
