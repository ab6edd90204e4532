package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBridge publishes through Redis so every instance's Hub sees the event.
type RedisBridge struct {
	hub    *Hub
	client redis.UniversalClient
	prefix string
	log    *zap.Logger

	ps *redis.PubSub
	wg sync.WaitGroup
}

func NewRedisBridge(hub *Hub, client redis.UniversalClient, log *zap.Logger) *RedisBridge {
	return &RedisBridge{hub: hub, client: client, prefix: "carelink:rt:", log: log}
}

// Publish sends to Redis. If Redis is unreachable the event is still
// delivered to this instance's subscribers.
func (b *RedisBridge) Publish(ctx context.Context, channel, name string, data any) {
	ev := Event{Channel: channel, Name: name, Data: data, At: time.Now().UTC()}
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error("encode realtime event", zap.Error(err), zap.String("channel", channel))
		return
	}
	if err := b.client.Publish(ctx, b.prefix+channel, payload).Err(); err != nil {
		b.log.Warn("redis publish failed, delivering locally", zap.Error(err), zap.String("channel", channel))
		b.hub.deliver(ev)
	}
}

// Start subscribes and begins relaying Redis messages into the hub.
func (b *RedisBridge) Start(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, b.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}
	b.ps = ps

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ps.Channel() {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("discarding malformed realtime event", zap.Error(err))
				continue
			}
			ev.Channel = strings.TrimPrefix(msg.Channel, b.prefix)
			b.hub.deliver(ev)
		}
	}()
	return nil
}

func (b *RedisBridge) Close() error {
	if b.ps == nil {
		return nil
	}
	err := b.ps.Close()
	b.wg.Wait()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
