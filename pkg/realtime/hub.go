// Package realtime fans events out to subscribers by channel name. Delivery
// is best effort and at most once: a subscriber whose buffer is full misses
// the event, and publishers never block.
package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/metrics"
	"go.uber.org/zap"
)

type Event struct {
	Channel string    `json:"channel"`
	Name    string    `json:"event"`
	Data    any       `json:"data"`
	At      time.Time `json:"at"`
}

// Publisher is what handlers depend on to emit events.
type Publisher interface {
	Publish(ctx context.Context, channel, name string, data any)
}

// Channel names.
func UserChannel(userID string) string           { return "notifications:" + userID }
func OperatorChannel(operatorID string) string   { return "operator:" + operatorID }
func CaregiverChannel(caregiverID string) string { return "caregiver:" + caregiverID }
func FamilyChannel(userID string) string         { return "family:" + userID }

type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	log    *zap.Logger
}

func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer, log: log}
}

func (h *Hub) Publish(_ context.Context, channel, name string, data any) {
	h.deliver(Event{Channel: channel, Name: name, Data: data, At: time.Now().UTC()})
}

func (h *Hub) deliver(ev Event) {
	metrics.EventsPublished.Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.Channel] {
		select {
		case s.ch <- ev:
		default:
			metrics.EventsDropped.Inc()
			h.log.Debug("dropped event for slow subscriber", zap.String("channel", ev.Channel), zap.String("event", ev.Name))
		}
	}
}

// Subscribe registers interest in channels until Close is called.
func (h *Hub) Subscribe(channels ...string) *Subscription {
	s := &Subscription{hub: h, channels: channels, ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	for _, c := range channels {
		if h.subs[c] == nil {
			h.subs[c] = make(map[*Subscription]struct{})
		}
		h.subs[c][s] = struct{}{}
	}
	h.mu.Unlock()

	metrics.Subscribers.Inc()
	return s
}

// Subscribers counts live subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

type Subscription struct {
	hub      *Hub
	channels []string
	ch       chan Event
	once     sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.ch }

// Close unregisters the subscription and closes its event channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		for _, c := range s.channels {
			delete(h.subs[c], s)
			if len(h.subs[c]) == 0 {
				delete(h.subs, c)
			}
		}
		// No publisher can hold the read lock here, so closing is safe.
		close(s.ch)
		h.mu.Unlock()
		metrics.Subscribers.Dec()
	})
}
