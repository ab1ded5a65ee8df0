// Package notifications publishes realtime messages over Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"loop/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces every realtime room channel.
const ChannelPrefix = "realtime:"

// Message is the JSON envelope published on a room channel.
type Message struct {
	Room   string         `json:"room"`
	Event  string         `json:"event"`
	Data   map[string]any `json:"data,omitempty"`
	SentAt time.Time      `json:"sent_at"`
}

// Notifier publishes room messages into Redis channels. A nil client turns
// every publish into a no-op.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// RoomChannel derives the Redis channel name for a room.
func RoomChannel(room string) string {
	return ChannelPrefix + room
}

// Broadcast publishes event to room.
func (n *Notifier) Broadcast(ctx context.Context, room, event string, data map[string]any) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	if strings.TrimSpace(room) == "" {
		return fmt.Errorf("broadcast: empty room")
	}
	payload, err := json.Marshal(Message{Room: room, Event: event, Data: data, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return n.rdb.Publish(ctx, RoomChannel(room), payload).Err()
}

// Subscribe listens on every room matching pattern (for example "user:*")
// and calls onMessage for each decoded message until ctx is cancelled.
func (n *Notifier) Subscribe(ctx context.Context, pattern string, onMessage func(Message)) error {
	if n == nil || n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, RoomChannel(pattern))
	// Wait for the subscription to be confirmed so no early publish is lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m Message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					middleware.Logger.Warn("dropping malformed realtime message",
						slog.String("channel", msg.Channel),
						slog.String("error", err.Error()),
					)
					continue
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in realtime subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())),
							)
						}
					}()
					onMessage(m)
				}()
			}
		}
	}()

	return nil
}
