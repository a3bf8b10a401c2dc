// Package messaging is the outbound mail/SMS boundary. The engine enqueues a
// Message and never waits for delivery.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Templates the engine sends.
const (
	TemplateMagicSession = "magic-session"
	TemplateOTPSession   = "otp-session"
	TemplateRecovery     = "recovery"
	TemplateVerification = "verification"
	TemplateMFAChallenge = "mfa-challenge"
	TemplatePhoneCode    = "phone-code"
)

// ErrQueueFull is returned by bounded queues that drop on overflow.
var ErrQueueFull = errors.New("messaging: queue full")

// Message is one outbound email or SMS.
type Message struct {
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject,omitempty"`
	Template  string            `json:"template"`
	Body      string            `json:"body,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
}

// Queue accepts messages for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
}

// NopQueue discards every message.
type NopQueue struct{}

func (NopQueue) Enqueue(context.Context, Message) error { return nil }

// ChannelQueue buffers messages in memory for an in-process worker. Enqueue
// never blocks; overflow is counted and reported as ErrQueueFull.
type ChannelQueue struct {
	ch      chan Message
	dropped atomic.Uint64
}

func NewChannelQueue(buffer int) *ChannelQueue {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelQueue{ch: make(chan Message, buffer)}
}

func (q *ChannelQueue) Enqueue(_ context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Messages is the receive side for the delivery worker.
func (q *ChannelQueue) Messages() <-chan Message {
	return q.ch
}

func (q *ChannelQueue) Dropped() uint64 {
	return q.dropped.Load()
}

// RedisQueue pushes JSON encoded messages onto a Redis list, one list per
// channel, for an external delivery worker to BLPOP.
type RedisQueue struct {
	rdb    redis.UniversalClient
	prefix string
}

func NewRedisQueue(rdb redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "gid:messages"
	}
	return &RedisQueue{rdb: rdb, prefix: prefix}
}

// Key returns the list key for channel.
func (q *RedisQueue) Key(channel string) string {
	return q.prefix + ":" + channel
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, q.Key(msg.Channel), data).Err(); err != nil {
		return fmt.Errorf("messaging: enqueue: %w", err)
	}
	return nil
}
