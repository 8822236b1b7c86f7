package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/real-kijmoshi/Skiing-v2/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "tracking:"
	channelSuffix  = ":broadcast"
	channelPattern = channelPrefix + "*" + channelSuffix

	outboxSize     = 256
	publishTimeout = 2 * time.Second
)

// ErrBridgeBacklog is returned by Publish when the outbox is full.
var ErrBridgeBacklog = errors.New("bridge outbox full")

// DeliverFunc hands a broadcast that originated on another instance to the
// local members of sessionID.
type DeliverFunc func(sessionID string, payload []byte)

type outbound struct {
	sessionID string
	payload   []byte
}

type envelope struct {
	Origin    string          `json:"origin"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// Bridge relays position broadcasts between server instances over Redis
// pub/sub. Outgoing messages are queued and written by a background
// goroutine, so Publish never waits on Redis.
type Bridge struct {
	redis      *redis.Client
	instanceID string
	log        *zap.Logger
	metrics    *metrics.Metrics
	outbox     chan outbound
	wg         sync.WaitGroup
}

func NewBridge(client *redis.Client, instanceID string, log *zap.Logger, m *metrics.Metrics) *Bridge {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		redis:      client,
		instanceID: instanceID,
		log:        log,
		metrics:    m,
		outbox:     make(chan outbound, outboxSize),
	}
}

func (b *Bridge) InstanceID() string { return b.instanceID }

// Publish queues payload for every other instance. It does not block: when
// the outbox is full the message is dropped and ErrBridgeBacklog returned.
func (b *Bridge) Publish(_ context.Context, sessionID string, payload []byte) error {
	select {
	case b.outbox <- outbound{sessionID: sessionID, payload: payload}:
		return nil
	default:
		b.metrics.Bridge("dropped")
		return ErrBridgeBacklog
	}
}

func (b *Bridge) send(ctx context.Context, msg outbound) error {
	data, err := json.Marshal(envelope{Origin: b.instanceID, SessionID: msg.sessionID, Payload: msg.payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.redis.Publish(ctx, redisChannel(msg.sessionID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	b.metrics.Bridge("out")
	return nil
}

// Start subscribes to every session channel and returns once the
// subscription is confirmed. Messages flow both ways until ctx is canceled.
func (b *Bridge) Start(ctx context.Context, deliver DeliverFunc) error {
	pubsub := b.redis.PSubscribe(ctx, channelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	b.wg.Add(2)
	go b.loop(ctx, pubsub, deliver)
	go b.drain(ctx)
	return nil
}

// Wait blocks until the goroutines started by Start have exited.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) drain(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbox:
			if err := b.send(ctx, msg); err != nil {
				b.metrics.Bridge("failed")
				b.log.Warn("bridge publish failed", zap.String("session_id", msg.sessionID), zap.Error(err))
			}
		}
	}
}

func (b *Bridge) loop(ctx context.Context, pubsub *redis.PubSub, deliver DeliverFunc) {
	defer b.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.receive(msg, deliver)
		}
	}
}

func (b *Bridge) receive(msg *redis.Message, deliver DeliverFunc) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.metrics.Bridge("invalid")
		b.log.Warn("bridge message dropped", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if env.Origin == b.instanceID {
		return
	}

	sessionID := sessionIDFromChannel(msg.Channel)
	if sessionID == "" {
		sessionID = env.SessionID
	}
	b.metrics.Bridge("in")
	deliver(sessionID, env.Payload)
}

func redisChannel(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	// tracking:{session}:broadcast
	if len(ch) <= len(channelPrefix)+len(channelSuffix) ||
		!strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
