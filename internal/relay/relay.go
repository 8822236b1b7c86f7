// Package relay implements the live position relay: which connections follow
// which session, and who receives each position update.
//
// Every connection moves through Unjoined -> Joined(session) -> Unjoined.
// Joining a second session leaves the first one.
package relay

import (
	"context"
	"sync"
	"time"

	"github.com/real-kijmoshi/Skiing-v2/internal/metrics"
	"github.com/real-kijmoshi/Skiing-v2/internal/stats"
	"go.uber.org/zap"
)

// Merger folds a speed/altitude sample into the running stats.
type Merger interface {
	Merge(ctx context.Context, sessionID, userID string, speed float64, altitude *float64) (stats.Record, error)
}

// Publisher forwards a broadcast payload to other server instances. Publish
// is called on the sender's read path and must not wait on the network.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, payload []byte) error
}

// Result tells the transport what to write after an inbound message. Reply
// goes to the sender only.
type Result struct {
	Reply  []byte
	Fanout Fanout
}

type Relay struct {
	registry *Registry
	stats    Merger
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	pubMu     sync.RWMutex
	publisher Publisher

	mu      sync.Mutex
	members map[string]string // connection ID -> joined session ID
}

type Option func(*Relay)

func WithLogger(log *zap.Logger) Option {
	return func(r *Relay) { r.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithPublisher(p Publisher) Option {
	return func(r *Relay) { r.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// New builds a relay around registry. merger may be nil, in which case no
// stats are kept.
func New(registry *Registry, merger Merger, opts ...Option) *Relay {
	r := &Relay{
		registry: registry,
		stats:    merger,
		log:      zap.NewNop(),
		now:      time.Now,
		members:  map[string]string{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Registry() *Registry {
	return r.registry
}

// SetPublisher attaches or, with nil, detaches the cross-instance publisher.
func (r *Relay) SetPublisher(p Publisher) {
	r.pubMu.Lock()
	r.publisher = p
	r.pubMu.Unlock()
}

func (r *Relay) Publisher() Publisher {
	r.pubMu.RLock()
	defer r.pubMu.RUnlock()
	return r.publisher
}

// Connect registers a new transport connection and returns the greeting to
// send it.
func (r *Relay) Connect(conn Conn) []byte {
	r.metrics.ConnOpened()
	r.log.Debug("connection opened", zap.String("conn", conn.ID()))
	return connectedMessage
}

// Handle processes one inbound payload from conn.
func (r *Relay) Handle(ctx context.Context, conn Conn, payload []byte) Result {
	msg, err := decode(payload)
	if err != nil {
		r.metrics.Message("malformed")
		r.log.Debug("malformed message", zap.String("conn", conn.ID()), zap.Error(err))
		return Result{Reply: malformedMessage}
	}
	r.metrics.Message(msg.Type)

	switch msg.Type {
	case TypeJoin:
		sessionID := string(msg.SessionID)
		r.Join(conn, sessionID)
		return Result{Reply: encode(joined{Type: TypeJoined, SessionID: msg.SessionID, Message: joinedText})}
	case TypePositionUpdate:
		return Result{Fanout: r.Position(ctx, msg.sample())}
	case TypeLeave:
		r.Leave(conn)
		return Result{}
	default:
		r.log.Debug("ignoring message", zap.String("conn", conn.ID()), zap.String("type", msg.Type))
		return Result{}
	}
}

// Join subscribes conn to sessionID, leaving any other session first.
func (r *Relay) Join(conn Conn, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.members[conn.ID()]; ok && prev != sessionID {
		r.registry.Remove(prev, conn)
	}
	r.registry.Add(sessionID, conn)
	r.members[conn.ID()] = sessionID
	r.syncGauges()

	r.log.Info("client joined session", zap.String("conn", conn.ID()), zap.String("session_id", sessionID))
}

// Leave unsubscribes conn from its current session. It is a no-op for an
// unjoined connection.
func (r *Relay) Leave(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.members[conn.ID()]
	if !ok {
		return
	}
	delete(r.members, conn.ID())
	r.registry.Remove(sessionID, conn)
	r.syncGauges()

	r.log.Info("client left session", zap.String("conn", conn.ID()), zap.String("session_id", sessionID))
}

// Close forgets conn entirely. Nothing from conn may be handled after it.
func (r *Relay) Close(conn Conn) {
	r.mu.Lock()
	sessionID, ok := r.members[conn.ID()]
	delete(r.members, conn.ID())
	if ok {
		r.registry.RemoveEverywhere(conn, sessionID)
	}
	r.syncGauges()
	r.mu.Unlock()

	r.metrics.ConnClosed()
	r.log.Debug("connection closed", zap.String("conn", conn.ID()), zap.String("session_id", sessionID))
}

// SessionOf reports the session conn is joined to.
func (r *Relay) SessionOf(conn Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sessionID, ok := r.members[conn.ID()]
	return sessionID, ok
}

// Position records s in the stats (when it carries a usable speed) and
// returns the broadcast for the session's local members. The sender does not
// have to be a member of s.SessionID. A stats failure never suppresses the
// broadcast.
func (r *Relay) Position(ctx context.Context, s Sample) Fanout {
	if r.stats != nil && s.UserID != "" && s.Speed != nil && *s.Speed >= 0 {
		if _, err := r.stats.Merge(ctx, s.SessionID, s.UserID, *s.Speed, s.Altitude); err != nil {
			r.log.Warn("stats update failed",
				zap.String("session_id", s.SessionID), zap.String("user_id", s.UserID), zap.Error(err))
		}
	}

	payload := encode(newPositionUpdate(s, r.now()))

	if pub := r.Publisher(); pub != nil {
		if err := pub.Publish(ctx, s.SessionID, payload); err != nil {
			r.log.Warn("bridge publish failed", zap.String("session_id", s.SessionID), zap.Error(err))
		}
	}
	return r.Fanout(s.SessionID, payload)
}

// Fanout targets payload at the current local members of sessionID.
func (r *Relay) Fanout(sessionID string, payload []byte) Fanout {
	return Fanout{
		SessionID:  sessionID,
		Recipients: r.registry.MembersOf(sessionID),
		Payload:    payload,
		metrics:    r.metrics,
	}
}

func (r *Relay) syncGauges() {
	sessions, _ := r.registry.Stats()
	r.metrics.SetSessions(sessions)
}
