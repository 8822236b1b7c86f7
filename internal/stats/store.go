package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/real-kijmoshi/Skiing-v2/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrStoreUnavailable wraps any failure of the underlying repository.
var ErrStoreUnavailable = errors.New("stats store unavailable")

// Repository is the durable home of stats records. GetStats returns
// (nil, nil) when no record exists for key. Both calls must be atomic for a
// single key; Store serializes around them.
type Repository interface {
	GetStats(ctx context.Context, key Key) (*Record, error)
	PutStats(ctx context.Context, rec Record) error
}

// Store applies Merge as a read-modify-write against a Repository, with at
// most one merge in flight per Key. Merges for different keys run in
// parallel.
type Store struct {
	repo       Repository
	locks      *keyLocks
	breaker    *gobreaker.CircuitBreaker
	newBackOff func() backoff.BackOff
	log        *zap.Logger
	metrics    *metrics.Metrics
}

type Option func(*Store)

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithBackOff replaces the retry policy used for each repository call.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Store) { s.newBackOff = newBackOff }
}

func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:       repo,
		locks:      newKeyLocks(),
		newBackOff: defaultBackOff,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	log := s.log
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "stats-repository",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return s
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = time.Second
	return backoff.WithMaxRetries(b, 2)
}

// Merge folds (speed, altitude) into the record for (sessionID, userID) and
// returns what was stored.
func (s *Store) Merge(ctx context.Context, sessionID, userID string, speed float64, altitude *float64) (Record, error) {
	key := Key{SessionID: sessionID, UserID: userID}
	start := time.Now()

	unlock := s.locks.lock(key)
	defer unlock()

	rec, err := s.mergeLocked(ctx, key, speed, altitude)
	if err != nil {
		s.metrics.StatsMerge("error", time.Since(start).Seconds())
		return Record{}, err
	}
	s.metrics.StatsMerge("ok", time.Since(start).Seconds())
	return rec, nil
}

func (s *Store) mergeLocked(ctx context.Context, key Key, speed float64, altitude *float64) (Record, error) {
	var existing *Record
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.repo.GetStats(ctx, key)
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("read stats %s/%s: %w", key.SessionID, key.UserID, err)
	}

	next := Merge(key, existing, speed, altitude)

	err = s.call(ctx, func(ctx context.Context) error {
		return s.repo.PutStats(ctx, next)
	})
	if err != nil {
		return Record{}, fmt.Errorf("write stats %s/%s: %w", key.SessionID, key.UserID, err)
	}
	return next, nil
}

// call runs op through the circuit breaker with retries. Every failure comes
// back wrapped in ErrStoreUnavailable.
func (s *Store) call(ctx context.Context, op func(context.Context) error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, backoff.Retry(func() error {
			return op(ctx)
		}, backoff.WithContext(s.newBackOff(), ctx))
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
