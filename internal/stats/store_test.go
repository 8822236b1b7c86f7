package stats

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/real-kijmoshi/Skiing-v2/internal/metrics"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noRetry() backoff.BackOff { return &backoff.StopBackOff{} }

// slowRepository widens the window between read and write so an
// unserialized read-modify-write would lose updates.
type slowRepository struct {
	*MemoryRepository
	delay    time.Duration
	inFlight sync.Map // Key -> *int32
	overlap  atomic.Bool
}

func (r *slowRepository) GetStats(ctx context.Context, key Key) (*Record, error) {
	v, _ := r.inFlight.LoadOrStore(key, new(int32))
	if atomic.AddInt32(v.(*int32), 1) > 1 {
		r.overlap.Store(true)
	}
	time.Sleep(r.delay)
	return r.MemoryRepository.GetStats(ctx, key)
}

func (r *slowRepository) PutStats(ctx context.Context, rec Record) error {
	err := r.MemoryRepository.PutStats(ctx, rec)
	v, _ := r.inFlight.Load(rec.Key())
	atomic.AddInt32(v.(*int32), -1)
	return err
}

type failingRepository struct {
	calls   atomic.Int32
	failFor int32
}

var errDown = errors.New("connection refused")

func (r *failingRepository) GetStats(context.Context, Key) (*Record, error) {
	if r.calls.Add(1) <= r.failFor {
		return nil, errDown
	}
	return nil, nil
}

func (r *failingRepository) PutStats(context.Context, Record) error {
	return nil
}

func TestStoreMergeCreatesAndUpdates(t *testing.T) {
	repo := NewMemoryRepository()
	store := NewStore(repo, WithBackOff(noRetry))
	ctx := context.Background()

	rec, err := store.Merge(ctx, "7", "a", 12, f(1500))
	require.NoError(t, err)
	assert.Equal(t, 12.0, rec.MaxSpeed)

	rec, err = store.Merge(ctx, "7", "a", 9, f(1400))
	require.NoError(t, err)
	assert.Equal(t, 12.0, rec.MaxSpeed)
	assert.Equal(t, 1500.0, *rec.MaxAltitude)
	assert.Equal(t, 1400.0, *rec.MinAltitude)

	stored, err := repo.GetStats(ctx, Key{SessionID: "7", UserID: "a"})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, rec, *stored)
}

func TestStoreConcurrentMergesSameKeyKeepMaximum(t *testing.T) {
	repo := &slowRepository{MemoryRepository: NewMemoryRepository(), delay: time.Millisecond}
	store := NewStore(repo, WithBackOff(noRetry))

	const n = 40
	speeds := make([]float64, n)
	for i := range speeds {
		speeds[i] = float64(i + 1)
	}
	rand.Shuffle(n, func(a, b int) { speeds[a], speeds[b] = speeds[b], speeds[a] })

	var wg sync.WaitGroup
	for _, v := range speeds {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, err := store.Merge(context.Background(), "7", "a", v, f(v*10))
			assert.NoError(t, err)
		}(v)
	}
	wg.Wait()

	rec, err := repo.GetStats(context.Background(), Key{SessionID: "7", UserID: "a"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, float64(n), rec.MaxSpeed)
	assert.Equal(t, float64(n*10), *rec.MaxAltitude)
	assert.Equal(t, 10.0, *rec.MinAltitude)
	assert.False(t, repo.overlap.Load(), "two merges for one key overlapped")
	assert.Zero(t, store.locks.size())
}

func TestStoreDifferentKeysRunInParallel(t *testing.T) {
	started := make(chan Key, 2)
	release := make(chan struct{})
	repo := &blockingRepository{started: started, release: release}
	store := NewStore(repo, WithBackOff(noRetry))

	var wg sync.WaitGroup
	for _, user := range []string{"a", "b"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, _ = store.Merge(context.Background(), "7", user, 1, nil)
		}(user)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-time.After(time.Second):
			require.FailNow(t, "merge for an unrelated key was serialized")
		}
	}
	close(release)
	wg.Wait()
}

type blockingRepository struct {
	started chan Key
	release chan struct{}
}

func (r *blockingRepository) GetStats(_ context.Context, key Key) (*Record, error) {
	r.started <- key
	<-r.release
	return nil, nil
}

func (r *blockingRepository) PutStats(context.Context, Record) error { return nil }

func TestStoreUnavailable(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	repo := &failingRepository{failFor: 1}
	store := NewStore(repo, WithBackOff(noRetry), WithMetrics(m))

	_, err := store.Merge(context.Background(), "7", "a", 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatsMerges.WithLabelValues("error")))

	_, err = store.Merge(context.Background(), "7", "a", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatsMerges.WithLabelValues("ok")))
}

func TestStoreRetriesTransientFailure(t *testing.T) {
	repo := &failingRepository{failFor: 2}
	store := NewStore(repo, WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	}))

	rec, err := store.Merge(context.Background(), "7", "a", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, rec.MaxSpeed)
	assert.Equal(t, int32(3), repo.calls.Load())
}

func TestStoreBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	repo := &failingRepository{failFor: 1000}
	store := NewStore(repo, WithBackOff(noRetry))

	for i := 0; i < 5; i++ {
		_, err := store.Merge(context.Background(), "7", "a", 1, nil)
		require.ErrorIs(t, err, errDown)
	}

	_, err := store.Merge(context.Background(), "7", "a", 1, nil)
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(5), repo.calls.Load())
}

func TestStoreCanceledContext(t *testing.T) {
	repo := &failingRepository{failFor: 1000}
	store := NewStore(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Merge(ctx, "7", "a", 1, nil)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
