package stats

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/real-kijmoshi/Skiing-v2/internal/db"
)

var ErrNotFound = errors.New("stats not found")

// Reader serves the read-only stats endpoints.
type Reader interface {
	SessionStats(ctx context.Context, sessionID string) ([]Record, error)
	UserStats(ctx context.Context, key Key) (Record, error)
	UserSummary(ctx context.Context, userID string) (Summary, error)
}

type PostgresRepository struct {
	db db.Querier
}

func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) GetStats(ctx context.Context, key Key) (*Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT session_id, user_id, max_speed, max_altitude, min_altitude, total_distance, avg_speed, total_time, runs_count
		FROM stats WHERE session_id=$1 AND user_id=$2
	`, key.SessionID, key.UserID)

	var rec Record
	err := row.Scan(&rec.SessionID, &rec.UserID, &rec.MaxSpeed, &rec.MaxAltitude, &rec.MinAltitude,
		&rec.TotalDistance, &rec.AvgSpeed, &rec.TotalTime, &rec.RunsCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// PutStats upserts rec. On conflict only the extremal columns are written so
// totals maintained elsewhere are left alone.
func (r *PostgresRepository) PutStats(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO stats (session_id, user_id, max_speed, max_altitude, min_altitude)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (session_id, user_id) DO UPDATE
		SET max_speed=EXCLUDED.max_speed, max_altitude=EXCLUDED.max_altitude, min_altitude=EXCLUDED.min_altitude
	`, rec.SessionID, rec.UserID, rec.MaxSpeed, rec.MaxAltitude, rec.MinAltitude)
	return err
}

func (r *PostgresRepository) SessionStats(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT s.session_id, s.user_id, u.username, s.max_speed, s.max_altitude, s.min_altitude,
		       s.total_distance, s.avg_speed, s.total_time, s.runs_count
		FROM stats s
		JOIN users u ON s.user_id = u.id
		WHERE s.session_id=$1
		ORDER BY s.max_speed DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.UserID, &rec.Username, &rec.MaxSpeed, &rec.MaxAltitude, &rec.MinAltitude,
			&rec.TotalDistance, &rec.AvgSpeed, &rec.TotalTime, &rec.RunsCount); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRepository) UserStats(ctx context.Context, key Key) (Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, u.username, s.max_speed, s.max_altitude, s.min_altitude,
		       s.total_distance, s.avg_speed, s.total_time, s.runs_count
		FROM stats s
		JOIN users u ON s.user_id = u.id
		WHERE s.session_id=$1 AND s.user_id=$2
	`, key.SessionID, key.UserID)

	var rec Record
	err := row.Scan(&rec.SessionID, &rec.UserID, &rec.Username, &rec.MaxSpeed, &rec.MaxAltitude, &rec.MinAltitude,
		&rec.TotalDistance, &rec.AvgSpeed, &rec.TotalTime, &rec.RunsCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// MemoryRepository keeps records in process. The server falls back to it
// when Postgres is unreachable so live stats keep working.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[Key]Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: map[Key]Record{}}
}

func (m *MemoryRepository) GetStats(_ context.Context, key Key) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	c := rec.clone()
	return &c, nil
}

func (m *MemoryRepository) PutStats(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key()] = rec.clone()
	return nil
}

func (m *MemoryRepository) SessionStats(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.RLock()
	records := []Record{}
	for key, rec := range m.records {
		if key.SessionID == sessionID {
			records = append(records, rec.clone())
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].MaxSpeed > records[j].MaxSpeed
	})
	return records, nil
}

func (m *MemoryRepository) UserStats(_ context.Context, key Key) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}
