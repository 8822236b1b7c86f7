package stats

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"
)

// Summary aggregates one user's records over every session they skied.
type Summary struct {
	UserID            string   `json:"user_id"`
	Username          string   `json:"username,omitempty"`
	TotalSessions     int64    `json:"total_sessions"`
	PersonalBestSpeed float64  `json:"personal_best_speed"`
	TotalDistance     float64  `json:"total_distance"`
	TotalRuns         int64    `json:"total_runs"`
	OverallAvgSpeed   float64  `json:"overall_avg_speed"`
	HighestAltitude   *float64 `json:"highest_altitude"`
}

func (r *PostgresRepository) UserSummary(ctx context.Context, userID string) (Summary, error) {
	row := r.db.QueryRow(ctx, `
		SELECT u.username,
		       COUNT(DISTINCT s.session_id),
		       COALESCE(MAX(s.max_speed), 0),
		       COALESCE(SUM(s.total_distance), 0),
		       COALESCE(SUM(s.runs_count), 0)::bigint,
		       COALESCE(AVG(s.avg_speed), 0),
		       MAX(s.max_altitude)
		FROM stats s
		JOIN users u ON s.user_id = u.id
		WHERE s.user_id=$1
		GROUP BY u.username
	`, userID)

	sum := Summary{UserID: userID}
	err := row.Scan(&sum.Username, &sum.TotalSessions, &sum.PersonalBestSpeed, &sum.TotalDistance,
		&sum.TotalRuns, &sum.OverallAvgSpeed, &sum.HighestAltitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func (m *MemoryRepository) UserSummary(_ context.Context, userID string) (Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sum := Summary{UserID: userID}
	var avgTotal float64
	for key, rec := range m.records {
		if key.UserID != userID {
			continue
		}
		sum.TotalSessions++
		sum.PersonalBestSpeed = math.Max(sum.PersonalBestSpeed, rec.MaxSpeed)
		sum.TotalDistance += rec.TotalDistance
		sum.TotalRuns += rec.RunsCount
		avgTotal += rec.AvgSpeed
		sum.HighestAltitude = extremum(sum.HighestAltitude, rec.MaxAltitude, math.Max)
	}
	if sum.TotalSessions == 0 {
		return Summary{}, ErrNotFound
	}
	sum.OverallAvgSpeed = avgTotal / float64(sum.TotalSessions)
	return sum, nil
}
