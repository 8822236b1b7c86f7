package position

import (
	"context"
	"errors"

	"github.com/real-kijmoshi/Skiing-v2/internal/db"
	"github.com/real-kijmoshi/Skiing-v2/internal/relay"
)

var ErrInvalid = errors.New("session_id, user_id, latitude, and longitude are required")

type Service struct {
	db    db.Querier
	relay *relay.Relay
}

// NewService builds the position service. When r is nil samples are stored
// but neither merged into stats nor relayed.
func NewService(q db.Querier, r *relay.Relay) *Service {
	return &Service{db: q, relay: r}
}

// Record stores a sample and then feeds it through the relay, which updates
// the running stats and pushes it to the session's live subscribers.
func (s *Service) Record(ctx context.Context, req CreateRequest) (int64, error) {
	if !req.valid() {
		return 0, ErrInvalid
	}

	var id int64
	row := s.db.QueryRow(ctx, `
		INSERT INTO positions (session_id, user_id, latitude, longitude, altitude, speed)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id
	`, string(req.SessionID), string(req.UserID), *req.Latitude, *req.Longitude, req.Altitude, req.Speed)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}

	if s.relay != nil {
		s.relay.Position(ctx, req.sample()).Deliver()
	}
	return id, nil
}

// Latest returns the most recent sample of every user in the session.
func (s *Service) Latest(ctx context.Context, sessionID string) ([]Position, error) {
	return s.query(ctx, `
		SELECT p.id, p.session_id, p.user_id, u.username, p.latitude, p.longitude, p.altitude, p.speed, p.timestamp
		FROM positions p
		JOIN users u ON p.user_id = u.id
		WHERE p.session_id=$1
		AND p.id IN (
			SELECT MAX(id) FROM positions
			WHERE session_id=$1
			GROUP BY user_id
		)
		ORDER BY p.timestamp DESC
	`, sessionID)
}

func (s *Service) query(ctx context.Context, sql string, args ...any) ([]Position, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := []Position{}
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.Username, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.Speed, &p.Timestamp); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
