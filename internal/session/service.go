package session

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/real-kijmoshi/Skiing-v2/internal/db"
)

var (
	ErrInvalid       = errors.New("name and creator_id are required")
	ErrAlreadyJoined = errors.New("user already in session")
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

// Create inserts the session and enrolls its creator in one statement.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Session, error) {
	if req.Name == "" || req.CreatorID == "" {
		return Session{}, ErrInvalid
	}

	sess := Session{ID: uuid.NewString(), Name: req.Name, CreatorID: req.CreatorID, Location: req.Location}
	row := s.db.QueryRow(ctx, `
		WITH created AS (
			INSERT INTO sessions (id, name, creator_id, location)
			VALUES ($1,$2,$3,$4)
			RETURNING id, start_time, status
		), enrolled AS (
			INSERT INTO session_participants (session_id, user_id)
			SELECT id, $3 FROM created
		)
		SELECT start_time, status FROM created
	`, sess.ID, sess.Name, sess.CreatorID, sess.Location)
	if err := row.Scan(&sess.StartTime, &sess.Status); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *Service) List(ctx context.Context) ([]Session, error) {
	rows, err := s.db.Query(ctx, `
		SELECT s.id, s.name, s.creator_id, u.username, s.location, s.start_time, s.end_time, s.status,
		       COUNT(DISTINCT sp.user_id)
		FROM sessions s
		JOIN users u ON s.creator_id = u.id
		LEFT JOIN session_participants sp ON s.id = sp.session_id
		GROUP BY s.id, u.username
		ORDER BY s.start_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var (
			sess  Session
			count int64
		)
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatorID, &sess.CreatorName, &sess.Location,
			&sess.StartTime, &sess.EndTime, &sess.Status, &count); err != nil {
			return nil, err
		}
		sess.ParticipantCount = &count
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Get loads a session with its participants. It returns pgx.ErrNoRows when
// the session does not exist.
func (s *Service) Get(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT s.id, s.name, s.creator_id, u.username, s.location, s.start_time, s.end_time, s.status
		FROM sessions s
		JOIN users u ON s.creator_id = u.id
		WHERE s.id=$1
	`, id)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Name, &sess.CreatorID, &sess.CreatorName, &sess.Location,
		&sess.StartTime, &sess.EndTime, &sess.Status); err != nil {
		return Session{}, err
	}

	participants, err := s.Participants(ctx, id)
	if err != nil {
		return Session{}, err
	}
	sess.Participants = participants
	return sess, nil
}

func (s *Service) Participants(ctx context.Context, sessionID string) ([]Participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.username, sp.joined_at
		FROM session_participants sp
		JOIN users u ON sp.user_id = u.id
		WHERE sp.session_id=$1
		ORDER BY sp.joined_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []Participant{}
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.ID, &p.Username, &p.JoinedAt); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *Service) Join(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id)
		VALUES ($1,$2)
	`, sessionID, userID)
	if db.IsUniqueViolation(err) {
		return ErrAlreadyJoined
	}
	return err
}

// End marks the session ended. It returns pgx.ErrNoRows for an unknown id.
func (s *Service) End(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE sessions
		SET end_time=now(), status=$2
		WHERE id=$1
	`, id, StatusEnded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
