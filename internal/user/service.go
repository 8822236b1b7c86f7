package user

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/real-kijmoshi/Skiing-v2/internal/db"
)

var (
	ErrInvalid   = errors.New("username and email are required")
	ErrDuplicate = errors.New("username or email already exists")
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (User, error) {
	if req.Username == "" || req.Email == "" {
		return User{}, ErrInvalid
	}

	u := User{ID: uuid.NewString(), Username: req.Username, Email: req.Email}
	row := s.db.QueryRow(ctx, `
		INSERT INTO users (id, username, email)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, u.ID, u.Username, u.Email)
	if err := row.Scan(&u.CreatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrDuplicate
		}
		return User{}, err
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, username, email, created_at
		FROM users
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Get returns pgx.ErrNoRows when the user does not exist.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, username, email, created_at
		FROM users WHERE id=$1
	`, id)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt); err != nil {
		return User{}, err
	}
	return u, nil
}
