package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
)

var errUser = errors.New("db down")

func TestCreateAndGetUser(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "mia", "mia@example.com").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	svc := NewService(mock)
	u, err := svc.Create(context.Background(), CreateRequest{Username: "mia", Email: "mia@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == "" || !u.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected user %+v", u)
	}

	mock.ExpectQuery(`SELECT id, username, email, created_at\s+FROM users WHERE id=\$1`).
		WithArgs(u.ID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow(u.ID, "mia", "mia@example.com", createdAt))

	loaded, err := svc.Get(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if loaded.Username != "mia" {
		t.Fatalf("unexpected user loaded")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Create(context.Background(), CreateRequest{Username: "mia"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "mia", "mia@example.com").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err = NewService(mock).Create(context.Background(), CreateRequest{Username: "mia", Email: "mia@example.com"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestListUsers(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, username, email, created_at\s+FROM users\s+ORDER BY created_at`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow("u1", "mia", "mia@example.com", time.Now()).
			AddRow("u2", "leo", "leo@example.com", time.Now()))

	users, err := NewService(mock).List(context.Background())
	if err != nil || len(users) != 2 {
		t.Fatalf("list users: %v %d", err, len(users))
	}

	mock.ExpectQuery(`SELECT id, username, email, created_at`).WillReturnError(errUser)
	if _, err := NewService(mock).List(context.Background()); !errors.Is(err, errUser) {
		t.Fatalf("expected list error, got %v", err)
	}
}

func TestGetUserMissing(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT id, username, email, created_at`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	if _, err := NewService(mock).Get(context.Background(), "nope"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
}
