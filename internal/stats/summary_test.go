package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *MemoryRepository {
	t.Helper()
	repo := NewMemoryRepository()
	for _, rec := range []Record{
		{SessionID: "s1", UserID: "mia", MaxSpeed: 21, MaxAltitude: f(2400), AvgSpeed: 10},
		{SessionID: "s2", UserID: "mia", MaxSpeed: 25, MaxAltitude: f(2900), AvgSpeed: 14},
		{SessionID: "s1", UserID: "leo", MaxSpeed: 18},
		{SessionID: "s1", UserID: "kai", MaxSpeed: 0},
	} {
		require.NoError(t, repo.PutStats(context.Background(), rec))
	}
	return repo
}

func TestMemoryUserSummary(t *testing.T) {
	repo := seeded(t)

	sum, err := repo.UserSummary(context.Background(), "mia")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.TotalSessions)
	assert.Equal(t, 25.0, sum.PersonalBestSpeed)
	assert.Equal(t, 12.0, sum.OverallAvgSpeed)
	require.NotNil(t, sum.HighestAltitude)
	assert.Equal(t, 2900.0, *sum.HighestAltitude)

	leo, err := repo.UserSummary(context.Background(), "leo")
	require.NoError(t, err)
	assert.Nil(t, leo.HighestAltitude)

	_, err = repo.UserSummary(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresUserSummary(t *testing.T) {
	mock := newMock(t)
	columns := []string{"username", "count", "max", "distance", "runs", "avg", "altitude"}
	mock.ExpectQuery(`COUNT\(DISTINCT s.session_id\).*GROUP BY u.username`).
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows(columns).AddRow("mia", int64(2), 25.0, 0.0, int64(0), 12.0, f(2900)))
	mock.ExpectQuery(`GROUP BY u.username`).WithArgs("u2").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`GROUP BY u.username`).WithArgs("u3").WillReturnError(errStats)

	repo := NewPostgresRepository(mock)
	sum, err := repo.UserSummary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "mia", sum.Username)
	assert.Equal(t, int64(2), sum.TotalSessions)
	assert.Equal(t, 2900.0, *sum.HighestAltitude)

	_, err = repo.UserSummary(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.UserSummary(context.Background(), "u3")
	assert.ErrorIs(t, err, errStats)
}

func TestUserSummaryHandler(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/api/stats"), seeded(t))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/stats/user/mia/summary", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var sum Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, 25.0, sum.PersonalBestSpeed)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/stats/user/nobody/summary", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
