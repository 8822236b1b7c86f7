package position

import (
	"time"

	"github.com/real-kijmoshi/Skiing-v2/internal/relay"
)

type Position struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  *float64  `json:"altitude"`
	Speed     *float64  `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// CreateRequest accepts session and user IDs as JSON strings or numbers.
type CreateRequest struct {
	SessionID relay.ID `json:"session_id"`
	UserID    relay.ID `json:"user_id"`
	Username  string   `json:"username"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Speed     *float64 `json:"speed"`
}

func (r CreateRequest) valid() bool {
	return r.SessionID != "" && r.UserID != "" && r.Latitude != nil && r.Longitude != nil
}

func (r CreateRequest) sample() relay.Sample {
	return relay.Sample{
		SessionID: string(r.SessionID),
		UserID:    string(r.UserID),
		Username:  r.Username,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Altitude:  r.Altitude,
		Speed:     r.Speed,
	}
}
