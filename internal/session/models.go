package session

import "time"

const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

type Session struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	CreatorID        string        `json:"creator_id"`
	CreatorName      string        `json:"creator_name,omitempty"`
	Location         *string       `json:"location"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time"`
	Status           string        `json:"status"`
	ParticipantCount *int64        `json:"participant_count,omitempty"`
	Participants     []Participant `json:"participants,omitempty"`
}

type Participant struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
}

type CreateRequest struct {
	Name      string  `json:"name"`
	CreatorID string  `json:"creator_id"`
	Location  *string `json:"location"`
}
