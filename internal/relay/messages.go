package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	TypeConnected      = "connected"
	TypeJoin           = "join"
	TypeJoined         = "joined"
	TypePositionUpdate = "position_update"
	TypeLeave          = "leave"
	TypeError          = "error"
)

const (
	connectedText = "Connected to Skiing App WebSocket server"
	joinedText    = "Successfully joined session for live updates"
	malformedText = "Invalid message format"
)

// timestampLayout matches what browsers produce for Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

var ErrMalformedMessage = errors.New("malformed message")

// ID is a session or user identifier. Clients send either JSON strings or
// numbers; both decode to the same textual ID. Numbers are canonicalized, so
// 7, 7.0 and 7e0 are one ID. Strings are kept verbatim.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		s, err := canonicalNumber(n)
		if err != nil {
			return fmt.Errorf("id must be a string or number: %w", err)
		}
		*id = ID(s)
		return nil
	}
}

func canonicalNumber(n json.Number) (string, error) {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	f, err := n.Float64()
	if err != nil {
		return "", err
	}
	if f == 0 {
		f = 0 // -0
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

type inbound struct {
	Type      string   `json:"type"`
	SessionID ID       `json:"sessionId"`
	UserID    ID       `json:"userId"`
	Username  string   `json:"username"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Speed     *float64 `json:"speed"`
}

// Sample is one observed position of one user in one session.
type Sample struct {
	SessionID string
	UserID    string
	Username  string
	Latitude  *float64
	Longitude *float64
	Altitude  *float64
	Speed     *float64
}

func (m inbound) sample() Sample {
	return Sample{
		SessionID: string(m.SessionID),
		UserID:    string(m.UserID),
		Username:  m.Username,
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		Altitude:  m.Altitude,
		Speed:     m.Speed,
	}
}

func decode(payload []byte) (inbound, error) {
	var msg inbound
	if err := json.Unmarshal(payload, &msg); err != nil {
		return inbound{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	switch msg.Type {
	case "":
		return inbound{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	case TypeJoin, TypePositionUpdate:
		if msg.SessionID == "" {
			return inbound{}, fmt.Errorf("%w: %s without sessionId", ErrMalformedMessage, msg.Type)
		}
	}
	return msg, nil
}

type notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type joined struct {
	Type      string `json:"type"`
	SessionID ID     `json:"sessionId"`
	Message   string `json:"message"`
}

// PositionUpdate is the broadcast form of a Sample.
type PositionUpdate struct {
	Type      string   `json:"type"`
	SessionID ID       `json:"sessionId"`
	UserID    ID       `json:"userId,omitempty"`
	Username  string   `json:"username,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp string   `json:"timestamp"`
}

func newPositionUpdate(s Sample, at time.Time) PositionUpdate {
	return PositionUpdate{
		Type:      TypePositionUpdate,
		SessionID: ID(s.SessionID),
		UserID:    ID(s.UserID),
		Username:  s.Username,
		Latitude:  s.Latitude,
		Longitude: s.Longitude,
		Altitude:  s.Altitude,
		Speed:     s.Speed,
		Timestamp: at.UTC().Format(timestampLayout),
	}
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain structs of strings and floats reach here.
		panic(err)
	}
	return b
}

var (
	connectedMessage = encode(notice{Type: TypeConnected, Message: connectedText})
	malformedMessage = encode(notice{Type: TypeError, Message: malformedText})
)
