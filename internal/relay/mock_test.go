package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/real-kijmoshi/Skiing-v2/internal/stats"
)

type mockConn struct {
	id       string
	mu       sync.Mutex
	received [][]byte
	closed   bool
}

func newConn(id string) *mockConn { return &mockConn{id: id} }

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrConnUnwritable
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

func (m *mockConn) messages() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]any, 0, len(m.received))
	for _, raw := range m.received {
		var msg map[string]any
		_ = json.Unmarshal(raw, &msg)
		out = append(out, msg)
	}
	return out
}

type mergeCall struct {
	sessionID string
	userID    string
	speed     float64
	altitude  *float64
}

type recordingMerger struct {
	mu    sync.Mutex
	calls []mergeCall
	err   error
}

func (m *recordingMerger) Merge(_ context.Context, sessionID, userID string, speed float64, altitude *float64) (stats.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mergeCall{sessionID, userID, speed, altitude})
	if m.err != nil {
		return stats.Record{}, m.err
	}
	return stats.Record{SessionID: sessionID, UserID: userID, MaxSpeed: speed}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	sessions []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, sessionID string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, sessionID)
	return p.err
}

func ids(conns []Conn) []string {
	out := make([]string, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.ID())
	}
	return out
}
