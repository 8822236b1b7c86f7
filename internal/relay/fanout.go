package relay

import (
	"errors"

	"github.com/real-kijmoshi/Skiing-v2/internal/metrics"
)

var ErrConnUnwritable = errors.New("connection not writable")

// Conn is the relay's view of a transport connection. Send must not block:
// a closed or saturated connection returns ErrConnUnwritable.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

type Outcome string

const (
	Delivered Outcome = "delivered"
	Skipped   Outcome = "skipped"
)

type Delivery struct {
	Conn    Conn
	Outcome Outcome
	Err     error
}

// Fanout is a broadcast instruction: who should receive which payload.
type Fanout struct {
	SessionID  string
	Recipients []Conn
	Payload    []byte

	metrics *metrics.Metrics
}

func (f Fanout) Empty() bool {
	return len(f.Recipients) == 0
}

// Deliver sends the payload to every recipient independently. Unwritable
// recipients are reported as Skipped and do not affect the others.
func (f Fanout) Deliver() []Delivery {
	out := make([]Delivery, 0, len(f.Recipients))
	for _, conn := range f.Recipients {
		d := Delivery{Conn: conn, Outcome: Delivered}
		if err := conn.Send(f.Payload); err != nil {
			d.Outcome = Skipped
			d.Err = err
		}
		f.metrics.Delivery(string(d.Outcome))
		out = append(out, d)
	}
	return out
}
