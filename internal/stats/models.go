package stats

// Key identifies one running stats record.
type Key struct {
	SessionID string
	UserID    string
}

// Record is the running performance summary of one user in one session.
// MaxAltitude and MinAltitude stay nil until a sample carries an altitude.
type Record struct {
	SessionID     string   `json:"session_id"`
	UserID        string   `json:"user_id"`
	Username      string   `json:"username,omitempty"`
	MaxSpeed      float64  `json:"max_speed"`
	MaxAltitude   *float64 `json:"max_altitude"`
	MinAltitude   *float64 `json:"min_altitude"`
	TotalDistance float64  `json:"total_distance"`
	AvgSpeed      float64  `json:"avg_speed"`
	TotalTime     int64    `json:"total_time"`
	RunsCount     int64    `json:"runs_count"`
}

func (r Record) Key() Key {
	return Key{SessionID: r.SessionID, UserID: r.UserID}
}

func (r Record) clone() Record {
	r.MaxAltitude = copyFloat(r.MaxAltitude)
	r.MinAltitude = copyFloat(r.MinAltitude)
	return r
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
