package stats

import "math"

// Merge folds one sample into existing and returns the resulting record.
// existing may be nil, in which case a fresh record for key is started.
//
// Only the extremal fields move: MaxSpeed, MaxAltitude and MinAltitude. An
// absent altitude never clears a recorded extremum. Every other field is
// carried over untouched. The result never aliases existing.
func Merge(key Key, existing *Record, speed float64, altitude *float64) Record {
	if existing == nil {
		return Record{
			SessionID:   key.SessionID,
			UserID:      key.UserID,
			MaxSpeed:    speed,
			MaxAltitude: copyFloat(altitude),
			MinAltitude: copyFloat(altitude),
		}
	}

	next := existing.clone()
	next.MaxSpeed = math.Max(existing.MaxSpeed, speed)
	next.MaxAltitude = extremum(existing.MaxAltitude, altitude, math.Max)
	next.MinAltitude = extremum(existing.MinAltitude, altitude, math.Min)
	return next
}

func extremum(current, sample *float64, pick func(a, b float64) float64) *float64 {
	switch {
	case current != nil && sample != nil:
		v := pick(*current, *sample)
		return &v
	case sample != nil:
		return copyFloat(sample)
	default:
		return copyFloat(current)
	}
}
