package sensor

import "time"

// State is the position of a sensor in its measurement cycle.
type State int

const (
	StateIdle State = iota
	StateWarming
	StateReady
	StateMeasuring
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	case StateMeasuring:
		return "measuring"
	default:
		return "unknown"
	}
}

// Status tracks what has been done to a sensor since it was constructed.
type Status struct {
	SetupDone            bool
	PowerAttempted       bool
	Powered              bool
	Activated            bool
	MeasurementRequested bool
	MeasurementSucceeded bool

	PoweredAt              time.Time
	MeasurementRequestedAt time.Time
}

// State derives the cycle position at now for a sensor with the given
// warm-up interval.
func (s Status) State(now time.Time, warmUp time.Duration) State {
	switch {
	case s.MeasurementRequested:
		return StateMeasuring
	case !s.Powered:
		return StateIdle
	case now.Sub(s.PoweredAt) < warmUp:
		return StateWarming
	default:
		return StateReady
	}
}
