package sensor

import (
	"context"
	"fmt"
)

// Measure drives s through one complete cycle and returns a reading per
// declared variable. Power is restored to its prior state on return.
func Measure(ctx context.Context, s Sensor, clock Clock) ([]Reading, error) {
	if clock == nil {
		clock = SystemClock()
	}
	if !s.Status().Powered {
		s.PowerUp()
		defer s.PowerDown()
	}

	if err := s.WaitForStability(ctx); err != nil {
		return nil, fmt.Errorf("wait for stability: %w", err)
	}

	s.Results().Reset()
	if !s.StartSingleMeasurement() {
		return nil, fmt.Errorf("%s: measurement not started", s.LocationID())
	}
	if err := clock.Sleep(ctx, s.Timing().Measurement); err != nil {
		return nil, fmt.Errorf("wait for measurement: %w", err)
	}
	// The return value is not a reliable success signal; validity is read
	// from the result slots below.
	_ = s.AddSingleMeasurementResult()

	now := clock.Now()
	res := s.Results()
	out := make([]Reading, 0, s.NumVariables())
	for _, v := range s.Variables() {
		out = append(out, Reading{
			Sensor:     s.LocationID(),
			Slot:       v.Slot,
			Variable:   v.Name,
			Code:       v.Code,
			Unit:       v.Unit,
			Resolution: v.Resolution,
			Value:      res.Value(v.Slot),
			Valid:      res.Count(v.Slot) > 0,
			Timestamp:  now,
		})
	}
	return out, nil
}
