package sensor

import (
	"context"
	"time"
)

// Sentinel marks a value slot that holds no valid measurement.
const Sentinel = -9999.0

// UnitKilogram is the unit name of mass variables.
const UnitKilogram = "kilogram"

type Reading struct {
	Sensor     string    `json:"sensor"`
	Slot       int       `json:"-"`
	Variable   string    `json:"variable"`
	Code       string    `json:"code"`
	Unit       string    `json:"unit,omitempty"`
	Resolution int       `json:"-"`
	Value      float64   `json:"value"`
	Valid      bool      `json:"valid"`
	Timestamp  time.Time `json:"timestamp"`
}

// Formatted renders the value with the declared number of decimals.
func (r Reading) Formatted() string {
	return formatValue(r.Value, r.Resolution)
}

// Timing declares how long a sensor needs between lifecycle steps.
type Timing struct {
	WarmUp        time.Duration
	Stabilization time.Duration
	Measurement   time.Duration
}

// Sensor is the capability set a host needs to drive one physical sensor
// through a measurement cycle.
type Sensor interface {
	Name() string
	LocationID() string
	NumVariables() int
	Timing() Timing
	Status() Status

	PowerUp()
	PowerDown()
	Setup(ctx context.Context) error
	// WaitForStability blocks until warm-up and stabilization have passed
	// since the last power-on.
	WaitForStability(ctx context.Context) error
	StartSingleMeasurement() bool
	AddSingleMeasurementResult() bool

	Results() *Results
	Variables() []Variable
}
