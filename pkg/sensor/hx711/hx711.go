// Package hx711 adapts an Avia Semiconductor HX711 load-cell ADC to the
// sensor contract. The bit-level protocol lives in the Driver; this package
// only sequences power, calibration and result reporting.
package hx711

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/edaniels/golog"

	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

const (
	SensorName   = "AviaSemiHX711"
	NumVariables = 2

	// ReadCount is the number of conversions the driver averages per result.
	ReadCount = 10

	WarmUpTime        = 100 * time.Millisecond
	StabilizationTime = 1000 * time.Millisecond
	MeasurementTime   = 1100 * time.Millisecond

	locationPrefix = "HX711_"
)

// errSentinelWeight rejects a weight that collides with the sentinel, which
// the result slots cannot store.
var errSentinelWeight = errors.New("weight equals the sentinel value")

// Driver is the chip-level collaborator. Implementations own the serial
// protocol and any filtering of raw conversions.
type Driver interface {
	PowerUp()
	PowerDown()
	Begin(dataPin, clockPin int)
	SetOffset(offset int64)
	SetScale(scale float64)
	// AveragedUnits returns the mean of samples conversions with offset and
	// scale applied.
	AveragedUnits(samples int) (float64, error)
}

// RawReporter is implemented by drivers that keep the mean raw count of
// their last AveragedUnits call.
type RawReporter interface {
	LastRaw() (float64, bool)
}

// Config is fixed for the lifetime of a Sensor.
type Config struct {
	DataPin           int
	ClockPin          int
	CalibrationOffset int64
	CalibrationDiv    int64
}

type Sensor struct {
	*sensor.Base

	cfg       Config
	drv       Driver
	lastValid bool
}

var _ sensor.Sensor = (*Sensor)(nil)

type Option func(*sensor.BaseConfig)

func WithLogger(l golog.Logger) Option {
	return func(c *sensor.BaseConfig) { c.Logger = l }
}

func WithClock(clk sensor.Clock) Option {
	return func(c *sensor.BaseConfig) { c.Clock = clk }
}

func New(drv Driver, cfg Config, opts ...Option) *Sensor {
	bc := sensor.BaseConfig{
		Name: SensorName,
		Timing: sensor.Timing{
			WarmUp:        WarmUpTime,
			Stabilization: StabilizationTime,
			Measurement:   MeasurementTime,
		},
		Variables: []sensor.Variable{WeightVariable("", ""), RawVariable("", "")},
	}
	for _, o := range opts {
		o(&bc)
	}
	return &Sensor{Base: sensor.NewBase(bc), cfg: cfg, drv: drv}
}

func (s *Sensor) Config() Config { return s.cfg }

// LocationID distinguishes HX711 instances by their pins.
func (s *Sensor) LocationID() string {
	return locationPrefix + strconv.Itoa(s.cfg.DataPin) + strconv.Itoa(s.cfg.ClockPin)
}

// PowerUp has no failure signal from the chip and is assumed to succeed.
func (s *Sensor) PowerUp() {
	s.drv.PowerUp()
	s.MarkPoweredUp()
}

func (s *Sensor) PowerDown() {
	s.drv.PowerDown()
	s.MarkPoweredDown()
}

// Setup configures pins and calibration. The chip needs power for this, so
// it is powered up for the call when it was off and powered down again
// afterwards. Only a cancelled wait for warm-up is reported as an error;
// the driver cannot signal initialization failures.
func (s *Sensor) Setup(ctx context.Context) error {
	wasOn := s.Status().Powered
	if !wasOn {
		s.PowerUp()
		defer s.PowerDown()
	}
	if err := s.WaitForWarmUp(ctx); err != nil {
		return err
	}

	s.drv.Begin(s.cfg.DataPin, s.cfg.ClockPin)
	s.drv.SetOffset(s.cfg.CalibrationOffset)
	s.drv.SetScale(float64(s.cfg.CalibrationDiv))
	s.Logger().Debugw("configured", "sensor", s.LocationID(),
		"offset", s.cfg.CalibrationOffset, "divisor", s.cfg.CalibrationDiv)
	return s.Base.Setup(ctx)
}

// AddSingleMeasurementResult reads the averaged weight and records it. The
// returned flag stays false even for a valid weight; use
// LastMeasurementValid or the result slots to tell readings apart.
func (s *Sensor) AddSingleMeasurementResult() bool {
	success := false
	weight, raw := sensor.Sentinel, sensor.Sentinel

	v, err := s.drv.AveragedUnits(ReadCount)
	if err == nil && v == sensor.Sentinel {
		err = errSentinelWeight
	}
	if err != nil {
		s.Logger().Warnw("no reading", "sensor", s.LocationID(), "error", err)
	} else {
		weight = v
		if rr, ok := s.drv.(RawReporter); ok {
			if r, ok := rr.LastRaw(); ok {
				raw = r
			}
		}
	}
	s.lastValid = err == nil
	s.Logger().Debugw("weight", "sensor", s.LocationID(), "kg", weight)

	s.VerifyAndAddMeasurementResult(WeightVarNum, weight)
	s.VerifyAndAddMeasurementResult(RawVarNum, raw)

	s.ClearMeasurementRequest()
	// TODO: return s.lastValid once consumers agree on what the flag means.
	return success
}

// LastMeasurementValid reports whether the last AddSingleMeasurementResult
// obtained a weight from the driver.
func (s *Sensor) LastMeasurementValid() bool { return s.lastValid }
