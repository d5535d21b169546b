package sensor

import (
	"context"
	"time"

	"github.com/edaniels/golog"
)

type BaseConfig struct {
	Name      string
	Timing    Timing
	Variables []Variable
	Clock     Clock
	Logger    golog.Logger
}

// Base carries the state every sensor shares: identity, declared timing,
// lifecycle status and the value slots of the current cycle. Concrete
// sensors embed it and add their own power and measurement handling.
type Base struct {
	name      string
	timing    Timing
	variables []Variable
	status    Status
	results   *Results
	clock     Clock
	logger    golog.Logger
}

func NewBase(cfg BaseConfig) *Base {
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = golog.NewLogger(cfg.Name)
	}
	vars := make([]Variable, len(cfg.Variables))
	copy(vars, cfg.Variables)
	return &Base{
		name:      cfg.Name,
		timing:    cfg.Timing,
		variables: vars,
		results:   NewResults(len(vars)),
		clock:     clock,
		logger:    logger,
	}
}

func (b *Base) Name() string          { return b.name }
func (b *Base) NumVariables() int     { return len(b.variables) }
func (b *Base) Timing() Timing        { return b.timing }
func (b *Base) Status() Status        { return b.status }
func (b *Base) Results() *Results     { return b.results }
func (b *Base) Clock() Clock          { return b.clock }
func (b *Base) Logger() golog.Logger  { return b.logger }
func (b *Base) Variables() []Variable { return append([]Variable(nil), b.variables...) }

// SetVariable replaces the descriptor bound to v.Slot, e.g. to attach a
// UUID or a custom code.
func (b *Base) SetVariable(v Variable) bool {
	if v.Slot < 0 || v.Slot >= len(b.variables) {
		return false
	}
	b.variables[v.Slot] = v
	return true
}

// Setup marks the one-time preparation as done.
func (b *Base) Setup(ctx context.Context) error {
	b.status.SetupDone = true
	return nil
}

// MarkPoweredUp records a successful power transition.
func (b *Base) MarkPoweredUp() {
	b.status.PowerAttempted = true
	b.status.Powered = true
	b.status.PoweredAt = b.clock.Now()
}

// MarkPoweredDown clears power, activation and any pending request.
func (b *Base) MarkPoweredDown() {
	b.status.PowerAttempted = false
	b.status.Powered = false
	b.status.PoweredAt = time.Time{}
	b.status.Activated = false
	b.ClearMeasurementRequest()
}

// WaitForWarmUp blocks until the warm-up interval has passed since the
// last power-on.
func (b *Base) WaitForWarmUp(ctx context.Context) error {
	return b.waitSincePowered(ctx, b.timing.WarmUp)
}

// WaitForStability blocks until warm-up and stabilization have passed
// since the last power-on.
func (b *Base) WaitForStability(ctx context.Context) error {
	return b.waitSincePowered(ctx, b.timing.WarmUp+b.timing.Stabilization)
}

func (b *Base) waitSincePowered(ctx context.Context, d time.Duration) error {
	if !b.status.Powered {
		return nil
	}
	remaining := d - b.clock.Now().Sub(b.status.PoweredAt)
	if remaining <= 0 {
		return nil
	}
	b.logger.Debugw("waiting", "sensor", b.name, "remaining", remaining)
	return b.clock.Sleep(ctx, remaining)
}

// StartSingleMeasurement flags a measurement as requested. It fails when
// the sensor has no power.
func (b *Base) StartSingleMeasurement() bool {
	if !b.status.Powered {
		b.logger.Warnw("measurement requested without power", "sensor", b.name)
		return false
	}
	b.status.Activated = true
	b.status.MeasurementRequested = true
	b.status.MeasurementSucceeded = true
	b.status.MeasurementRequestedAt = b.clock.Now()
	return true
}

func (b *Base) ClearMeasurementRequest() {
	b.status.MeasurementRequested = false
	b.status.MeasurementSucceeded = false
	b.status.MeasurementRequestedAt = time.Time{}
}

// VerifyAndAddMeasurementResult stores value in the slot of the given
// variable.
func (b *Base) VerifyAndAddMeasurementResult(slot int, value float64) {
	if err := b.results.Add(slot, value); err != nil {
		b.logger.Errorw("dropping result", "sensor", b.name, "error", err)
		return
	}
	b.logger.Debugw("result", "sensor", b.name, "slot", slot, "value", value)
}
