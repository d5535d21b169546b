package hx711

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

type fakeDriver struct {
	calls   []string
	powered bool

	poweredAtBegin bool
	dataPin        int
	clockPin       int
	offset         int64
	scale          float64

	units   float64
	raw     float64
	err     error
	samples int
}

func (f *fakeDriver) PowerUp() {
	f.calls = append(f.calls, "power_up")
	f.powered = true
}

func (f *fakeDriver) PowerDown() {
	f.calls = append(f.calls, "power_down")
	f.powered = false
}

func (f *fakeDriver) Begin(dataPin, clockPin int) {
	f.calls = append(f.calls, "begin")
	f.poweredAtBegin = f.powered
	f.dataPin, f.clockPin = dataPin, clockPin
}

func (f *fakeDriver) SetOffset(offset int64) {
	f.calls = append(f.calls, "set_offset")
	f.offset = offset
}

func (f *fakeDriver) SetScale(scale float64) {
	f.calls = append(f.calls, "set_scale")
	f.scale = scale
}

func (f *fakeDriver) AveragedUnits(samples int) (float64, error) {
	f.calls = append(f.calls, "read")
	f.samples = samples
	return f.units, f.err
}

func (f *fakeDriver) LastRaw() (float64, bool) { return f.raw, f.err == nil }

type fakeClock struct {
	now   time.Time
	slept time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d > 0 {
		c.now = c.now.Add(d)
		c.slept += d
	}
	return nil
}

func newTestSensor(t *testing.T, drv *fakeDriver, cfg Config) (*Sensor, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	return New(drv, cfg, WithLogger(golog.NewTestLogger(t)), WithClock(clk)), clk
}

func TestLocationID(t *testing.T) {
	tests := []struct {
		data, clock int
		want        string
	}{
		{4, 5, "HX711_45"},
		{12, 3, "HX711_123"},
		{0, 0, "HX711_00"},
	}
	for _, tt := range tests {
		s := New(&fakeDriver{}, Config{DataPin: tt.data, ClockPin: tt.clock, CalibrationOffset: 100, CalibrationDiv: 500})
		assert.Equal(t, tt.want, s.LocationID())
	}
}

func TestDeclaredTimingAndVariables(t *testing.T) {
	s := New(&fakeDriver{}, Config{DataPin: 4, ClockPin: 5})

	assert.Equal(t, SensorName, s.Name())
	assert.Equal(t, 2, s.NumVariables())
	assert.Equal(t, sensor.Timing{
		WarmUp:        100 * time.Millisecond,
		Stabilization: time.Second,
		Measurement:   1100 * time.Millisecond,
	}, s.Timing())

	vars := s.Variables()
	require.Len(t, vars, 2)
	assert.Equal(t, "kilogram", vars[0].Unit)
	assert.Equal(t, 4, vars[0].Resolution)
	assert.Equal(t, WeightDefaultCode, vars[0].Code)
	assert.Equal(t, "", vars[1].Unit)
	assert.Equal(t, 0, vars[1].Resolution)
	assert.Equal(t, RawDefaultCode, vars[1].Code)
}

func TestSetupConfiguresDriverWithPowerOff(t *testing.T) {
	drv := &fakeDriver{}
	s, clk := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationOffset: 100, CalibrationDiv: 500})

	require.NoError(t, s.Setup(context.Background()))

	assert.Equal(t, []string{"power_up", "begin", "set_offset", "set_scale", "power_down"}, drv.calls)
	assert.True(t, drv.poweredAtBegin, "driver configured without power")
	assert.Equal(t, 4, drv.dataPin)
	assert.Equal(t, 5, drv.clockPin)
	assert.Equal(t, int64(100), drv.offset)
	assert.Equal(t, float64(500), drv.scale)
	assert.Equal(t, WarmUpTime, clk.slept)

	st := s.Status()
	assert.True(t, st.SetupDone)
	assert.False(t, st.Powered)
	assert.False(t, drv.powered)
}

func TestSetupKeepsPowerOn(t *testing.T) {
	drv := &fakeDriver{}
	s, clk := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationOffset: -7, CalibrationDiv: 21})

	s.PowerUp()
	clk.now = clk.now.Add(time.Second)
	require.NoError(t, s.Setup(context.Background()))

	assert.Equal(t, []string{"power_up", "begin", "set_offset", "set_scale"}, drv.calls)
	assert.Zero(t, clk.slept)
	assert.True(t, s.Status().Powered)
	assert.True(t, drv.powered)
	assert.Equal(t, int64(-7), drv.offset)
	assert.Equal(t, float64(21), drv.scale)
}

func TestSetupWaitsRemainingWarmUp(t *testing.T) {
	drv := &fakeDriver{}
	s, clk := newTestSensor(t, drv, Config{DataPin: 1, ClockPin: 2, CalibrationDiv: 1})

	s.PowerUp()
	clk.now = clk.now.Add(30 * time.Millisecond)
	require.NoError(t, s.Setup(context.Background()))
	assert.Equal(t, 70*time.Millisecond, clk.slept)
}

func TestSetupCancelledRestoresPower(t *testing.T) {
	drv := &fakeDriver{}
	s, _ := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Setup(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Status().Powered)
	assert.False(t, s.Status().SetupDone)
	assert.NotContains(t, drv.calls, "begin")
}

func TestConfigIsKept(t *testing.T) {
	cfg := Config{DataPin: 4, ClockPin: 5, CalibrationOffset: -12, CalibrationDiv: 430}
	s := New(&fakeDriver{}, cfg)
	assert.Equal(t, cfg, s.Config())
}

func TestAddSingleMeasurementResultValid(t *testing.T) {
	drv := &fakeDriver{units: 12.34567, raw: 8_388_000}
	s, _ := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 500})

	s.PowerUp()
	require.True(t, s.StartSingleMeasurement())
	require.True(t, s.Status().MeasurementRequested)

	ok := s.AddSingleMeasurementResult()
	assert.False(t, ok, "return value is not a success signal")
	assert.True(t, s.LastMeasurementValid())
	assert.Equal(t, ReadCount, drv.samples)

	assert.Equal(t, 12.34567, s.Results().Value(WeightVarNum))
	assert.Equal(t, float64(8_388_000), s.Results().Value(RawVarNum))

	st := s.Status()
	assert.False(t, st.MeasurementRequested)
	assert.False(t, st.MeasurementSucceeded)
	assert.True(t, st.MeasurementRequestedAt.IsZero())
	assert.True(t, st.Powered)
}

func TestAddSingleMeasurementResultSentinel(t *testing.T) {
	drv := &fakeDriver{err: errors.New("timed out")}
	s, _ := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 500})

	s.PowerUp()
	require.True(t, s.StartSingleMeasurement())

	assert.False(t, s.AddSingleMeasurementResult())
	assert.False(t, s.LastMeasurementValid())
	assert.Equal(t, sensor.Sentinel, s.Results().Value(WeightVarNum))
	assert.Zero(t, s.Results().Count(WeightVarNum))
	assert.Equal(t, sensor.Sentinel, s.Results().Value(RawVarNum))

	st := s.Status()
	assert.False(t, st.MeasurementRequested)
	assert.False(t, st.MeasurementSucceeded)
	assert.True(t, st.MeasurementRequestedAt.IsZero())
}

func TestAddSingleMeasurementResultSentinelWeight(t *testing.T) {
	drv := &fakeDriver{units: sensor.Sentinel, raw: 42}
	s, _ := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 1})

	s.PowerUp()
	require.True(t, s.StartSingleMeasurement())

	s.AddSingleMeasurementResult()
	assert.False(t, s.LastMeasurementValid())
	assert.Zero(t, s.Results().Count(WeightVarNum))
	assert.Zero(t, s.Results().Count(RawVarNum))
	assert.False(t, s.Status().MeasurementRequested)
}

func TestPowerDownClearsStatus(t *testing.T) {
	drv := &fakeDriver{}
	s, _ := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5})

	s.PowerUp()
	st := s.Status()
	assert.True(t, st.PowerAttempted)
	assert.True(t, st.Powered)
	require.True(t, s.StartSingleMeasurement())

	s.PowerDown()
	st = s.Status()
	assert.False(t, st.Powered)
	assert.False(t, st.Activated)
	assert.False(t, st.MeasurementRequested)
	assert.False(t, s.StartSingleMeasurement())
}

func TestMeasureCycle(t *testing.T) {
	drv := &fakeDriver{units: 1.5, raw: 1234}
	s, clk := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationOffset: 100, CalibrationDiv: 500})
	require.NoError(t, s.Setup(context.Background()))
	clk.slept = 0

	readings, err := sensor.Measure(context.Background(), s, clk)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, "HX711_45", readings[0].Sensor)
	assert.Equal(t, WeightDefaultCode, readings[0].Code)
	assert.Equal(t, 1.5, readings[0].Value)
	assert.True(t, readings[0].Valid)
	assert.Equal(t, "1.5000", readings[0].Formatted())
	assert.Equal(t, "1234", readings[1].Formatted())

	assert.Equal(t, WarmUpTime+StabilizationTime+MeasurementTime, clk.slept)
	assert.False(t, s.Status().Powered)
	assert.False(t, drv.powered)
}

func TestMeasureWaitsOnlyRemainingStabilization(t *testing.T) {
	drv := &fakeDriver{units: 2, raw: 10}
	s, clk := newTestSensor(t, drv, Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 1})

	s.PowerUp()
	clk.now = clk.now.Add(600 * time.Millisecond)
	readings, err := sensor.Measure(context.Background(), s, clk)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	assert.Equal(t, WarmUpTime+StabilizationTime-600*time.Millisecond+MeasurementTime, clk.slept)
	assert.True(t, s.Status().Powered, "power left on when it was on before")
}

func TestMeasureCancelledDuringStabilization(t *testing.T) {
	s, clk := newTestSensor(t, &fakeDriver{}, Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sensor.Measure(ctx, s, clk)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, s.Status().Powered)
	assert.False(t, s.Status().MeasurementRequested)
}
