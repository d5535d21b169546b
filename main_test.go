package main

import (
	"context"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/loadcell"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor/hx711"
)

type countingOutput struct {
	published int
	last      []sensor.Reading
}

func (c *countingOutput) Publish(r []sensor.Reading) error {
	c.published++
	c.last = r
	return nil
}

func (c *countingOutput) Close() error { return nil }

func TestInitOutputsSetsInterval(t *testing.T) {
	cfg := config.Config{IntervalMs: 123, Outputs: []config.OutputConfig{{Type: "console"}}}
	s := hx711.New(loadcell.NewSimulated(1, 0, 1), hx711.Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 1})

	entries, err := initOutputs(&cfg, s, golog.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 123, cfg.Outputs[0].IntervalMs)
	assert.Equal(t, 123, entries[0].IntervalMs)
}

func TestInitOutputsRejectsIncompleteOutput(t *testing.T) {
	cfg := config.Config{IntervalMs: 100, Outputs: []config.OutputConfig{{Type: "console"}, {Type: "mqtt"}}}
	s := hx711.New(loadcell.NewSimulated(1, 0, 1), hx711.Config{DataPin: 4, ClockPin: 5, CalibrationDiv: 1})

	_, err := initOutputs(&cfg, s, golog.NewTestLogger(t))
	assert.Error(t, err)
}

func TestPublishDue(t *testing.T) {
	fast, slow := &countingOutput{}, &countingOutput{}
	entries := []outputEntry{
		{Type: "fast", IntervalMs: 1000, Output: fast},
		{Type: "slow", IntervalMs: 5000, Output: slow},
	}
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := golog.NewTestLogger(t)

	for i := 0; i < 6; i++ {
		publishDue(entries, nil, t0.Add(time.Duration(i)*time.Second), logger)
	}
	assert.Equal(t, 6, fast.published)
	assert.Equal(t, 2, slow.published)
}

func TestSimulatedSensorCycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorSimulation
	cfg.Simulation = config.SimulationConfig{WeightKg: 3.25, NoiseCounts: 0, Seed: 7}
	cfg.HX711.CalibrationOffset = 8000
	cfg.HX711.CalibrationDivisor = 400
	cfg.HX711.WeightCode = "HiveWeight"
	logger := golog.NewTestLogger(t)

	s := newSensor(cfg, logger)
	require.NoError(t, s.Setup(context.Background()))

	readings, err := sensor.Measure(context.Background(), s, nil)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, "HiveWeight", readings[0].Code)
	assert.True(t, readings[0].Valid)
	assert.InDelta(t, 3.25, readings[0].Value, 1e-9)
	assert.Equal(t, "9300", readings[1].Formatted())

	out := &countingOutput{}
	publishDue([]outputEntry{{Type: "test", IntervalMs: 1, Output: out}}, readings, time.Now(), logger)
	assert.Equal(t, 1, out.published)
	assert.Len(t, out.last, 2)
}
