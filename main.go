package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edaniels/golog"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/loadcell"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/console"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/modbus"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/mqtt"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/serial"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor/hx711"
)

type outputEntry struct {
	Type       string
	IntervalMs int
	Output     output.Output
	last       time.Time
}

func main() {
	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := golog.NewLogger("hx711")
	if cfg.Debug {
		logger = golog.NewDevelopmentLogger("hx711")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Errorw("exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger golog.Logger) error {
	s := newSensor(cfg, logger)
	logger.Infow("starting", "sensor", s.LocationID(), "type", cfg.SensorType, "interval_ms", cfg.IntervalMs)

	if err := s.Setup(ctx); err != nil {
		return fmt.Errorf("setup %s: %w", s.LocationID(), err)
	}

	entries, err := initOutputs(&cfg, s, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, e := range entries {
			if err := e.Output.Close(); err != nil {
				logger.Warnw("close output", "type", e.Type, "error", err)
			}
		}
	}()

	ticker := time.NewTicker(time.Duration(cfg.IntervalMs) * time.Millisecond)
	defer ticker.Stop()
	for {
		readings, err := sensor.Measure(ctx, s, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warnw("measure", "sensor", s.LocationID(), "error", err)
		} else {
			publishDue(entries, readings, time.Now(), logger)
		}

		select {
		case <-ctx.Done():
			logger.Infow("stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func newSensor(cfg config.Config, logger golog.Logger) *hx711.Sensor {
	var drv hx711.Driver
	switch cfg.SensorType {
	case config.SensorSimulation:
		drv = loadcell.NewSimulated(cfg.Simulation.WeightKg, cfg.Simulation.NoiseCounts, cfg.Simulation.Seed)
	default:
		drv = loadcell.NewPeriph(time.Duration(cfg.HX711.ReadTimeoutMs)*time.Millisecond, logger)
	}
	s := hx711.New(drv, hx711.Config{
		DataPin:           cfg.HX711.DataPin,
		ClockPin:          cfg.HX711.ClockPin,
		CalibrationOffset: cfg.HX711.CalibrationOffset,
		CalibrationDiv:    cfg.HX711.CalibrationDivisor,
	}, hx711.WithLogger(logger))
	s.SetVariable(hx711.WeightVariable(cfg.HX711.WeightUUID, cfg.HX711.WeightCode))
	s.SetVariable(hx711.RawVariable(cfg.HX711.RawUUID, cfg.HX711.RawCode))
	return s
}

// initOutputs builds every configured output. Outputs without an interval
// inherit the measurement interval.
func initOutputs(cfg *config.Config, s sensor.Sensor, logger golog.Logger) ([]outputEntry, error) {
	entries := make([]outputEntry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		oc := &cfg.Outputs[i]
		if oc.IntervalMs == 0 {
			oc.IntervalMs = cfg.IntervalMs
		}
		var (
			out output.Output
			err error
		)
		switch oc.Type {
		case config.OutputConsole:
			out = console.NewConsole()
		case config.OutputMQTT:
			if oc.MQTT == nil {
				err = fmt.Errorf("mqtt output without mqtt settings")
				break
			}
			out, err = mqtt.NewMQTT(*oc.MQTT, s.LocationID(), s.Variables(), logger)
		case config.OutputSerial:
			if oc.Serial == nil {
				err = fmt.Errorf("serial output without serial settings")
				break
			}
			out, err = serial.NewSerial(*oc.Serial)
		case config.OutputModbus:
			mc := config.ModbusConfig{}
			if oc.Modbus != nil {
				mc = *oc.Modbus
			}
			out, err = modbus.NewModbus(mc, s.NumVariables(), logger)
		default:
			err = fmt.Errorf("unknown output type %q", oc.Type)
		}
		if err != nil {
			for _, e := range entries {
				_ = e.Output.Close()
			}
			return nil, fmt.Errorf("output %s: %w", oc.Type, err)
		}
		entries = append(entries, outputEntry{Type: oc.Type, IntervalMs: oc.IntervalMs, Output: out})
	}
	return entries, nil
}

// publishDue hands readings to every output whose interval has elapsed.
func publishDue(entries []outputEntry, readings []sensor.Reading, now time.Time, logger golog.Logger) {
	for i := range entries {
		e := &entries[i]
		if !e.last.IsZero() && now.Sub(e.last) < time.Duration(e.IntervalMs)*time.Millisecond {
			continue
		}
		e.last = now
		if err := e.Output.Publish(readings); err != nil {
			logger.Warnw("publish", "type", e.Type, "error", err)
		}
	}
}
