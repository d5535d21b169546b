// Package modbus exposes the latest readings over Modbus TCP so PLCs and
// SCADA pollers can read the scale without an MQTT broker.
//
// Register map, per variable slot i:
//
//	input registers 2i, 2i+1   value as IEEE-754 float32, high word first
//	discrete input  i          1 when the value is valid
package modbus

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/simonvetter/modbus"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

const (
	DefaultURL        = "tcp://0.0.0.0:5502"
	DefaultMaxClients = 5
	DefaultTimeout    = 30 * time.Second
)

type ModbusOutput struct {
	mu     sync.RWMutex
	regs   []uint16
	valid  []bool
	server *modbus.ModbusServer
	logger golog.Logger
}

// NewModbus starts a server with room for slots variables.
func NewModbus(cfg config.ModbusConfig, slots int, logger golog.Logger) (output.Output, error) {
	m := newHandler(slots, logger)
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	maxClients := cfg.MaxClients
	if maxClients == 0 {
		maxClients = DefaultMaxClients
	}
	timeout := DefaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	srv, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        url,
		Timeout:    timeout,
		MaxClients: maxClients,
	}, m)
	if err != nil {
		return nil, fmt.Errorf("modbus server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return nil, fmt.Errorf("modbus start: %w", err)
	}
	m.server = srv
	logger.Infow("modbus server listening", "url", url)
	return m, nil
}

func newHandler(slots int, logger golog.Logger) *ModbusOutput {
	m := &ModbusOutput{regs: make([]uint16, 2*slots), valid: make([]bool, slots), logger: logger}
	for i := 0; i < slots; i++ {
		m.setValue(i, sensor.Sentinel)
	}
	return m
}

func (m *ModbusOutput) setValue(slot int, v float64) {
	bits := math.Float32bits(float32(v))
	m.regs[2*slot] = uint16(bits >> 16)
	m.regs[2*slot+1] = uint16(bits)
}

func (m *ModbusOutput) Publish(readings []sensor.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range readings {
		if r.Slot < 0 || r.Slot >= len(m.valid) {
			return fmt.Errorf("modbus: slot %d not mapped", r.Slot)
		}
		m.setValue(r.Slot, r.Value)
		m.valid[r.Slot] = r.Valid
	}
	return nil
}

func (m *ModbusOutput) Close() error {
	if m.server == nil {
		return nil
	}
	return m.server.Stop()
}

func (m *ModbusOutput) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := int(req.Addr) + int(req.Quantity)
	if end > len(m.regs) {
		return nil, modbus.ErrIllegalDataAddress
	}
	return append([]uint16(nil), m.regs[req.Addr:end]...), nil
}

func (m *ModbusOutput) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	end := int(req.Addr) + int(req.Quantity)
	if end > len(m.valid) {
		return nil, modbus.ErrIllegalDataAddress
	}
	return append([]bool(nil), m.valid[req.Addr:end]...), nil
}

func (m *ModbusOutput) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (m *ModbusOutput) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}
