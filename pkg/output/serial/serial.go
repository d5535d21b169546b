package serial

import (
	"fmt"
	"io"

	goserial "go.bug.st/serial"

	"github.com/ericogr/hx711-to-mqtt/pkg/config"
	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/output/console"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

const DefaultBaudRate = 115200

// SerialOutput writes readings as console lines to a serial port, e.g. a
// radio modem or a secondary logger.
type SerialOutput struct {
	port io.WriteCloser
}

func NewSerial(cfg config.SerialConfig) (output.Output, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	mode := &goserial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	}
	port, err := goserial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}
	return &SerialOutput{port: port}, nil
}

func (s *SerialOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		if _, err := io.WriteString(s.port, console.Format(r)); err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
	}
	return nil
}

func (s *SerialOutput) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
