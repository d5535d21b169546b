package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ericogr/hx711-to-mqtt/pkg/output"
	"github.com/ericogr/hx711-to-mqtt/pkg/sensor"
)

type ConsoleOutput struct {
	w io.Writer
}

func NewConsole() output.Output { return &ConsoleOutput{w: os.Stdout} }

// NewWriter writes the console format to w instead of stdout.
func NewWriter(w io.Writer) output.Output { return &ConsoleOutput{w: w} }

func (c *ConsoleOutput) Publish(readings []sensor.Reading) error {
	for _, r := range readings {
		if _, err := io.WriteString(c.w, Format(r)); err != nil {
			return err
		}
	}
	return nil
}

func (c *ConsoleOutput) Close() error { return nil }

// Format renders one reading as a single line.
func Format(r sensor.Reading) string {
	line := fmt.Sprintf("%s sensor=%s %s=%s", r.Timestamp.Format(time.RFC3339), r.Sensor, r.Code, r.Formatted())
	if r.Unit != "" {
		line += " unit=" + r.Unit
	}
	if !r.Valid {
		line += " invalid"
	}
	return line + "\n"
}
