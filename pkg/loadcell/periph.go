package loadcell

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/hx711"
	"periph.io/x/host/v3"
)

// DefaultReadTimeout bounds the wait for a single conversion. At 10 SPS a
// conversion takes 100ms.
const DefaultReadTimeout = 500 * time.Millisecond

// Periph drives an HX711 wired to two GPIO pins. Pins are looked up by
// their number in the host's GPIO registry.
type Periph struct {
	mu      sync.Mutex
	logger  golog.Logger
	timeout time.Duration

	clk     gpio.PinIO
	dev     *hx711.Dev
	err     error
	powered bool
	cal     calibration

	lastRaw float64
	rawOK   bool
}

func NewPeriph(timeout time.Duration, logger golog.Logger) *Periph {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if logger == nil {
		logger = golog.NewLogger("hx711")
	}
	return &Periph{timeout: timeout, logger: logger, powered: true, cal: calibration{scale: 1}}
}

// Begin resolves the pins and opens the device. Failures are kept and
// reported by the next read.
func (p *Periph) Begin(dataPin, clockPin int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dev, p.clk, p.err = nil, nil, nil

	if _, err := host.Init(); err != nil {
		p.fail(fmt.Errorf("host init: %w", err))
		return
	}
	clk := gpioreg.ByName(strconv.Itoa(clockPin))
	if clk == nil {
		p.fail(fmt.Errorf("clock pin %d not found", clockPin))
		return
	}
	data := gpioreg.ByName(strconv.Itoa(dataPin))
	if data == nil {
		p.fail(fmt.Errorf("data pin %d not found", dataPin))
		return
	}
	dev, err := hx711.New(clk, data)
	if err != nil {
		p.fail(fmt.Errorf("open hx711: %w", err))
		return
	}
	p.dev, p.clk = dev, clk
	// Opening the device pulls the clock low, which powers the chip.
	if !p.powered {
		p.setClock(gpio.High)
	}
}

func (p *Periph) fail(err error) {
	p.err = err
	p.logger.Errorw("hx711 begin failed", "error", err)
}

// PowerUp pulls the clock low. Before Begin only the desired state is kept.
func (p *Periph) PowerUp() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powered = true
	p.setClock(gpio.Low)
}

// PowerDown holds the clock high; the chip sleeps after 60µs.
func (p *Periph) PowerDown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.powered = false
	p.setClock(gpio.High)
}

func (p *Periph) setClock(l gpio.Level) {
	if p.clk == nil {
		return
	}
	if err := p.clk.Out(l); err != nil {
		p.logger.Warnw("hx711 clock", "level", l, "error", err)
	}
}

func (p *Periph) SetOffset(offset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cal.offset = offset
}

func (p *Periph) SetScale(scale float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cal.scale = scale
}

// AveragedUnits reads samples conversions and returns their calibrated mean.
func (p *Periph) AveragedUnits(samples int) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawOK = false

	if err := validSamples(samples); err != nil {
		return 0, err
	}
	switch {
	case p.err != nil:
		return 0, p.err
	case p.dev == nil:
		return 0, ErrNotConfigured
	case !p.powered:
		return 0, ErrPoweredDown
	}

	var sum int64
	for i := 0; i < samples; i++ {
		v, err := p.dev.ReadTimeout(p.timeout)
		if err != nil {
			return 0, fmt.Errorf("read %d/%d: %w", i+1, samples, err)
		}
		sum += int64(v)
	}
	mean := float64(sum) / float64(samples)
	units, err := p.cal.units(mean)
	if err != nil {
		return 0, err
	}
	p.lastRaw, p.rawOK = mean, true
	return units, nil
}

func (p *Periph) LastRaw() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRaw, p.rawOK
}
