package loadcell

import (
	"math/rand"
	"sync"
)

// Simulated behaves like an HX711 with a fixed load on the cell plus
// uniform noise of up to Noise counts per conversion.
type Simulated struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	weight  float64
	noise   float64
	begun   bool
	powered bool
	cal     calibration

	lastRaw float64
	rawOK   bool
}

func NewSimulated(weightKg, noiseCounts float64, seed int64) *Simulated {
	return &Simulated{
		rnd:     rand.New(rand.NewSource(seed)),
		weight:  weightKg,
		noise:   noiseCounts,
		powered: true,
		cal:     calibration{scale: 1},
	}
}

func (f *Simulated) PowerUp() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powered = true
}

func (f *Simulated) PowerDown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powered = false
}

func (f *Simulated) Begin(dataPin, clockPin int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = true
}

func (f *Simulated) SetOffset(offset int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cal.offset = offset
}

func (f *Simulated) SetScale(scale float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cal.scale = scale
}

func (f *Simulated) AveragedUnits(samples int) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawOK = false

	if err := validSamples(samples); err != nil {
		return 0, err
	}
	if !f.begun {
		return 0, ErrNotConfigured
	}
	if !f.powered {
		return 0, ErrPoweredDown
	}
	// counts the chip would report for the configured load
	base := f.weight*f.cal.scale + float64(f.cal.offset)
	var sum float64
	for i := 0; i < samples; i++ {
		sum += float64(int32(base + (f.rnd.Float64()*2-1)*f.noise))
	}
	mean := sum / float64(samples)
	units, err := f.cal.units(mean)
	if err != nil {
		return 0, err
	}
	f.lastRaw, f.rawOK = mean, true
	return units, nil
}

func (f *Simulated) LastRaw() (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRaw, f.rawOK
}
