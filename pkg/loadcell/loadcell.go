// Package loadcell provides HX711 chip drivers: one backed by GPIO pins
// through periph.io and a simulated one for running without hardware.
package loadcell

import (
	"errors"
	"fmt"
)

var (
	ErrNotConfigured = errors.New("loadcell: Begin has not been called")
	ErrPoweredDown   = errors.New("loadcell: chip is powered down")
	ErrZeroScale     = errors.New("loadcell: scale is zero")
)

// calibration converts mean raw counts to physical units.
type calibration struct {
	offset int64
	scale  float64
}

func (c calibration) units(meanRaw float64) (float64, error) {
	if c.scale == 0 {
		return 0, ErrZeroScale
	}
	return (meanRaw - float64(c.offset)) / c.scale, nil
}

func validSamples(samples int) error {
	if samples <= 0 {
		return fmt.Errorf("loadcell: invalid sample count %d", samples)
	}
	return nil
}
