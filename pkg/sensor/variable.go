package sensor

import (
	"fmt"
	"strconv"
)

// Variable describes one value a sensor reports and how to format it
// downstream.
type Variable struct {
	Slot       int
	Name       string
	Unit       string
	Resolution int
	Code       string
	UUID       string
}

// FormatValue renders v with the variable's decimal resolution. The
// sentinel is always rendered without decimals.
func (v Variable) FormatValue(value float64) string {
	return formatValue(value, v.Resolution)
}

func (v Variable) String() string {
	if v.Unit == "" {
		return fmt.Sprintf("%s[%d]", v.Code, v.Slot)
	}
	return fmt.Sprintf("%s[%d] (%s)", v.Code, v.Slot, v.Unit)
}

func formatValue(value float64, resolution int) string {
	if value == Sentinel {
		return strconv.Itoa(int(Sentinel))
	}
	if resolution < 0 {
		resolution = 0
	}
	return strconv.FormatFloat(value, 'f', resolution, 64)
}
