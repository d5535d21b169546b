package hx711

import "github.com/ericogr/hx711-to-mqtt/pkg/sensor"

const (
	WeightVarNum      = 0
	WeightResolution  = 4
	WeightVarName     = "weight"
	WeightUnitName    = sensor.UnitKilogram
	WeightDefaultCode = "AviaSemiHX711Weight"
	RawVarNum         = 1
	RawResolution     = 0
	RawVarName        = "raw"
	RawUnitName       = ""
	RawDefaultCode    = "AviaSemiHX711Raw"
)

// WeightVariable describes the calibrated weight. An empty code selects
// WeightDefaultCode.
func WeightVariable(uuid, code string) sensor.Variable {
	if code == "" {
		code = WeightDefaultCode
	}
	return sensor.Variable{
		Slot:       WeightVarNum,
		Name:       WeightVarName,
		Unit:       WeightUnitName,
		Resolution: WeightResolution,
		Code:       code,
		UUID:       uuid,
	}
}

// RawVariable describes the uncalibrated conversion count.
func RawVariable(uuid, code string) sensor.Variable {
	if code == "" {
		code = RawDefaultCode
	}
	return sensor.Variable{
		Slot:       RawVarNum,
		Name:       RawVarName,
		Unit:       RawUnitName,
		Resolution: RawResolution,
		Code:       code,
		UUID:       uuid,
	}
}
