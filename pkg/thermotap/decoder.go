// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package thermotap

// TemperatureDecoder converts the raw sensor byte into degrees Fahrenheit
type TemperatureDecoder interface {
	Fahrenheit(raw byte) float64
}

// LinearCalibration maps the raw byte to Celsius with raw*Scale + Offset.
//
// The true sensor scaling has not been verified against a reference
// thermometer; 1.0/0.0 is the placeholder until it is.
type LinearCalibration struct {
	Scale  float64 // degrees C per raw unit
	Offset float64 // degrees C
}

// DefaultCalibration returns the identity calibration
func DefaultCalibration() LinearCalibration {
	return LinearCalibration{Scale: 1.0, Offset: 0.0}
}

// Celsius applies the calibration
func (c LinearCalibration) Celsius(raw byte) float64 {
	return float64(raw)*c.Scale + c.Offset
}

// Fahrenheit applies the calibration followed by the C to F transform
func (c LinearCalibration) Fahrenheit(raw byte) float64 {
	return c.Celsius(raw)*9.0/5.0 + 32.0
}
