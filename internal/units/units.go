// Package units pins down the distance unit convention for the gate engine.
//
// All threshold comparisons and calibration math happen in native sensor
// millimeters. The only place display units appear is the visualization
// projection, and the divisor lives here so no other package can invent a
// second conversion.
package units

// MillimetersPerDisplayUnit is the fixed divisor between native sensor
// millimeters and the centimeter grid used by the visualization page.
const MillimetersPerDisplayUnit = 10.0

// ToDisplay converts a native millimeter distance to display units.
func ToDisplay(mm float64) float64 {
	return mm / MillimetersPerDisplayUnit
}

// FromDisplay converts a display-unit distance back to native millimeters.
func FromDisplay(d float64) float64 {
	return d * MillimetersPerDisplayUnit
}
