// Package units provides shared constants and conversion for length units
package units

// Unit constants
const (
	Metres      = "m"
	Centimetres = "cm"
	Millimetres = "mm"
	Feet        = "ft"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{Metres, Centimetres, Millimetres, Feet}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "m, cm, mm, ft"
}

// MetresToCentimetres converts a length in metres to centimetres.
func MetresToCentimetres(m float64) float64 {
	return m * 100
}

// ConvertLength converts a length from metres to the target units
// All measurements are computed in metres
func ConvertLength(metres float64, targetUnits string) float64 {
	switch targetUnits {
	case Centimetres:
		return MetresToCentimetres(metres)
	case Millimetres:
		return metres * 1000
	case Feet:
		return metres * 3.28084
	case Metres:
		return metres // no conversion needed
	default:
		return metres // default to metres if unknown unit
	}
}
