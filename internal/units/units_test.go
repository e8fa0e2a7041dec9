package units

import (
	"math"
	"testing"
)

func TestConvertLength(t *testing.T) {
	tests := []struct {
		name     string
		metres   float64
		units    string
		expected float64
	}{
		{"1.3 m to cm", 1.3, Centimetres, 130.0},
		{"0.25 m to mm", 0.25, Millimetres, 250.0},
		{"10 m to ft", 10.0, Feet, 32.8084},
		{"10 m to m", 10.0, Metres, 10.0},
		{"unknown units default to m", 10.0, "furlong", 10.0},
		{"0 m to cm", 0.0, Centimetres, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertLength(tt.metres, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertLength(%f, %s) = %f, want %f", tt.metres, tt.units, result, tt.expected)
			}
		})
	}
}

func TestMetresToCentimetres(t *testing.T) {
	if got := MetresToCentimetres(0.3); math.Abs(got-30.0) > 1e-9 {
		t.Errorf("MetresToCentimetres(0.3) = %f, want 30", got)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid m", Metres, true},
		{"valid cm", Centimetres, true},
		{"valid mm", Millimetres, true},
		{"valid ft", Feet, true},
		{"invalid unit", "invalid", false},
		{"empty string", "", false},
		{"case sensitive", "CM", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "m, cm, mm, ft" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
