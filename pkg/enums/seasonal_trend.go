package enums

import "fmt"

// TrendDirection describes the direction of the seasonal bid pressure.
type TrendDirection string

const (
	TrendDirectionIncreasing TrendDirection = "increasing"
	TrendDirectionDecreasing TrendDirection = "decreasing"
	TrendDirectionStable     TrendDirection = "stable"
)

var validTrendDirections = []TrendDirection{
	TrendDirectionIncreasing,
	TrendDirectionDecreasing,
	TrendDirectionStable,
}

// IsValid reports whether the value matches the canonical trend direction enum.
func (d TrendDirection) IsValid() bool {
	for _, candidate := range validTrendDirections {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseTrendDirection converts raw input into TrendDirection.
func ParseTrendDirection(value string) (TrendDirection, error) {
	for _, candidate := range validTrendDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trend direction %q", value)
}
