package enums

import "fmt"

// SpendEventType describes the allowed values for the `type` column in spend_events.
type SpendEventType string

const (
	SpendEventTypeImpression SpendEventType = "impression"
	SpendEventTypeClick      SpendEventType = "click"
	SpendEventTypeConversion SpendEventType = "conversion"
)

var validSpendEventTypes = []SpendEventType{
	SpendEventTypeImpression,
	SpendEventTypeClick,
	SpendEventTypeConversion,
}

// IsValid reports whether the value matches the canonical spend event type enum.
func (t SpendEventType) IsValid() bool {
	for _, candidate := range validSpendEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseSpendEventType converts the raw string to SpendEventType.
func ParseSpendEventType(value string) (SpendEventType, error) {
	for _, candidate := range validSpendEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid spend event type %q", value)
}
