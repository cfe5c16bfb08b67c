package enums

import "fmt"

// SuggestionPriority ranks how soon a bid suggestion should be acted on.
type SuggestionPriority string

const (
	SuggestionPriorityHigh   SuggestionPriority = "high"
	SuggestionPriorityMedium SuggestionPriority = "medium"
	SuggestionPriorityLow    SuggestionPriority = "low"
)

var validSuggestionPriorities = []SuggestionPriority{
	SuggestionPriorityHigh,
	SuggestionPriorityMedium,
	SuggestionPriorityLow,
}

// IsValid reports whether the value matches the canonical suggestion priority enum.
func (p SuggestionPriority) IsValid() bool {
	for _, candidate := range validSuggestionPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseSuggestionPriority converts raw input into SuggestionPriority.
func ParseSuggestionPriority(value string) (SuggestionPriority, error) {
	for _, candidate := range validSuggestionPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid suggestion priority %q", value)
}

// AdjustmentUrgency ranks how urgently a real-time bid adjustment should land.
type AdjustmentUrgency string

const (
	AdjustmentUrgencyHigh   AdjustmentUrgency = "high"
	AdjustmentUrgencyMedium AdjustmentUrgency = "medium"
	AdjustmentUrgencyLow    AdjustmentUrgency = "low"
)

var validAdjustmentUrgencies = []AdjustmentUrgency{
	AdjustmentUrgencyHigh,
	AdjustmentUrgencyMedium,
	AdjustmentUrgencyLow,
}

// IsValid reports whether the value matches the canonical adjustment urgency enum.
func (u AdjustmentUrgency) IsValid() bool {
	for _, candidate := range validAdjustmentUrgencies {
		if candidate == u {
			return true
		}
	}
	return false
}
