package enums

import "fmt"

// PauseReason records why the budget manager paused a campaign. The daily
// resetter only resumes campaigns paused for the daily ceiling; a campaign
// that ran out of total budget stays paused until more funds are locked.
type PauseReason string

const (
	PauseReasonNone           PauseReason = "none"
	PauseReasonTotalExhausted PauseReason = "total_budget_exhausted"
	PauseReasonDailyCapped    PauseReason = "daily_budget_capped"
)

var validPauseReasons = []PauseReason{
	PauseReasonNone,
	PauseReasonTotalExhausted,
	PauseReasonDailyCapped,
}

// IsValid reports whether the value matches the canonical pause reason enum.
func (r PauseReason) IsValid() bool {
	for _, candidate := range validPauseReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParsePauseReason converts raw input into PauseReason.
func ParsePauseReason(value string) (PauseReason, error) {
	for _, candidate := range validPauseReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pause reason %q", value)
}
