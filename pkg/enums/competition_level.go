package enums

import "fmt"

// CompetitionLevel buckets how contested a campaign type currently is.
type CompetitionLevel string

const (
	CompetitionLevelLow    CompetitionLevel = "low"
	CompetitionLevelMedium CompetitionLevel = "medium"
	CompetitionLevelHigh   CompetitionLevel = "high"
)

var validCompetitionLevels = []CompetitionLevel{
	CompetitionLevelLow,
	CompetitionLevelMedium,
	CompetitionLevelHigh,
}

// IsValid reports whether the value matches the canonical competition level enum.
func (l CompetitionLevel) IsValid() bool {
	for _, candidate := range validCompetitionLevels {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseCompetitionLevel converts raw input into CompetitionLevel.
func ParseCompetitionLevel(value string) (CompetitionLevel, error) {
	for _, candidate := range validCompetitionLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid competition level %q", value)
}
