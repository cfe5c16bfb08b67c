package enums

import "fmt"

// BidStrategy selects which optimization branch the bid optimizer evaluates.
type BidStrategy string

const (
	BidStrategyMaximizeClicks      BidStrategy = "maximize_clicks"
	BidStrategyMaximizeConversions BidStrategy = "maximize_conversions"
	BidStrategyTargetCPA           BidStrategy = "target_cpa"
	BidStrategyTargetROAS          BidStrategy = "target_roas"
	BidStrategyManualCPC           BidStrategy = "manual_cpc"
)

var validBidStrategies = []BidStrategy{
	BidStrategyMaximizeClicks,
	BidStrategyMaximizeConversions,
	BidStrategyTargetCPA,
	BidStrategyTargetROAS,
	BidStrategyManualCPC,
}

// IsValid reports whether the value matches the canonical bid strategy enum.
func (s BidStrategy) IsValid() bool {
	for _, candidate := range validBidStrategies {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBidStrategy converts raw input into BidStrategy.
func ParseBidStrategy(value string) (BidStrategy, error) {
	for _, candidate := range validBidStrategies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid strategy %q", value)
}
