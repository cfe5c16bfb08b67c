package enums

import "fmt"

// CampaignType maps to the campaign_type enum in Postgres. Competition is
// analyzed within a single type; a sponsored listing never competes with a
// banner placement.
type CampaignType string

const (
	CampaignTypeSponsoredListing CampaignType = "sponsored_listing"
	CampaignTypeFeaturedStore    CampaignType = "featured_store"
	CampaignTypeSearchBoost      CampaignType = "search_boost"
	CampaignTypeBanner           CampaignType = "banner"
)

var validCampaignTypes = []CampaignType{
	CampaignTypeSponsoredListing,
	CampaignTypeFeaturedStore,
	CampaignTypeSearchBoost,
	CampaignTypeBanner,
}

// IsValid reports whether the value matches the canonical campaign type enum.
func (t CampaignType) IsValid() bool {
	for _, candidate := range validCampaignTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCampaignType converts raw input into CampaignType.
func ParseCampaignType(value string) (CampaignType, error) {
	for _, candidate := range validCampaignTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid campaign type %q", value)
}
