package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypeBudgetWarning   NotificationType = "budget_warning"
	NotificationTypeBudgetExhausted NotificationType = "budget_exhausted"
	NotificationTypeDailyCapReached NotificationType = "daily_cap_reached"
	NotificationTypeCampaignResumed NotificationType = "campaign_resumed"
	NotificationTypeBidAdjusted     NotificationType = "bid_adjusted"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeBudgetWarning,
	NotificationTypeBudgetExhausted,
	NotificationTypeDailyCapReached,
	NotificationTypeCampaignResumed,
	NotificationTypeBidAdjusted,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
