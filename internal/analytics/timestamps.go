package analytics

import "time"

// FactTimestamp selects the timestamp recorded on a spend fact.
// The event's occurred_at wins; a zero value falls back to delivery time.
func FactTimestamp(occurredAt, fallback time.Time) time.Time {
	if !occurredAt.IsZero() {
		return occurredAt.UTC()
	}
	return fallback.UTC()
}
