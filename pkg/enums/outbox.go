package enums

import "fmt"

// OutboxAggregateType identifies the entity an outbox event describes.
type OutboxAggregateType string

const (
	AggregateGeneration OutboxAggregateType = "generation"
	AggregateProfile    OutboxAggregateType = "profile"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGeneration,
	AggregateProfile,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a ledger-relevant domain event.
type OutboxEventType string

const (
	EventGenerationCompleted OutboxEventType = "generation_completed"
	EventGenerationFailed    OutboxEventType = "generation_failed"
	EventCreditsPurchased    OutboxEventType = "credits_purchased"
	EventCreditsRefunded     OutboxEventType = "credits_refunded"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGenerationCompleted,
	EventGenerationFailed,
	EventCreditsPurchased,
	EventCreditsRefunded,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
