package enums

import "fmt"

// GenerationStatus tracks a generation through pending → processing → completed|failed.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

var validGenerationStatuses = []GenerationStatus{
	GenerationStatusPending,
	GenerationStatusProcessing,
	GenerationStatusCompleted,
	GenerationStatusFailed,
}

// String implements fmt.Stringer.
func (s GenerationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known GenerationStatus.
func (s GenerationStatus) IsValid() bool {
	for _, candidate := range validGenerationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// CanTransitionTo reports whether next is reachable from s. Statuses only move
// forward; a terminal status accepts nothing but itself.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	if s.IsTerminal() {
		return next == s
	}
	return generationStatusRank(next) >= generationStatusRank(s)
}

func generationStatusRank(s GenerationStatus) int {
	switch s {
	case GenerationStatusPending:
		return 0
	case GenerationStatusProcessing:
		return 1
	case GenerationStatusCompleted, GenerationStatusFailed:
		return 2
	default:
		return -1
	}
}

// ParseGenerationStatus converts raw input into a GenerationStatus.
func ParseGenerationStatus(value string) (GenerationStatus, error) {
	for _, candidate := range validGenerationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid generation status %q", value)
}
