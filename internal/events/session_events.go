package events

import (
	"time"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

// EventType represents different types of session events
type EventType string

const (
	// Definition events
	EventDefinitionActivated EventType = "definition.activated"
	EventDefinitionCompleted EventType = "definition.completed"

	// Attempt events
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptSwept     EventType = "attempt.swept"

	// Leaderboard events
	EventLeaderboardUpdated EventType = "leaderboard.updated"
)

// SessionEvent is the base event structure for all session events
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Definition event payloads

type DefinitionActivatedEvent struct {
	DefinitionID string           `json:"definition_id"`
	ActivatorID  string           `json:"activator_id"`
	StartMode    models.StartMode `json:"start_mode"`
	StartTime    *time.Time       `json:"start_time,omitempty"`
}

type DefinitionCompletedEvent struct {
	DefinitionID  string `json:"definition_id"`
	SweptAttempts int    `json:"swept_attempts"`
}

// Attempt event payloads

type AttemptStartedEvent struct {
	AttemptID    string `json:"attempt_id"`
	DefinitionID string `json:"definition_id"`
	OwnerID      string `json:"owner_id"`
	Resumed      bool   `json:"resumed"`
}

type AttemptSubmittedEvent struct {
	AttemptID    string  `json:"attempt_id"`
	DefinitionID string  `json:"definition_id"`
	OwnerID      string  `json:"owner_id"`
	Score        int     `json:"score"`
	TotalPoints  int     `json:"total_points"`
	Percentage   float64 `json:"percentage"`
	AutoSubmit   bool    `json:"auto_submit"`
}

type LeaderboardUpdatedEvent struct {
	DefinitionID string                    `json:"definition_id"`
	Entries      []models.LeaderboardEntry `json:"entries"`
}
