package models

import (
	"time"

	"gorm.io/datatypes"
)

type DefinitionStatus string

const (
	StatusDraft     DefinitionStatus = "Draft"
	StatusScheduled DefinitionStatus = "Scheduled"
	StatusActive    DefinitionStatus = "Active"
	StatusCompleted DefinitionStatus = "Completed"
)

// statusRank orders the definition lifecycle. Transitions must be monotonic;
// a definition never regresses to an earlier status.
var statusRank = map[DefinitionStatus]int{
	StatusDraft:     0,
	StatusScheduled: 1,
	StatusActive:    2,
	StatusCompleted: 3,
}

// CanTransitionTo reports whether moving from s to next is a forward move.
func (s DefinitionStatus) CanTransitionTo(next DefinitionStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

type StartMode string

const (
	StartModeIndividual   StartMode = "Individual"
	StartModeSynchronized StartMode = "Synchronized"
)

type ScopeType string

const (
	ScopeCommunity ScopeType = "community"
	ScopeTeam      ScopeType = "team"
	ScopeContest   ScopeType = "contest"
)

// AssessmentDefinition is the authored content the engine runs sessions
// against. The engine reads it; authoring is an external collaborator.
type AssessmentDefinition struct {
	ID     string           `json:"id" gorm:"primaryKey;size:64"`
	Title  string           `json:"title" gorm:"not null;size:200" validate:"required,min=1,max=200"`
	Status DefinitionStatus `json:"status" gorm:"default:Draft;index" validate:"omitempty,definition_status"`

	OwnerID string `json:"owner_id" gorm:"not null;size:255;index"`

	// Activators are identities allowed to activate the definition
	// (flip it Active and, for synchronized sessions, set the start time).
	Activators datatypes.JSONSlice[string] `json:"activators" gorm:"type:jsonb"`

	// Scope routes authorization and persistence for the surface the
	// definition belongs to (community quiz, team contest, ...).
	ScopeType ScopeType `json:"scope_type" gorm:"size:20;index" validate:"omitempty,oneof=community team contest"`
	ScopeID   string    `json:"scope_id" gorm:"size:64;index"`

	Settings DefinitionSettings `json:"settings" gorm:"embedded;embeddedPrefix:settings_"`

	// StartTime is the authoritative synchronized start instant, set once by
	// the coordinator at activation. Nil for Individual mode.
	StartTime *time.Time `json:"start_time"`

	Questions []Question `json:"questions" gorm:"foreignKey:DefinitionID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DefinitionSettings struct {
	// TotalTimeSeconds bounds the whole session. Zero means unlimited.
	TotalTimeSeconds int `json:"total_time_seconds" validate:"min=0,max=86400"`
	// TimePerQuestionSeconds bounds each question. Zero means unlimited.
	TimePerQuestionSeconds int       `json:"time_per_question_seconds" validate:"min=0,max=3600"`
	StartMode              StartMode `json:"start_mode" gorm:"default:Individual" validate:"omitempty,start_mode"`
}

func (AssessmentDefinition) TableName() string {
	return "assessment_definitions"
}

// IsActivator reports whether id may activate the definition. The owner is
// always an activator.
func (d *AssessmentDefinition) IsActivator(id string) bool {
	if id == d.OwnerID {
		return true
	}
	for _, a := range d.Activators {
		if a == id {
			return true
		}
	}
	return false
}

// SessionDeadline returns the instant the whole session expires for an
// attempt started at startedAt. For synchronized definitions the deadline is
// anchored to the shared start time, so late joiners lose the elapsed time.
// ok is false when the definition has no total time limit.
func (d *AssessmentDefinition) SessionDeadline(startedAt time.Time) (time.Time, bool) {
	if d.Settings.TotalTimeSeconds <= 0 {
		return time.Time{}, false
	}
	anchor := startedAt
	if d.Settings.StartMode == StartModeSynchronized && d.StartTime != nil {
		anchor = *d.StartTime
	}
	return anchor.Add(time.Duration(d.Settings.TotalTimeSeconds) * time.Second), true
}
