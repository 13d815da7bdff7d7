package models

import (
	"time"

	"gorm.io/datatypes"
)

type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "InProgress"
	AttemptStatusSubmitted  AttemptStatus = "Submitted"
)

// Attempt is one participant's pass through a definition. At most one
// InProgress attempt exists per (owner, definition); once Submitted it is
// immutable.
type Attempt struct {
	ID           string `json:"id" gorm:"primaryKey;size:36"`
	DefinitionID string `json:"definition_id" gorm:"not null;size:64;index:idx_attempt_owner_def"`
	OwnerID      string `json:"owner_id" gorm:"not null;size:255;index:idx_attempt_owner_def"`

	Status       AttemptStatus `json:"status" gorm:"default:InProgress;index"`
	CurrentIndex int           `json:"current_index" gorm:"default:0"`

	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`

	Score       int     `json:"score" gorm:"default:0"`
	TotalPoints int     `json:"total_points" gorm:"default:0"`
	Percentage  float64 `json:"percentage" gorm:"default:0"`

	Answers []AttemptAnswer `json:"answers" gorm:"foreignKey:AttemptID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// AnswerFor returns the recorded answer for questionID, if any.
func (a *Attempt) AnswerFor(questionID string) (*AttemptAnswer, bool) {
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			return &a.Answers[i], true
		}
	}
	return nil, false
}

// TimeTakenSeconds is the wall time between start and submission, anchored to
// the shared start instant for synchronized definitions.
func (a *Attempt) TimeTakenSeconds(def *AssessmentDefinition) int {
	if a.SubmittedAt == nil {
		return 0
	}
	from := a.StartedAt
	if def != nil && def.Settings.StartMode == StartModeSynchronized && def.StartTime != nil {
		from = *def.StartTime
	}
	taken := int(a.SubmittedAt.Sub(from).Seconds())
	if taken < 0 {
		return 0
	}
	return taken
}

// AnswerValue is what a participant submitted for one question: free text for
// single-answer types, a selection set for multi-answer questions. Empty both
// ways means skipped.
type AnswerValue struct {
	Text       string   `json:"text,omitempty"`
	Selections []string `json:"selections,omitempty"`
}

// IsEmpty reports whether the value carries no answer at all.
func (v AnswerValue) IsEmpty() bool {
	return v.Text == "" && len(v.Selections) == 0
}

// AttemptAnswer is one recorded answer row. Last write wins per question.
type AttemptAnswer struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	AttemptID  string `json:"attempt_id" gorm:"not null;size:36;uniqueIndex:idx_attempt_question"`
	QuestionID string `json:"question_id" gorm:"not null;size:64;uniqueIndex:idx_attempt_question"`

	Value            datatypes.JSONType[AnswerValue] `json:"value" gorm:"type:jsonb"`
	TimeSpentSeconds int                             `json:"time_spent_seconds" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}
