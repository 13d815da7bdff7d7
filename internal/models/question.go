package models

import (
	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single_choice"
	TrueFalse    QuestionType = "true_false"
	ShortAnswer  QuestionType = "short_answer"
	Essay        QuestionType = "essay"
)

// Question is one authored question inside a definition. Authoring guarantees
// the invariants (options non-empty for choice types, correct answers drawn
// from options, points >= 1) before the definition goes Active; the engine
// only handles missing fields defensively.
type Question struct {
	ID           string       `json:"id" gorm:"primaryKey;size:64"`
	DefinitionID string       `json:"definition_id" gorm:"not null;size:64;index"`
	Order        int          `json:"order" gorm:"not null"`
	Type         QuestionType `json:"type" gorm:"not null;size:20" validate:"required,question_type"`
	Text         string       `json:"text" gorm:"type:text" validate:"required"`

	Options datatypes.JSONSlice[string] `json:"options" gorm:"type:jsonb"`

	// CorrectAnswer holds the expected value for single-answer questions.
	// CorrectAnswers holds the required set for multi-answer questions; when
	// non-empty it takes precedence over CorrectAnswer.
	CorrectAnswer  string                      `json:"correct_answer" gorm:"size:500"`
	CorrectAnswers datatypes.JSONSlice[string] `json:"correct_answers" gorm:"type:jsonb"`

	Points int `json:"points" gorm:"default:1" validate:"min=0,max=100"`
}

func (Question) TableName() string {
	return "questions"
}

// IsMultiAnswer reports whether the question expects a set of values.
func (q *Question) IsMultiAnswer() bool {
	return len(q.CorrectAnswers) > 0
}

// IsScorable reports whether the question can be auto-scored at all. Essays
// and questions with no correct answer authored contribute to total points
// but can never be awarded by the engine.
func (q *Question) IsScorable() bool {
	if q.Type == Essay {
		return false
	}
	return q.CorrectAnswer != "" || len(q.CorrectAnswers) > 0
}
