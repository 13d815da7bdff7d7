package store

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
)

// Store-level sentinel errors. Services translate these into their own error
// taxonomy; nothing above the store should match on driver errors directly.
var (
	ErrNotFound         = errors.New("record not found")
	ErrNotAuthorized    = errors.New("actor not authorized")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrInvalidStatus    = errors.New("invalid status transition")
)

// IsNotFoundError checks if error represents a "not found" condition.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadySubmittedError checks if a finalize lost the write race.
func IsAlreadySubmittedError(err error) bool {
	return errors.Is(err, ErrAlreadySubmitted)
}

// AttemptStore is the persistence and subscription boundary the engine
// consumes. Implementations must keep FinalizeAttempt atomic and conditional:
// the score fields and the Submitted status are written together, and only
// for an attempt still InProgress.
type AttemptStore interface {
	// Definitions
	GetDefinition(ctx context.Context, definitionID string) (*models.AssessmentDefinition, error)
	SetDefinitionStatus(ctx context.Context, definitionID string, status models.DefinitionStatus, actor models.Identity) error
	SetStartTime(ctx context.Context, definitionID string, startTime time.Time) error
	ListActiveSynchronizedDefinitions(ctx context.Context) ([]*models.AssessmentDefinition, error)

	// Attempts
	CreateOrResumeAttempt(ctx context.Context, definitionID string, identity models.Identity) (*models.Attempt, error)
	AppendAnswer(ctx context.Context, attemptID, questionID string, value models.AnswerValue, timeSpentSeconds int) error
	UpdateCurrentIndex(ctx context.Context, attemptID string, index int) error
	FinalizeAttempt(ctx context.Context, attemptID string, result scoring.Result, submittedAt time.Time) error
	ListInProgressAttempts(ctx context.Context, definitionID string) ([]*models.Attempt, error)
	ListSubmittedAttempts(ctx context.Context, definitionID string) ([]*models.Attempt, error)

	// Leaderboard streaming. Subscribers receive the whole updated list on
	// every publish; the returned cancel func is idempotent.
	SubscribeLeaderboard(ctx context.Context, definitionID string, onUpdate func([]models.LeaderboardEntry)) (func(), error)
	PublishLeaderboard(ctx context.Context, definitionID string, entries []models.LeaderboardEntry) error
}

// LeaderboardFeed is the streaming half of the store on its own, so a SQL
// persistence layer can delegate fan-out to Redis pub/sub or an in-process
// hub without owning it.
type LeaderboardFeed interface {
	Subscribe(ctx context.Context, definitionID string, onUpdate func([]models.LeaderboardEntry)) (func(), error)
	Publish(ctx context.Context, definitionID string, entries []models.LeaderboardEntry) error
}
