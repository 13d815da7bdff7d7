// Package postgres implements the AttemptStore on GORM/PostgreSQL.
// Leaderboard fan-out is delegated to a LeaderboardFeed (Redis pub/sub in
// production) so the SQL layer owns durable state only.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
	"github.com/SAP-F-2025/session-engine/internal/store"
)

type Store struct {
	db   *gorm.DB
	feed store.LeaderboardFeed
}

func NewStore(db *gorm.DB, feed store.LeaderboardFeed) *Store {
	return &Store{db: db, feed: feed}
}

// AutoMigrate creates the engine's tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.AssessmentDefinition{},
		&models.Question{},
		&models.Attempt{},
		&models.AttemptAnswer{},
	)
}

// ===== DEFINITIONS =====

func (s *Store) GetDefinition(ctx context.Context, definitionID string) (*models.AssessmentDefinition, error) {
	var def models.AssessmentDefinition
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.\"order\" ASC")
		}).
		First(&def, "id = ?", definitionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	return &def, nil
}

func (s *Store) SetDefinitionStatus(ctx context.Context, definitionID string, status models.DefinitionStatus, actor models.Identity) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var def models.AssessmentDefinition
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&def, "id = ?", definitionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return store.ErrNotFound
			}
			return err
		}
		if !def.IsActivator(actor.ID) {
			return store.ErrNotAuthorized
		}
		if !def.Status.CanTransitionTo(status) {
			return store.ErrInvalidStatus
		}
		return tx.Model(&def).Update("status", status).Error
	})
}

func (s *Store) SetStartTime(ctx context.Context, definitionID string, startTime time.Time) error {
	res := s.db.WithContext(ctx).
		Model(&models.AssessmentDefinition{}).
		Where("id = ?", definitionID).
		Update("start_time", startTime)
	if res.Error != nil {
		return fmt.Errorf("failed to set start time: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveSynchronizedDefinitions(ctx context.Context) ([]*models.AssessmentDefinition, error) {
	var defs []*models.AssessmentDefinition
	err := s.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.\"order\" ASC")
		}).
		Where("status = ? AND settings_start_mode = ?", models.StatusActive, models.StartModeSynchronized).
		Find(&defs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active synchronized definitions: %w", err)
	}
	return defs, nil
}

// ===== ATTEMPTS =====

func (s *Store) CreateOrResumeAttempt(ctx context.Context, definitionID string, identity models.Identity) (*models.Attempt, error) {
	var attempt models.Attempt
	err := s.db.WithContext(ctx).
		Preload("Answers").
		Where("definition_id = ? AND owner_id = ? AND status = ?",
			definitionID, identity.ID, models.AttemptStatusInProgress).
		First(&attempt).Error
	if err == nil {
		return &attempt, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up active attempt: %w", err)
	}

	attempt = models.Attempt{
		ID:           uuid.NewString(),
		DefinitionID: definitionID,
		OwnerID:      identity.ID,
		Status:       models.AttemptStatusInProgress,
		StartedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}
	return &attempt, nil
}

func (s *Store) AppendAnswer(ctx context.Context, attemptID, questionID string, value models.AnswerValue, timeSpentSeconds int) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptStatusInProgress).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check attempt status: %w", err)
	}
	if count == 0 {
		return store.ErrAlreadySubmitted
	}

	answer := models.AttemptAnswer{
		AttemptID:        attemptID,
		QuestionID:       questionID,
		Value:            datatypes.NewJSONType(value),
		TimeSpentSeconds: timeSpentSeconds,
	}
	// Last write wins per (attempt, question).
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "time_spent_seconds", "updated_at"}),
	}).Create(&answer).Error
	if err != nil {
		return fmt.Errorf("failed to append answer: %w", err)
	}
	return nil
}

func (s *Store) UpdateCurrentIndex(ctx context.Context, attemptID string, index int) error {
	res := s.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptStatusInProgress).
		Update("current_index", index)
	if res.Error != nil {
		return fmt.Errorf("failed to update current index: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FinalizeAttempt(ctx context.Context, attemptID string, result scoring.Result, submittedAt time.Time) error {
	// Conditional single-statement write: score fields and the Submitted
	// status land together, and only for an attempt still InProgress, so a
	// racing sweep or duplicate submit loses cleanly.
	res := s.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptStatusInProgress).
		Updates(map[string]interface{}{
			"status":       models.AttemptStatusSubmitted,
			"submitted_at": submittedAt,
			"score":        result.Score,
			"total_points": result.TotalPoints,
			"percentage":   result.Percentage,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&models.Attempt{}).
			Where("id = ?", attemptID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check attempt: %w", err)
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrAlreadySubmitted
	}
	return nil
}

func (s *Store) ListInProgressAttempts(ctx context.Context, definitionID string) ([]*models.Attempt, error) {
	return s.listByStatus(ctx, definitionID, models.AttemptStatusInProgress)
}

func (s *Store) ListSubmittedAttempts(ctx context.Context, definitionID string) ([]*models.Attempt, error) {
	return s.listByStatus(ctx, definitionID, models.AttemptStatusSubmitted)
}

func (s *Store) listByStatus(ctx context.Context, definitionID string, status models.AttemptStatus) ([]*models.Attempt, error) {
	var attempts []*models.Attempt
	err := s.db.WithContext(ctx).
		Preload("Answers").
		Where("definition_id = ? AND status = ?", definitionID, status).
		Order("created_at ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return attempts, nil
}

// ===== LEADERBOARD STREAMING =====

func (s *Store) SubscribeLeaderboard(ctx context.Context, definitionID string, onUpdate func([]models.LeaderboardEntry)) (func(), error) {
	return s.feed.Subscribe(ctx, definitionID, onUpdate)
}

func (s *Store) PublishLeaderboard(ctx context.Context, definitionID string, entries []models.LeaderboardEntry) error {
	return s.feed.Publish(ctx, definitionID, entries)
}
