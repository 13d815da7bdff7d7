// Package memory provides an in-process AttemptStore for embedding and
// tests. Subscription fan-out reuses the same hub logic the service uses in
// production behind Redis, minus the wire hop.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
	"github.com/SAP-F-2025/session-engine/internal/store"
)

type Store struct {
	mu          sync.RWMutex
	definitions map[string]*models.AssessmentDefinition
	attempts    map[string]*models.Attempt

	subMu   sync.Mutex
	nextSub int
	subs    map[string]map[int]func([]models.LeaderboardEntry)
}

func NewStore() *Store {
	return &Store{
		definitions: make(map[string]*models.AssessmentDefinition),
		attempts:    make(map[string]*models.Attempt),
		subs:        make(map[string]map[int]func([]models.LeaderboardEntry)),
	}
}

// AddDefinition seeds a definition. Test and embedding helper; the authoring
// collaborator owns definition content in production.
func (s *Store) AddDefinition(def *models.AssessmentDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.ID] = def
}

// ===== DEFINITIONS =====

func (s *Store) GetDefinition(_ context.Context, definitionID string) (*models.AssessmentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[definitionID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *def
	return &clone, nil
}

func (s *Store) SetDefinitionStatus(_ context.Context, definitionID string, status models.DefinitionStatus, actor models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[definitionID]
	if !ok {
		return store.ErrNotFound
	}
	if !def.IsActivator(actor.ID) {
		return store.ErrNotAuthorized
	}
	if !def.Status.CanTransitionTo(status) {
		return store.ErrInvalidStatus
	}
	def.Status = status
	def.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetStartTime(_ context.Context, definitionID string, startTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.definitions[definitionID]
	if !ok {
		return store.ErrNotFound
	}
	def.StartTime = &startTime
	def.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListActiveSynchronizedDefinitions(_ context.Context) ([]*models.AssessmentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AssessmentDefinition
	for _, def := range s.definitions {
		if def.Status == models.StatusActive && def.Settings.StartMode == models.StartModeSynchronized {
			clone := *def
			out = append(out, &clone)
		}
	}
	return out, nil
}

// ===== ATTEMPTS =====

func (s *Store) CreateOrResumeAttempt(_ context.Context, definitionID string, identity models.Identity) (*models.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.definitions[definitionID]; !ok {
		return nil, store.ErrNotFound
	}

	// At most one InProgress attempt per (owner, definition): resume it.
	for _, a := range s.attempts {
		if a.DefinitionID == definitionID && a.OwnerID == identity.ID && a.Status == models.AttemptStatusInProgress {
			return cloneAttempt(a), nil
		}
	}

	attempt := &models.Attempt{
		ID:           uuid.NewString(),
		DefinitionID: definitionID,
		OwnerID:      identity.ID,
		Status:       models.AttemptStatusInProgress,
		StartedAt:    time.Now(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.attempts[attempt.ID] = attempt
	return cloneAttempt(attempt), nil
}

func (s *Store) AppendAnswer(_ context.Context, attemptID, questionID string, value models.AnswerValue, timeSpentSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	if attempt.Status != models.AttemptStatusInProgress {
		return store.ErrAlreadySubmitted
	}

	for i := range attempt.Answers {
		if attempt.Answers[i].QuestionID == questionID {
			attempt.Answers[i].Value = datatypes.NewJSONType(value)
			attempt.Answers[i].TimeSpentSeconds = timeSpentSeconds
			attempt.Answers[i].UpdatedAt = time.Now()
			return nil
		}
	}
	attempt.Answers = append(attempt.Answers, models.AttemptAnswer{
		AttemptID:        attemptID,
		QuestionID:       questionID,
		Value:            datatypes.NewJSONType(value),
		TimeSpentSeconds: timeSpentSeconds,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	})
	return nil
}

func (s *Store) UpdateCurrentIndex(_ context.Context, attemptID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	if attempt.Status != models.AttemptStatusInProgress {
		return store.ErrAlreadySubmitted
	}
	attempt.CurrentIndex = index
	attempt.UpdatedAt = time.Now()
	return nil
}

func (s *Store) FinalizeAttempt(_ context.Context, attemptID string, result scoring.Result, submittedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return store.ErrNotFound
	}
	// Conditional write: only the first finalize wins. Score fields and the
	// Submitted status flip together or not at all.
	if attempt.Status != models.AttemptStatusInProgress {
		return store.ErrAlreadySubmitted
	}
	attempt.Status = models.AttemptStatusSubmitted
	attempt.SubmittedAt = &submittedAt
	attempt.Score = result.Score
	attempt.TotalPoints = result.TotalPoints
	attempt.Percentage = result.Percentage
	attempt.UpdatedAt = time.Now()
	return nil
}

func (s *Store) ListInProgressAttempts(_ context.Context, definitionID string) ([]*models.Attempt, error) {
	return s.listByStatus(definitionID, models.AttemptStatusInProgress), nil
}

func (s *Store) ListSubmittedAttempts(_ context.Context, definitionID string) ([]*models.Attempt, error) {
	return s.listByStatus(definitionID, models.AttemptStatusSubmitted), nil
}

func (s *Store) listByStatus(definitionID string, status models.AttemptStatus) []*models.Attempt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Attempt
	for _, a := range s.attempts {
		if a.DefinitionID == definitionID && a.Status == status {
			out = append(out, cloneAttempt(a))
		}
	}
	return out
}

// ===== LEADERBOARD STREAMING =====

func (s *Store) SubscribeLeaderboard(_ context.Context, definitionID string, onUpdate func([]models.LeaderboardEntry)) (func(), error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subs[definitionID] == nil {
		s.subs[definitionID] = make(map[int]func([]models.LeaderboardEntry))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[definitionID][id] = onUpdate

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs[definitionID], id)
	}
	return cancel, nil
}

func (s *Store) PublishLeaderboard(_ context.Context, definitionID string, entries []models.LeaderboardEntry) error {
	s.subMu.Lock()
	callbacks := make([]func([]models.LeaderboardEntry), 0, len(s.subs[definitionID]))
	for _, fn := range s.subs[definitionID] {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()

	for _, fn := range callbacks {
		fn(entries)
	}
	return nil
}

func cloneAttempt(a *models.Attempt) *models.Attempt {
	clone := *a
	clone.Answers = make([]models.AttemptAnswer, len(a.Answers))
	copy(clone.Answers, a.Answers)
	return &clone
}
