package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/session-engine/internal/events"
	"github.com/SAP-F-2025/session-engine/internal/identity"
	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
	"github.com/SAP-F-2025/session-engine/internal/store"
)

// DefaultSweepInterval is how often the expiry sweep scans for overrun
// synchronized sessions.
const DefaultSweepInterval = 15 * time.Second

// Sweeper force-submits attempts whose synchronized session has exceeded its
// deadline, then marks the definition Completed. It guarantees a participant
// who never opened the session cannot keep an open, never-expiring attempt.
// The store's conditional finalize makes each force-submit exactly-once even
// if a participant's own auto-submit races the sweep.
type Sweeper struct {
	store     store.AttemptStore
	resolver  identity.Resolver
	publisher events.EventPublisher
	logger    *slog.Logger
	interval  time.Duration
	now       func() time.Time
}

// SweeperOption customizes a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval overrides the scan cadence.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

// WithSweeperNow overrides the time source for deterministic tests.
func WithSweeperNow(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// WithSweeperResolver supplies display names for leaderboard entries.
func WithSweeperResolver(r identity.Resolver) SweeperOption {
	return func(s *Sweeper) { s.resolver = r }
}

func NewSweeper(st store.AttemptStore, publisher events.EventPublisher, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:     st,
		publisher: publisher,
		logger:    logger,
		interval:  DefaultSweepInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run loops until ctx is cancelled, sweeping every interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("Expiry sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce scans all Active Synchronized definitions and closes out the
// expired ones.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	defs, err := s.store.ListActiveSynchronizedDefinitions(ctx)
	if err != nil {
		return err
	}

	for _, def := range defs {
		if def.StartTime == nil || def.Settings.TotalTimeSeconds <= 0 {
			continue
		}
		deadline := def.StartTime.Add(time.Duration(def.Settings.TotalTimeSeconds) * time.Second)
		if s.now().Before(deadline) {
			continue
		}
		if err := s.sweepDefinition(ctx, def); err != nil {
			s.logger.Error("Failed to sweep definition",
				"definition_id", def.ID,
				"error", err)
		}
	}
	return nil
}

func (s *Sweeper) sweepDefinition(ctx context.Context, def *models.AssessmentDefinition) error {
	inProgress, err := s.store.ListInProgressAttempts(ctx, def.ID)
	if err != nil {
		return err
	}

	swept := 0
	failed := 0
	for _, attempt := range inProgress {
		answers := make(map[string]models.AnswerValue, len(attempt.Answers))
		for _, ans := range attempt.Answers {
			answers[ans.QuestionID] = ans.Value.Data()
		}
		result := scoring.Score(def.Questions, answers)

		err := s.store.FinalizeAttempt(ctx, attempt.ID, result, s.now())
		if store.IsAlreadySubmittedError(err) {
			// The participant's own submit won the race.
			continue
		}
		if err != nil {
			s.logger.Error("Failed to force-submit attempt",
				"attempt_id", attempt.ID,
				"definition_id", def.ID,
				"error", err)
			failed++
			continue
		}
		swept++

		s.publish(ctx, events.NewSessionEvent(events.EventAttemptSwept, events.AttemptSubmittedEvent{
			AttemptID:    attempt.ID,
			DefinitionID: def.ID,
			OwnerID:      attempt.OwnerID,
			Score:        result.Score,
			TotalPoints:  result.TotalPoints,
			Percentage:   result.Percentage,
			AutoSubmit:   true,
		}))
	}

	s.refreshLeaderboard(ctx, def)

	// The definition stays Active until every open attempt is closed out, so
	// the next sweep retries the ones that failed transiently. Completing it
	// now would drop them from the active scan and strand them InProgress.
	if failed > 0 {
		return fmt.Errorf("definition %s: %d attempt(s) could not be force-submitted", def.ID, failed)
	}

	if err := s.store.SetDefinitionStatus(ctx, def.ID, models.StatusCompleted, models.Identity{ID: def.OwnerID}); err != nil {
		return err
	}

	s.logger.Info("Definition swept and completed",
		"definition_id", def.ID,
		"swept_attempts", swept)

	s.publish(ctx, events.NewSessionEvent(events.EventDefinitionCompleted, events.DefinitionCompletedEvent{
		DefinitionID:  def.ID,
		SweptAttempts: swept,
	}))
	return nil
}

func (s *Sweeper) refreshLeaderboard(ctx context.Context, def *models.AssessmentDefinition) {
	submitted, err := s.store.ListSubmittedAttempts(ctx, def.ID)
	if err != nil {
		s.logger.Error("Failed to list submitted attempts for leaderboard",
			"definition_id", def.ID,
			"error", err)
		return
	}

	names := make(map[string]string)
	if s.resolver != nil {
		for _, a := range submitted {
			if _, ok := names[a.OwnerID]; ok {
				continue
			}
			if id, err := s.resolver.Resolve(ctx, a.OwnerID); err == nil {
				names[a.OwnerID] = id.DisplayName
			}
		}
	}

	entries := scoring.Rank(def, submitted, names)
	if err := s.store.PublishLeaderboard(ctx, def.ID, entries); err != nil {
		s.logger.Error("Failed to publish leaderboard",
			"definition_id", def.ID,
			"error", err)
		return
	}

	s.publish(ctx, events.NewSessionEvent(events.EventLeaderboardUpdated, events.LeaderboardUpdatedEvent{
		DefinitionID: def.ID,
		Entries:      entries,
	}))
}

func (s *Sweeper) publish(ctx context.Context, event *events.SessionEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish sweep event",
			"event_type", event.Type,
			"error", err)
	}
}
