package engine

import (
	"context"
	"testing"
	"time"

	"github.com/SAP-F-2025/session-engine/internal/events"
	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
	"github.com/SAP-F-2025/session-engine/internal/store/memory"
)

func expiredSyncDefinition(id string) *models.AssessmentDefinition {
	def := testDefinition(id, models.StartModeSynchronized)
	def.Settings.TotalTimeSeconds = 60
	start := time.Now().Add(-5 * time.Minute)
	def.StartTime = &start
	return def
}

func TestSweeper_ForceSubmitsOverrunAttempts(t *testing.T) {
	st := memory.NewStore()
	def := expiredSyncDefinition("def-1")
	st.AddDefinition(def)
	publisher := events.NewMockEventPublisher(testLogger())
	ctx := context.Background()

	// Two participants walked away mid-session; one answered q1 correctly.
	abandoned, err := st.CreateOrResumeAttempt(ctx, "def-1", models.Identity{ID: "alice"})
	if err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}
	if err := st.AppendAnswer(ctx, abandoned.ID, "q1", models.AnswerValue{Selections: []string{"4"}}, 5); err != nil {
		t.Fatalf("Failed to append answer: %v", err)
	}
	if _, err := st.CreateOrResumeAttempt(ctx, "def-1", models.Identity{ID: "bob"}); err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}

	sweeper := NewSweeper(st, publisher, testLogger())
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	submitted, _ := st.ListSubmittedAttempts(ctx, "def-1")
	if len(submitted) != 2 {
		t.Fatalf("Expected 2 force-submitted attempts, got %d", len(submitted))
	}
	for _, a := range submitted {
		if a.SubmittedAt == nil {
			t.Errorf("Swept attempt %s has no submission timestamp", a.ID)
		}
		if a.OwnerID == "alice" && a.Score != 1 {
			t.Errorf("Expected persisted answers to score, got %d", a.Score)
		}
		if a.OwnerID == "bob" && a.Score != 0 {
			t.Errorf("Expected empty attempt to score 0, got %d", a.Score)
		}
	}

	stored, _ := st.GetDefinition(ctx, "def-1")
	if stored.Status != models.StatusCompleted {
		t.Errorf("Expected definition Completed after sweep, got %s", stored.Status)
	}

	swept := publisher.EventsOfType(events.EventAttemptSwept)
	if len(swept) != 2 {
		t.Errorf("Expected 2 swept events, got %d", len(swept))
	}
	completed := publisher.EventsOfType(events.EventDefinitionCompleted)
	if len(completed) != 1 {
		t.Fatalf("Expected 1 completed event, got %d", len(completed))
	}
	if data, ok := completed[0].Data.(events.DefinitionCompletedEvent); !ok || data.SweptAttempts != 2 {
		t.Errorf("Unexpected completed event data: %+v", completed[0].Data)
	}
	updates := publisher.EventsOfType(events.EventLeaderboardUpdated)
	if len(updates) != 1 {
		t.Fatalf("Expected 1 leaderboard event, got %d", len(updates))
	}
	if data, ok := updates[0].Data.(events.LeaderboardUpdatedEvent); !ok || len(data.Entries) != 2 {
		t.Errorf("Unexpected leaderboard event data: %+v", updates[0].Data)
	}
}

func TestSweeper_SecondSweepIsNoOp(t *testing.T) {
	st := memory.NewStore()
	st.AddDefinition(expiredSyncDefinition("def-1"))
	publisher := events.NewMockEventPublisher(testLogger())
	ctx := context.Background()

	if _, err := st.CreateOrResumeAttempt(ctx, "def-1", models.Identity{ID: "alice"}); err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}

	sweeper := NewSweeper(st, publisher, testLogger())
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("First sweep failed: %v", err)
	}
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}

	// Completed definitions leave the active set, so nothing is touched twice.
	if got := len(publisher.EventsOfType(events.EventAttemptSwept)); got != 1 {
		t.Errorf("Expected exactly 1 swept event across sweeps, got %d", got)
	}
	if got := len(publisher.EventsOfType(events.EventDefinitionCompleted)); got != 1 {
		t.Errorf("Expected exactly 1 completed event across sweeps, got %d", got)
	}
}

func TestSweeper_KeepsDefinitionActiveUntilEveryAttemptCloses(t *testing.T) {
	mem := memory.NewStore()
	st := &flakyStore{Store: mem, failTimes: 1}
	st.AddDefinition(expiredSyncDefinition("def-1"))
	publisher := events.NewMockEventPublisher(testLogger())
	ctx := context.Background()

	if _, err := st.CreateOrResumeAttempt(ctx, "def-1", models.Identity{ID: "alice"}); err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}

	sweeper := NewSweeper(st, publisher, testLogger())

	// The store drops the force-submit; the definition must not complete.
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	def, _ := st.GetDefinition(ctx, "def-1")
	if def.Status != models.StatusActive {
		t.Fatalf("Definition must stay Active while attempts are open, got %s", def.Status)
	}
	inProgress, _ := st.ListInProgressAttempts(ctx, "def-1")
	if len(inProgress) != 1 {
		t.Fatalf("Expected the failed attempt still open, got %d in progress", len(inProgress))
	}
	if got := len(publisher.EventsOfType(events.EventDefinitionCompleted)); got != 0 {
		t.Errorf("Expected no completed event after failed force-submit, got %d", got)
	}

	// The store recovered; the next sweep closes the attempt and completes.
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("Second sweep failed: %v", err)
	}
	submitted, _ := st.ListSubmittedAttempts(ctx, "def-1")
	if len(submitted) != 1 {
		t.Fatalf("Expected attempt force-submitted on retry, got %d submitted", len(submitted))
	}
	def, _ = st.GetDefinition(ctx, "def-1")
	if def.Status != models.StatusCompleted {
		t.Errorf("Expected Completed once every attempt is closed, got %s", def.Status)
	}
	if got := len(publisher.EventsOfType(events.EventAttemptSwept)); got != 1 {
		t.Errorf("Expected exactly 1 swept event, got %d", got)
	}
	if got := len(publisher.EventsOfType(events.EventDefinitionCompleted)); got != 1 {
		t.Errorf("Expected exactly 1 completed event, got %d", got)
	}
}

func TestSweeper_ParticipantSubmitWinsRace(t *testing.T) {
	st := memory.NewStore()
	def := expiredSyncDefinition("def-1")
	st.AddDefinition(def)
	publisher := events.NewMockEventPublisher(testLogger())
	ctx := context.Background()

	attempt, err := st.CreateOrResumeAttempt(ctx, "def-1", models.Identity{ID: "alice"})
	if err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}

	// racingStore finalizes the attempt itself just before the sweep does,
	// simulating the participant's auto-submit landing first.
	rs := &racingStore{Store: st, attemptID: attempt.ID}

	sweeper := NewSweeper(rs, publisher, testLogger())
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if got := len(publisher.EventsOfType(events.EventAttemptSwept)); got != 0 {
		t.Errorf("Expected 0 swept events when participant won, got %d", got)
	}
	completed := publisher.EventsOfType(events.EventDefinitionCompleted)
	if len(completed) != 1 {
		t.Fatalf("Expected 1 completed event, got %d", len(completed))
	}
	if data, ok := completed[0].Data.(events.DefinitionCompletedEvent); !ok || data.SweptAttempts != 0 {
		t.Errorf("Unexpected completed event data: %+v", completed[0].Data)
	}

	submitted, _ := st.ListSubmittedAttempts(ctx, "def-1")
	if len(submitted) != 1 {
		t.Fatalf("Expected 1 submitted attempt, got %d", len(submitted))
	}
	// The participant's own score survives, not the sweep's recount.
	if submitted[0].Score != 4 {
		t.Errorf("Expected participant score 4 to survive, got %d", submitted[0].Score)
	}
}

func TestSweeper_SkipsUnexpiredDefinitions(t *testing.T) {
	st := memory.NewStore()
	def := testDefinition("def-1", models.StartModeSynchronized)
	def.Settings.TotalTimeSeconds = 3600
	start := time.Now().Add(-time.Minute)
	def.StartTime = &start
	st.AddDefinition(def)
	publisher := events.NewMockEventPublisher(testLogger())
	ctx := context.Background()

	if _, err := st.CreateOrResumeAttempt(ctx, "def-1", models.Identity{ID: "alice"}); err != nil {
		t.Fatalf("Failed to create attempt: %v", err)
	}

	sweeper := NewSweeper(st, publisher, testLogger())
	if err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	inProgress, _ := st.ListInProgressAttempts(ctx, "def-1")
	if len(inProgress) != 1 {
		t.Errorf("Expected attempt untouched before deadline, got %d in progress", len(inProgress))
	}
	if len(publisher.PublishedEvents()) != 0 {
		t.Errorf("Expected no events for unexpired definition, got %d", len(publisher.PublishedEvents()))
	}
}

// racingStore finalizes the target attempt out from under the sweep's list.
type racingStore struct {
	*memory.Store
	attemptID string
	raced     bool
}

func (r *racingStore) ListInProgressAttempts(ctx context.Context, definitionID string) ([]*models.Attempt, error) {
	attempts, err := r.Store.ListInProgressAttempts(ctx, definitionID)
	if err == nil && !r.raced {
		r.raced = true
		now := time.Now()
		r.Store.FinalizeAttempt(ctx, r.attemptID, scoring.Result{Score: 4, TotalPoints: 4, Percentage: 100}, now)
	}
	return attempts, err
}
