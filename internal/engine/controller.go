package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SAP-F-2025/session-engine/internal/events"
	"github.com/SAP-F-2025/session-engine/internal/identity"
	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/scoring"
	"github.com/SAP-F-2025/session-engine/internal/store"
)

// State is the controller lifecycle. No transition leaves Completed.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateSubmitting
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StateInProgress:
		return "InProgress"
	case StateSubmitting:
		return "Submitting"
	case StateCompleted:
		return "Completed"
	}
	return "Unknown"
}

// ClockKind identifies which countdown a tick belongs to.
type ClockKind string

const (
	ClockTotal    ClockKind = "total"
	ClockQuestion ClockKind = "question"
)

// TickListener receives countdown updates for display purposes.
type TickListener func(kind ClockKind, remaining int)

// Controller drives one participant through a timed session: it owns the
// current attempt, the active question index and both countdown clocks, and
// orchestrates answer capture, navigation, auto-skip, auto-submit and final
// submission.
//
// All mutable session state lives on the controller itself, never in values
// captured when a clock was armed; a timer callback that fires after the
// session has moved on reads current state through the controller and the
// clock latch, so it cannot act on a stale snapshot.
type Controller struct {
	store     store.AttemptStore
	publisher events.EventPublisher
	resolver  identity.Resolver
	logger    *slog.Logger

	clockInterval time.Duration
	now           func() time.Time
	onTick        TickListener

	// gate drops a state transition that lands while another one is
	// executing (timer expiry racing a manual action).
	gate gate

	mu       sync.Mutex
	state    State
	def      *models.AssessmentDefinition
	identity models.Identity
	attempt  *models.Attempt
	index    int
	shownAt  time.Time

	// pending holds answers captured but not yet persisted; recorded mirrors
	// every value already appended to the store. Scoring merges both, with
	// pending winning (last write wins per question).
	pending  map[string]models.AnswerValue
	recorded map[string]models.AnswerValue

	totalClock    *Clock
	questionClock *Clock
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithClockInterval overrides the one-second tick resolution (tests only).
func WithClockInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.clockInterval = d }
}

// WithNow overrides the time source for deterministic tests.
func WithNow(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithTickListener registers a countdown listener for the UI layer.
func WithTickListener(fn TickListener) ControllerOption {
	return func(c *Controller) { c.onTick = fn }
}

// WithResolver supplies display names for leaderboard entries.
func WithResolver(r identity.Resolver) ControllerOption {
	return func(c *Controller) { c.resolver = r }
}

func NewController(s store.AttemptStore, publisher events.EventPublisher, logger *slog.Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:         s,
		publisher:     publisher,
		logger:        logger,
		clockInterval: time.Second,
		now:           time.Now,
		pending:       make(map[string]models.AnswerValue),
		recorded:      make(map[string]models.AnswerValue),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ===== LIFECYCLE =====

// Start loads the definition, creates or resumes the attempt, and arms the
// clocks. For a Synchronized definition it rejects with a not-authorized
// error until the shared start instant has passed.
func (c *Controller) Start(ctx context.Context, definitionID string, id models.Identity) error {
	c.mu.Lock()
	if c.state != StateNotStarted {
		c.mu.Unlock()
		return ErrSessionAlreadyStarted
	}
	c.mu.Unlock()

	def, err := c.store.GetDefinition(ctx, definitionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return ErrDefinitionNotFound
		}
		return fmt.Errorf("failed to get definition: %w", err)
	}

	if def.Status != models.StatusActive {
		return ErrDefinitionNotActive
	}

	if def.Settings.StartMode == models.StartModeSynchronized {
		if def.StartTime == nil {
			return ErrNoStartTime
		}
		if c.now().Before(*def.StartTime) {
			return ErrStartGateClosed
		}
	}

	attempt, err := c.store.CreateOrResumeAttempt(ctx, definitionID, id)
	if err != nil {
		return fmt.Errorf("failed to create or resume attempt: %w", err)
	}
	resumed := len(attempt.Answers) > 0 || attempt.CurrentIndex > 0

	c.mu.Lock()
	c.def = def
	c.identity = id
	c.attempt = attempt
	c.index = attempt.CurrentIndex
	if c.index >= len(def.Questions) && len(def.Questions) > 0 {
		c.index = len(def.Questions) - 1
	}
	for _, ans := range attempt.Answers {
		c.recorded[ans.QuestionID] = ans.Value.Data()
	}
	c.shownAt = c.now()
	c.state = StateInProgress
	c.mu.Unlock()

	c.logger.Info("Session started",
		"attempt_id", attempt.ID,
		"definition_id", definitionID,
		"owner_id", id.ID,
		"resumed", resumed)

	c.publish(ctx, events.NewSessionEvent(events.EventAttemptStarted, events.AttemptStartedEvent{
		AttemptID:    attempt.ID,
		DefinitionID: definitionID,
		OwnerID:      id.ID,
		Resumed:      resumed,
	}))

	// Total-session clock. For synchronized sessions the deadline is anchored
	// to the shared start instant, so a late joiner gets only the leftovers.
	if deadline, ok := def.SessionDeadline(attempt.StartedAt); ok {
		remaining := int(deadline.Sub(c.now()).Seconds())
		if remaining <= 0 {
			if !c.gate.run(func() { c.doSubmit(ctx, true, false) }) {
				c.logger.Warn("Dropped immediate auto-submit, gate busy", "attempt_id", attempt.ID)
			}
			return nil
		}
		c.totalClock = NewClockWithInterval(c.clockInterval)
		c.totalClock.Start(remaining,
			func(r int) { c.tick(ClockTotal, r) },
			c.autoSubmit)
	}

	c.armQuestionClock()
	return nil
}

// Close cancels both clocks unconditionally. A detached clock must never fire
// into a controller that no longer represents the active session. Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	total, question := c.totalClock, c.questionClock
	c.mu.Unlock()
	if total != nil {
		total.Cancel()
	}
	if question != nil {
		question.Cancel()
	}
}

// ===== ANSWER CAPTURE AND NAVIGATION =====

// Answer stores the value in the pending map. No persistence, no side
// effects beyond local state; Next or Submit write it out.
func (c *Controller) Answer(questionID string, value models.AnswerValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateNotStarted:
		return ErrSessionNotStarted
	case StateCompleted:
		return ErrAttemptAlreadySubmitted
	case StateSubmitting:
		return ErrAttemptNotActive
	}
	c.pending[questionID] = value
	return nil
}

// Next persists the current answer, advances the index and re-arms the
// question clock. On the last question it submits instead. A call landing
// while another transition runs is dropped silently.
func (c *Controller) Next(ctx context.Context) error {
	var err error
	if !c.gate.run(func() { err = c.advance(ctx, false) }) {
		c.logger.Debug("Next dropped by re-entrancy guard")
		return nil
	}
	return err
}

// Previous moves the index backward and resets the question-display
// timestamp. It never re-validates or re-arms completed timers, and is a
// no-op outside InProgress or on the first question.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInProgress {
		return
	}
	if c.index > 0 {
		c.index--
		c.shownAt = c.now()
	}
}

// Submit finalizes the attempt: cancels both clocks, persists the unsaved
// current answer, scores the full answer map and writes the submitted state.
// Idempotent; a concurrent transition drops the call.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateNotStarted {
		c.mu.Unlock()
		return ErrSessionNotStarted
	}
	c.mu.Unlock()

	var err error
	if !c.gate.run(func() { err = c.doSubmit(ctx, false, false) }) {
		c.logger.Debug("Submit dropped by re-entrancy guard")
		return nil
	}
	return err
}

// autoSkip is the question clock's expiry callback: same as Next but it never
// blocks on answer presence, so an unanswered question is recorded empty.
func (c *Controller) autoSkip() {
	if !c.gate.run(func() { _ = c.advance(context.Background(), true) }) {
		c.logger.Debug("Auto-skip dropped by re-entrancy guard")
	}
}

// autoSubmit is the total clock's expiry callback.
func (c *Controller) autoSubmit() {
	if !c.gate.run(func() { _ = c.doSubmit(context.Background(), true, false) }) {
		c.logger.Debug("Auto-submit dropped by re-entrancy guard")
	}
}

// advance persists the current question's answer (or its empty placeholder),
// then moves to the next question or submits on the last one. Caller must
// hold the gate.
func (c *Controller) advance(ctx context.Context, fromTimer bool) error {
	c.mu.Lock()
	if c.state != StateInProgress || c.def == nil || len(c.def.Questions) == 0 {
		c.mu.Unlock()
		return nil
	}
	question := c.def.Questions[c.index]
	value := c.pending[question.ID]
	elapsed := int(c.now().Sub(c.shownAt).Seconds())
	attemptID := c.attempt.ID
	last := c.index == len(c.def.Questions)-1
	c.mu.Unlock()

	// Persistence for question i completes, or is at least attempted, before
	// the index reaches i+1.
	saved := true
	if err := c.store.AppendAnswer(ctx, attemptID, question.ID, value, elapsed); err != nil {
		saved = false
		c.logger.Error("Failed to persist answer",
			"attempt_id", attemptID,
			"question_id", question.ID,
			"error", err)
		if !fromTimer {
			// Manual navigation stays on the question so the caller can retry.
			return NewPersistenceError("append_answer", attemptID, err)
		}
		// A timer-driven skip advances anyway; only this answer can be lost.
	}

	c.mu.Lock()
	if saved {
		c.recorded[question.ID] = value
	}
	if last {
		c.mu.Unlock()
		return c.doSubmit(ctx, fromTimer, saved)
	}
	c.index++
	index := c.index
	c.shownAt = c.now()
	c.mu.Unlock()

	if err := c.store.UpdateCurrentIndex(ctx, attemptID, index); err != nil {
		c.logger.Warn("Failed to persist current index",
			"attempt_id", attemptID,
			"index", index,
			"error", err)
	}

	c.armQuestionClock()
	return nil
}

// doSubmit runs the Submitting transition. currentSaved tells it the current
// question's answer was already written by the caller. Caller must hold the
// gate. A second invocation in Submitting or Completed is a no-op.
func (c *Controller) doSubmit(ctx context.Context, auto bool, currentSaved bool) error {
	c.mu.Lock()
	if c.state != StateInProgress || c.attempt == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateSubmitting
	attempt := c.attempt
	def := c.def
	total, question := c.totalClock, c.questionClock
	var current *models.Question
	if len(def.Questions) > 0 {
		current = &def.Questions[c.index]
	}
	elapsed := int(c.now().Sub(c.shownAt).Seconds())
	c.mu.Unlock()

	// Clocks go first so no further auto-skip or auto-submit can interleave
	// with the final write.
	if total != nil {
		total.Cancel()
	}
	if question != nil {
		question.Cancel()
	}

	// Persist the unsaved current answer, if any.
	if current != nil && !currentSaved {
		c.mu.Lock()
		value, has := c.pending[current.ID]
		c.mu.Unlock()
		if has {
			if err := c.store.AppendAnswer(ctx, attempt.ID, current.ID, value, elapsed); err != nil {
				c.logger.Error("Failed to persist final answer",
					"attempt_id", attempt.ID,
					"question_id", current.ID,
					"error", err)
			} else {
				c.mu.Lock()
				c.recorded[current.ID] = value
				c.mu.Unlock()
			}
		}
	}

	c.mu.Lock()
	answers := make(map[string]models.AnswerValue, len(c.recorded)+len(c.pending))
	for id, v := range c.recorded {
		answers[id] = v
	}
	for id, v := range c.pending {
		answers[id] = v
	}
	c.mu.Unlock()

	result := scoring.Score(def.Questions, answers)
	submittedAt := c.now()

	err := c.store.FinalizeAttempt(ctx, attempt.ID, result, submittedAt)
	if err != nil && !store.IsAlreadySubmittedError(err) {
		c.logger.Warn("Finalize failed, retrying once",
			"attempt_id", attempt.ID,
			"error", err)
		err = c.store.FinalizeAttempt(ctx, attempt.ID, result, submittedAt)
	}
	if err != nil && !store.IsAlreadySubmittedError(err) {
		// The attempt stays InProgress; it must not vanish into Submitting
		// forever. The caller retries Submit.
		c.mu.Lock()
		c.state = StateInProgress
		c.mu.Unlock()
		return NewPersistenceError("finalize_attempt", attempt.ID, err)
	}

	c.mu.Lock()
	c.state = StateCompleted
	attempt.Status = models.AttemptStatusSubmitted
	attempt.SubmittedAt = &submittedAt
	attempt.Score = result.Score
	attempt.TotalPoints = result.TotalPoints
	attempt.Percentage = result.Percentage
	c.mu.Unlock()

	c.logger.Info("Attempt submitted",
		"attempt_id", attempt.ID,
		"definition_id", def.ID,
		"score", result.Score,
		"total_points", result.TotalPoints,
		"auto", auto)

	c.publish(ctx, events.NewSessionEvent(events.EventAttemptSubmitted, events.AttemptSubmittedEvent{
		AttemptID:    attempt.ID,
		DefinitionID: def.ID,
		OwnerID:      attempt.OwnerID,
		Score:        result.Score,
		TotalPoints:  result.TotalPoints,
		Percentage:   result.Percentage,
		AutoSubmit:   auto,
	}))

	c.refreshLeaderboard(ctx, def)
	return nil
}

// refreshLeaderboard recomputes the full ranking from submitted attempts and
// pushes it to subscribers. Derived state only; failures are logged, never
// surfaced, since the submission itself already succeeded.
func (c *Controller) refreshLeaderboard(ctx context.Context, def *models.AssessmentDefinition) {
	submitted, err := c.store.ListSubmittedAttempts(ctx, def.ID)
	if err != nil {
		c.logger.Error("Failed to list submitted attempts for leaderboard",
			"definition_id", def.ID,
			"error", err)
		return
	}

	names := make(map[string]string)
	c.mu.Lock()
	names[c.identity.ID] = c.identity.DisplayName
	c.mu.Unlock()
	if c.resolver != nil {
		for _, a := range submitted {
			if _, ok := names[a.OwnerID]; ok {
				continue
			}
			if id, err := c.resolver.Resolve(ctx, a.OwnerID); err == nil {
				names[a.OwnerID] = id.DisplayName
			}
		}
	}

	entries := scoring.Rank(def, submitted, names)
	if err := c.store.PublishLeaderboard(ctx, def.ID, entries); err != nil {
		c.logger.Error("Failed to publish leaderboard",
			"definition_id", def.ID,
			"error", err)
		return
	}

	c.publish(ctx, events.NewSessionEvent(events.EventLeaderboardUpdated, events.LeaderboardUpdatedEvent{
		DefinitionID: def.ID,
		Entries:      entries,
	}))
}

// ===== CLOCKS =====

func (c *Controller) armQuestionClock() {
	c.mu.Lock()
	if c.state != StateInProgress || c.def == nil || c.def.Settings.TimePerQuestionSeconds <= 0 {
		c.mu.Unlock()
		return
	}
	if c.questionClock != nil {
		c.questionClock.Cancel()
	}
	c.questionClock = NewClockWithInterval(c.clockInterval)
	clock := c.questionClock
	seconds := c.def.Settings.TimePerQuestionSeconds
	c.mu.Unlock()

	clock.Start(seconds,
		func(r int) { c.tick(ClockQuestion, r) },
		c.autoSkip)
}

func (c *Controller) tick(kind ClockKind, remaining int) {
	if c.onTick != nil {
		c.onTick(kind, remaining)
	}
}

func (c *Controller) publish(ctx context.Context, event *events.SessionEvent) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishSessionEvent(ctx, event); err != nil {
		c.logger.Error("Failed to publish session event",
			"event_type", event.Type,
			"error", err)
	}
}

// ===== READ ACCESSORS =====

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// CurrentQuestion returns the active question, or nil before Start.
func (c *Controller) CurrentQuestion() *models.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.def == nil || c.index >= len(c.def.Questions) {
		return nil
	}
	q := c.def.Questions[c.index]
	return &q
}

// Attempt returns the controller's attempt, or nil before Start.
func (c *Controller) Attempt() *models.Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}
