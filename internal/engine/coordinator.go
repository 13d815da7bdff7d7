package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/session-engine/internal/events"
	"github.com/SAP-F-2025/session-engine/internal/identity"
	"github.com/SAP-F-2025/session-engine/internal/models"
	"github.com/SAP-F-2025/session-engine/internal/store"
	"github.com/SAP-F-2025/session-engine/internal/utils"
)

// DefaultGraceWindow is the fixed delay between activation and the
// authoritative synchronized start instant.
const DefaultGraceWindow = 10 * time.Second

// StartCoordinator owns synchronized session starts: on activation it
// computes one authoritative start instant and writes it to the definition.
// Participant clients only ever read that single value; nobody computes an
// offset-adjusted guess of their own.
type StartCoordinator struct {
	store     store.AttemptStore
	authz     identity.Authorizer
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *utils.Validator
	grace     time.Duration
	now       func() time.Time
}

// CoordinatorOption customizes a StartCoordinator.
type CoordinatorOption func(*StartCoordinator)

// WithGraceWindow overrides the activation-to-start delay.
func WithGraceWindow(d time.Duration) CoordinatorOption {
	return func(c *StartCoordinator) { c.grace = d }
}

// WithCoordinatorNow overrides the time source for deterministic tests.
func WithCoordinatorNow(now func() time.Time) CoordinatorOption {
	return func(c *StartCoordinator) { c.now = now }
}

func NewStartCoordinator(s store.AttemptStore, authz identity.Authorizer, publisher events.EventPublisher, logger *slog.Logger, opts ...CoordinatorOption) *StartCoordinator {
	c := &StartCoordinator{
		store:     s,
		authz:     authz,
		publisher: publisher,
		logger:    logger,
		validator: utils.NewValidator(),
		grace:     DefaultGraceWindow,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Activate flips the definition Active and, for Synchronized mode, sets
// startTime = now + grace window. Only an authorized activator may call it;
// only one logical activation event exists per definition.
func (c *StartCoordinator) Activate(ctx context.Context, definitionID string, actor models.Identity) (*models.AssessmentDefinition, error) {
	def, err := c.store.GetDefinition(ctx, definitionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	ok, err := c.authz.CanActivate(ctx, actor, def)
	if err != nil {
		return nil, fmt.Errorf("authorization check failed: %w", err)
	}
	if !ok {
		return nil, ErrNotAuthorized
	}

	if def.Status == models.StatusActive || def.Status == models.StatusCompleted {
		return nil, ErrAlreadyActivated
	}
	if err := c.validator.Validate(def); err != nil {
		return nil, fmt.Errorf("definition failed validation: %w", err)
	}
	if !def.Status.CanTransitionTo(models.StatusActive) {
		return nil, ErrDefinitionInvalidStatus
	}

	var startTime *time.Time
	if def.Settings.StartMode == models.StartModeSynchronized {
		t := c.now().Add(c.grace)
		if err := c.store.SetStartTime(ctx, definitionID, t); err != nil {
			return nil, fmt.Errorf("failed to set start time: %w", err)
		}
		startTime = &t
	}

	if err := c.store.SetDefinitionStatus(ctx, definitionID, models.StatusActive, actor); err != nil {
		if errors.Is(err, store.ErrNotAuthorized) {
			return nil, ErrNotAuthorized
		}
		return nil, fmt.Errorf("failed to activate definition: %w", err)
	}

	def.Status = models.StatusActive
	def.StartTime = startTime

	c.logger.Info("Definition activated",
		"definition_id", definitionID,
		"activator_id", actor.ID,
		"start_mode", def.Settings.StartMode,
		"start_time", startTime)

	if c.publisher != nil {
		event := events.NewSessionEvent(events.EventDefinitionActivated, events.DefinitionActivatedEvent{
			DefinitionID: definitionID,
			ActivatorID:  actor.ID,
			StartMode:    def.Settings.StartMode,
			StartTime:    startTime,
		})
		if err := c.publisher.PublishSessionEvent(ctx, event); err != nil {
			c.logger.Error("Failed to publish activation event",
				"definition_id", definitionID,
				"error", err)
		}
	}

	return def, nil
}

// GateOpen reports whether participants may start. Individual definitions
// are always open once Active; Synchronized ones open at the shared instant.
func (c *StartCoordinator) GateOpen(def *models.AssessmentDefinition) bool {
	if def.Settings.StartMode != models.StartModeSynchronized {
		return def.Status == models.StatusActive
	}
	if def.Status != models.StatusActive || def.StartTime == nil {
		return false
	}
	return !c.now().Before(*def.StartTime)
}

// CheckGate is GateOpen as an error: closed gates surface the same
// not-authorized rejection that Controller.Start uses. A synchronized
// definition that was never activated has no start instant to wait for and
// gets its own error so callers do not poll a gate that cannot open.
func (c *StartCoordinator) CheckGate(def *models.AssessmentDefinition) error {
	if c.GateOpen(def) {
		return nil
	}
	if def.Settings.StartMode == models.StartModeSynchronized && def.StartTime == nil {
		return ErrNoStartTime
	}
	return ErrStartGateClosed
}
