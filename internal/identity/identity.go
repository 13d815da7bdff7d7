package identity

import (
	"context"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

// Resolver maps a stable identity ID to its display attributes. The engine
// never authenticates; it only attributes attempts and activations.
type Resolver interface {
	Resolve(ctx context.Context, id string) (models.Identity, error)
}

// Authorizer answers capability questions for a definition, decoupled from
// any specific identity literal. Scope-specific policies (community vs team
// vs contest) live behind this interface, not in the engine.
type Authorizer interface {
	// RoleFor returns the actor's role relative to the definition.
	RoleFor(ctx context.Context, actor models.Identity, def *models.AssessmentDefinition) (models.Role, error)
	// CanActivate reports whether the actor may activate the definition.
	CanActivate(ctx context.Context, actor models.Identity, def *models.AssessmentDefinition) (bool, error)
}

// StaticAuthorizer grants activation to the definition's owner and its
// authorized-activator set. It is the default policy and the test double.
type StaticAuthorizer struct{}

func (StaticAuthorizer) RoleFor(_ context.Context, actor models.Identity, def *models.AssessmentDefinition) (models.Role, error) {
	if actor.ID == def.OwnerID {
		return models.RoleOwner, nil
	}
	if def.IsActivator(actor.ID) {
		return models.RoleAdmin, nil
	}
	return models.RoleParticipant, nil
}

func (StaticAuthorizer) CanActivate(ctx context.Context, actor models.Identity, def *models.AssessmentDefinition) (bool, error) {
	role, err := StaticAuthorizer{}.RoleFor(ctx, actor, def)
	if err != nil {
		return false, err
	}
	return role == models.RoleOwner || role == models.RoleAdmin, nil
}
