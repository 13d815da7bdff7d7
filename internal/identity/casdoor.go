package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

// CasdoorConfig carries the SDK settings for the identity provider.
type CasdoorConfig struct {
	Endpoint     string
	ClientID     string
	ClientSecret string
	Certificate  string
	Organization string
	Application  string
}

// CasdoorProvider resolves identities and platform roles from Casdoor. It
// implements Resolver and Authorizer: platform admins may activate any
// definition, everyone else falls back to the static activator-set policy.
type CasdoorProvider struct {
	client *casdoorsdk.Client
	logger *slog.Logger
	static StaticAuthorizer
}

func NewCasdoorProvider(cfg CasdoorConfig, logger *slog.Logger) *CasdoorProvider {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Certificate,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorProvider{client: client, logger: logger}
}

func (p *CasdoorProvider) Resolve(_ context.Context, id string) (models.Identity, error) {
	user, err := p.client.GetUser(id)
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to resolve identity %s: %w", id, err)
	}
	if user == nil {
		return models.Identity{}, fmt.Errorf("identity %s not found", id)
	}
	display := user.DisplayName
	if display == "" {
		display = user.Name
	}
	return models.Identity{ID: user.Name, DisplayName: display}, nil
}

func (p *CasdoorProvider) RoleFor(ctx context.Context, actor models.Identity, def *models.AssessmentDefinition) (models.Role, error) {
	user, err := p.client.GetUser(actor.ID)
	if err != nil {
		p.logger.Warn("Casdoor lookup failed, falling back to activator set",
			"actor_id", actor.ID,
			"error", err)
		return p.static.RoleFor(ctx, actor, def)
	}
	if user != nil && user.IsAdmin {
		return models.RoleAdmin, nil
	}
	return p.static.RoleFor(ctx, actor, def)
}

func (p *CasdoorProvider) CanActivate(ctx context.Context, actor models.Identity, def *models.AssessmentDefinition) (bool, error) {
	role, err := p.RoleFor(ctx, actor, def)
	if err != nil {
		return false, err
	}
	return role == models.RoleOwner || role == models.RoleAdmin, nil
}
