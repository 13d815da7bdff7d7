package identity

import (
	"context"
	"testing"

	"github.com/SAP-F-2025/session-engine/internal/models"
)

func TestStaticAuthorizer_RoleFor(t *testing.T) {
	def := &models.AssessmentDefinition{
		ID:         "def-1",
		OwnerID:    "owner-1",
		Activators: []string{"moderator-1"},
	}
	authz := StaticAuthorizer{}
	ctx := context.Background()

	cases := []struct {
		name  string
		actor string
		want  models.Role
	}{
		{"Owner", "owner-1", models.RoleOwner},
		{"Activator", "moderator-1", models.RoleAdmin},
		{"Participant", "random", models.RoleParticipant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role, err := authz.RoleFor(ctx, models.Identity{ID: tc.actor}, def)
			if err != nil {
				t.Fatalf("RoleFor failed: %v", err)
			}
			if role != tc.want {
				t.Errorf("Expected role %s, got %s", tc.want, role)
			}
		})
	}
}

func TestStaticAuthorizer_CanActivate(t *testing.T) {
	def := &models.AssessmentDefinition{
		ID:         "def-1",
		OwnerID:    "owner-1",
		Activators: []string{"moderator-1"},
	}
	authz := StaticAuthorizer{}
	ctx := context.Background()

	for actor, want := range map[string]bool{
		"owner-1":     true,
		"moderator-1": true,
		"random":      false,
	} {
		ok, err := authz.CanActivate(ctx, models.Identity{ID: actor}, def)
		if err != nil {
			t.Fatalf("CanActivate failed for %s: %v", actor, err)
		}
		if ok != want {
			t.Errorf("CanActivate(%s) = %v, want %v", actor, ok, want)
		}
	}
}
