package models

type Role string

const (
	RoleOwner       Role = "owner"
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// Identity is what the external identity collaborator supplies. The engine
// never authenticates; it only attributes attempts and activations.
type Identity struct {
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name"`
}
