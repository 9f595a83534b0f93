package domain

import "strings"

// Role enumerates organisation roles known to the identity provider.
type Role string

const (
	RoleAdmin               Role = "admin"
	RoleDirector            Role = "director"
	RoleSrOperationsManager Role = "sr_operations_manager"
	RoleOperationsManager   Role = "operations_manager"
	RoleHumanResources      Role = "human_resources"
	RoleCoach               Role = "coach"
	RolePod                 Role = "pod"
	RoleAgent               Role = "agent"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDirector, RoleSrOperationsManager, RoleOperationsManager,
		RoleHumanResources, RoleCoach, RolePod, RoleAgent:
		return true
	}
	return false
}

// ActorSource records how an actor was authenticated.
type ActorSource string

const (
	ActorSourceToken  ActorSource = "token"
	ActorSourceAPIKey ActorSource = "api_key"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID     string
	Email  string
	Name   string
	Role   Role
	Source ActorSource
}

// ActorSnapshot freezes actor metadata at the time of an action so later role
// changes do not rewrite history.
type ActorSnapshot struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   Role   `json:"role"`
}

// Snapshot captures the actor's current metadata.
func (a Actor) Snapshot() ActorSnapshot {
	return ActorSnapshot{
		UserID: a.ID,
		Email:  a.Email,
		Name:   a.DisplayName(),
		Role:   a.Role,
	}
}

// DisplayName falls back to the local part of the email when no name is set.
func (a Actor) DisplayName() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	if at := strings.Index(a.Email, "@"); at > 0 {
		return a.Email[:at]
	}
	return a.Email
}
