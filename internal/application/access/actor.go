// Package access holds the ownership rules shared by commands and queries.
package access

import (
	"github.com/superheroes-club/luz-engine/internal/domain/child"
	"github.com/superheroes-club/luz-engine/internal/domain/shared"
)

// Role of an authenticated principal.
type Role string

const (
	RoleParent Role = "parent"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Actor is the authenticated principal behind a command or query.
type Actor struct {
	UserID string
	Role   Role
}

// System is used by background jobs and internal flows.
var System = Actor{UserID: "system", Role: RoleSystem}

// IsAdmin reports whether the actor may act on any child.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Validate checks that the actor is authenticated.
func (a Actor) Validate() error {
	if a.UserID == "" {
		return shared.NewDomainError("access", "Validate", shared.ErrUnauthorized, "authentication required")
	}
	return nil
}

// CanAccessChild allows the child's guardian and admins.
// Non-owners get ErrChildNotFound so foreign ids are not disclosed.
func CanAccessChild(a Actor, c *child.Child) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.IsAdmin() || c.BelongsTo(a.UserID) {
		return nil
	}
	return shared.ErrChildNotFound
}

// CanReview allows admins, and the child's guardian only when guardianAllowed.
func CanReview(a Actor, c *child.Child, guardianAllowed bool) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.IsAdmin() {
		return nil
	}
	if guardianAllowed && c.BelongsTo(a.UserID) {
		return nil
	}
	return shared.NewDomainError("challenge", "Review", shared.ErrForbidden,
		"only an administrator may review submissions")
}

// RequireAdmin allows admins only.
func RequireAdmin(a Actor, op string) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if !a.IsAdmin() {
		return shared.NewDomainError("access", op, shared.ErrForbidden, "administrator role required")
	}
	return nil
}
