package auth

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthorized is returned when the caller identity is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when an authenticated caller lacks admin rights.
	ErrForbidden = errors.New("admin access required")
)

// Identity is the authenticated caller extracted from the session token.
type Identity struct {
	UserID string
	Admin  bool
	Role   string
	Roles  []string
}

// IsAdmin reports whether the identity carries administrator rights through
// any of the supported claim shapes.
func (i Identity) IsAdmin() bool {
	return i.Admin || i.Role == "admin" || slices.Contains(i.Roles, "admin")
}

type identityKey struct{}

// WithIdentity stores the identity in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored in ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok && id.UserID != ""
}
