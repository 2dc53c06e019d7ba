package auth

import (
	"context"
	"errors"
)

const (
	RoleUser      = "USER"
	RoleLibrarian = "LIBRARIAN"
	RoleAdmin     = "ADMIN"
)

var (
	// ErrUnauthenticated means no identity is attached to the context.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrAccessDenied means the caller is authenticated but lacks the role.
	ErrAccessDenied = errors.New("insufficient role")
)

// Identity is the authenticated caller as established by the token filter.
type Identity struct {
	Subject string
	Roles   []string
}

type identityKey struct{}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// Require checks the caller's role set against the operation's required roles.
// With no roles listed, any authenticated caller passes.
func Require(ctx context.Context, roles ...string) error {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if len(roles) == 0 {
		return nil
	}
	for _, have := range id.Roles {
		for _, want := range roles {
			if have == want {
				return nil
			}
		}
	}
	return ErrAccessDenied
}
