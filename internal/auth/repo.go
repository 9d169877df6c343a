package auth

import (
	"context"

	"github.com/slotwise/portal/internal/api"
	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
)

// Repository is the remote side of the password flows.
type Repository interface {
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) (string, error)
}

// Sessions is the sign-in state owner, implemented by principal.Resolver.
type Sessions interface {
	State() principal.State
	Login(ctx context.Context, creds api.Credentials) (*rbac.Principal, error)
	Logout(ctx context.Context)
}

var (
	_ Repository = (*api.Client)(nil)
	_ Sessions   = (*principal.Resolver)(nil)
)
