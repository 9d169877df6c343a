package auth

import (
	"context"
	"errors"

	"github.com/slotwise/portal/internal/api"
	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/shared"
)

// Service wraps authentication flows.
type Service struct {
	sessions Sessions
	repo     Repository
}

// NewService constructs a new Service.
func NewService(sessions Sessions, repo Repository) *Service {
	return &Service{sessions: sessions, repo: repo}
}

// Authenticate signs in with email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*rbac.Principal, error) {
	p, err := s.sessions.Login(ctx, api.Credentials{Email: email, Password: password})
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	return p, nil
}

// SignedIn reports whether a principal is resolved.
func (s *Service) SignedIn() bool {
	return s.sessions.State().Status == principal.StatusAuthenticated
}

// SignOut clears the session; it never touches the network.
func (s *Service) SignOut(ctx context.Context) {
	s.sessions.Logout(ctx)
}

// RequestReset asks the API to mail a reset link.
func (s *Service) RequestReset(ctx context.Context, email string) (string, error) {
	return s.repo.ForgotPassword(ctx, email)
}

// ResetPassword sets a new password with a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (string, error) {
	return s.repo.ResetPassword(ctx, token, password)
}
