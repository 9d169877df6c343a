package api

import (
	"context"
	"errors"

	"github.com/slotwise/portal/internal/session"
	"github.com/slotwise/portal/internal/shared"
)

// TokenSource supplies access tokens and refreshes them on demand.
type TokenSource interface {
	GetAccessToken() (string, bool)
	ValidAccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (session.Session, error)
}

// Authorized performs bearer calls, refreshing once and retrying when the server answers 401.
// A 401 for a token another caller already rotated retries with the current token instead.
type Authorized struct {
	client *Client
	tokens TokenSource
}

// Authorized binds c to a token source.
func (c *Client) Authorized(tokens TokenSource) *Authorized {
	return &Authorized{client: c, tokens: tokens}
}

// Tenant fetches a tenant record with the current session.
func (a *Authorized) Tenant(ctx context.Context, id int64) (*Tenant, error) {
	var out *Tenant
	err := a.do(ctx, func(token string) error {
		t, err := a.client.Tenant(ctx, token, id)
		out = t
		return err
	})
	return out, err
}

func (a *Authorized) do(ctx context.Context, call func(token string) error) error {
	token, err := a.tokens.ValidAccessToken(ctx)
	if err != nil {
		return err
	}
	err = call(token)
	if !errors.Is(err, shared.ErrUnauthorized) {
		return err
	}
	if current, ok := a.tokens.GetAccessToken(); ok && current != token {
		return call(current)
	}
	next, err := a.tokens.Refresh(ctx)
	if err != nil {
		return err
	}
	return call(next.AccessToken)
}
