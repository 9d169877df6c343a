// Package api is the typed client for the booking platform's identity and tenant endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"

	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/session"
	"github.com/slotwise/portal/internal/shared"
)

// Config controls the underlying HTTP client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client talks to the platform API.
type Client struct {
	http     *resty.Client
	logger   *slog.Logger
	validate *validator.Validate
}

// New constructs a Client. Only GET requests are retried, and only on transport errors or 5xx.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "slotwise-portal").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: httpClient, logger: logger, validate: validator.New()}
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	if err := c.validate.Struct(creds); err != nil {
		return nil, fmt.Errorf("api: login: %w", shared.ErrValidation)
	}
	var out LoginResult
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(creds).
		SetResult(&out).
		SetError(&apiErr).
		Post("/login")
	if err == nil {
		switch resp.StatusCode() {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return nil, shared.ErrInvalidCredentials
		}
	}
	if err := c.classify("login", resp, err, &apiErr); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, fmt.Errorf("api: login: response missing tokens")
	}
	return &out, nil
}

// Refresh exchanges a refresh token. A rejected token yields shared.ErrSessionExpired.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var out TokenPair
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"refreshToken": refreshToken}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/refresh")
	if err == nil {
		switch resp.StatusCode() {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return nil, shared.ErrSessionExpired
		}
	}
	if err := c.classify("refresh", resp, err, &apiErr); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("api: refresh: response missing access token")
	}
	return &out, nil
}

// RefreshSession adapts Refresh to session.RefreshFunc.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (session.Session, error) {
	pair, err := c.Refresh(ctx, refreshToken)
	if err != nil {
		return session.Session{}, err
	}
	return pair.Session(), nil
}

// Session converts the pair into a session value.
func (p TokenPair) Session() session.Session {
	s := session.Session{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken}
	if p.ExpiresAt != nil {
		s.Expiry = *p.ExpiresAt
	}
	return s
}

// Me fetches the principal for accessToken.
func (c *Client) Me(ctx context.Context, accessToken string) (*rbac.Principal, error) {
	var out rbac.Principal
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&out).
		SetError(&apiErr).
		Get("/me")
	if err := c.classify("me", resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword asks the server to send a reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out messageResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"email": email}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/forgot-password")
	if err := c.classify("forgot password", resp, err, &apiErr); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ResetPassword sets a new password using a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) (string, error) {
	var out messageResponse
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"token": token, "password": password}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/reset-password")
	if err := c.classify("reset password", resp, err, &apiErr); err != nil {
		return "", err
	}
	return out.Message, nil
}

// Tenant fetches a tenant record.
func (c *Client) Tenant(ctx context.Context, accessToken string, id int64) (*Tenant, error) {
	var out Tenant
	var apiErr errorResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		SetResult(&out).
		SetError(&apiErr).
		Get("/tenants/{id}")
	if err := c.classify("tenant", resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) classify(op string, resp *resty.Response, err error, apiErr *errorResponse) error {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("api: %s: %w", op, err)
		}
		c.logger.Warn("api call failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("api: %s: %w: %v", op, shared.ErrNetworkFailure, err)
	}
	code := resp.StatusCode()
	switch {
	case code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("api: %s: %w", op, shared.ErrUnauthorized)
	case code == http.StatusNotFound:
		return fmt.Errorf("api: %s: %w", op, shared.ErrNotFound)
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		if msg := apiErr.text(); msg != "" {
			return fmt.Errorf("api: %s: %w: %s", op, shared.ErrValidation, msg)
		}
		return fmt.Errorf("api: %s: %w", op, shared.ErrValidation)
	case code >= http.StatusInternalServerError:
		c.logger.Warn("api server error", slog.String("op", op), slog.Int("status", code))
		return fmt.Errorf("api: %s: %w: status %d", op, shared.ErrNetworkFailure, code)
	default:
		return fmt.Errorf("api: %s: unexpected status %d", op, code)
	}
}
