package api

import (
	"time"

	"github.com/slotwise/portal/internal/rbac"
)

// Credentials are submitted to POST /login.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenPair is returned by /login and /refresh.
type TokenPair struct {
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	TokenPair
	Principal *rbac.Principal `json:"principal"`
}

// Tenant is the authoritative tenant record.
type Tenant struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug,omitempty"`
	PrimaryColor   *string `json:"primaryColor,omitempty"`
	SecondaryColor *string `json:"secondaryColor,omitempty"`
	AccentColor    *string `json:"accentColor,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e *errorResponse) text() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}
