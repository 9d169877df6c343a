package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// CSRFFormField is the form field name carrying the CSRF token.
const CSRFFormField = "csrf_token"

var (
	// ErrCSRFTokenMissing indicates a state-changing request without a token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch indicates a token not issued for the current session.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// CSRFManager issues and verifies form tokens bound to the current session ID.
// A new sign-in rotates the token; a restart invalidates every open form.
type CSRFManager struct {
	key     []byte
	session func() string
}

// NewCSRFManager returns a CSRFManager keyed by secret. session reports the
// current session ID; nil or "" stands for the signed-out state. An empty
// secret is replaced by a random one.
func NewCSRFManager(secret string, session func() string) *CSRFManager {
	if secret == "" {
		secret = uuid.NewString()
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(uuid.NewString()))
	return &CSRFManager{key: mac.Sum(nil), session: session}
}

// Token returns the token to embed in forms for the current session.
func (m *CSRFManager) Token() string {
	if m == nil {
		return ""
	}
	return m.generateToken(m.sessionID())
}

// VerifyToken compares the supplied token with the current session's token.
func (m *CSRFManager) VerifyToken(token string) error {
	if m == nil || token == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(m.generateToken(m.sessionID())), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) sessionID() string {
	if m.session == nil {
		return ""
	}
	return m.session()
}

func (m *CSRFManager) generateToken(sessionID string) string {
	mac := hmac.New(sha256.New, m.key)
	_, _ = mac.Write([]byte("session|"))
	_, _ = mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
