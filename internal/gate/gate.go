// Package gate decides whether a protected view renders, waits, falls back or redirects.
package gate

import (
	"net/url"
	"strings"

	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
)

// Decision is the render decision of a gate.
type Decision int

const (
	// Pending renders a placeholder while the resolver is loading.
	Pending Decision = iota
	// Granted renders the guarded view.
	Granted
	// Fallback renders the caller-supplied fallback view.
	Fallback
	// Redirect navigates to Outcome.Location.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Granted:
		return "granted"
	case Fallback:
		return "fallback"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decisions lists every decision a gate can reach.
var Decisions = []Decision{Pending, Granted, Fallback, Redirect}

// Outcome is a decision plus its redirect target.
type Outcome struct {
	Decision Decision
	Location string
}

// DefaultLoginPath and DefaultRoute are used when a gate leaves them empty.
const (
	DefaultLoginPath = "/login"
	DefaultRoute     = "/dashboard"
)

// AuthGate requires an authenticated principal.
type AuthGate struct {
	LoginPath string
}

// Evaluate maps the resolver state to an outcome. requested is carried to the
// login page as the next parameter.
func (g AuthGate) Evaluate(st principal.State, requested string) Outcome {
	switch st.Status {
	case principal.StatusLoading:
		return Outcome{Decision: Pending}
	case principal.StatusAuthenticated:
		if st.Principal != nil {
			return Outcome{Decision: Granted}
		}
	}
	login := g.LoginPath
	if login == "" {
		login = DefaultLoginPath
	}
	if next := SafeNext(requested, ""); next != "" && next != login {
		login += "?" + url.Values{"next": {next}}.Encode()
	}
	return Outcome{Decision: Redirect, Location: login}
}

// RoleGate requires one of Roles under Constraints, with the super admin override.
type RoleGate struct {
	Roles        []rbac.RoleName
	Constraints  rbac.Constraints
	HasFallback  bool
	DefaultRoute string
	Authorizer   rbac.Authorizer
}

// Evaluate never redirects while the resolver is loading, and never consults
// the authorizer without a principal.
func (g RoleGate) Evaluate(st principal.State) Outcome {
	if st.Status == principal.StatusLoading {
		return Outcome{Decision: Pending}
	}
	if st.Status == principal.StatusAuthenticated && st.Principal != nil {
		authz := g.Authorizer
		if authz == nil {
			authz = rbac.Engine{}
		}
		if authz.Allowed(st.Principal, g.Roles, g.Constraints.Options()...) {
			return Outcome{Decision: Granted}
		}
	}
	if g.HasFallback {
		return Outcome{Decision: Fallback}
	}
	route := g.DefaultRoute
	if route == "" {
		route = DefaultRoute
	}
	return Outcome{Decision: Redirect, Location: route}
}

// SafeNext returns raw when it is a same-site absolute path, otherwise fallback.
func SafeNext(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return raw
}
