package gate

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
)

// StateSource exposes the resolver snapshot.
type StateSource interface {
	State() principal.State
}

// Gate names reported to an Observer.
const (
	GateAuth = "auth"
	GateRole = "role"
)

// Observer receives gate decisions.
type Observer interface {
	ObserveGate(gate, decision string)
}

// Middleware adapts gate outcomes to HTTP handlers.
type Middleware struct {
	Resolver     StateSource
	Authorizer   rbac.Authorizer
	Logger       *slog.Logger
	LoginPath    string
	DefaultRoute string
	// Placeholder renders while the resolver is loading.
	Placeholder http.Handler
	Metrics     Observer
}

// RoleSpec declares the roles a route requires. Tenant and branch ids come
// either from fixed values or from chi URL params.
type RoleSpec struct {
	Roles        []rbac.RoleName
	Scope        rbac.RoleScope
	TenantID     *int64
	BranchID     *int64
	TenantParam  string
	BranchParam  string
	Fallback     http.Handler
	DefaultRoute string
}

// RequireAuth renders children only for an authenticated principal.
func (m Middleware) RequireAuth() func(http.Handler) http.Handler {
	g := AuthGate{LoginPath: m.LoginPath}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st := m.Resolver.State()
			out := g.Evaluate(st, r.URL.RequestURI())
			m.observe(GateAuth, out.Decision)
			switch out.Decision {
			case Granted:
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), st.Principal)))
			case Pending:
				m.placeholder(w, r)
			default:
				http.Redirect(w, r, out.Location, http.StatusSeeOther)
			}
		})
	}
}

// RequireRole renders children when the principal holds one of spec.Roles.
func (m Middleware) RequireRole(spec RoleSpec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			constraints, ok := m.constraints(spec, r)
			if !ok {
				http.NotFound(w, r)
				return
			}
			route := spec.DefaultRoute
			if route == "" {
				route = m.DefaultRoute
			}
			g := RoleGate{
				Roles:        spec.Roles,
				Constraints:  constraints,
				HasFallback:  spec.Fallback != nil,
				DefaultRoute: route,
				Authorizer:   m.Authorizer,
			}
			st := m.Resolver.State()
			out := g.Evaluate(st)
			m.observe(GateRole, out.Decision)
			switch out.Decision {
			case Granted:
				next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), st.Principal)))
			case Pending:
				m.placeholder(w, r)
			case Fallback:
				spec.Fallback.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), st.Principal)))
			default:
				m.logger().Info("role gate redirect", slog.String("path", r.URL.Path), slog.String("to", out.Location))
				http.Redirect(w, r, out.Location, http.StatusSeeOther)
			}
		})
	}
}

func (m Middleware) constraints(spec RoleSpec, r *http.Request) (rbac.Constraints, bool) {
	c := rbac.Constraints{Scope: spec.Scope, TenantID: spec.TenantID, BranchID: spec.BranchID}
	if spec.TenantParam != "" {
		id, err := strconv.ParseInt(chi.URLParam(r, spec.TenantParam), 10, 64)
		if err != nil {
			return c, false
		}
		c.TenantID = &id
	}
	if spec.BranchParam != "" {
		id, err := strconv.ParseInt(chi.URLParam(r, spec.BranchParam), 10, 64)
		if err != nil {
			return c, false
		}
		c.BranchID = &id
	}
	return c, true
}

func (m Middleware) placeholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Refresh", "1")
	if m.Placeholder != nil {
		m.Placeholder.ServeHTTP(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Loading…"))
}

func (m Middleware) observe(gate string, d Decision) {
	if m.Metrics != nil {
		m.Metrics.ObserveGate(gate, d.String())
	}
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
