// Package shell serves the role-specific layouts of the portal.
package shell

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/slotwise/portal/internal/api"
	"github.com/slotwise/portal/internal/gate"
	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/view"
)

// TenantSource fetches tenant records with the current session.
type TenantSource interface {
	Tenant(ctx context.Context, id int64) (*api.Tenant, error)
}

// Handler renders the dashboard, platform, tenant and branch shells.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	layout    view.Layout
	tenants   TenantSource
	gates     gate.Middleware
}

// NewHandler constructs a Handler. The gate middleware's placeholder is set
// to the loading page when none is configured.
func NewHandler(logger *slog.Logger, templates *view.Engine, layout view.Layout, tenants TenantSource, gates gate.Middleware) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &Handler{
		logger:    logger,
		templates: templates,
		layout:    layout,
		tenants:   tenants,
	}
	if gates.Placeholder == nil {
		gates.Placeholder = http.HandlerFunc(h.loading)
	}
	h.gates = gates
	return h
}

type tenantPage struct {
	TenantID int64
	Tenant   *api.Tenant
	Error    string
}

type branchPage struct {
	TenantID int64
	BranchID int64
}

// MountRoutes registers the gated shells.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gates.RequireAuth())
		r.Get("/dashboard", h.dashboard)
		r.With(h.gates.RequireRole(gate.RoleSpec{
			Roles: []rbac.RoleName{rbac.SuperAdmin},
			Scope: rbac.ScopeGlobal,
		})).Get("/admin", h.admin)
		r.With(h.gates.RequireRole(gate.RoleSpec{
			Roles:       []rbac.RoleName{rbac.TenantAdmin},
			Scope:       rbac.ScopeTenant,
			TenantParam: "tenantID",
		})).Get("/tenants/{tenantID}", h.tenant)
		r.With(h.gates.RequireRole(gate.RoleSpec{
			Roles:       []rbac.RoleName{rbac.BranchAdmin, rbac.Staff},
			Scope:       rbac.ScopeBranch,
			TenantParam: "tenantID",
			BranchParam: "branchID",
			Fallback:    http.HandlerFunc(h.noAccess),
		})).Get("/tenants/{tenantID}/branches/{branchID}", h.branch)
	})
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/dashboard.html", "Dashboard", nil, http.StatusOK)
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/admin.html", "Platform", nil, http.StatusOK)
}

func (h *Handler) tenant(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	page := tenantPage{TenantID: id}
	t, err := h.tenants.Tenant(r.Context(), id)
	if err != nil {
		h.logger.Warn("load tenant", slog.Int64("tenant_id", id), slog.Any("error", err))
		page.Error = "Tenant details are unavailable right now."
	} else {
		page.Tenant = t
	}
	h.render(w, r, "pages/tenant.html", "Tenant", page, http.StatusOK)
}

func (h *Handler) branch(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	branchID, _ := strconv.ParseInt(chi.URLParam(r, "branchID"), 10, 64)
	h.render(w, r, "pages/branch.html", "Branch", branchPage{TenantID: tenantID, BranchID: branchID}, http.StatusOK)
}

func (h *Handler) noAccess(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/no_access.html", "No access", nil, http.StatusForbidden)
}

func (h *Handler) loading(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/loading.html", "Loading", nil, http.StatusOK)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	viewData := h.layout.Data(r, title, gate.PrincipalFromContext(r.Context()), data)
	if err := h.templates.RenderStatus(w, template, viewData, status); err != nil {
		h.logger.Error("render shell", slog.String("template", template), slog.Any("error", err))
	}
}
