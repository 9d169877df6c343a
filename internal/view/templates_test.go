package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderPages(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	p := &rbac.Principal{ID: 1, Email: "ada@example.com", FirstName: "Ada", Roles: []rbac.RoleAssignment{
		{RoleName: rbac.TenantAdmin, Scope: rbac.ScopeTenant, TenantID: rbac.Int64(7), Tenant: &rbac.Ref{ID: 7, Name: "Acme"}},
	}}
	data := TemplateData{
		Title:     "Dashboard",
		CSRFToken: "tok",
		Tenant:    "acme",
		Principal: p,
		Flash:     &shared.FlashMessage{Kind: "success", Message: "Signed in"},
	}

	for _, name := range []string{
		"pages/login.html",
		"pages/forgot_password.html",
		"pages/reset_password.html",
		"pages/dashboard.html",
		"pages/admin.html",
		"pages/tenant.html",
		"pages/branch.html",
		"pages/no_access.html",
		"pages/loading.html",
	} {
		rr := httptest.NewRecorder()
		require.NoError(t, engine.Render(rr, name, data), name)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `data-tenant="acme"`, name)
	}
}

func TestRenderDashboardListsRoles(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.NoError(t, engine.Render(rr, "pages/dashboard.html", TemplateData{
		Principal: &rbac.Principal{ID: 1, Email: "ada@example.com", Roles: []rbac.RoleAssignment{
			{RoleName: rbac.TenantAdmin, Scope: rbac.ScopeTenant, TenantID: rbac.Int64(7), Tenant: &rbac.Ref{ID: 7, Name: "Acme"}},
		}},
	}))

	body := rr.Body.String()
	assert.Contains(t, body, "tenant admin")
	assert.Contains(t, body, "Acme")
	assert.Contains(t, body, "ada@example.com")
}
