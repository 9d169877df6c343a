package perf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/slotwise/portal/internal/gate"
	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/theme"
)

type fixedState struct{ st principal.State }

func (f fixedState) State() principal.State { return f.st }

func busyPrincipal() *rbac.Principal {
	p := &rbac.Principal{ID: 1, Email: "staff@example.com"}
	for i := int64(1); i <= 50; i++ {
		p.Roles = append(p.Roles, rbac.RoleAssignment{
			RoleName: rbac.Staff,
			Scope:    rbac.ScopeBranch,
			TenantID: rbac.Int64(7),
			BranchID: rbac.Int64(i),
		})
	}
	return p
}

func BenchmarkAllowedBranchScan(b *testing.B) {
	p := busyPrincipal()
	roles := []rbac.RoleName{rbac.BranchAdmin, rbac.Staff}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if !rbac.Allowed(p, roles, rbac.InScope(rbac.ScopeBranch), rbac.ForTenant(7), rbac.ForBranch(50)) {
			b.Fatal("expected access")
		}
	}
}

func BenchmarkRoleGateMiddleware(b *testing.B) {
	m := gate.Middleware{Resolver: fixedState{st: principal.State{Status: principal.StatusAuthenticated, Principal: busyPrincipal()}}}
	r := chi.NewRouter()
	r.With(m.RequireAuth(), m.RequireRole(gate.RoleSpec{
		Roles:       []rbac.RoleName{rbac.Staff},
		Scope:       rbac.ScopeBranch,
		TenantParam: "tenantID",
		BranchParam: "branchID",
	})).Get("/tenants/{tenantID}/branches/{branchID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	req := httptest.NewRequest(http.MethodGet, "/tenants/7/branches/25", nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			b.Fatalf("unexpected status %d", rr.Code)
		}
	}
}

func BenchmarkThemeCSS(b *testing.B) {
	scope := theme.NewMemoryScope()
	scope.Set(theme.VarPrimary, "26 43 60")
	scope.Set(theme.VarSecondary, "255 255 255")
	scope.Set(theme.VarAccent, "0 255 128")

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = scope.CSS()
	}
}

func BenchmarkDecodeHex(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, ok := theme.DecodeHex("#1A2B3C"); !ok {
			b.Fatal("decode failed")
		}
	}
}
