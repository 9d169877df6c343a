package gate

import (
	"context"

	"github.com/slotwise/portal/internal/rbac"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the principal a gate granted access to.
func ContextWithPrincipal(ctx context.Context, p *rbac.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal stored by a granting gate.
func PrincipalFromContext(ctx context.Context) *rbac.Principal {
	p, _ := ctx.Value(principalContextKey{}).(*rbac.Principal)
	return p
}
