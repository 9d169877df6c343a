package rbac

// Constraint narrows a role check. Absent constraints act as wildcards.
type Constraint func(*Constraints)

// Constraints is the resolved form of a Constraint list.
type Constraints struct {
	Scope    RoleScope
	TenantID *int64
	BranchID *int64
}

// InScope requires the assignment scope to equal s.
func InScope(s RoleScope) Constraint {
	return func(c *Constraints) { c.Scope = s }
}

// ForTenant requires the assignment tenant id to equal id.
func ForTenant(id int64) Constraint {
	return func(c *Constraints) { c.TenantID = &id }
}

// ForBranch requires the assignment branch id to equal id.
func ForBranch(id int64) Constraint {
	return func(c *Constraints) { c.BranchID = &id }
}

// Options converts c back into a Constraint list.
func (c Constraints) Options() []Constraint {
	var opts []Constraint
	if c.Scope != "" {
		opts = append(opts, InScope(c.Scope))
	}
	if c.TenantID != nil {
		opts = append(opts, ForTenant(*c.TenantID))
	}
	if c.BranchID != nil {
		opts = append(opts, ForBranch(*c.BranchID))
	}
	return opts
}

func resolve(opts []Constraint) Constraints {
	var c Constraints
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

// Matches reports whether a satisfies role and c.
func (c Constraints) Matches(a RoleAssignment, role RoleName) bool {
	if a.RoleName != role {
		return false
	}
	if c.Scope != "" && a.Scope != c.Scope {
		return false
	}
	if c.TenantID != nil && (a.TenantID == nil || *a.TenantID != *c.TenantID) {
		return false
	}
	if c.BranchID != nil && (a.BranchID == nil || *a.BranchID != *c.BranchID) {
		return false
	}
	return true
}

// HasRole reports whether p holds role under the given constraints.
// Scopes do not subsume each other: a GLOBAL assignment does not satisfy a TENANT check.
func HasRole(p *Principal, role RoleName, opts ...Constraint) bool {
	if p == nil {
		return false
	}
	c := resolve(opts)
	for _, a := range p.Roles {
		if c.Matches(a, role) {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether any assignment of p is SUPER_ADMIN, whatever its scope.
func IsSuperAdmin(p *Principal) bool {
	if p == nil {
		return false
	}
	for _, a := range p.Roles {
		if a.RoleName == SuperAdmin {
			return true
		}
	}
	return false
}

// Allowed is the decision every gate uses: the super admin override first, then any of roles.
func Allowed(p *Principal, roles []RoleName, opts ...Constraint) bool {
	if p == nil {
		return false
	}
	if IsSuperAdmin(p) {
		return true
	}
	for _, r := range roles {
		if HasRole(p, r, opts...) {
			return true
		}
	}
	return false
}

// Authorizer is the engine as seen by gates.
type Authorizer interface {
	Allowed(p *Principal, roles []RoleName, opts ...Constraint) bool
}

// Engine is the stateless Authorizer backed by the package functions.
type Engine struct{}

// Allowed implements Authorizer.
func (Engine) Allowed(p *Principal, roles []RoleName, opts ...Constraint) bool {
	return Allowed(p, roles, opts...)
}

var _ Authorizer = Engine{}
