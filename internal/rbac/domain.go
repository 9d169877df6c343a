package rbac

import (
	"errors"
	"fmt"
)

// RoleName identifies a role issued by the platform.
type RoleName string

// Roles known to the portal, most privileged first.
const (
	SuperAdmin  RoleName = "SUPER_ADMIN"
	TenantAdmin RoleName = "TENANT_ADMIN"
	BranchAdmin RoleName = "BRANCH_ADMIN"
	Staff       RoleName = "STAFF"
	Customer    RoleName = "CUSTOMER"
)

var roleRank = map[RoleName]int{
	SuperAdmin:  4,
	TenantAdmin: 3,
	BranchAdmin: 2,
	Staff:       1,
	Customer:    0,
}

// Rank returns the privilege level of the role; unknown roles rank below every known one.
func (r RoleName) Rank() int {
	if rank, ok := roleRank[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is one of the known roles.
func (r RoleName) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// TenantScoped reports whether the role administers or works inside a tenant.
func (r RoleName) TenantScoped() bool {
	switch r {
	case TenantAdmin, BranchAdmin, Staff:
		return true
	}
	return false
}

// RoleScope is the breadth at which an assignment applies.
type RoleScope string

// Scopes from broadest to narrowest.
const (
	ScopeGlobal RoleScope = "GLOBAL"
	ScopeTenant RoleScope = "TENANT"
	ScopeBranch RoleScope = "BRANCH"
)

// Ref is an embedded id/name pair describing a tenant or branch.
type Ref struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// RoleAssignment is a role grant issued by the server. It is read-only on the client.
type RoleAssignment struct {
	RoleName RoleName  `json:"roleName"`
	Scope    RoleScope `json:"scope"`
	TenantID *int64    `json:"tenantId,omitempty"`
	BranchID *int64    `json:"branchId,omitempty"`
	Tenant   *Ref      `json:"tenant,omitempty"`
	Branch   *Ref      `json:"branch,omitempty"`
}

// ErrInvalidAssignment marks an assignment violating the scope/id invariant.
var ErrInvalidAssignment = errors.New("rbac: invalid role assignment")

// Validate checks that tenant and branch scoped assignments carry their ids.
func (a RoleAssignment) Validate() error {
	switch a.Scope {
	case ScopeGlobal:
	case ScopeTenant:
		if a.TenantID == nil {
			return fmt.Errorf("%w: %s scoped to TENANT without tenantId", ErrInvalidAssignment, a.RoleName)
		}
	case ScopeBranch:
		if a.BranchID == nil {
			return fmt.Errorf("%w: %s scoped to BRANCH without branchId", ErrInvalidAssignment, a.RoleName)
		}
	default:
		return fmt.Errorf("%w: unknown scope %q", ErrInvalidAssignment, a.Scope)
	}
	return nil
}

// Principal describes the authenticated actor.
type Principal struct {
	ID        int64            `json:"id"`
	Email     string           `json:"email"`
	FirstName string           `json:"firstName,omitempty"`
	LastName  string           `json:"lastName,omitempty"`
	Phone     string           `json:"phone,omitempty"`
	Roles     []RoleAssignment `json:"roles"`
}

// GetID returns the principal identifier.
func (p *Principal) GetID() int64 {
	if p == nil {
		return 0
	}
	return p.ID
}

// DisplayName joins first and last name, falling back to the email.
func (p *Principal) DisplayName() string {
	if p == nil {
		return ""
	}
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		return p.Email
	}
	return name
}

// Validate returns the first invalid assignment, if any.
func (p *Principal) Validate() error {
	if p == nil {
		return errors.New("rbac: nil principal")
	}
	for _, a := range p.Roles {
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Int64 returns a pointer to v, handy for building assignments and constraints.
func Int64(v int64) *int64 {
	return &v
}
