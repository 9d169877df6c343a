package view

import (
	"net/http"

	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/shared"
)

// Layout fills the fields every page shares.
type Layout struct {
	CSRF    *shared.CSRFManager
	Flashes *shared.Flashes
	// Tenant returns the slug for the data-tenant attribute.
	Tenant func() string
}

// Data builds TemplateData for r. It pops the pending flash message.
func (l Layout) Data(r *http.Request, title string, p *rbac.Principal, data any) TemplateData {
	td := TemplateData{
		Title:       title,
		CSRFToken:   l.CSRF.Token(),
		Flash:       l.Flashes.Pop(),
		CurrentPath: r.URL.Path,
		Principal:   p,
		Data:        data,
	}
	if l.Tenant != nil {
		td.Tenant = l.Tenant()
	}
	return td
}
