package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/shared"
	"github.com/slotwise/portal/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	// Tenant is the slug of the applied (or last cached) tenant theme.
	Tenant    string
	Principal *rbac.Principal
	Data      any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"roleLabel": func(r rbac.RoleName) string {
			return strings.ReplaceAll(strings.ToLower(string(r)), "_", " ")
		},
		"refName": func(ref *rbac.Ref) string {
			if ref == nil {
				return ""
			}
			return ref.Name
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, name, data, http.StatusOK)
}

// RenderStatus is Render with an explicit status code.
func (e *Engine) RenderStatus(w http.ResponseWriter, name string, data TemplateData, status int) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return e.templates.ExecuteTemplate(w, name, data)
}
