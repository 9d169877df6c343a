// Package web holds the portal's page templates and stylesheet.
package web

import "embed"

// Templates embeds layouts, partials and pages. Each file defines its template
// under its path relative to templates/, e.g. "pages/login.html".
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds assets served under /static/.
//
//go:embed static/**/*
var Static embed.FS
