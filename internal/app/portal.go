package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/slotwise/portal/internal/api"
	"github.com/slotwise/portal/internal/auth"
	"github.com/slotwise/portal/internal/gate"
	"github.com/slotwise/portal/internal/observability"
	"github.com/slotwise/portal/internal/platform/kv"
	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/session"
	"github.com/slotwise/portal/internal/shared"
	"github.com/slotwise/portal/internal/shell"
	"github.com/slotwise/portal/internal/theme"
	"github.com/slotwise/portal/internal/view"
)

// Portal is the assembled client core plus its HTTP surface.
type Portal struct {
	Handler  http.Handler
	Store    *session.Store
	Resolver *principal.Resolver
	Cascade  *theme.Cascade
	Scope    *theme.MemoryScope
	Metrics  *observability.Metrics

	logger *slog.Logger
}

// NewPortal wires the session store, resolver, theme cascade, gates and router over storage.
func NewPortal(cfg *Config, logger *slog.Logger, storage kv.Store) (*Portal, error) {
	metrics := observability.NewMetrics()

	client := api.New(api.Config{
		BaseURL:    cfg.APIBaseURL,
		Timeout:    cfg.APITimeout,
		RetryCount: cfg.APIRetryCount,
	}, logger)

	store := session.NewStore(storage, client.RefreshSession,
		session.WithKeys(session.Keys{Access: cfg.AccessTokenKey, Refresh: cfg.RefreshTokenKey}),
		session.WithSkew(cfg.RefreshSkew),
		session.WithObserver(metrics),
		session.WithLogger(logger),
	)
	tenants := client.Authorized(store)
	resolver := principal.NewResolver(store, client, logger)

	scope := theme.NewMemoryScope()
	cascade := theme.NewCascade(scope, tenants,
		theme.WithCache(storage, cfg.ThemeCacheKey),
		theme.WithObserver(metrics),
		theme.WithLogger(logger),
		theme.WithFetchTimeout(cfg.APITimeout),
	)
	resolver.Subscribe(cascade.Observe)
	resolver.Subscribe(func(st principal.State) {
		logger.Info("principal state", slog.String("status", st.Status.String()), slog.Int64("principal_id", st.Principal.GetID()))
	})

	templates, err := view.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, func() string {
		sess, _ := store.Current()
		return sess.ID
	})
	layout := view.Layout{
		CSRF:    csrfManager,
		Flashes: &shared.Flashes{},
		Tenant:  cascade.Slug,
	}
	gates := gate.Middleware{
		Resolver:     resolver,
		Authorizer:   rbac.Engine{},
		Logger:       logger,
		LoginPath:    cfg.LoginPath,
		DefaultRoute: cfg.DefaultRoute,
		Metrics:      metrics,
	}

	authHandler := auth.NewHandler(logger, auth.NewService(resolver, client), templates, layout, auth.Paths{
		Login:        cfg.LoginPath,
		DefaultRoute: cfg.DefaultRoute,
	})
	shellHandler := shell.NewHandler(logger, templates, layout, tenants, gates)

	router := NewRouter(RouterParams{
		Logger:       logger,
		Config:       cfg,
		CSRFManager:  csrfManager,
		AuthHandler:  authHandler,
		ShellHandler: shellHandler,
		Resolver:     resolver,
		ThemeCSS:     scope,
		Metrics:      metrics,
	})

	return &Portal{
		Handler:  router,
		Store:    store,
		Resolver: resolver,
		Cascade:  cascade,
		Scope:    scope,
		Metrics:  metrics,
		logger:   logger,
	}, nil
}

// Boot loads the persisted session and the cached theme slug, then resolves the principal.
func (p *Portal) Boot(ctx context.Context) principal.State {
	if err := p.Store.Load(ctx); err != nil {
		p.logger.Warn("load stored session", slog.Any("error", err))
	}
	p.Cascade.Warm(ctx)
	st := p.Resolver.Start(ctx)
	p.logger.Info("boot resolution finished", slog.String("status", st.Status.String()))
	return st
}

// Close reverts the theme and waits for background fetches.
func (p *Portal) Close() {
	p.Cascade.Close()
}
