// Package principal resolves the signed-in principal from the current session.
package principal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/slotwise/portal/internal/api"
	"github.com/slotwise/portal/internal/rbac"
	"github.com/slotwise/portal/internal/session"
	"github.com/slotwise/portal/internal/shared"
)

// Status is the resolver lifecycle state.
type Status int

const (
	// StatusLoading means resolution is in progress; gates neither grant nor deny.
	StatusLoading Status = iota
	// StatusAuthenticated means a principal is available.
	StatusAuthenticated
	// StatusAnonymous means there is no usable session.
	StatusAnonymous
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// State is an immutable snapshot of the resolver.
type State struct {
	Status    Status
	Principal *rbac.Principal
}

// SessionStore is the part of session.Store the resolver drives.
type SessionStore interface {
	GetAccessToken() (string, bool)
	Current() (session.Session, bool)
	Save(ctx context.Context, s session.Session) error
	Clear(ctx context.Context) error
	ClearIf(ctx context.Context, id string) (bool, error)
	Refresh(ctx context.Context) (session.Session, error)
	Subscribe(fn func(session.Event))
}

// Identity is the part of the API the resolver needs.
type Identity interface {
	Login(ctx context.Context, creds api.Credentials) (*api.LoginResult, error)
	Me(ctx context.Context, accessToken string) (*rbac.Principal, error)
}

// Resolver owns the Loading → Authenticated/Anonymous lifecycle.
type Resolver struct {
	store    SessionStore
	identity Identity
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	// gen increments on every sign-in, sign-out and clear; results from older generations are dropped.
	gen uint64

	// pubMu orders state changes with their publication.
	pubMu sync.Mutex
	subMu sync.Mutex
	subs  []func(State)
}

// NewResolver wires the resolver to the session store. It starts in Loading.
func NewResolver(store SessionStore, identity Identity, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Resolver{
		store:    store,
		identity: identity,
		logger:   logger,
		state:    State{Status: StatusLoading},
	}
	store.Subscribe(r.onSession)
	return r
}

// State returns the current snapshot.
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn for every state transition. Subscribers observe
// transitions in order and must not call Login or Logout.
func (r *Resolver) Subscribe(fn func(State)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subs = append(r.subs, fn)
}

// Start performs the boot resolution. Without a stored token it settles on
// Anonymous immediately and makes no network call.
func (r *Resolver) Start(ctx context.Context) State {
	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()

	if _, ok := r.store.GetAccessToken(); !ok {
		r.commit(gen, State{Status: StatusAnonymous})
		return r.State()
	}
	r.resolve(ctx, gen)
	return r.State()
}

// Login authenticates, saves the session and resolves the profile.
// Rejected credentials leave the current state untouched.
func (r *Resolver) Login(ctx context.Context, creds api.Credentials) (*rbac.Principal, error) {
	res, err := r.identity.Login(ctx, creds)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) || errors.Is(err, shared.ErrValidation) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := r.store.Save(ctx, res.Session()); err != nil {
		return nil, fmt.Errorf("principal: login: %w", err)
	}

	r.mu.Lock()
	gen := r.gen
	r.mu.Unlock()
	r.resolve(ctx, gen)

	st := r.State()
	if st.Status != StatusAuthenticated {
		return nil, shared.ErrSessionExpired
	}
	return st.Principal, nil
}

// Logout clears the session and moves to Anonymous without any network call.
// In-flight resolutions complete into a stale generation and are dropped.
func (r *Resolver) Logout(ctx context.Context) {
	if err := r.store.Clear(ctx); err != nil {
		r.logger.Warn("logout clear session", slog.Any("error", err))
	}
	r.ensureAnonymous()
}

func (r *Resolver) onSession(ev session.Event) {
	switch ev.Kind {
	case session.EventSaved:
		r.transition(State{Status: StatusLoading})
	case session.EventCleared:
		r.transition(State{Status: StatusAnonymous})
	case session.EventRefreshed:
		// Same principal, rotated tokens.
	}
}

func (r *Resolver) resolve(ctx context.Context, gen uint64) {
	sess, ok := r.store.Current()
	if !ok {
		r.commit(gen, State{Status: StatusAnonymous})
		return
	}

	p, err := r.identity.Me(ctx, sess.AccessToken)
	if err == nil {
		r.authenticated(gen, p)
		return
	}
	if !r.current(gen) {
		return
	}
	r.logger.Info("profile fetch failed, refreshing", slog.Any("error", err))

	next, err := r.store.Refresh(ctx)
	if err == nil {
		p, err = r.identity.Me(ctx, next.AccessToken)
		if err == nil {
			r.authenticated(gen, p)
			return
		}
	}
	if !r.current(gen) {
		return
	}
	r.logger.Warn("principal resolution failed", slog.Any("error", err))
	cleared, cerr := r.store.ClearIf(context.WithoutCancel(ctx), sess.ID)
	if cerr != nil {
		r.logger.Warn("clear session", slog.Any("error", cerr))
	}
	if !cleared {
		// A newer sign-in owns the store and the state now.
		r.logger.Debug("session replaced during resolution", slog.String("session_id", sess.ID))
		return
	}
	r.ensureAnonymous()
}

// ensureAnonymous covers a Clear that failed before its notification went out.
func (r *Resolver) ensureAnonymous() {
	r.mu.Lock()
	already := r.state.Status == StatusAnonymous
	r.mu.Unlock()
	if !already {
		r.transition(State{Status: StatusAnonymous})
	}
}

func (r *Resolver) authenticated(gen uint64, p *rbac.Principal) {
	if err := p.Validate(); err != nil {
		r.logger.Warn("principal carries invalid assignment", slog.Int64("principal_id", p.GetID()), slog.Any("error", err))
	}
	r.commit(gen, State{Status: StatusAuthenticated, Principal: p})
}

// commit applies next only if no session change happened since gen was read.
func (r *Resolver) commit(gen uint64, next State) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.mu.Lock()
	if r.gen != gen {
		r.mu.Unlock()
		r.logger.Debug("discarding stale resolution", slog.String("status", next.Status.String()))
		return
	}
	r.state = next
	r.mu.Unlock()
	r.publish(next)
}

func (r *Resolver) transition(next State) {
	r.pubMu.Lock()
	defer r.pubMu.Unlock()
	r.mu.Lock()
	r.gen++
	r.state = next
	r.mu.Unlock()
	r.publish(next)
}

func (r *Resolver) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen
}

func (r *Resolver) publish(st State) {
	r.subMu.Lock()
	subs := make([]func(State), len(r.subs))
	copy(subs, r.subs)
	r.subMu.Unlock()
	for _, fn := range subs {
		fn(st)
	}
}
