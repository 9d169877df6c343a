package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/slotwise/portal/internal/platform/kv"
	"github.com/slotwise/portal/internal/shared"
)

// Keys names the two durable storage entries.
type Keys struct {
	Access  string
	Refresh string
}

// DefaultKeys are used when no keys are configured.
var DefaultKeys = Keys{Access: "portal:access_token", Refresh: "portal:refresh_token"}

// RefreshFunc exchanges a refresh token for a new pair.
// It returns shared.ErrSessionExpired when the server rejects the token.
type RefreshFunc func(ctx context.Context, refreshToken string) (Session, error)

// Refresh outcomes reported to an Observer.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeExpired   = "expired"
	OutcomeAbsent    = "absent"
	OutcomeDiscarded = "discarded"
)

// RefreshOutcomes lists every outcome Refresh reports.
var RefreshOutcomes = []string{OutcomeOK, OutcomeFailed, OutcomeExpired, OutcomeAbsent, OutcomeDiscarded}

// Observer receives refresh outcomes.
type Observer interface {
	ObserveRefresh(outcome string)
}

// Option configures a Store.
type Option func(*Store)

// WithKeys overrides the storage keys.
func WithKeys(keys Keys) Option {
	return func(s *Store) { s.keys = keys }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSkew sets how early ValidAccessToken refreshes before expiry.
func WithSkew(d time.Duration) Option {
	return func(s *Store) { s.skew = d }
}

// WithObserver reports refresh outcomes to o.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is the only writer of the durable token storage.
type Store struct {
	kv       kv.Store
	keys     Keys
	refresh  RefreshFunc
	logger   *slog.Logger
	observer Observer
	skew     time.Duration
	now      func() time.Time

	// writeMu serialises save/clear so storage, memory and notifications stay in one order.
	writeMu sync.Mutex
	mu      sync.RWMutex
	current *Session

	subMu sync.Mutex
	subs  []func(Event)

	group singleflight.Group
}

// NewStore constructs a Store over storage.
func NewStore(storage kv.Store, refresh RefreshFunc, opts ...Option) *Store {
	s := &Store{
		kv:      storage,
		keys:    DefaultKeys,
		refresh: refresh,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		skew:    30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type persisted struct {
	ID           string    `json:"id"`
	RefreshToken string    `json:"refreshToken"`
	Expiry       time.Time `json:"expiry"`
}

// Load reads the persisted session at boot. A half-written pair is discarded.
// It is ordered with Save and Clear, so a sign-in racing the boot is never overwritten.
func (s *Store) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	access, hasAccess, err := s.kv.Get(ctx, s.keys.Access)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	raw, hasRefresh, err := s.kv.Get(ctx, s.keys.Refresh)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	if !hasAccess && !hasRefresh {
		return nil
	}

	var p persisted
	if hasAccess && hasRefresh {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn("session payload unreadable", slog.Any("error", err))
			hasRefresh = false
		}
	}
	if !hasAccess || !hasRefresh || access == "" || p.RefreshToken == "" {
		s.logger.Warn("discarding incomplete persisted session")
		if err := s.kv.Delete(ctx, s.keys.Access, s.keys.Refresh); err != nil {
			return fmt.Errorf("session: load: %w", err)
		}
		return nil
	}

	sess := Session{ID: p.ID, AccessToken: access, RefreshToken: p.RefreshToken, Expiry: p.Expiry}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()
	s.logger.Info("session restored", slog.String("session_id", sess.ID))
	return nil
}

// GetAccessToken returns the current access token, if any.
func (s *Store) GetAccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return "", false
	}
	return s.current.AccessToken, true
}

// Current returns a copy of the current session.
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Subscribe registers fn for every session event. fn runs synchronously inside
// Save, Clear and Refresh and must not call back into them.
func (s *Store) Subscribe(fn func(Event)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	subs := make([]func(Event), len(s.subs))
	copy(subs, s.subs)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Save stores a new sign-in, replacing any previous session.
func (s *Store) Save(ctx context.Context, sess Session) error {
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		return fmt.Errorf("session: save: both tokens required: %w", shared.ErrValidation)
	}
	sess.ID = uuid.NewString()
	if sess.Expiry.IsZero() {
		sess.Expiry = ExpiryFromToken(sess.AccessToken)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.persist(ctx, sess); err != nil {
		return err
	}
	s.set(&sess)
	s.logger.Info("session saved", slog.String("session_id", sess.ID))
	s.notify(Event{Kind: EventSaved, Session: sess})
	return nil
}

// Clear removes the session. It is idempotent; memory is cleared even when storage fails.
func (s *Store) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.clearLocked(ctx)
}

// ClearIf clears the session only while it is still the one identified by id,
// and reports whether it did. A newer sign-in is left alone.
func (s *Store) ClearIf(ctx context.Context, id string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.RLock()
	match := s.current != nil && s.current.ID == id
	s.mu.RUnlock()
	if !match {
		return false, nil
	}
	return true, s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) error {
	s.set(nil)
	err := s.kv.Delete(ctx, s.keys.Access, s.keys.Refresh)
	s.notify(Event{Kind: EventCleared})
	if err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers share
// one in-flight exchange and observe the same result.
func (s *Store) Refresh(ctx context.Context) (Session, error) {
	ch := s.group.DoChan("refresh", func() (any, error) {
		return s.doRefresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Session{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Session{}, res.Err
		}
		return res.Val.(Session), nil
	}
}

func (s *Store) doRefresh(ctx context.Context) (Session, error) {
	prev, ok := s.Current()
	if !ok {
		s.observe(OutcomeAbsent)
		return Session{}, shared.ErrSessionExpired
	}
	if s.refresh == nil {
		return Session{}, errors.New("session: refresh not configured")
	}

	next, err := s.refresh(ctx, prev.RefreshToken)
	if err != nil {
		if errors.Is(err, shared.ErrSessionExpired) {
			s.observe(OutcomeExpired)
			s.logger.Warn("refresh rejected", slog.String("session_id", prev.ID))
			s.writeMu.Lock()
			defer s.writeMu.Unlock()
			if s.isCurrent(prev) {
				if cerr := s.clearLocked(ctx); cerr != nil {
					s.logger.Warn("clear after refresh", slog.Any("error", cerr))
				}
			}
			return Session{}, err
		}
		s.observe(OutcomeFailed)
		s.logger.Warn("refresh failed", slog.String("session_id", prev.ID), slog.Any("error", err))
		return Session{}, err
	}

	next.ID = prev.ID
	if next.RefreshToken == "" {
		next.RefreshToken = prev.RefreshToken
	}
	if next.Expiry.IsZero() {
		next.Expiry = ExpiryFromToken(next.AccessToken)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.isCurrent(prev) {
		// Signed out or replaced while the exchange was in flight.
		s.observe(OutcomeDiscarded)
		return Session{}, shared.ErrSessionExpired
	}
	if err := s.persist(ctx, next); err != nil {
		s.observe(OutcomeFailed)
		return Session{}, err
	}
	s.set(&next)
	s.observe(OutcomeOK)
	s.logger.Info("session refreshed", slog.String("session_id", next.ID))
	s.notify(Event{Kind: EventRefreshed, Session: next})
	return next, nil
}

// ValidAccessToken returns an access token that is not about to expire,
// refreshing first when it is within the configured skew.
func (s *Store) ValidAccessToken(ctx context.Context) (string, error) {
	cur, ok := s.Current()
	if !ok {
		return "", shared.ErrSessionExpired
	}
	if !cur.ExpiresWithin(s.skew, s.now()) {
		return cur.AccessToken, nil
	}
	next, err := s.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return next.AccessToken, nil
}

func (s *Store) isCurrent(prev Session) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current != nil && s.current.ID == prev.ID && s.current.RefreshToken == prev.RefreshToken
}

func (s *Store) set(sess *Session) {
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
}

func (s *Store) persist(ctx context.Context, sess Session) error {
	payload, err := json.Marshal(persisted{ID: sess.ID, RefreshToken: sess.RefreshToken, Expiry: sess.Expiry})
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.kv.SetMany(ctx, map[string]string{
		s.keys.Access:  sess.AccessToken,
		s.keys.Refresh: string(payload),
	}); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}

func (s *Store) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveRefresh(outcome)
	}
}
