package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwise/portal/internal/app"
	"github.com/slotwise/portal/internal/platform/kv"
	"github.com/slotwise/portal/internal/principal"
	"github.com/slotwise/portal/internal/theme"
	_ "github.com/slotwise/portal/testing"
)

// bookingAPI fakes the platform endpoints the portal calls.
type bookingAPI struct {
	mu        sync.Mutex
	valid     map[string]bool
	refreshes int
	nextID    int
}

func newBookingAPI(t *testing.T) (*bookingAPI, *httptest.Server) {
	t.Helper()
	b := &bookingAPI{valid: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", b.login)
	mux.HandleFunc("POST /refresh", b.refresh)
	mux.HandleFunc("GET /me", b.me)
	mux.HandleFunc("GET /tenants/{id}", b.tenant)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

const principalJSON = `{"id":1,"email":"ada@example.com","firstName":"Ada","roles":[
	{"roleName":"TENANT_ADMIN","scope":"TENANT","tenantId":7,"tenant":{"id":7,"name":"Acme Spa"}}]}`

func (b *bookingAPI) issue() (string, string) {
	b.nextID++
	n := string(rune('0' + b.nextID))
	access, refresh := "access-"+n, "refresh-"+n
	b.valid[access] = true
	b.valid[refresh] = true
	return access, refresh
}

func (b *bookingAPI) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Email, Password string }
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.Password != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
		return
	}
	b.mu.Lock()
	access, refresh := b.issue()
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"accessToken":"` + access + `","refreshToken":"` + refresh + `","principal":` + principalJSON + `}`))
}

func (b *bookingAPI) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	if !b.valid[body.RefreshToken] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	delete(b.valid, body.RefreshToken)
	access, refresh := b.issue()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"accessToken":"` + access + `","refreshToken":"` + refresh + `"}`))
}

func (b *bookingAPI) authorized(r *http.Request) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
}

func (b *bookingAPI) me(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(principalJSON))
}

func (b *bookingAPI) tenant(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.PathValue("id") != "7" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"id":7,"name":"Acme Spa","slug":"acme-spa","primaryColor":"#1A2B3C","accentColor":"#f80"}`))
}

func (b *bookingAPI) expire(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.valid, token)
}

func (b *bookingAPI) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

func newPortal(t *testing.T, apiURL string, storage kv.Store) *app.Portal {
	t.Helper()
	cfg := &app.Config{
		AppRequestTimeout:  5 * time.Second,
		APIBaseURL:         apiURL,
		APITimeout:         2 * time.Second,
		AccessTokenKey:     "portal:access_token",
		RefreshTokenKey:    "portal:refresh_token",
		ThemeCacheKey:      theme.DefaultCacheKey,
		RefreshSkew:        30 * time.Second,
		LoginPath:          "/login",
		DefaultRoute:       "/dashboard",
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := app.NewPortal(cfg, logger, storage)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func newRedisStorage(t *testing.T) (*miniredis.Miniredis, kv.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, kv.NewRedis(client)
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func post(h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func csrfToken(t *testing.T, h http.Handler, page string) string {
	t.Helper()
	m := csrfPattern.FindStringSubmatch(get(h, page).Body.String())
	require.Len(t, m, 2, "%s must carry a csrf token", page)
	return m[1]
}

func waitForTheme(t *testing.T, p *app.Portal) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := p.Scope.Get(theme.VarPrimary)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func sessionStatus(t *testing.T, h http.Handler) string {
	t.Helper()
	var body struct{ Status string }
	require.NoError(t, json.NewDecoder(get(h, "/session").Body).Decode(&body))
	return body.Status
}

func signIn(t *testing.T, h http.Handler) {
	t.Helper()
	token := csrfToken(t, h, "/login")
	rr := post(h, "/login", url.Values{
		"csrf_token": {token},
		"email":      {"ada@example.com"},
		"password":   {"secret"},
		"next":       {"/tenants/7"},
	})
	require.Equal(t, http.StatusSeeOther, rr.Code)
	require.Equal(t, "/tenants/7", rr.Header().Get("Location"))
}

func TestSignInThemeRefreshAndSignOut(t *testing.T) {
	booking, srv := newBookingAPI(t)
	mr, storage := newRedisStorage(t)
	p := newPortal(t, srv.URL, storage)
	h := p.Handler

	assert.Equal(t, principal.StatusAnonymous, p.Boot(context.Background()).Status)
	assert.Equal(t, "anonymous", sessionStatus(t, h))

	rr := get(h, "/tenants/7")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login?next=%2Ftenants%2F7", rr.Header().Get("Location"))

	rr = post(h, "/login", url.Values{"email": {"ada@example.com"}, "password": {"secret"}})
	assert.Equal(t, http.StatusForbidden, rr.Code, "forms need the csrf token")

	signedOutToken := csrfToken(t, h, "/login")
	signIn(t, h)
	assert.Equal(t, "authenticated", sessionStatus(t, h))
	rr = post(h, "/logout", url.Values{"csrf_token": {signedOutToken}})
	assert.Equal(t, http.StatusForbidden, rr.Code, "sign-in rotates the csrf token")
	assert.Equal(t, "authenticated", sessionStatus(t, h))
	access, _ := mr.Get("portal:access_token")
	assert.Equal(t, "access-1", access)

	waitForTheme(t, p)
	css := get(h, "/theme.css").Body.String()
	assert.Contains(t, css, "--color-primary: 26 43 60;")
	assert.Contains(t, css, "--color-accent: 255 136 0;")
	assert.NotContains(t, css, "--color-secondary")

	rr = get(h, "/tenants/7")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Acme Spa")
	assert.Contains(t, rr.Body.String(), `data-tenant="acme-spa"`)

	// Server-side expiry: the next authorized call refreshes once and retries.
	booking.expire("access-1")
	rr = get(h, "/tenants/7")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), "unavailable")
	assert.Equal(t, 1, booking.refreshCount())
	access, _ = mr.Get("portal:access_token")
	assert.Equal(t, "access-2", access)
	assert.Equal(t, "authenticated", sessionStatus(t, h))

	rr = post(h, "/logout", url.Values{"csrf_token": {csrfToken(t, h, "/dashboard")}})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Equal(t, "anonymous", sessionStatus(t, h))
	assert.Empty(t, p.Scope.Snapshot())
	assert.False(t, mr.Exists("portal:access_token"))
	assert.False(t, mr.Exists("portal:refresh_token"))
	require.Eventually(t, func() bool {
		return !mr.Exists(theme.DefaultCacheKey)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRestartRestoresSession(t *testing.T) {
	_, srv := newBookingAPI(t)
	mr, storage := newRedisStorage(t)

	first := newPortal(t, srv.URL, storage)
	first.Boot(context.Background())
	signIn(t, first.Handler)
	require.Eventually(t, func() bool {
		v, err := mr.Get(theme.DefaultCacheKey)
		return err == nil && v == "acme-spa"
	}, 2*time.Second, 10*time.Millisecond)

	second := newPortal(t, srv.URL, storage)
	second.Cascade.Warm(context.Background())
	assert.Equal(t, "acme-spa", second.Cascade.Slug())

	st := second.Boot(context.Background())
	require.Equal(t, principal.StatusAuthenticated, st.Status)
	assert.Equal(t, "ada@example.com", st.Principal.Email)
	assert.Equal(t, http.StatusOK, get(second.Handler, "/dashboard").Code)
}

func TestBootWithRevokedSessionGoesAnonymous(t *testing.T) {
	booking, srv := newBookingAPI(t)
	mr, storage := newRedisStorage(t)

	first := newPortal(t, srv.URL, storage)
	first.Boot(context.Background())
	signIn(t, first.Handler)
	waitForTheme(t, first)
	booking.expire("access-1")
	booking.expire("refresh-1")

	second := newPortal(t, srv.URL, storage)
	st := second.Boot(context.Background())

	assert.Equal(t, principal.StatusAnonymous, st.Status)
	assert.False(t, mr.Exists("portal:access_token"))
	assert.False(t, mr.Exists("portal:refresh_token"))
	assert.Equal(t, http.StatusSeeOther, get(second.Handler, "/dashboard").Code)
}

func TestWrongPasswordKeepsUserOnLoginPage(t *testing.T) {
	_, srv := newBookingAPI(t)
	_, storage := newRedisStorage(t)
	p := newPortal(t, srv.URL, storage)
	p.Boot(context.Background())

	rr := post(p.Handler, "/login", url.Values{
		"csrf_token": {csrfToken(t, p.Handler, "/login")},
		"email":      {"ada@example.com"},
		"password":   {"nope"},
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid email or password.")
	assert.Equal(t, "anonymous", sessionStatus(t, p.Handler))
}
