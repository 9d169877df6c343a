package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/slotwise/portal/internal/gate"
	"github.com/slotwise/portal/internal/shared"
	"github.com/slotwise/portal/internal/view"
)

// Paths configures where the auth pages send the user.
type Paths struct {
	Login        string
	DefaultRoute string
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	layout    view.Layout
	flashes   *shared.Flashes
	paths     Paths
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, layout view.Layout, paths Paths) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if paths.Login == "" {
		paths.Login = gate.DefaultLoginPath
	}
	if paths.DefaultRoute == "" {
		paths.DefaultRoute = gate.DefaultRoute
	}
	if layout.Flashes == nil {
		layout.Flashes = &shared.Flashes{}
	}
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		layout:    layout,
		flashes:   layout.Flashes,
		paths:     paths,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	limit := httprate.LimitByIP(10, time.Minute)
	r.Get("/login", h.showLogin)
	r.With(limit).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/forgot-password", h.showForgot)
	r.With(limit).Post("/forgot-password", h.handleForgot)
	r.Get("/reset-password", h.showReset)
	r.With(limit).Post("/reset-password", h.handleReset)
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	next := gate.SafeNext(r.URL.Query().Get("next"), "")
	if h.service.SignedIn() {
		http.Redirect(w, r, gate.SafeNext(next, h.paths.DefaultRoute), http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/login.html", "Sign in", formData{Next: next}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	next := gate.SafeNext(r.PostFormValue("next"), "")
	if h.service.SignedIn() {
		// One session per process: sign out first to switch accounts.
		http.Redirect(w, r, gate.SafeNext(next, h.paths.DefaultRoute), http.StatusSeeOther)
		return
	}
	data := formData{Email: form.Email, Next: next, Errors: h.validate(form)}

	if len(data.Errors) == 0 {
		p, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil {
			h.flashes.Add(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + p.DisplayName()})
			http.Redirect(w, r, gate.SafeNext(next, h.paths.DefaultRoute), http.StatusSeeOther)
			return
		}
		status := http.StatusBadRequest
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			data.Errors["form"] = "Invalid email or password."
		case errors.Is(err, shared.ErrNetworkFailure):
			data.Errors["form"] = "The booking service is unreachable. Try again in a moment."
			status = http.StatusServiceUnavailable
		default:
			h.logger.Warn("login failed", slog.Any("error", err))
			data.Errors["form"] = "We could not load your account. Please sign in again."
			status = http.StatusUnauthorized
		}
		h.render(w, r, "pages/login.html", "Sign in", data, status)
		return
	}
	h.render(w, r, "pages/login.html", "Sign in", data, http.StatusBadRequest)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.service.SignOut(r.Context())
	h.flashes.Add(shared.FlashMessage{Kind: "success", Message: "You have been signed out."})
	http.Redirect(w, r, h.paths.Login, http.StatusSeeOther)
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/forgot_password.html", "Forgot password", formData{}, http.StatusOK)
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forgotForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	data := formData{Email: form.Email, Errors: h.validate(form)}
	if len(data.Errors) > 0 {
		h.render(w, r, "pages/forgot_password.html", "Forgot password", data, http.StatusBadRequest)
		return
	}
	msg, err := h.service.RequestReset(r.Context(), form.Email)
	if err != nil {
		status := h.formError(data.Errors, err)
		h.render(w, r, "pages/forgot_password.html", "Forgot password", data, status)
		return
	}
	if msg == "" {
		msg = "If the address is registered, a reset link is on its way."
	}
	h.flashes.Add(shared.FlashMessage{Kind: "success", Message: msg})
	http.Redirect(w, r, h.paths.Login, http.StatusSeeOther)
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/reset_password.html", "Reset password", formData{Token: r.URL.Query().Get("token")}, http.StatusOK)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{Token: r.PostFormValue("token"), Password: r.PostFormValue("password")}
	data := formData{Token: form.Token, Errors: h.validate(form)}
	if len(data.Errors) > 0 {
		h.render(w, r, "pages/reset_password.html", "Reset password", data, http.StatusBadRequest)
		return
	}
	msg, err := h.service.ResetPassword(r.Context(), form.Token, form.Password)
	if err != nil {
		status := h.formError(data.Errors, err)
		h.render(w, r, "pages/reset_password.html", "Reset password", data, status)
		return
	}
	if msg == "" {
		msg = "Your password has been updated. Sign in with the new password."
	}
	h.flashes.Add(shared.FlashMessage{Kind: "success", Message: msg})
	http.Redirect(w, r, h.paths.Login, http.StatusSeeOther)
}

// formError maps an API error onto the form and returns the status to render with.
func (h *Handler) formError(errs map[string]string, err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation):
		errs["form"] = serverMessage(err)
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNetworkFailure):
		errs["form"] = "The booking service is unreachable. Try again in a moment."
		return http.StatusServiceUnavailable
	default:
		h.logger.Warn("password flow failed", slog.Any("error", err))
		errs["form"] = "Something went wrong. Please try again."
		return http.StatusBadGateway
	}
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	err := h.validator.Struct(form)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errs
	}
	for _, fieldErr := range verrs {
		field := strings.ToLower(fieldErr.Field())
		switch fieldErr.Tag() {
		case "required":
			errs[field] = "This field is required."
		case "email":
			errs[field] = "Enter a valid email address."
		case "min":
			errs[field] = "Must be at least " + fieldErr.Param() + " characters."
		default:
			errs[field] = fieldErr.Error()
		}
	}
	return errs
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data formData, status int) {
	viewData := h.layout.Data(r, title, nil, data)
	if err := h.templates.RenderStatus(w, template, viewData, status); err != nil {
		h.logger.Error("render auth page", slog.String("template", template), slog.Any("error", err))
	}
}

// serverMessage extracts the API's explanation from a validation error.
func serverMessage(err error) string {
	msg := err.Error()
	marker := shared.ErrValidation.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return "Check the form and try again."
}
