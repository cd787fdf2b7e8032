package authapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"candidash/cmd/identity"
	"candidash/cmd/internal/auth/session"

	"github.com/go-chi/chi/v5"
)

// Handler wires HTTP auth endpoints to the session manager and the principal
// directory.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions  *session.Manager
	directory identity.Directory
	throttle  *loginThrottle
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Manager, directory identity.Directory) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil || directory == nil {
		return nil, fmt.Errorf("%w: authapi: nil session manager or directory", session.ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:       log,
		cfg:       cfg,
		sessions:  sessions,
		directory: directory,
		throttle:  newLoginThrottle(cfg.LoginFailureLimit, cfg.LoginFailureWindow),
	}, nil
}

// Register mounts the auth routes under /api/v1.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", h.handleRegister)
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/refresh", h.handleRefresh)
		r.Post("/auth/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/auth/logout-all", h.handleLogoutAll)
			r.Get("/users/me", h.handleMe)
		})
	})
}

// ---- handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "password_mismatch", "passwords do not match")
		return
	}

	p, err := h.directory.CreatePrincipal(r.Context(), identity.CreatePrincipalInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Now:       h.sessions.Now(),
	})
	if err != nil {
		var opErr identity.OpError
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusBadRequest, "email_taken", "email already registered")
		case errors.As(err, &opErr) && errors.Is(err, identity.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid_request", opErr.Msg)
		default:
			h.log.ErrorContext(r.Context(), "auth.register.fail", "err", err)
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
		}
		return
	}

	h.log.InfoContext(r.Context(), "auth.register.success", "principal_id", p.ID)
	writeJSON(w, http.StatusCreated, toUserResponse(p))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeLogin(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	identifier := strings.TrimSpace(req.Email)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	client := clientKey(r)
	if blocked, retryAfter := h.throttle.blocked(client, h.sessions.Now()); blocked {
		h.log.WarnContext(r.Context(), "auth.login.rate_limited", "client", client)
		writeRateLimited(w, retryAfter)
		return
	}

	pair, err := h.sessions.Login(r.Context(), identifier, req.Password)
	if err != nil {
		if session.KindOf(err) == session.InvalidCredentials {
			h.throttle.fail(client, h.sessions.Now())
		}
		h.writeSessionError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, h.sessions.Config().RefreshTTL)
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (h *Handler) decodeLogin(w http.ResponseWriter, r *http.Request) (loginRequest, error) {
	if isFormRequest(r) {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return loginRequest{}, err
		}
		return loginRequest{
			Email:    r.PostForm.Get("email"),
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
		}, nil
	}
	var req loginRequest
	err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req)
	return req, err
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented, ok := h.presentedRefresh(w, r)
	if !ok {
		return
	}
	if presented == "" {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "refresh credential required")
		return
	}

	pair, err := h.sessions.Refresh(r.Context(), presented)
	if err != nil {
		if session.KindOf(err) != session.StoreUnavailable {
			h.clearRefreshCookie(w)
		}
		h.writeSessionError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken, h.sessions.Config().RefreshTTL)
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	presented, ok := h.presentedRefresh(w, r)
	if !ok {
		return
	}
	if presented != "" {
		if err := h.sessions.Logout(r.Context(), presented); err != nil {
			h.writeSessionError(w, err)
			return
		}
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := h.sessions.LogoutAll(r.Context(), p.ID); err != nil {
		h.writeSessionError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, toUserResponse(p))
}

// presentedRefresh returns the refresh credential from the JSON body, falling
// back to the cookie. It writes the error response itself when ok is false.
func (h *Handler) presentedRefresh(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return "", false
	}
	if tok := strings.TrimSpace(req.RefreshToken); tok != "" {
		return tok, true
	}
	tok, _ := h.refreshTokenFromCookie(r)
	return tok, true
}

// ---- auth middleware ----

type principalKey struct{}

func principalFrom(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(identity.Principal)
	return p, ok
}

func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
			return
		}
		p, err := h.sessions.Authenticate(r.Context(), raw)
		if err != nil {
			h.writeSessionError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	})
}

// writeSessionError maps a session.Kind to the HTTP contract. The three token
// failures share one response so clients cannot tell them apart.
func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	switch session.KindOf(err) {
	case session.InvalidCredentials:
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect email or password")
	case session.InactiveAccount:
		writeError(w, http.StatusForbidden, "inactive_account", "inactive user account")
	case session.InvalidToken, session.ExpiredToken, session.ReusedToken:
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case session.StoreUnavailable:
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "please retry later")
	default:
		h.log.Error("auth.unexpected_error", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
