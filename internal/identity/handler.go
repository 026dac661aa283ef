package identity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Mihendy/pp-2025/internal/api"
	"github.com/Mihendy/pp-2025/internal/logutil"
	"github.com/Mihendy/pp-2025/internal/store"
)

// Handler exposes the auth endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates an auth HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logutil.NoopIfNil(logger)}
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserView is the public representation of an account.
type UserView struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// registerResponse is the new account plus its first token pair.
type registerResponse struct {
	UserView
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Register handles POST /api/v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "email and password are required")
		return
	}

	user, pair, err := h.svc.Register(r.Context(), req.Email, req.Password, req.PasswordConfirm)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmailDomain):
			api.WriteBadRequest(w, api.ReasonDomainRejected, "email domain not allowed")
		case errors.Is(err, ErrPasswordMismatch):
			api.WriteBadRequest(w, api.ReasonInvalidField, "passwords do not match")
		case errors.Is(err, ErrEmailTaken):
			api.WriteConflict(w, "email already registered")
		default:
			h.logger.Error("registration failed", "error", err)
			api.WriteInternalError(w, "registration failed")
		}
		return
	}

	api.WriteJSON(w, http.StatusCreated, registerResponse{
		UserView:     viewOf(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	pair, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			api.WriteError(w, http.StatusUnauthorized, api.ReasonInvalidCredentials, "invalid email or password")
			return
		}
		h.logger.Error("login failed", "error", err)
		api.WriteInternalError(w, "login failed")
		return
	}

	api.WriteJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /api/v1/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "refresh_token is required")
		return
	}

	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			api.WriteError(w, http.StatusUnauthorized, api.ReasonTokenExpired, "refresh token expired")
		case errors.Is(err, ErrWrongTokenKind):
			api.WriteError(w, http.StatusUnauthorized, api.ReasonWrongTokenKind, "not a refresh token")
		case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUserNotFound):
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid refresh token")
		default:
			h.logger.Error("token refresh failed", "error", err)
			api.WriteInternalError(w, "token refresh failed")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, pair)
}

// Me handles GET /api/v1/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFrom(r.Context())
	if !ok {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(user))
}

// GetUser handles GET /api/v1/users/{userId}. It returns the public
// profile of any registered account.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || id == 0 {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid user id")
		return
	}

	user, err := h.svc.GetUser(r.Context(), uint(id))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			api.WriteNotFound(w, "user not found")
			return
		}
		h.logger.Error("user lookup failed", "error", err)
		api.WriteInternalError(w, "user lookup failed")
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(user))
}

// viewOf converts a stored user to its public representation.
func viewOf(u *store.User) UserView {
	return UserView{ID: u.ID, Email: u.Email}
}
