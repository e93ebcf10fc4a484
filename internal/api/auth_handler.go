package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vdavid/vchat/internal/models"
)

const stateCookie = "vchat_oauth_state"

// LoginFlow is the OAuth side of the session.
type LoginFlow interface {
	IsAuthenticated() bool
	CurrentUserEmail() string
	CurrentUserDisplayName() string
	LoginURL(state string) string
	Login(ctx context.Context, code string) error
	Logout() error
}

type AuthHandler struct {
	session LoginFlow
	log     zerolog.Logger
}

func NewAuthHandler(session LoginFlow, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		session: session,
		log:     log.With().Str("component", "api.auth").Logger(),
	}
}

func (h *AuthHandler) GetAuthStatus(w http.ResponseWriter, _ *http.Request) {
	response := models.AuthStatusResponse{IsAuthenticated: h.session.IsAuthenticated()}
	if response.IsAuthenticated {
		response.Email = h.session.CurrentUserEmail()
		response.DisplayName = h.session.CurrentUserDisplayName()
	}
	WriteJSONResponse(w, response)
}

// Login redirects to the consent screen. The state travels in a short-lived
// cookie and is checked on the callback.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.session.LoginURL(state), http.StatusFound)
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	if e := r.URL.Query().Get("error"); e != "" {
		h.log.Warn().Str("error", e).Msg("Login was declined")
		http.Error(w, "login declined: "+e, http.StatusUnauthorized)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	if err := h.session.Login(r.Context(), code); err != nil {
		h.log.Error().Err(err).Msg("Failed to exchange authorization code")
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}
	h.log.Info().Msg("Logged in")
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	if err := h.session.Logout(); err != nil {
		h.log.Error().Err(err).Msg("Failed to clear credentials")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
