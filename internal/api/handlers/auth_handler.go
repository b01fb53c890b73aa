package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	appMiddleware "github.com/markdave123-py/kbchat/internal/api/middlewares"
	"github.com/markdave123-py/kbchat/internal/presenter"
	"github.com/markdave123-py/kbchat/internal/services"
)

type AuthHandler struct {
	auth     *services.AuthService
	sessions *appMiddleware.Sessions
	pages    *PageHandler
}

func NewAuthHandler(auth *services.AuthService, sessions *appMiddleware.Sessions, pages *PageHandler) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, pages: pages}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles the login form. Success sets the cookie of the new session
// and redirects to the page; failure shows the form again with one message
// for every cause.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "no session", http.StatusInternalServerError)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.pages.renderLogin(w, http.StatusBadRequest, presenter.LoginFailedText)
		return
	}

	next, err := h.auth.Login(r.Context(), sess.ID, r.PostFormValue("username"), r.PostFormValue("password"))
	switch {
	case err == nil:
		if _, err := h.sessions.Issue(w, next.ID); err != nil {
			log.Printf("issue session cookie: %v", err)
			h.pages.renderLogin(w, http.StatusInternalServerError, presenter.TryAgainText)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, services.ErrInvalidCredentials):
		h.pages.renderLogin(w, http.StatusUnauthorized, presenter.LoginFailedText)
	default:
		log.Printf("login: %v", err)
		h.pages.renderLogin(w, http.StatusInternalServerError, presenter.TryAgainText)
	}
}

// APILogin is the JSON form of Login. The returned token belongs to the new
// session and may be sent as a Bearer header instead of the cookie.
func (h *AuthHandler) APILogin(w http.ResponseWriter, r *http.Request) {
	sess, ok := appMiddleware.SessionFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusInternalServerError, "no session")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}

	next, err := h.auth.Login(r.Context(), sess.ID, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, presenter.LoginFailedText)
			return
		}
		log.Printf("login: %v", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}

	token, err := h.sessions.Issue(w, next.ID)
	if err != nil {
		log.Printf("issue session cookie: %v", err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"authenticated": true, "token": token})
}

// TooManyAttempts answers a throttled login.
func (h *AuthHandler) TooManyAttempts(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		respondError(w, http.StatusTooManyRequests, presenter.TooManyLoginText)
		return
	}
	h.pages.renderLogin(w, http.StatusTooManyRequests, presenter.TooManyLoginText)
}
