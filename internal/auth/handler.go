package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Response is returned by both auth endpoints.
type Response struct {
	Auth  bool   `json:"auth"`
	Token string `json:"token,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

// Handler serves the auth endpoints.
type Handler struct {
	store Store
	log   *slog.Logger
}

func NewHandler(store Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, log: log}
}

// Register adds the routes to r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/validate-token", h.validate).Methods(http.MethodGet)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Msg: "malformed request body"})
		return
	}
	sess, err := h.store.Login(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, Response{})
		return
	case err != nil:
		h.log.Error("login failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, Response{Msg: "internal error"})
		return
	}
	h.log.Info("user logged in", "email", sess.Email)
	writeJSON(w, http.StatusOK, Response{Auth: true, Token: sess.Token})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, Response{})
		return
	}
	sess, err := h.store.Validate(r.Context(), token)
	switch {
	case errors.Is(err, ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, Response{})
		return
	case err != nil:
		h.log.Error("token validation failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, Response{Msg: "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Auth: true, Token: sess.Token})
}

// BearerToken extracts the token of an "Authorization: bearer <token>"
// header, ignoring the scheme's case. It falls back to the token query
// parameter, which browsers must use for websocket upgrades.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
