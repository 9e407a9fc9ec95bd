package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jimf8th/my-skool-club-sub000/pkg/auth"
	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
)

// AuthHandlers handles login, logout and token management
type AuthHandlers struct {
	manager *auth.Manager
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(manager *auth.Manager) *AuthHandlers {
	return &AuthHandlers{manager: manager}
}

// RegisterRoutes registers the authenticated auth routes. Login is mounted by the server.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/me", h.me).Methods("GET")
	router.HandleFunc("/auth/tokens", h.listTokens).Methods("GET")
	router.HandleFunc("/auth/tokens/{id}", h.revokeToken).Methods("DELETE")
}

// login handles POST /v1/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	issued, member, err := h.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httputil.WriteCreated(w, LoginResponse{
		Token:     issued.Token,
		TokenID:   issued.Record.ID,
		ExpiresAt: issued.Record.ExpiresAt,
		Member:    member,
	})
}

// logout handles POST /v1/auth/logout
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.BearerToken(r)
	if err := h.manager.Logout(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// me handles GET /v1/auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, middleware.Caller(r))
}

// listTokens handles GET /v1/auth/tokens
func (h *AuthHandlers) listTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.manager.ListTokens(r.Context(), middleware.Caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tokens)
}

// revokeToken handles DELETE /v1/auth/tokens/{id}
func (h *AuthHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.manager.RevokeToken(r.Context(), middleware.Caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
