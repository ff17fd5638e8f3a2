package auth

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/docket/pkg/httputil"
	"github.com/platinummonkey/docket/pkg/observability"
	"github.com/platinummonkey/docket/pkg/rbac"
)

// Handlers serves the authentication endpoints
type Handlers struct {
	service *Service
	guard   *rbac.Guard
}

// NewHandlers creates new auth handlers
func NewHandlers(service *Service, guard *rbac.Guard) *Handlers {
	return &Handlers{service: service, guard: guard}
}

// RegisterPublicRoutes registers routes that need no token.
// loginMiddleware wraps only the login route.
func (h *Handlers) RegisterPublicRoutes(router *mux.Router, loginMiddleware ...func(http.Handler) http.Handler) {
	router.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)

	var login http.Handler = http.HandlerFunc(h.Login)
	for i := len(loginMiddleware) - 1; i >= 0; i-- {
		login = loginMiddleware[i](login)
	}
	router.Handle("/auth/login", login).Methods(http.MethodPost)
}

// RegisterRoutes registers routes on an authenticated router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	h.guard.Handle(router, http.MethodPost, "/auth/logout", rbac.OpLogout, h.Logout)
	h.guard.Handle(router, http.MethodGet, "/users/me", rbac.OpGetProfile, h.Me)
}

// Register handles POST /auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteCreated(w, user)
}

// Login handles POST /auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "username and password are required")
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, session)
}

// Logout handles POST /auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := h.service.Logout(r.Context())
	observability.FromContext(ctx).Debug("Session ended")
	httputil.WriteSuccess(w, httputil.MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /users/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context())
	if err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}
