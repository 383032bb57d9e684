package api

import (
	"context"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"github.com/ernie/trinity-link/internal/auth"
	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/storage"
)

// Links is the link registry surface the API exposes
type Links interface {
	IsAuthenticated(id domain.Identity) bool
	GetLinkedChat(game domain.Identity) (domain.Identity, bool)
	GetLinkedGame(chat domain.Identity) (domain.Identity, bool)
	LinkCount() int
	Links() []domain.Link
	Deauthenticate(ctx context.Context, game domain.Identity) error
	DeauthenticateChat(ctx context.Context, chat domain.Identity) error
}

// Users looks up API operator accounts
type Users interface {
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	UpdateUserLastLogin(ctx context.Context, userID int64) error
}

// Router holds the HTTP routes and dependencies
type Router struct {
	mux     *http.ServeMux
	gzip    http.Handler
	links   Links
	users   Users
	wsHub   *WebSocketHub
	auth    *auth.Service
	metrics http.Handler
}

// NewRouter creates a new HTTP router. metricsHandler may be nil.
func NewRouter(links Links, users Users, authService *auth.Service, metricsHandler http.Handler) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		links:   links,
		users:   users,
		wsHub:   NewWebSocketHub(),
		auth:    authService,
		metrics: metricsHandler,
	}

	// Link read routes (any authenticated user)
	r.mux.HandleFunc("GET /api/links", r.requireAuth(r.handleGetLinks))
	r.mux.HandleFunc("GET /api/links/count", r.requireAuth(r.handleGetLinkCount))
	r.mux.HandleFunc("GET /api/links/game/{id}", r.requireAuth(r.handleGetLinkByGame))
	r.mux.HandleFunc("GET /api/links/chat/{id}", r.requireAuth(r.handleGetLinkByChat))
	r.mux.HandleFunc("GET /api/authenticated/{id}", r.requireAuth(r.handleIsAuthenticated))

	// Link mutation routes (admin only)
	r.mux.HandleFunc("DELETE /api/links/game/{id}", r.requireAdmin(r.handleDeleteLinkByGame))
	r.mux.HandleFunc("DELETE /api/links/chat/{id}", r.requireAdmin(r.handleDeleteLinkByChat))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws", r.requireAuth(r.handleWebSocket))

	if metricsHandler != nil {
		r.mux.Handle("GET /metrics", metricsHandler)
	}

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	r.gzip = gzhttp.GzipHandler(r.mux)
	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	// The websocket upgrade needs the raw connection, so it skips compression.
	if req.URL.Path == "/ws" {
		r.mux.ServeHTTP(w, req)
		return
	}
	r.gzip.ServeHTTP(w, req)
}

// StartWebSocketHub runs the hub until ctx ends
func (r *Router) StartWebSocketHub(ctx context.Context) {
	go r.wsHub.Run(ctx)
}

// Hub returns the websocket hub
func (r *Router) Hub() *WebSocketHub {
	return r.wsHub
}
