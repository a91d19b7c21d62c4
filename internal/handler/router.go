// Package handler provides HTTP handlers for the Bodleian Archive API.
package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/bodleian-archive/internal/metrics"
)

// Router assembles the HTTP API.
type Router struct {
	authHandler     *AuthHandler
	documentHandler *DocumentHandler
	catalogHandler  *CatalogHandler
	adminHandler    *AdminHandler
	authMiddleware  func(http.Handler) http.Handler
	metrics         *metrics.Metrics
	logger          zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	AuthHandler     *AuthHandler
	DocumentHandler *DocumentHandler
	CatalogHandler  *CatalogHandler
	AdminHandler    *AdminHandler
	AuthMiddleware  func(http.Handler) http.Handler
	Metrics         *metrics.Metrics
	Logger          zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		authHandler:     config.AuthHandler,
		documentHandler: config.DocumentHandler,
		catalogHandler:  config.CatalogHandler,
		adminHandler:    config.AdminHandler,
		authMiddleware:  config.AuthMiddleware,
		metrics:         config.Metrics,
		logger:          config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(rt.observeRequest)

	r.Get("/health", rt.handleHealth)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware)

		r.Post("/auth/login", rt.authHandler.Login)
		r.Post("/auth/logout", rt.authHandler.Logout)
		r.Put("/auth/password", rt.authHandler.ChangePassword)
		r.Get("/auth/me", rt.authHandler.Me)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", rt.documentHandler.Upload)
			r.Get("/", rt.documentHandler.Search)
			r.Route("/{documentID}", func(r chi.Router) {
				r.Get("/", rt.documentHandler.Get)
				r.Patch("/", rt.documentHandler.Update)
				r.Delete("/", rt.documentHandler.Delete)
				r.Get("/content", rt.documentHandler.Download)
				r.Get("/history", rt.documentHandler.History)
				r.Post("/transition", rt.documentHandler.Transition)
				r.Post("/restore", rt.documentHandler.Restore)
			})
		})

		r.Route("/locations", func(r chi.Router) {
			r.Post("/", rt.catalogHandler.CreateLocation)
			r.Get("/", rt.catalogHandler.ListLocations)
			r.Get("/usage", rt.catalogHandler.CapacityReport)
			r.Route("/{locationID}", func(r chi.Router) {
				r.Get("/", rt.catalogHandler.GetLocation)
				r.Patch("/", rt.catalogHandler.UpdateLocation)
				r.Delete("/", rt.catalogHandler.DeleteLocation)
			})
		})

		r.Route("/types", func(r chi.Router) {
			r.Post("/", rt.catalogHandler.CreateType)
			r.Get("/", rt.catalogHandler.ListTypes)
			r.Route("/{typeID}", func(r chi.Router) {
				r.Get("/", rt.catalogHandler.GetType)
				r.Patch("/", rt.catalogHandler.UpdateType)
				r.Delete("/", rt.catalogHandler.DeleteType)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", rt.adminHandler.CreateUser)
			r.Get("/", rt.adminHandler.ListUsers)
			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", rt.adminHandler.GetUser)
				r.Delete("/", rt.adminHandler.DeleteUser)
				r.Put("/active", rt.adminHandler.SetUserActive)
				r.Put("/role", rt.adminHandler.SetUserRole)
			})
		})

		r.Route("/roles", func(r chi.Router) {
			r.Get("/", rt.adminHandler.ListRoles)
			r.Get("/{roleID}/permission", rt.adminHandler.GetRolePermission)
			r.Put("/{roleID}/permission", rt.adminHandler.UpdateRolePermission)
		})

		r.Get("/activity", rt.adminHandler.ListActivity)
		r.Post("/admin/capacity/recount", rt.adminHandler.RecountCapacity)
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// requestLogger logs one line per request.
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("remote_addr", r.RemoteAddr).
			Msg("request")
	})
}

// observeRequest records per-route request counters.
func (rt *Router) observeRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		rt.metrics.ObserveHTTPRequest(r.Method, route, ww.Status())
	})
}
