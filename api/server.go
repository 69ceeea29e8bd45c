package api

import (
	"net/http"

	"neon/backend/handlers"
	"neon/backend/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the API server
type Server struct {
	router   *mux.Router
	handlers *handlers.Handlers
	handler  http.Handler
}

// Options controls the outer middleware of the server.
type Options struct {
	AllowedOrigins []string
	DevMode        bool
}

// NewServer creates a new API server
func NewServer(h *handlers.Handlers, opts Options) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
	}
	s.RegisterRoutes()
	s.handler = middleware.EnableCORS(opts.AllowedOrigins, opts.DevMode)(s.router)
	return s
}

// RegisterRoutes registers all API routes, both at the root and under /api
func (s *Server) RegisterRoutes() {
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.registerRoutes(s.router)
	s.registerRoutes(s.router.PathPrefix("/api").Subrouter())
}

func (s *Server) registerRoutes(r *mux.Router) {
	h := s.handlers

	// Public routes (no auth required)
	r.HandleFunc("/health", handlers.HealthCheck).Methods("GET", "OPTIONS")

	protected := r.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware)

	// Query service
	protected.HandleFunc("/query", h.ExecuteQuery).Methods("POST")
	protected.HandleFunc("/fieldnames", h.GetFieldNames).Methods("GET")

	// Datastore discovery
	protected.HandleFunc("/datastores/hostnames", h.GetHostnames).Methods("GET")
	protected.HandleFunc("/datastores/connect", h.ConnectDatastore).Methods("POST")
	protected.HandleFunc("/databases", h.GetDatabases).Methods("GET")
	protected.HandleFunc("/databases/{database}/tables", h.GetTables).Methods("GET")
	protected.HandleFunc("/databases/{database}/tables/{table}/columns", h.GetColumns).Methods("GET")

	// Timelines
	protected.HandleFunc("/timelines", h.CreateTimeline).Methods("POST")
	protected.HandleFunc("/timelines/{key}", h.GetTimeline).Methods("GET")
	protected.HandleFunc("/timelines/{key}", h.DeleteTimeline).Methods("DELETE")
	protected.HandleFunc("/timelines/{key}/refresh", h.RefreshTimeline).Methods("POST")
	protected.HandleFunc("/timelines/{key}/granularity", h.SetTimelineGranularity).Methods("PUT")
	protected.HandleFunc("/timelines/{key}/brush", h.BrushTimeline).Methods("POST")

	// Saved filter tables
	protected.HandleFunc("/filtertables", h.GetFilterTables).Methods("GET")
	protected.HandleFunc("/filtertables", h.CreateFilterTable).Methods("POST")
	protected.HandleFunc("/filtertables/{id}", h.GetFilterTable).Methods("GET")
	protected.HandleFunc("/filtertables/{id}", h.UpdateFilterTable).Methods("PUT")
	protected.HandleFunc("/filtertables/{id}", h.DeleteFilterTable).Methods("DELETE")
	protected.HandleFunc("/filtertables/{id}/preview", h.PreviewFilterTable).Methods("POST")
	protected.HandleFunc("/filtertables/{id}/apply", h.ApplyFilterTable).Methods("POST")
	protected.HandleFunc("/filtertables/{id}/apply", h.RemoveAppliedFilterTable).Methods("DELETE")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
