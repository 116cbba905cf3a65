package timesheet

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"
)

// Server handles HTTP requests for timesheets.
type Server struct {
	service     *Service
	basicAuth   BasicAuth
	managerAuth BasicAuth
	mux         *http.ServeMux
}

// BasicAuth holds basic authentication credentials.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) configured() bool {
	return a.Username != "" || a.Password != ""
}

func (a BasicAuth) matches(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}
	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}
	return credentials[0] == a.Username && credentials[1] == a.Password
}

// NewServer creates a new Server with default mux. basicAuth gates all
// endpoints; managerAuth additionally gates the approval and reporting
// endpoints.
func NewServer(service *Service, basicAuth, managerAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, managerAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing.
func NewServerWithMux(service *Service, basicAuth, managerAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:     service,
		basicAuth:   basicAuth,
		managerAuth: managerAuth,
		mux:         mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials; manager credentials are
// accepted everywhere.
func (s *Server) authenticate(r *http.Request) bool {
	if !s.basicAuth.configured() && !s.managerAuth.configured() {
		return true // No auth required if not configured
	}
	if s.basicAuth.configured() && s.basicAuth.matches(r) {
		return true
	}
	return s.managerAuth.configured() && s.managerAuth.matches(r)
}

// authenticateManager checks manager credentials only.
func (s *Server) authenticateManager(r *http.Request) bool {
	if !s.managerAuth.configured() {
		return true
	}
	return s.managerAuth.matches(r)
}

// corsMiddleware adds CORS headers to responses.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// requireAuth middleware.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Timesheet Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requireManager middleware gates the role-restricted approval workflow.
func (s *Server) requireManager(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticateManager(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Timesheet Tracker"`)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux. Routes are
// registered from most specific to least specific to avoid conflicts.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/timesheets/extract", s.requireAuth(s.handleExtract))
	s.mux.HandleFunc("GET /api/timesheets/export", s.requireManager(s.handleExport))
	s.mux.HandleFunc("POST /api/timesheets/{id}/validate", s.requireAuth(s.handleValidateWeek))
	s.mux.HandleFunc("PUT /api/timesheets/{id}/approve", s.requireManager(s.handleApprove))
	s.mux.HandleFunc("PUT /api/timesheets/{id}/reject", s.requireManager(s.handleReject))
	s.mux.HandleFunc("GET /api/timesheets/{id}/image", s.requireAuth(s.handleGetTimesheetImage))
	s.mux.HandleFunc("GET /api/timesheets/{id}", s.requireAuth(s.handleGetTimesheet))
	s.mux.HandleFunc("DELETE /api/timesheets/{id}", s.requireAuth(s.handleDeleteTimesheet))
	s.mux.HandleFunc("GET /api/timesheets", s.requireAuth(s.handleListTimesheets))
	s.mux.HandleFunc("POST /api/timesheets", s.requireAuth(s.handleSaveTimesheet))

	s.mux.HandleFunc("GET /api/audits/{id}", s.requireManager(s.handleGetAudit))
	s.mux.HandleFunc("GET /api/audits", s.requireManager(s.handleListAudits))
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s)
}

// ServeHTTP implements http.Handler. CORS preflight is answered before any
// authentication check.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux.ServeHTTP)(w, r)
}
