package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wazo-platform/wazo-calld-sub001/internal/adhocconf"
	"github.com/wazo-platform/wazo-calld-sub001/internal/api/middleware"
	"github.com/wazo-platform/wazo-calld-sub001/internal/calls"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchboard"
)

// Status reports connectivity to the daemon's collaborators for the health
// endpoint.
type Status struct {
	ARI string `json:"ari"`
	AMI string `json:"ami"`
	Bus string `json:"bus"`
	OK  bool   `json:"ok"`
}

// Deps are the services the HTTP layer exposes.
type Deps struct {
	Calls        *calls.Service
	Switchboards *switchboard.Orchestrator
	Conferences  *adhocconf.Orchestrator
	// StatusFunc returns current component connectivity. Nil means the
	// health endpoint reports ok unconditionally.
	StatusFunc func() Status
	JWTSecret  []byte
	// RateLimiter is optional; nil disables rate limiting (tests).
	RateLimiter *middleware.IPRateLimiter
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	deps   Deps
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		deps:   deps,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	if s.deps.RateLimiter != nil {
		r.Use(middleware.RateLimit(s.deps.RateLimiter))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Unauthenticated health probe.
		r.Get("/status", s.handleStatus)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.deps.JWTSecret))

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", s.handleListCalls)
				r.Post("/", s.handleOriginate)
				r.Route("/{call_id}", func(r chi.Router) {
					r.Get("/", s.handleGetCall)
					r.Delete("/", s.handleHangup)
					r.Put("/hold", s.handleHold)
					r.Put("/unhold", s.handleUnhold)
					r.Put("/mute", s.handleMute)
					r.Put("/unmute", s.handleUnmute)
					r.Put("/record/start", s.handleRecordStart)
					r.Put("/record/stop", s.handleRecordStop)
					r.Post("/dtmf", s.handleSendDTMF)
				})
			})

			r.Route("/switchboards/{switchboard_uuid}", func(r chi.Router) {
				r.Route("/calls/queued", func(r chi.Router) {
					r.Get("/", s.handleListQueued)
					r.Put("/{call_id}", s.handleEnqueue)
					r.Put("/{call_id}/answer", s.handleAnswerQueued)
				})
				r.Route("/calls/held", func(r chi.Router) {
					r.Get("/", s.handleListHeld)
					r.Put("/{call_id}", s.handleHoldCall)
					r.Put("/{call_id}/answer", s.handleAnswerHeld)
				})
			})

			r.Route("/adhoc_conferences", func(r chi.Router) {
				r.Post("/", s.handleCreateConference)
				r.Route("/{conference_id}", func(r chi.Router) {
					r.Delete("/", s.handleDeleteConference)
					r.Route("/participants/{call_id}", func(r chi.Router) {
						r.Put("/", s.handleAddParticipant)
						r.Delete("/", s.handleRemoveParticipant)
					})
				})
			})
		})
	})
}

// handleStatus reports component connectivity. Unauthenticated so load
// balancers and monitoring can probe it.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.StatusFunc == nil {
		writeJSON(w, http.StatusOK, Status{OK: true})
		return
	}
	st := s.deps.StatusFunc()
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}
