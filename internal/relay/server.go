package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"collabtext/internal/auth"
	"collabtext/internal/protocol"
)

// Options configures the relay's HTTP surface.
type Options struct {
	// Auth, when set, serves the auth endpoints.
	Auth auth.Store
	// RequireAuth rejects websocket connections without a valid token.
	RequireAuth bool
	Log         *slog.Logger
}

// Server exposes a hub over HTTP.
type Server struct {
	hub      *Hub
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub:  hub,
		opts: opts,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the router:
//
//	GET  /ws                  participant websocket (?codec=json|cbor, ?token=)
//	GET  /snapshot            stored snapshot as JSON
//	GET  /healthz             liveness
//	POST /auth/login          when Options.Auth is set
//	GET  /auth/validate-token when Options.Auth is set
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.serveSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if s.opts.Auth != nil {
		auth.NewHandler(s.opts.Auth, s.log).Register(r)
	}
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Info("handled", "method", r.Method, "url", r.URL.Path, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) serveSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.hub.Snapshot()); err != nil {
		s.log.Error("write snapshot", "err", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.opts.RequireAuth {
		if s.opts.Auth == nil {
			http.Error(w, "auth not configured", http.StatusInternalServerError)
			return
		}
		_, err := s.opts.Auth.Validate(r.Context(), auth.BearerToken(r))
		if errors.Is(err, auth.ErrInvalidToken) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err != nil {
			s.log.Error("validate token", "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", "err", err)
		return
	}
	c := newClient(s.hub, conn, codec)
	if !s.hub.join(c) {
		conn.Close()
		return
	}
	go c.writePump()
	c.readPump(r.Context())
}
