package http

import (
	"io/fs"
	"net/http"

	"github.com/bnema/videocut/internal/adapter/http/middleware"
	"github.com/bnema/videocut/internal/adapter/http/ratelimit"
)

// PublicPrefix is the URL path published videos are served under.
const PublicPrefix = "/public/"

type Server struct {
	mux        *http.ServeMux
	handler    http.Handler
	handlers   *Handlers
	sseHandler *SSEHandler
	wsHandler  *WSHandler
	authSvc    AuthService
	publicDir  string
}

type ServerConfig struct {
	PublicDir   string
	MaxSizeMB   int
	BehindProxy bool
}

func NewServer(authSvc AuthService, jobs JobService, uploads UploadService, gateway Gateway, limiter *ratelimit.SubmitLimiter, cfg ServerConfig) *Server {
	s := &Server{
		mux:        http.NewServeMux(),
		handlers:   NewHandlers(jobs, uploads, limiter, cfg.PublicDir, cfg.MaxSizeMB, cfg.BehindProxy),
		sseHandler: NewSSEHandler(gateway),
		wsHandler:  NewWSHandler(authSvc, gateway),
		authSvc:    authSvc,
		publicDir:  cfg.PublicDir,
	}

	s.registerRoutes()
	s.registerPublic()
	s.handler = middleware.SecurityHeaders(cfg.BehindProxy)(s.mux)

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.mux.HandleFunc("POST /api/uploads", AuthMiddleware(s.authSvc, s.handlers.UploadSource()))
	s.mux.HandleFunc("POST /api/jobs", AuthMiddleware(s.authSvc, s.handlers.SubmitJob()))
	s.mux.HandleFunc("GET /api/jobs", AuthMiddleware(s.authSvc, s.handlers.ListJobs()))
	s.mux.HandleFunc("GET /api/jobs/{id}", AuthMiddleware(s.authSvc, s.handlers.GetJob()))
	s.mux.HandleFunc("GET /api/jobs/{id}/videos/{n}", AuthMiddleware(s.authSvc, s.handlers.DownloadVideo()))

	s.mux.HandleFunc("GET /api/events", AuthMiddleware(s.authSvc, s.sseHandler.Events()))

	// The websocket authenticates in its own handshake message.
	s.mux.HandleFunc("GET /ws", s.wsHandler.Serve())
}

func (s *Server) registerPublic() {
	s.mux.Handle("GET "+PublicPrefix, http.StripPrefix(PublicPrefix, http.FileServer(noListing{http.Dir(s.publicDir)})))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// noListing hides directory indexes from the public file server.
type noListing struct {
	root http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.root.Open(name)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if stat.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}
