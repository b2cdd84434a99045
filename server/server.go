// Package server serves the browser frontend as static files.
//
// Unknown paths fall back to index.html so client-side routes resolve.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/justapithecus/mavbridge/log"
)

// DefaultPort is the static server's default TCP port.
const DefaultPort = 8080

// IndexFile must exist in the frontend directory.
const IndexFile = "index.html"

// ErrMissingIndex is returned when the frontend directory has no index.html.
var ErrMissingIndex = errors.New("frontend index.html not found")

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Dir is the frontend build directory.
	Dir string
	// ShutdownGrace bounds in-flight requests at shutdown.
	ShutdownGrace time.Duration
}

// Server serves one frontend directory.
type Server struct {
	cfg     Config
	handler http.Handler
	logger  *log.Logger
	ready   chan struct{}
	addr    net.Addr
}

// CheckAssets reports ErrMissingIndex, wrapped with the path, when dir
// lacks index.html.
func CheckAssets(dir string) error {
	p := filepath.Join(dir, IndexFile)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingIndex, p)
	}
	return nil
}

// New validates the frontend directory and builds the handler.
func New(cfg Config, logger *log.Logger) (*Server, error) {
	if err := CheckAssets(cfg.Dir); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Server{
		cfg:     cfg,
		handler: NewHandler(os.DirFS(cfg.Dir), logger),
		logger:  logger,
		ready:   make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address; valid after Ready.
func (s *Server) Addr() net.Addr { return s.addr }

// Run listens and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.cfg.Addr, err)
	}
	s.addr = ln.Addr()

	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	s.logger.Info("frontend server started", map[string]any{
		"addr": s.addr.String(),
		"dir":  s.cfg.Dir,
	})
	close(s.ready)

	select {
	case err := <-errs:
		return fmt.Errorf("frontend server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("frontend server shutdown: %w", err)
	}
	return nil
}

// NewHandler serves fsys, falling back to index.html for paths that do
// not name a file.
func NewHandler(fsys fs.FS, logger *log.Logger) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
		if name == "" || name == "." {
			serveIndex(w, r, fsys)
			return
		}
		if info, err := fs.Stat(fsys, name); err != nil || info.IsDir() {
			logger.Debug("serving index for unknown path", map[string]any{"path": r.URL.Path})
			serveIndex(w, r, fsys)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func serveIndex(w http.ResponseWriter, r *http.Request, fsys fs.FS) {
	data, err := fs.ReadFile(fsys, IndexFile)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
