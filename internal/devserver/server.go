// Package devserver is the development HTTP server: it serves or proxies
// the site, injects a live-reload client into HTML pages and pushes reload
// events to connected browsers over socket.io.
package devserver

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/assetgrid/internal/ctxlog"
	"github.com/zishang520/socket.io/v2/socket"
)

//go:embed livereload.js
var clientScript []byte

// Event names pushed to browsers.
const (
	EventReload = "reload"
	EventCSS    = "css"
)

// Options configures a Server.
type Options struct {
	// Addr is the listen address, for example ":3000".
	Addr string
	// Proxy is the upstream URL. Exactly one of Proxy and Root is set.
	Proxy string
	// Root is a directory served as static files.
	Root string
	// Debounce coalesces notifications arriving in quick succession.
	Debounce time.Duration
}

// Server is a live-reload development server.
type Server struct {
	opts    Options
	logger  *slog.Logger
	io      *socket.Server
	handler http.Handler
	clients atomic.Int32

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	listener net.Listener
	httpSrv  *http.Server
}

// New creates a server. It does not listen until Serve is called.
func New(ctx context.Context, opts Options) (*Server, error) {
	if (opts.Proxy == "") == (opts.Root == "") {
		return nil, errors.New("devserver: exactly one of proxy and root must be set")
	}
	s := &Server{
		opts:    opts,
		logger:  ctxlog.FromContext(ctx).With("component", "devserver"),
		pending: make(map[string]struct{}),
	}

	ioOpts := socket.DefaultServerOptions()
	ioOpts.SetServeClient(false)
	s.io = socket.NewServer(nil, ioOpts)
	s.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		n := s.clients.Add(1)
		s.logger.Debug("Browser connected.", "id", client.Id(), "clients", n)
		client.On("disconnect", func(...any) {
			n := s.clients.Add(-1)
			s.logger.Debug("Browser disconnected.", "id", client.Id(), "clients", n)
		})
	})

	site, err := s.siteHandler()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", s.io.ServeHandler(ioOpts))
	mux.HandleFunc(ScriptPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(clientScript)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, "OK")
	})
	mux.Handle("/", site)
	s.handler = mux
	return s, nil
}

func (s *Server) siteHandler() (http.Handler, error) {
	if s.opts.Root != "" {
		return injecting(http.FileServer(http.Dir(s.opts.Root))), nil
	}

	target, err := url.Parse(s.opts.Proxy)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("devserver: invalid proxy URL %q", s.opts.Proxy)
	}
	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = target.Host
			// Bodies must arrive uncompressed to be rewritten.
			r.Out.Header.Del("Accept-Encoding")
		},
		ModifyResponse: func(resp *http.Response) error {
			if !isHTML(resp.Header) {
				return nil
			}
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return err
			}
			body = InjectScript(body)
			resp.Body = io.NopCloser(bytes.NewReader(body))
			resp.ContentLength = int64(len(body))
			resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("Proxy request failed.", "url", r.URL.String(), "error", err)
			http.Error(w, "assetgrid: upstream unavailable: "+err.Error(), http.StatusBadGateway)
		},
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

// Listen binds the listen address.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("devserver: failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address once Listen has succeeded.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled, then shuts down.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	s.httpSrv = &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(s.listener)
	}()
	s.logger.Info("🌐 Dev server listening.", "address", "http://"+s.listener.Addr().String(), "proxy", s.opts.Proxy, "root", s.opts.Root)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("🛑 Shutting down dev server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devserver: shutdown failed: %w", err)
	}
	return nil
}

// Close disconnects all browsers and stops pending notifications.
func (s *Server) Close() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.io.Close(nil)
}

// Notify schedules a reload for the changed paths. Notifications within
// the debounce window are merged.
func (s *Server) Notify(ctx context.Context, paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.pending[p] = struct{}{}
	}
	if s.opts.Debounce <= 0 {
		s.flushLocked()
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.opts.Debounce, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.timer = nil
			s.flushLocked()
		})
	}
}

func (s *Server) flushLocked() {
	if len(s.pending) == 0 {
		return
	}
	paths := make([]string, 0, len(s.pending))
	for p := range s.pending {
		paths = append(paths, p)
	}
	clear(s.pending)
	sort.Strings(paths)
	s.Reload(paths)
}

// Reload pushes an event for paths to every browser. When all paths are
// stylesheets the browsers swap styles in place instead of reloading.
func (s *Server) Reload(paths []string) {
	event := EventReload
	if OnlyStylesheets(paths) {
		event = EventCSS
	}
	s.logger.Info("🔁 Reloading browsers.", "event", event, "files", len(paths), "clients", s.clients.Load())
	if err := s.io.Emit(event, map[string]any{"paths": paths}); err != nil {
		s.logger.Warn("Failed to push reload event.", "error", err)
	}
}

// OnlyStylesheets reports whether every path is a CSS file or its map.
func OnlyStylesheets(paths []string) bool {
	if len(paths) == 0 {
		return false
	}
	for _, p := range paths {
		switch path.Ext(p) {
		case ".css":
		case ".map":
			if path.Ext(p[:len(p)-len(".map")]) != ".css" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
