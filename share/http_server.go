package share

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

type ServerOption func(*HTTPServer)

func WithTLS(certFile string, keyFile string, tlsConfig *tls.Config) ServerOption {
	return func(s *HTTPServer) {
		s.certFile = certFile
		s.keyFile = keyFile
		s.TLSConfig = tlsConfig
	}
}

// HTTPServer extends net/http Server and
// adds graceful shutdowns
type HTTPServer struct {
	*http.Server
	listener  net.Listener
	running   chan error
	mu        sync.Mutex
	isRunning bool
	certFile  string
	keyFile   string
	logger    *logger.Logger
}

// NewHTTPServer creates a new HTTPServer
func NewHTTPServer(maxHeaderBytes int, l *logger.Logger, options ...ServerOption) *HTTPServer {
	s := &HTTPServer{
		Server:   &http.Server{MaxHeaderBytes: maxHeaderBytes, ReadHeaderTimeout: 5 * time.Second},
		listener: nil,
		running:  make(chan error, 1),
		logger:   l.Fork("http-server"),
	}

	for _, o := range options {
		if o != nil {
			o(s)
		}
	}

	return s
}

func (h *HTTPServer) GoListenAndServe(addr string, handler http.Handler) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.isRunning = true
	h.Handler = handler
	h.listener = l
	h.mu.Unlock()
	go func() {
		if h.certFile != "" && h.keyFile != "" {
			h.logger.Debugf("serving HTTPS on %s", l.Addr())
			h.closeWith(h.ServeTLS(l, h.certFile, h.keyFile))
		} else {
			h.logger.Debugf("serving HTTP on %s", l.Addr())
			h.closeWith(h.Serve(l))
		}
	}()
	return nil
}

// Addr is the bound listener address, useful when listening on port 0.
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

func (h *HTTPServer) closeWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.isRunning {
		return
	}
	h.isRunning = false
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	h.running <- err
}

// Close stops accepting connections and lets in-flight requests finish within timeout.
func (h *HTTPServer) Close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := h.Shutdown(ctx)
	h.closeWith(nil)
	return err
}

func (h *HTTPServer) Wait() error {
	h.mu.Lock()
	running := h.isRunning
	h.mu.Unlock()
	if !running {
		return errors.New("already closed")
	}
	return <-h.running
}
