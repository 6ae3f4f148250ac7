package server

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/jpillora/requestlog"
	"golang.org/x/sync/errgroup"

	"github.com/grassrootza/grassroot-platform-sub003/server/api"
	apierrors "github.com/grassrootza/grassroot-platform-sub003/server/api/errors"
	"github.com/grassrootza/grassroot-platform-sub003/server/notifications"
	"github.com/grassrootza/grassroot-platform-sub003/server/responses"
	"github.com/grassrootza/grassroot-platform-sub003/share"
	"github.com/grassrootza/grassroot-platform-sub003/share/logger"
)

// Services are the components the API exposes.
type Services struct {
	Store      notifications.Store
	Dispatcher *notifications.Dispatcher
	Receipts   *notifications.ReceiptQueue
	Correlator *responses.Correlator
	Channels   []notifications.Channel
}

type APIListener struct {
	*logger.Logger
	Services

	config            *Config
	router            *mux.Router
	httpServer        *share.HTTPServer
	requestLogOptions *requestlog.Options
	accessLogFile     *os.File
	now               func() time.Time
}

func NewAPIListener(l *logger.Logger, config *Config, services Services) (*APIListener, error) {
	al := &APIListener{
		Logger:            l.Fork("api-listener"),
		Services:          services,
		config:            config,
		requestLogOptions: config.InitRequestLogOptions(),
		now:               func() time.Time { return time.Now().UTC() },
	}
	al.httpServer = share.NewHTTPServer(int(config.Server.MaxRequestBytes), al.Logger)

	if config.Server.AccessLogFile != "" {
		accessLogFile, err := os.OpenFile(config.Server.AccessLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			al.Errorf("Unable to open access log file: %v", err)
		} else {
			al.accessLogFile = accessLogFile
		}
	}

	al.initRouter()

	return al, nil
}

func (al *APIListener) Start(addr string) error {
	al.Infof("API Listening on %s...", addr)

	return al.httpServer.GoListenAndServe(addr, al.router)
}

// Addr is the bound address once Start returned.
func (al *APIListener) Addr() net.Addr {
	return al.httpServer.Addr()
}

func (al *APIListener) Wait() error {
	if al.httpServer == nil {
		return nil
	}
	return al.httpServer.Wait()
}

func (al *APIListener) Close() error {
	g := &errgroup.Group{}
	if al.httpServer != nil {
		g.Go(func() error {
			return al.httpServer.Close(DefaultShutdownTimeout)
		})
	}
	if al.accessLogFile != nil {
		g.Go(al.accessLogFile.Close)
	}

	return g.Wait()
}

// wrapWithAuthMiddleware checks basic auth against api.auth. Without api.auth the
// management API is open.
func (al *APIListener) wrapWithAuthMiddleware(f http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if al.config.API.authUser == "" {
			f.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || !al.validateCredentials(username, password) {
			al.Debugf("unauthorized request to %s from %s", r.URL.Path, r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="notifyd"`)
			al.jsonError(w, apierrors.NewAPIError(http.StatusUnauthorized, apierrors.ErrCodeUnauthorized, "unauthorized", nil))
			return
		}

		f.ServeHTTP(w, r.WithContext(api.WithOperator(r.Context(), username)))
	})
}

func (al *APIListener) validateCredentials(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(al.config.API.authUser), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(al.config.API.authPassword), []byte(password)) == 1
	return userOK && passOK
}

// wrapWithInboundSecret guards the gateway callbacks with the shared ?secret= parameter
// when api.inbound_secret is set.
func (al *APIListener) wrapWithInboundSecret(f http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := al.config.API.InboundSecret
		if secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(r.URL.Query().Get("secret"))) != 1 {
			al.Infof("rejected inbound request to %s from %s: bad secret", r.URL.Path, r.RemoteAddr)
			al.jsonError(w, forbidden())
			return
		}
		f.ServeHTTP(w, r)
	})
}

// requestContext bounds how long an inbound request may wait for room in the receipt queue.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), DefaultShutdownTimeout)
}
