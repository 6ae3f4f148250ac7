package server

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jpillora/requestlog"

	"github.com/grassrootza/grassroot-platform-sub003/server/api/middleware"
)

const (
	apiPrefix     = "/api"
	inboundPrefix = "/inbound/sms"
	v1Prefix      = "/v1"
)

func (al *APIListener) initRouter() {
	r := mux.NewRouter()
	api := r.PathPrefix(apiPrefix).Subrouter()

	inbound := api.PathPrefix(inboundPrefix).Subrouter()
	inbound.Use(al.wrapWithInboundSecret)
	inbound.HandleFunc("/receipt", al.handleReceipt).Methods(http.MethodGet, http.MethodPost)
	inbound.HandleFunc("/reply", al.handleReply).Methods(http.MethodGet, http.MethodPost)
	inbound.HandleFunc("/incoming", al.handleReply).Methods(http.MethodGet, http.MethodPost)

	secureAPI := api.PathPrefix(v1Prefix).Subrouter()
	secureAPI.Use(al.wrapWithAuthMiddleware)
	secureAPI.HandleFunc("/status", al.handleGetStatus).Methods(http.MethodGet)
	secureAPI.HandleFunc("/notifications", al.handlePostNotification).Methods(http.MethodPost)
	secureAPI.HandleFunc("/notifications", al.handleListNotifications).Methods(http.MethodGet)
	secureAPI.HandleFunc("/notifications/{id}", al.handleGetNotification).Methods(http.MethodGet)
	secureAPI.HandleFunc("/notifications/{id}/{seen:read|viewed}", al.handlePutSeen).Methods(http.MethodPut)

	// add max bytes middleware
	_ = api.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		if h := route.GetHandler(); h != nil {
			route.HandlerFunc(middleware.MaxBytes(h, al.config.Server.MaxRequestBytes))
		}
		return nil
	})

	if al.requestLogOptions != nil {
		r.Use(func(next http.Handler) http.Handler { return requestlog.WrapWith(next, *al.requestLogOptions) })
	}
	if al.accessLogFile != nil {
		r.Use(func(next http.Handler) http.Handler { return handlers.CombinedLoggingHandler(al.accessLogFile, next) })
	}

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(
		handlers.PrintRecoveryStack(true),
		handlers.RecoveryLogger(middleware.NewRecoveryLogger(al.Logger)),
	))

	al.router = r
}
