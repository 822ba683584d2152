// shared/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Ftotnem/POINTS-LEDGER/shared/logger"
	"github.com/Ftotnem/POINTS-LEDGER/shared/metrics"
)

type BaseServer struct {
	Router *mux.Router
	Server *http.Server
	Logger *logger.Logger
}

// NewBaseServer builds a mux router with the common middleware chain and /health and /metrics routes.
func NewBaseServer(addr string, log *logger.Logger) *BaseServer {
	router := NewRouter(log)

	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &BaseServer{
		Router: router,
		Server: server,
		Logger: log,
	}
}

// NewRouter returns the router NewBaseServer serves. Split out so handlers can be tested without a listener.
func NewRouter(log *logger.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestIDMiddleware)
	router.Use(LoggingMiddleware(log))
	router.Use(metrics.InstrumentHandler)
	router.Use(CORSMiddleware)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return router
}

func (bs *BaseServer) Start() error {
	bs.Logger.Infof("Starting HTTP server on %s...", bs.Server.Addr)
	// ListenAndServe returns http.ErrServerClosed on graceful shutdown
	if err := bs.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

func (bs *BaseServer) Shutdown(ctx context.Context) error {
	bs.Logger.Info("Shutting down HTTP server...")
	return bs.Server.Shutdown(ctx)
}
