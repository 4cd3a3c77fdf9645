// Package server exposes the ledger over an HTTP JSON API: per-tenant
// transaction appends and queries, plus system endpoints for status,
// snapshots and archival passes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tentenbyte/stockd/internal/archive"
	"github.com/tentenbyte/stockd/internal/ledger"
	"github.com/tentenbyte/stockd/internal/logging"
	"github.com/tentenbyte/stockd/internal/monitor"
	"github.com/tentenbyte/stockd/internal/persist"
)

var log = logging.Component("server")

// Config holds server configuration.
type Config struct {
	// Listen is the address to listen on (e.g., "0.0.0.0:8900").
	Listen string

	// Store is the ledger store (required).
	Store *ledger.Store

	// Monitor collects request metrics (optional).
	Monitor *monitor.Metrics

	// Persister reports storage state; nil in memory-only mode.
	Persister *persist.Manager

	// Archiver runs archival passes; nil when archiving is disabled.
	Archiver *archive.Engine
}

// Server is the HTTP front end of the ledger.
type Server struct {
	cfg      Config
	store    *ledger.Store
	mon      *monitor.Metrics
	pm       *persist.Manager
	archiver *archive.Engine

	httpSrv *http.Server
}

// New creates a new server.
func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		store:    cfg.Store,
		mon:      cfg.Monitor,
		pm:       cfg.Persister,
		archiver: cfg.Archiver,
	}

	s.httpSrv = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Routes builds the router. Exposed so tests can drive handlers through
// httptest without binding a port.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tenants", s.handleListTenants).Methods(http.MethodGet)

	t := api.PathPrefix("/tenants/{tenant}").Subrouter()
	t.HandleFunc("/transactions", s.handleAppendTransaction).Methods(http.MethodPost)
	t.HandleFunc("/transactions", s.handleGetTransactions).Methods(http.MethodGet)
	t.HandleFunc("/inventory", s.handleGetInventory).Methods(http.MethodGet)
	t.HandleFunc("/items", s.handleGetItems).Methods(http.MethodGet)
	t.HandleFunc("/documents", s.handleGetDocuments).Methods(http.MethodGet)
	t.HandleFunc("/statistics", s.handleGetStatistics).Methods(http.MethodGet)

	sys := api.PathPrefix("/system").Subrouter()
	sys.HandleFunc("/status", s.handleSystemStatus).Methods(http.MethodGet)
	sys.HandleFunc("/snapshot", s.handleCreateSnapshot).Methods(http.MethodPost)
	sys.HandleFunc("/archive", s.handleRunArchive).Methods(http.MethodPost)

	return r
}

// Start binds the listen address and serves until Shutdown.
func (s *Server) Start() error {
	log.Info("http server listening", "address", s.cfg.Listen)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("http server shutting down")
	return s.httpSrv.Shutdown(ctx)
}
