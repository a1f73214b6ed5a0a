// Package server exposes a VM to remote clients over the Connect protocol.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/cheezgi/piccolo/manifest"
	"github.com/cheezgi/piccolo/vm"
)

var log = commonlog.GetLogger("piccolo.server")

// PiccoloServer wraps a running VM. Connect clients speak HTTP/JSON or
// binary protobuf on the same port.
type PiccoloServer struct {
	worker  *VMWorker
	handles *HandleStore
	mux     *http.ServeMux

	mu   sync.Mutex
	http *http.Server

	stopSweeper func()
}

// ServerOption configures a PiccoloServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	handleTTL     time.Duration
	sweepInterval time.Duration
}

// WithManifest takes handle expiry settings from a manifest's [server]
// section.
func WithManifest(m *manifest.Manifest) ServerOption {
	return func(c *serverConfig) {
		c.handleTTL = m.HandleTTL()
		c.sweepInterval = m.SweepInterval()
	}
}

// WithHandleTTL sets how long unused handles live and how often they are
// swept.
func WithHandleTTL(ttl, interval time.Duration) ServerOption {
	return func(c *serverConfig) {
		c.handleTTL = ttl
		c.sweepInterval = interval
	}
}

// New creates a PiccoloServer wrapping v. The server owns all access to v
// from now on.
func New(v *vm.VM, opts ...ServerOption) *PiccoloServer {
	cfg := &serverConfig{
		handleTTL:     manifest.DefaultHandleTTL,
		sweepInterval: manifest.DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewVMWorker(v)
	handles := NewHandleStore(worker)

	s := &PiccoloServer{
		worker:  worker,
		handles: handles,
		mux:     http.NewServeMux(),
	}

	evalPath, evalHandler := NewEvalService(worker, handles).Handler()
	inspectPath, inspectHandler := NewInspectService(worker, handles).Handler()
	browsePath, browseHandler := NewBrowseService(worker, handles).Handler()

	s.mux.Handle(evalPath, evalHandler)
	s.mux.Handle(inspectPath, inspectHandler)
	s.mux.Handle(browsePath, browseHandler)

	s.stopSweeper = handles.StartSweeper(cfg.sweepInterval, cfg.handleTTL)
	log.Debugf("handle ttl %s, sweep every %s", cfg.handleTTL, cfg.sweepInterval)
	return s
}

// Handler returns the server's HTTP handler.
func (s *PiccoloServer) Handler() http.Handler {
	return s.mux
}

// Handles returns the server's handle store.
func (s *PiccoloServer) Handles() *HandleStore {
	return s.handles
}

// ListenAndServe serves on addr ("host:port" or ":port") until Shutdown.
func (s *PiccoloServer) ListenAndServe(addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = hs
	s.mu.Unlock()

	log.Noticef("listening on %s", addr)
	log.Noticef("  Connect (HTTP/JSON): http://%s%s", addr, EvaluateProcedure)
	err := hs.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, waits for in-flight ones and then
// stops the server.
func (s *PiccoloServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hs := s.http
	s.mu.Unlock()

	var err error
	if hs != nil {
		err = hs.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Stop releases every handle and shuts down the worker. The VM itself is
// left open for the caller to close.
func (s *PiccoloServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.handles.ReleaseAll()
	s.worker.Stop()
}
