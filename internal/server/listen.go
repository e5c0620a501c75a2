package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"mapsync/internal/errors"
	"mapsync/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// Serve accepts TCP connections on ln until ctx is cancelled or ln fails.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv.logger.Info("accepting connections", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Transport("accept", err)
		}
		go srv.ServeConn(ctx, conn, conn.RemoteAddr().String())
	}
}

// HTTPHandler serves WebSocket sessions on /ws, metrics on /metrics and a
// liveness probe on /healthz.
func (srv *Server) HTTPHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := transport.Upgrade(w, r)
		if err != nil {
			srv.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		srv.ServeConn(ctx, conn, r.RemoteAddr)
	})
	mux.Handle("/metrics", srv.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// RunConfig selects the listeners Run starts. An empty HTTPAddr disables
// the WebSocket and metrics endpoint.
type RunConfig struct {
	TCPAddr  string
	HTTPAddr string
}

// Run serves until ctx is cancelled, then kicks every session and shuts
// the listeners down.
func (srv *Server) Run(ctx context.Context, cfg RunConfig) error {
	ln, err := net.Listen("tcp", cfg.TCPAddr)
	if err != nil {
		return errors.Transport("listen "+cfg.TCPAddr, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ctx, ln)
	})

	var hs *http.Server
	if cfg.HTTPAddr != "" {
		hln, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			_ = ln.Close()
			return errors.Transport("listen "+cfg.HTTPAddr, err)
		}
		hs = &http.Server{
			Handler:           srv.HTTPHandler(ctx),
			ReadHeaderTimeout: 10 * time.Second,
		}
		srv.logger.Info("serving websocket and metrics", "addr", hln.Addr().String())
		g.Go(func() error {
			if err := hs.Serve(hln); err != nil && err != http.ErrServerClosed {
				return errors.Transport("http serve", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		srv.logger.Info("shutting down")
		srv.Shutdown("server shutting down")
		_ = ln.Close()
		if hs != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := hs.Shutdown(sctx); err != nil {
				srv.logger.Warn("http shutdown", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
