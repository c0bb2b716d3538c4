// Command kvbridge-hub runs the server side of a kvbridge channel: a
// WebSocket endpoint that executes storage operations on behalf of remote
// clients and replies over the same connection.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kvbridge/backend"
	"kvbridge/config"
	"kvbridge/middleware"
	"kvbridge/registry"
	"kvbridge/server"
	"kvbridge/transport"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, closeStore, err := openBackend(cfg.Backend)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	defer closeStore()

	dispatcher := server.NewDispatcher(store, server.WithExpectedOrigin(cfg.ExpectedOrigin))
	dispatcher.Use(middleware.Logging())
	if cfg.RateLimit.Rate > 0 {
		dispatcher.Use(middleware.RateLimit(cfg.RateLimit.Rate, cfg.RateLimit.Burst))
	}
	if cfg.RequestTimeout > 0 {
		dispatcher.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.Backend.Driver == "sqlite" {
		// sqlite reports "database is locked" under write contention.
		dispatcher.Use(middleware.Retry(3, 10*time.Millisecond))
	}
	if cfg.Metrics.Enabled {
		dispatcher.Use(middleware.Metrics(prometheus.DefaultRegisterer))
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, transport.Handler(dispatcher.Serve))
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	httpServer := &http.Server{Addr: cfg.Listen, Handler: mux}

	// Advertise in etcd after the listener is up, deregister before it goes
	// down so clients stop dialing a hub that is about to vanish.
	var reg *registry.EtcdRegistry
	if len(cfg.Etcd.Endpoints) > 0 {
		reg, err = registry.NewEtcdRegistry(cfg.Etcd.Endpoints)
		if err != nil {
			log.Fatalf("etcd: %v", err)
		}
		ep := registry.Endpoint{Addr: cfg.Etcd.AdvertiseAddr}
		if err := reg.Register(cfg.Etcd.Name, ep, cfg.Etcd.TTL); err != nil {
			log.Fatalf("etcd register: %v", err)
		}
		defer reg.Deregister(cfg.Etcd.Name, ep.Addr)
	}

	go func() {
		log.Printf("hub listening on %s%s (origin %q, backend %s)",
			cfg.Listen, cfg.Path, cfg.ExpectedOrigin, cfg.Backend.Driver)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Print("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openBackend(cfg config.BackendConfig) (server.Backend, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := backend.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return backend.NewMemory(), func() {}, nil
	}
}
