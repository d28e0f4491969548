// Command cachegate runs the cache proxy: it loads configuration, builds
// the cache/store/fetcher stack, and serves the HTTP API until signaled to
// shut down.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cachegate/cachegate/internal/config"
	"github.com/cachegate/cachegate/internal/fetch"
	"github.com/cachegate/cachegate/internal/httpapi"
	"github.com/cachegate/cachegate/internal/metrics"
	"github.com/cachegate/cachegate/internal/objcache"
	"github.com/cachegate/cachegate/internal/presign"
	"github.com/cachegate/cachegate/internal/ratelimit"
	"github.com/cachegate/cachegate/internal/store"
)

func main() {
	arg := ""
	if len(os.Args) > 1 {
		arg = os.Args[1]
	}

	cfg, err := config.Load(arg)
	if err != nil {
		log.Fatalf("cachegate: %v", err)
	}

	pub, err := presign.DecodePublicKey(cfg.Auth.PublicKey)
	if err != nil {
		log.Fatalf("cachegate: %v", err)
	}

	cache := objcache.New(cfg.Cache.MaxBytes, cfg.Cache.TTL())

	ctx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	registry, err := store.NewRegistry(ctx, cfg.Stores)
	cancelBoot()
	if err != nil {
		log.Fatalf("cachegate: %v", err)
	}

	m := metrics.New()
	fetcher := fetch.New(cache, registry, m)

	var limiter *ratelimit.TokenBucket
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst, 10*time.Minute)
		defer limiter.Stop()
	}

	auth := httpapi.AuthConfig{PublicKey: pub, BearerToken: cfg.Auth.BearerToken}
	srv := httpapi.NewServer(fetcher, m, auth, cfg.RequestTimeout(), limiter)

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Engine(),
	}

	go func() {
		log.Printf("cachegate: listening on %s (%d store(s) registered)", cfg.Listen, len(cfg.Stores))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("cachegate: serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("cachegate: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "cachegate: shutdown: %v\n", err)
		os.Exit(1)
	}
}
