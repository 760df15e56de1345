// Command kiro-bridge runs the north-side HTTP listener that translates
// Anthropic Messages API traffic into the south-side Kiro RPC protocol,
// per spec §6.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/kiro-claude-bridge/internal/api"
	"github.com/example/kiro-claude-bridge/internal/config"
	"github.com/example/kiro-claude-bridge/internal/countcache"
	"github.com/example/kiro-claude-bridge/internal/kiroclient"
	"github.com/example/kiro-claude-bridge/internal/orchestrator"
	"github.com/example/kiro-claude-bridge/internal/pool"
	"github.com/example/kiro-claude-bridge/internal/store"
	"github.com/example/kiro-claude-bridge/internal/tokenmanager"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "./config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		return 1
	}
	configStore := config.NewStore(cfg)

	credStore, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Error("failed to open credential store")
		return 1
	}
	defer credStore.Close()

	kiroClient := kiroclient.New(kiroclient.Config{
		ProxyURL: proxyURLWithAuth(cfg),
	})

	selector := pool.New(credStore)
	tokens := tokenmanager.New(credStore, kiroClient)
	orch := orchestrator.New(selector, tokens, credStore, kiroClient)
	countCache, err := countcache.New(0)
	if err != nil {
		log.WithError(err).Error("failed to build count-tokens cache")
		return 1
	}

	server := api.NewServer(configStore, credStore, orch, kiroClient, tokens, countCache)

	ctx, cancelWatcher := context.WithCancel(context.Background())
	defer cancelWatcher()
	if watcher, err := config.NewWatcher(*configPath, configStore); err != nil {
		log.WithError(err).Warn("configuration hot-reload disabled")
	} else {
		go watcher.Run(ctx)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses run indefinitely
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("kiro-bridge listening")
		serveErr <- httpServer.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("listener failed")
			return 1
		}
	case <-quit:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
			return 1
		}
		log.Info("kiro-bridge exited cleanly")
	}
	return 0
}

// proxyURLWithAuth folds proxyUsername/proxyPassword into proxyUrl's
// userinfo so kiroclient only needs to parse one URL, per spec §6.
func proxyURLWithAuth(cfg *config.Config) string {
	if cfg.ProxyURL == "" || cfg.ProxyUsername == "" {
		return cfg.ProxyURL
	}
	parsed, err := url.Parse(cfg.ProxyURL)
	if err != nil {
		return cfg.ProxyURL
	}
	parsed.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
	return parsed.String()
}
