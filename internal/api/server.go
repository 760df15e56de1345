// Package api wires the north-side and admin HTTP surfaces onto the
// credential pool, orchestrator, and translator, per spec §6.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/example/kiro-claude-bridge/internal/config"
	"github.com/example/kiro-claude-bridge/internal/countcache"
	"github.com/example/kiro-claude-bridge/internal/kiroclient"
	"github.com/example/kiro-claude-bridge/internal/orchestrator"
	"github.com/example/kiro-claude-bridge/internal/store"
	"github.com/example/kiro-claude-bridge/internal/tokenmanager"
)

// Server holds the collaborators every handler needs and builds the
// routed http.Handler for the bridge.
type Server struct {
	configStore *config.Store
	store       *store.CredentialStore
	orch        *orchestrator.Orchestrator
	kiroClient  *kiroclient.Client
	tokens      *tokenmanager.Manager
	countCache  *countcache.Cache
}

// NewServer builds a Server from its collaborators.
func NewServer(configStore *config.Store, credStore *store.CredentialStore, orch *orchestrator.Orchestrator, kiroClient *kiroclient.Client, tokens *tokenmanager.Manager, countCache *countcache.Cache) *Server {
	return &Server{
		configStore: configStore,
		store:       credStore,
		orch:        orch,
		kiroClient:  kiroClient,
		tokens:      tokens,
		countCache:  countCache,
	}
}

// Router builds the full route table: unauthenticated health check,
// api-key-gated north-side routes, and admin-key-gated admin routes
// (registered only when the loaded configuration carries an adminApiKey).
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logging)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	north := r.PathPrefix("/v1").Subrouter()
	north.Use(s.apiKeyAuth)
	north.HandleFunc("/models", s.handleModels).Methods(http.MethodGet)
	north.HandleFunc("/messages", s.handleMessages).Methods(http.MethodPost)
	north.HandleFunc("/messages/count_tokens", s.handleCountTokens).Methods(http.MethodPost)

	if s.configStore.Get().AdminEnabled() {
		admin := r.PathPrefix("/api/admin").Subrouter()
		admin.Use(s.adminAuth)
		admin.HandleFunc("/credentials", s.handleListCredentials).Methods(http.MethodGet)
		admin.HandleFunc("/credentials", s.handleCreateCredential).Methods(http.MethodPost)
		admin.HandleFunc("/credentials/{id}", s.handleDeleteCredential).Methods(http.MethodDelete)
		admin.HandleFunc("/credentials/{id}/disabled", s.handleSetDisabled).Methods(http.MethodPost)
		admin.HandleFunc("/credentials/{id}/priority", s.handleSetPriority).Methods(http.MethodPost)
		admin.HandleFunc("/credentials/{id}/reset", s.handleResetFailure).Methods(http.MethodPost)
		admin.HandleFunc("/credentials/{id}/balance", s.handleBalance).Methods(http.MethodGet)
	}

	return r
}

func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Info("request")
	})
}
