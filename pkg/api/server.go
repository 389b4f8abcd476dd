package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/ledgerquest/ledgerquest/pkg/achievements"
	"github.com/ledgerquest/ledgerquest/pkg/api/handlers"
	"github.com/ledgerquest/ledgerquest/pkg/api/middleware"
	authproviders "github.com/ledgerquest/ledgerquest/pkg/auth/providers"
	"github.com/ledgerquest/ledgerquest/pkg/avatars"
	"github.com/ledgerquest/ledgerquest/pkg/battles"
	"github.com/ledgerquest/ledgerquest/pkg/log"
	"github.com/ledgerquest/ledgerquest/pkg/notifications"
	"github.com/ledgerquest/ledgerquest/pkg/worldmap"
)

type APIServer struct {
	server *http.Server
	tls    *TLSConfig
}

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type NewAPIServerOptions struct {
	Port         int
	TLS          *TLSConfig
	AuthProvider authproviders.AuthProvider
	Avatars      *avatars.Store
	Engine       *battles.Engine
	Gate         *worldmap.Gate
	Achievements *achievements.Catalog
	Hub          *notifications.Hub
}

// NewAPIServer creates a new http.Server for handling RPG API requests
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	authMiddleware := middleware.NewAuthMiddleware(opts.AuthProvider)

	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	rpg := router.PathPrefix("/rpg").Subrouter()
	rpg.Use(authMiddleware)
	rpg.HandleFunc("/avatar", handlers.HandleCreateAvatar(opts.Avatars)).Methods(http.MethodPost)
	rpg.HandleFunc("/avatar", handlers.HandleGetAvatar(opts.Avatars)).Methods(http.MethodGet)
	rpg.HandleFunc("/world-map", handlers.HandleGetWorldMap(opts.Avatars, opts.Gate)).Methods(http.MethodGet)
	rpg.HandleFunc("/battle/start", handlers.HandleStartBattle(opts.Avatars, opts.Engine)).Methods(http.MethodPost)
	rpg.HandleFunc("/battle/{battleID}/action", handlers.HandleBattleAction(opts.Avatars, opts.Engine)).Methods(http.MethodPost)
	rpg.HandleFunc("/achievements", handlers.HandleGetAchievements(opts.Avatars, opts.Achievements)).Methods(http.MethodGet)
	rpg.HandleFunc("/events/goal-completed", handlers.HandleGoalCompleted(opts.Avatars, opts.Engine)).Methods(http.MethodPost)
	rpg.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		principal, ok := middleware.PrincipalFromContext(r.Context())
		if !ok {
			http.Error(w, "failed to resolve request identity", http.StatusInternalServerError)
			return
		}
		opts.Hub.Handle(w, r, principal.UserID)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}
	return &APIServer{
		server: server,
		tls:    opts.TLS,
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the APIServer
func (s *APIServer) Start() {
	var listenAndServe func() error
	if s.tls != nil {
		log.Info("API server listening on %s with TLS", s.server.Addr)
		listenAndServe = func() error {
			return s.server.ListenAndServeTLS(s.tls.CertFile, s.tls.KeyFile)
		}
	} else {
		log.Info("API server listening on %s", s.server.Addr)
		listenAndServe = s.server.ListenAndServe
	}
	if err := listenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
