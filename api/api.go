// Package api exposes the eligibility service over HTTP: the
// verify-and-reserve call surface consumed by the external proof and UI
// layers, and the explicitly gated administrative surface.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/service"
)

// Config represents the configuration for the API HTTP server.
type Config struct {
	Host        string
	Port        int
	Eligibility *service.Eligibility
}

// API represents the eligibility HTTP server.
type API struct {
	router      *chi.Mux
	eligibility *service.Eligibility
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Eligibility == nil {
		return nil, fmt.Errorf("missing eligibility service instance")
	}
	a := &API{
		eligibility: conf.Eligibility,
	}

	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router, used directly by tests.
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, _ *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", VerifyEndpoint, "method", "POST")
	a.router.Post(VerifyEndpoint, a.verifyAndReserve)
	log.Infow("register handler", "endpoint", VotedEndpoint, "method", "GET")
	a.router.Get(VotedEndpoint, a.hasVoted)
	log.Infow("register handler", "endpoint", RegistryRootEndpoint, "method", "GET")
	a.router.Get(RegistryRootEndpoint, a.registryRoot)
	log.Infow("register handler", "endpoint", RegistryProofEndpoint, "method", "POST")
	a.router.Post(RegistryProofEndpoint, a.registryProof)
	log.Infow("register handler", "endpoint", AdminRebuildEndpoint, "method", "POST")
	a.router.Post(AdminRebuildEndpoint, a.rebuildRegistry)
	log.Infow("register handler", "endpoint", AdminResetEndpoint, "method", "POST")
	a.router.Post(AdminResetEndpoint, a.resetLedger)
	log.Infow("register handler", "endpoint", AdminExportEndpoint, "method", "POST")
	a.router.Post(AdminExportEndpoint, a.exportSnapshots)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.registerHandlers()
}
