package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/zkvoting/eligibility/api"
	"github.com/zkvoting/eligibility/crypto/commitment"
	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/service"
	"github.com/zkvoting/eligibility/storage"
	"github.com/zkvoting/eligibility/storage/registry"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log.Level, cfg.Log.Output)
	log.Infow("starting eligibility-service",
		"datadir", cfg.Datadir,
		"adminEnabled", cfg.Admin.Enabled)

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	codec, err := commitment.NewCodec(commitment.Secret{
		Salt:   cfg.Salt,
		Pepper: os.Getenv(pepperEnvVar),
	})
	if err != nil {
		log.Fatalf("Invalid secret material: %v", err)
	}

	// The ledger is the anti-replay guarantee: refusing to serve without it
	// beats serving and letting a duplicate through.
	database, err := metadb.New(db.TypePebble, filepath.Join(cfg.Datadir, "db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	ledger := storage.New(database, codec.Salt())
	defer ledger.Close()

	// A registry that fails to load keeps serving fail-closed; only an
	// explicit roll on the command line rebuilds it.
	reg := registry.New(database, codec)
	if cfg.Roll != "" {
		roll, err := registry.LoadRollFile(cfg.Roll)
		if err != nil {
			log.Fatalf("Failed to load roll file: %v", err)
		}
		if err := reg.Build(roll, fmt.Sprintf("built from %s", cfg.Roll)); err != nil {
			log.Fatalf("Failed to build registry: %v", err)
		}
	} else if !reg.Built() {
		log.Warnw("no eligibility registry available, every verification will be rejected")
	}

	eligibility, err := service.New(service.Config{
		Codec:        codec,
		Registry:     reg,
		Ledger:       ledger,
		AdminEnabled: cfg.Admin.Enabled,
	})
	if err != nil {
		log.Fatalf("Failed to create eligibility service: %v", err)
	}

	if _, err := api.New(&api.Config{
		Host:        cfg.API.Host,
		Port:        cfg.API.Port,
		Eligibility: eligibility,
	}); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// Wait for shutdown signal.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}
