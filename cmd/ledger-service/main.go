package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/0x0wen/MediLock/internal/access"
	"github.com/0x0wen/MediLock/internal/gateway"
	"github.com/0x0wen/MediLock/internal/marketplace"
	"github.com/0x0wen/MediLock/internal/records"
	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/config"
	"github.com/0x0wen/MediLock/pkg/database"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/monitoring"
	"github.com/0x0wen/MediLock/pkg/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting MediLock ledger service")

	st, err := openStore(cfg)
	if err != nil {
		log.Error("Failed to open entity store: ", err)
		os.Exit(1)
	}
	defer st.Close()

	health := monitoring.NewHealthChecker()
	health.Register("store", func() error {
		return st.View(func(tx store.Tx) error { return nil })
	})

	var archive *access.Archive
	if cfg.Archive.Enabled {
		db, err := database.NewConnection(&cfg.Archive.Database, log)
		if err != nil {
			log.Error("Failed to connect to archive database: ", err)
			os.Exit(1)
		}
		defer db.Close()

		archive = access.NewArchive(db, log)
		if err := archive.EnsureSchema(context.Background()); err != nil {
			log.Error("Failed to prepare archive schema: ", err)
			os.Exit(1)
		}
		health.Register("archive", db.Health)
		log.Info("Access-log archive enabled")
	}

	bus := events.NewBus()
	bus.Subscribe(events.NewLogSink(log))

	vault := marketplace.NewMemoryVault(cfg.Escrow.InitialBalances)

	registryService := registry.NewService(st, log, bus)
	recordsService := records.NewService(st, log, bus)
	accessService := access.NewService(st, log, bus, archive)
	marketplaceService := marketplace.NewService(st, log, bus, vault)

	router := mux.NewRouter()
	handlers := gateway.NewHandlers(registryService, recordsService, accessService, marketplaceService, log)
	handlers.RegisterRoutes(router)
	router.Handle("/metrics", monitoring.Handler()).Methods(http.MethodGet)
	router.Handle("/health", health.Handler()).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		log.Info("Ledger service listening on ", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed: ", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down ledger service")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown: ", err)
	}
	log.Info("Ledger service stopped")
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return store.NewMemory(), nil
	case "leveldb":
		return store.OpenLevelDB(cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
