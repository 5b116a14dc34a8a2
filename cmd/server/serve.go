package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openwitness/chronicle/internal/api"
	"github.com/openwitness/chronicle/internal/config"
	"github.com/openwitness/chronicle/internal/db"
	"github.com/openwitness/chronicle/internal/domain"
	"github.com/openwitness/chronicle/internal/engine"
	"github.com/openwitness/chronicle/internal/query"
	"github.com/openwitness/chronicle/internal/repository/postgres"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database); err != nil {
		return err
	}

	regions := domain.DefaultRegions()
	if cfg.RegionsFile != "" {
		regions, err = domain.LoadRegionSet(cfg.RegionsFile)
		if err != nil {
			return err
		}
	}

	store := postgres.NewStore(conn.Pool)
	eng := engine.New(store, cfg.Engine)
	queries := query.NewService(store, regions, cfg.Engine.PageSize)

	metrics := api.NewMetrics(nil)
	handlers := api.NewHandlers(eng, queries, store, metrics)
	server := api.NewServer(cfg.Server.Addr, api.NewRouter(handlers, metrics, cfg.Server.AllowedOrigins))

	go func() {
		log.Printf("[HTTP] listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[HTTP] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Println("[HTTP] server exited")
	return nil
}
