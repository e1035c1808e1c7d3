package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neural-chilli/codesworth/internal/api"
	"github.com/neural-chilli/codesworth/internal/config"
	"github.com/neural-chilli/codesworth/internal/export"
	"github.com/neural-chilli/codesworth/internal/llm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	var opts []api.Option

	// LLM summaries are optional; the API serves structural analyses without them
	if router, err := llm.NewRouter(cfg); err != nil {
		log.Warn().Err(err).Msg("LLM summaries disabled")
	} else {
		opts = append(opts, api.WithCompleter(router))
	}

	ctx := context.Background()
	if cfg.SQLitePath != "" {
		store, err := export.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite history")
		}
		defer store.Close()
		opts = append(opts, api.WithSinks(store))
	}
	if cfg.DatabaseURL != "" {
		store, err := export.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
		defer store.Close()
		opts = append(opts, api.WithSinks(store))
	}
	if cfg.Neo4j.Password != "" {
		store, err := export.OpenNeo4j(ctx, cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to neo4j")
		}
		defer store.Close(context.Background())
		opts = append(opts, api.WithSinks(store))
	}

	if cfg.AllowedRoot == "" && !cfg.IsProduction() {
		log.Warn().Msg("CODESWORTH_ALLOWED_ROOT is unset, analyses may read any local path")
	}

	srv, err := api.NewServer(cfg, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // ?wait=true holds the response for a whole run
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("could not gracefully shutdown the server")
		}
		srv.Close()
		close(done)
	}()

	log.Info().Int("port", cfg.Port).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
