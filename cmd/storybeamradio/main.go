/*
Copyright (C) 2026 Storybeam

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/storybeam/radio/internal/config"
	"github.com/storybeam/radio/internal/db"
	"github.com/storybeam/radio/internal/events"
	"github.com/storybeam/radio/internal/library"
	"github.com/storybeam/radio/internal/logging"
	"github.com/storybeam/radio/internal/server"
	"github.com/storybeam/radio/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "storybeamradio",
	Short:   "Storybeam Radio - always-on story and song radio",
	Long:    "Storybeam Radio runs a continuous station: a weighted shuffled song queue with generated host breaks, crossfades and an HTTP control surface.",
	Version: version.Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Storybeam Radio server",
	Long:  "Start the playback engine and the HTTP API server",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Import a station seed file",
	Long:  "Load a YAML seed file describing the station, its hosts and its track library. Importing the same file twice is safe.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Storybeam Radio starting")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	httpServer := srv.HTTPServer()

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Storybeam Radio stopped")
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	seed, err := library.LoadSeed(args[0])
	if err != nil {
		return fmt.Errorf("load seed file: %w", err)
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Error().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if err := db.EnsureAdmin(database, cfg.AdminEmail, cfg.AdminPassword, logger); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}

	svc := library.NewService(database, nil, events.NewBus(), logger)
	if err := svc.Import(cmd.Context(), seed); err != nil {
		return fmt.Errorf("import seed: %w", err)
	}

	logger.Info().Str("file", args[0]).Msg("seed imported")
	return nil
}
