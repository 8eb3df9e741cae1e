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
	"github.com/taskdeskhq/taskdesk/internal/api"
	"github.com/taskdeskhq/taskdesk/internal/audit"
	"github.com/taskdeskhq/taskdesk/internal/config"
	"github.com/taskdeskhq/taskdesk/internal/store"
	"github.com/taskdeskhq/taskdesk/internal/sweeper"
)

var (
	listenAddr string
	dbPath     string
	configPath string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the TaskDesk daemon",
	Long:  `Starts the TaskDesk daemon which provides the HTTP API for the negotiation workflow.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	log.Println("Starting TaskDesk daemon...")

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.Server.DBPath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s, err := store.New(cfg.Server.DBPath)
	if err != nil {
		return err
	}

	recorder := audit.NewRecorder(s)
	service := api.NewService(s, recorder, cfg.Workflow)
	server := api.NewServer(service, s, cfg.Server.Listen)

	sweep := sweeper.New(s, recorder, cfg.Workflow.SweepInterval)
	sweep.Start()
	defer sweep.Stop()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		if err != nil {
			log.Printf("Server error: %v", err)
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Println("Shutting down HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Closing database connection...")
	if err := s.Close(); err != nil {
		log.Printf("Database close error: %v", err)
	}

	log.Println("Shutdown complete")
	return nil
}
