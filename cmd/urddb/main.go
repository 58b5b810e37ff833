// Package main provides the UrdDB CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orneryd/urddb/pkg/config"
	"github.com/orneryd/urddb/pkg/jsonline"
	"github.com/orneryd/urddb/pkg/storage"
	"github.com/orneryd/urddb/pkg/urddb"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "urddb",
		Short: "UrdDB - Multi-Dimensional Time-Series Database",
		Long: `UrdDB is a multi-dimensional time-series database written in Go,
serving a newline-delimited JSON command protocol over TCP.

Features:
  • Named vector-valued series with fixed dimensions
  • Append-only points, insertion order preserved
  • Cosine similarity search (FindSimilar)
  • Matrix-profile motif and anomaly discovery
  • Optional Badger-backed persistence`,
	}

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("UrdDB v%s (%s)\n", version, commit)
		},
	})

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start UrdDB server",
		Long:  "Start the UrdDB server on the configured TCP address",
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "Bind address (default 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "TCP port (default 9999)")
	serveCmd.Flags().String("data-dir", "", "Data directory (empty = in-memory)")
	serveCmd.Flags().String("config", "", "YAML configuration file")
	serveCmd.Flags().Bool("sync-writes", false, "fsync every storage commit")
	serveCmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new UrdDB data directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers configuration sources: defaults, URDDB_* environment
// variables, YAML file, then command-line flags. Each later source overrides
// the earlier ones, so a key set in the YAML file takes precedence over the
// matching environment variable.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadFromEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.LoadFromFile(path, cfg)
		if err != nil {
			return nil, err
		}
	}

	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	if syncWrites, _ := cmd.Flags().GetBool("sync-writes"); syncWrites {
		cfg.Database.SyncWrites = true
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config.
func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	log.WithFields(logrus.Fields{
		"version": version,
		"config":  cfg.String(),
	}).Info("starting urddb")

	if cfg.Database.DataDir != "" {
		if err := os.MkdirAll(cfg.Database.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := urddb.Open(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	serverConfig := &jsonline.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MaxLineSize:     cfg.Server.MaxLineSize,
		MaxConnections:  cfg.Server.MaxConnections,
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteBufferSize: cfg.Server.WriteBufferSize,
		Logger:          log,
	}
	server := jsonline.New(serverConfig, jsonline.NewDispatcher(db))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("shutting down")
		if err := server.Close(); err != nil {
			return fmt.Errorf("stopping server: %w", err)
		}
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Opening and closing the engine lays down Badger's manifest so the
	// directory is recognizably an UrdDB database.
	engine, err := storage.NewBadgerEngine(dataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	if err := engine.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}

	fmt.Printf("Initialized UrdDB data directory at %s\n", dataDir)
	return nil
}
