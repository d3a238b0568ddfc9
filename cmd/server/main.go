// Package main provides the entry point for the CypherGate query gateway.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cyphergate/cyphergate/cmd/server/config"
	"github.com/cyphergate/cyphergate/cmd/server/server"
	"github.com/cyphergate/cyphergate/pkg/executor"
	"github.com/cyphergate/cyphergate/pkg/gateway"
	"github.com/cyphergate/cyphergate/pkg/infrastructure/metrics"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cyphergate",
	Short: "CypherGate query defense gateway",
	Long: `A defense gateway for Cypher queries headed to a graph database.

CypherGate sanitizes, scores, rate-limits, and audits every query before
it reaches Neo4j.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CypherGate server",
	Long: `Start the CypherGate server with the specified configuration.

Example:
  cyphergate serve --config ./config.yaml
  cyphergate serve --address 0.0.0.0:8420 --neo4j-uri bolt://localhost:7687`,
	RunE: runServer,
}

func init() {
	// Add serve command
	rootCmd.AddCommand(serveCmd)

	// Command flags
	serveCmd.Flags().StringP("config", "c", "", "config file path")
	serveCmd.Flags().String("address", "0.0.0.0:8420", "server listen address")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().String("tls-cert", "", "TLS certificate file")
	serveCmd.Flags().String("tls-key", "", "TLS key file")
	serveCmd.Flags().Bool("auth", false, "enable authentication")
	serveCmd.Flags().Bool("metrics", true, "enable Prometheus metrics")
	serveCmd.Flags().String("metrics-address", ":9090", "metrics server address")
	serveCmd.Flags().String("neo4j-uri", "bolt://localhost:7687", "Neo4j bolt URI")
	serveCmd.Flags().String("neo4j-username", "neo4j", "Neo4j username")
	serveCmd.Flags().String("neo4j-password", "", "Neo4j password")
	serveCmd.Flags().String("neo4j-database", "neo4j", "Neo4j database name")
	serveCmd.Flags().Bool("read-only", false, "reject write-capable queries")
	serveCmd.Flags().Bool("strict", false, "reject suspicious queries instead of warning")
	serveCmd.Flags().Int("max-complexity", 100, "maximum allowed complexity score")
	serveCmd.Flags().Int("rate", 100, "requests per window per client")
	serveCmd.Flags().Int("rate-window", 60, "rate limit window in seconds")
	serveCmd.Flags().Int("burst", 100, "rate limit burst size")
	serveCmd.Flags().Int("max-rows", 100, "row bound injected into unbounded queries")
	serveCmd.Flags().String("audit-dir", "audit-logs", "audit log directory")
	serveCmd.Flags().Bool("pii-redaction", false, "redact PII from audit logs")
	serveCmd.Flags().Duration("request-timeout", 60*time.Second, "per-request deadline")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")

	// Bind flags to viper
	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		panic(fmt.Errorf("failed to bind flags: %w", err))
	}
	viper.SetEnvPrefix("CYPHERGATE")
	viper.AutomaticEnv()

	// Add version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CypherGate\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", commit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logging
	logger := setupLogging(cfg.LogLevel)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Msg("Starting CypherGate")

	// Create metrics collector
	var metricsCollector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewPrometheusCollector()
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address)
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("Failed to start metrics server")
			}
		}()
	} else {
		metricsCollector = metrics.NewNoOpCollector()
	}

	// Connect to Neo4j
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec, err := executor.NewNeo4jExecutor(ctx, cfg.Neo4j)
	if err != nil {
		return fmt.Errorf("failed to connect to Neo4j: %w", err)
	}
	defer func() {
		if err := exec.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("Error closing Neo4j driver")
		}
	}()

	// Build the gateway pipeline
	gw, err := gateway.New(cfg.Gateway, exec, metricsCollector)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	defer gw.Close()

	srv := server.New(cfg, logger, gw, exec)

	// Setup graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	// Start server
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("address", cfg.Address).
			Bool("tls", cfg.TLS.Enabled).
			Bool("auth", cfg.Auth.Enabled).
			Bool("read_only", cfg.Gateway.ReadOnly.Enabled).
			Msg("Server listening")

		if err := srv.Start(metricsCollector); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-shutdownCh:
		logger.Info().Msg("Received shutdown signal")
	case err := <-serverErrCh:
		return err
	}

	// Graceful shutdown
	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("Server shutdown complete")
	return nil
}

func loadConfig() (*config.Config, error) {
	// Load config file if specified
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Build configuration from defaults, then overlay flags and environment
	cfg := config.DefaultConfig()
	cfg.Address = viper.GetString("address")
	cfg.LogLevel = viper.GetString("log-level")
	cfg.RequestTimeout = viper.GetDuration("request-timeout")
	cfg.ShutdownTimeout = viper.GetDuration("shutdown-timeout")

	cfg.TLS.Enabled = viper.GetBool("tls")
	cfg.TLS.CertFile = viper.GetString("tls-cert")
	cfg.TLS.KeyFile = viper.GetString("tls-key")

	cfg.Auth.Enabled = viper.GetBool("auth")

	cfg.Metrics.Enabled = viper.GetBool("metrics")
	cfg.Metrics.Address = viper.GetString("metrics-address")

	cfg.Neo4j.URI = viper.GetString("neo4j-uri")
	cfg.Neo4j.Username = viper.GetString("neo4j-username")
	cfg.Neo4j.Password = viper.GetString("neo4j-password")
	cfg.Neo4j.Database = viper.GetString("neo4j-database")

	cfg.Gateway.ReadOnly.Enabled = viper.GetBool("read-only")
	cfg.Gateway.Sanitizer.StrictMode = viper.GetBool("strict")
	cfg.Gateway.Complexity.MaxComplexity = viper.GetInt("max-complexity")
	cfg.Gateway.RateLimit.RequestsPerWindow = viper.GetInt("rate")
	cfg.Gateway.RateLimit.WindowSeconds = viper.GetInt("rate-window")
	cfg.Gateway.RateLimit.BurstSize = viper.GetInt("burst")
	cfg.Gateway.Injection.MaxRows = viper.GetInt("max-rows")
	cfg.Gateway.Audit.LogDirectory = viper.GetString("audit-dir")
	cfg.Gateway.Audit.PIIRedaction = viper.GetBool("pii-redaction")

	// Nested config file sections override the flat flag surface
	yamlTags := func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }
	if viper.IsSet("gateway") {
		if err := viper.UnmarshalKey("gateway", &cfg.Gateway, yamlTags); err != nil {
			return nil, fmt.Errorf("failed to parse gateway config: %w", err)
		}
	}
	if viper.IsSet("auth") && viper.Get("auth") != nil {
		if sub := viper.Sub("auth"); sub != nil {
			if err := viper.UnmarshalKey("auth", &cfg.Auth, yamlTags); err != nil {
				return nil, fmt.Errorf("failed to parse auth config: %w", err)
			}
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setupLogging(level string) zerolog.Logger {
	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	// Set log level
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
		// Enable caller info for debug level
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}
