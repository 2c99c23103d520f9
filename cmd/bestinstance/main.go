// bestinstance - EC2 instance type selection service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/rs/zerolog"

	"github.com/kankou-aliaksei/amazon-ec2-best-instance/internal/api"
	"github.com/kankou-aliaksei/amazon-ec2-best-instance/internal/config"
	"github.com/kankou-aliaksei/amazon-ec2-best-instance/internal/metrics"
	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/selector"
	"github.com/kankou-aliaksei/amazon-ec2-best-instance/pkg/spotadvisor"
)

const defaultConfigPath = "bestinstance.yaml"

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bestinstance %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Bootstrap logger until configuration is loaded
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && *configPath == defaultConfigPath {
			logger.Info().Msg("No configuration file found, using defaults")
			cfg = config.DefaultConfig()
		} else {
			logger.Fatal().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
		}
	}

	logger = setupLogger(cfg.Logging)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("region", cfg.AWS.Region).
		Msg("Starting bestinstance")

	// Build AWS clients
	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load AWS config")
	}

	ec2Client := ec2.NewFromConfig(awsCfg)

	// Pricing API is only available in us-east-1 and ap-south-1
	pricingCfg := awsCfg.Copy()
	pricingCfg.Region = "us-east-1"
	pricingClient := pricing.NewFromConfig(pricingCfg)

	var advisorOpts []spotadvisor.Option
	if cfg.AWS.SpotAdvisorURL != "" {
		advisorOpts = append(advisorOpts, spotadvisor.WithURL(cfg.AWS.SpotAdvisorURL))
	}
	advisor := spotadvisor.New(cfg.AWS.Region, advisorOpts...)

	// Initialize selector
	selCfg := &selector.Config{
		Region:              cfg.AWS.Region,
		SpotConcurrency:     cfg.Selector.SpotConcurrency,
		OnDemandConcurrency: cfg.Selector.OnDemandConcurrency,
		CacheTTL:            cfg.Selector.CacheTTL.Duration(),
		CacheCapacity:       cfg.Selector.CacheCapacity,
		RequestTimeout:      cfg.Selector.RequestTimeout.Duration(),
		SingleFlight:        cfg.Selector.SingleFlight,
	}
	sel := selector.New(ec2Client, pricingClient, advisor, selCfg, logger)

	// Initialize API
	m := metrics.New()
	handler := api.NewHandler(sel, m, logger)

	limiter := api.NewRateLimiter(api.DefaultRateLimitConfig()).
		WithEndpointLimits([]api.EndpointRateLimitConfig{api.DefaultSelectionEndpointLimit()})
	defer limiter.Stop()

	router := api.NewRouterWithConfig(handler, logger, api.RouterConfig{
		RateLimiter: limiter,
		Metrics:     m,
	})

	// Start HTTP server
	server := &http.Server{
		Addr:         cfg.Server.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.HTTP.WriteTimeout.Duration(),
	}

	go func() {
		logger.Info().Str("address", cfg.Server.HTTP.Address).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("bestinstance stopped")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var logger zerolog.Logger
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		logger = zerolog.New(output).With().Timestamp().Caller().Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	}

	switch cfg.Level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	return logger
}
