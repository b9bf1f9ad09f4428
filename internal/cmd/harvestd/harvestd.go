// Package harvestd parses node command configuration and runs the
// ledger behind its gRPC service.
package harvestd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/blockberries/harvest/app"
	harvestgrpc "github.com/blockberries/harvest/grpc"
	"github.com/blockberries/harvest/ledger"
	"github.com/blockberries/harvest/registry"
	"github.com/blockberries/harvest/telemetry"
)

// Config holds node configuration. Flags override the environment.
type Config struct {
	Addr            string        `env:"HARVEST_ADDR" envDefault:"127.0.0.1:26658"`
	RegistryFile    string        `env:"HARVEST_REGISTRY_FILE"`
	LogLevel        string        `env:"HARVEST_LOG_LEVEL" envDefault:"info"`
	LogJSON         bool          `env:"HARVEST_LOG_JSON"`
	OTLPEndpoint    string        `env:"HARVEST_OTLP_ENDPOINT"`
	OTLPInsecure    bool          `env:"HARVEST_OTLP_INSECURE"`
	MetricsInterval time.Duration `env:"HARVEST_METRICS_INTERVAL" envDefault:"15s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "gRPC listen address")
	fs.StringVar(&cfg.RegistryFile, "registry", cfg.RegistryFile, "YAML file with applicants and eligibility criteria")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Log as JSON")
	fs.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", cfg.OTLPEndpoint, "OTLP/gRPC metrics endpoint; empty disables export")
	fs.BoolVar(&cfg.OTLPInsecure, "otlp-insecure", cfg.OTLPInsecure, "Use a plaintext connection to the OTLP endpoint")
	fs.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Metrics export interval")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.MetricsInterval <= 0 {
		return Config{}, errors.New("metrics interval must be positive")
	}
	return cfg, nil
}

// Run serves the node until ctx is done.
func Run(ctx context.Context, cfg Config) (err error) {
	log, err := telemetry.NewLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	reg := registry.New()
	if cfg.RegistryFile != "" {
		if reg, err = registry.Load(cfg.RegistryFile); err != nil {
			return err
		}
		log.Info("registry loaded", zap.String("file", cfg.RegistryFile))
	} else {
		log.Warn("no registry file; every submission will be refused")
	}

	if cfg.OTLPEndpoint != "" {
		mp, err := telemetry.NewOTLPMeterProvider(ctx, cfg.OTLPEndpoint, cfg.MetricsInterval, cfg.OTLPInsecure)
		if err != nil {
			return err
		}
		otel.SetMeterProvider(mp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			err = errors.Join(err, mp.Shutdown(shutdownCtx))
		}()
	}
	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}

	node := app.New(ledger.Deps{
		Identity:  reg,
		Documents: reg,
		Policy:    reg,
		Logger:    log,
		Metrics:   metrics,
	})

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return harvestgrpc.NewGRPCServer(node, log).Serve(ctx, lis)
}
