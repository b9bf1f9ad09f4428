// Package telemetry builds the node's logger and OpenTelemetry
// metrics.
package telemetry

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger at level ("debug", "info", ...). JSON
// output uses the production encoder; otherwise a console encoder.
func NewLogger(level string, json bool) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if s := strings.TrimSpace(level); s != "" {
		var parsed zapcore.Level
		if err := parsed.Set(s); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl.SetLevel(parsed)
	}

	cfg := zap.NewDevelopmentConfig()
	if json {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.Level = lvl
	cfg.DisableStacktrace = true

	log, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return log.Named("harvest"), nil
}
