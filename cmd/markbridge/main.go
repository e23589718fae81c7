// Markbridge is the streamable HTTP front door for the markdown-conversion
// MCP engine. It accepts one MCP message per POST /mcp request, runs the
// in-process engine against it, and relays the engine's output back to the
// client either as one JSON body or as a server-sent event stream.
//
// Configuration is loaded from an optional YAML file with environment
// variables layered on top.
//
// Optional environment variables:
//
//	MARKBRIDGE_CONFIG       - path to a YAML config file
//	MARKBRIDGE_ADDR         - HTTP listen address (default ":8080")
//	MARKBRIDGE_MODE         - "buffered" or "streaming" (default "buffered")
//	MARKBRIDGE_TIMEOUT      - engine run deadline per exchange (default "30s")
//	MARKBRIDGE_CACHE_PATH   - sqlite conversion cache path (empty: disabled)
//	LOG_LEVEL               - "debug", "info", "warn", "error" (default "info")
//	LOG_FORMAT              - "text" or "json" (default "text")
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/markbridge/common/environment"
	"github.com/bdobrica/markbridge/common/version"
	"github.com/bdobrica/markbridge/internal/bridge/config"
	"github.com/bdobrica/markbridge/internal/bridge/convert"
	"github.com/bdobrica/markbridge/internal/bridge/engine"
	"github.com/bdobrica/markbridge/internal/bridge/httpdoor"
	"github.com/bdobrica/markbridge/internal/bridge/observability"
	"github.com/bdobrica/markbridge/internal/bridge/prompts"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}

	observability.Setup(cfg.Log.Level, cfg.Log.Format)
	slog.Info("markbridge starting", "version", version.Info(), "mode", cfg.Mode)

	var cache *convert.Cache
	if cfg.CachePath != "" {
		cache, err = convert.OpenCache(cfg.CachePath)
		if err != nil {
			slog.Error("failed to open conversion cache", "path", cfg.CachePath, "err", err)
			os.Exit(1)
		}
		defer cache.Close()
		slog.Info("conversion cache enabled", "path", cfg.CachePath)
	}

	converter := convert.New(cache)
	registry := prompts.NewRegistry(converter)

	eng := engine.New(engine.Descriptor{
		Name:    "markbridge",
		Version: version.Version,
	}, registry)
	if err := eng.RegisterTool(
		prompts.ConvertToolName,
		prompts.ConvertToolDescription,
		prompts.ConvertToolSchema,
		prompts.ConvertTool(converter),
	); err != nil {
		slog.Error("failed to register convert tool", "err", err)
		os.Exit(1)
	}

	door := httpdoor.New(cfg.ListenAddr, eng, httpdoor.Options{
		Mode:              cfg.Mode,
		EngineTimeout:     cfg.EngineTimeout.Std(),
		DrainInterval:     cfg.DrainInterval.Std(),
		MaxBodyBytes:      cfg.MaxBodyBytes,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		ServerName:        "markbridge",
		ServerVersion:     version.Version,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := door.Start(ctx); err != nil {
		slog.Error("failed to start front door", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Info("shutting down")
	door.Stop()
}

// loadConfig reads the YAML file named by MARKBRIDGE_CONFIG (when set) and
// layers environment overrides on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path, ok := environment.String("MARKBRIDGE_CONFIG"); ok && path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	cfg.ListenAddr = environment.StringOr("MARKBRIDGE_ADDR", cfg.ListenAddr)
	cfg.Mode = environment.StringOr("MARKBRIDGE_MODE", cfg.Mode)
	cfg.EngineTimeout = config.Duration(environment.DurationOr("MARKBRIDGE_TIMEOUT", cfg.EngineTimeout.Std()))
	cfg.CachePath = environment.StringOr("MARKBRIDGE_CACHE_PATH", cfg.CachePath)
	cfg.Log.Level = environment.StringOr("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = environment.StringOr("LOG_FORMAT", cfg.Log.Format)

	if err := config.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
