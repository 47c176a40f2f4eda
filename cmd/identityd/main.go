// Command identityd serves local sign-up and sign-in, and sign-in with an
// external provider token, over HTTP.
//
// Configuration is read from IDENTITY_* environment variables, optionally
// layered over the YAML or JSON file named by IDENTITY_CONFIG_FILE:
//
//	IDENTITY_JWT_ISSUER=https://identity.example.com \
//	IDENTITY_JWT_AUDIENCE=game-clients \
//	IDENTITY_JWT_KEY=$(openssl rand -hex 32) \
//	IDENTITY_UPA_JWKS_URL=https://player-login.example.com/.well-known/jwks.json \
//	IDENTITY_UPA_ISSUER=https://player-login.example.com \
//	go run ./cmd/identityd
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, err := loadConfig(os.Getenv(EnvPrefix+"_CONFIG_FILE"), nil)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}
	logger := newLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(logger)

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		logger.Error("identityd exited with error", "error", err)
		return 1
	}
	return 0
}

// newLogger returns a JSON logger. An unparsable level falls back to info;
// Config.Validate rejects those before this is reached.
func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := parseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
