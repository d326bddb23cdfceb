package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/medkg/backend/internal/app"
	"github.com/medkg/backend/internal/config"
	"github.com/medkg/backend/internal/server"
	mid "github.com/medkg/backend/internal/server/middleware"
	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialise dependencies", "err", err)
	}
	defer deps.Close()

	err = server.Init(ctx, &mid.App{
		Resolver:  deps.Resolver,
		Extractor: deps.Extractor,
		Gatherer:  deps.Registry,
		APIKey:    cfg.Server.APIKey,
	}, cfg.Server)
	if err != nil {
		logger.Error("Server stopped", "err", err)
	}
}
