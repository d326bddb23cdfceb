package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/medkg/backend/internal/util"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(buildDeps).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
