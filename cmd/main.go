package main

import (
	"context"
	"os/signal"
	"syscall"

	"plugincheck.dev/cli/internal/interfaces/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, &cli.CLIContainer{})
}
