package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"futapi/cmd/futapi/commands"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
