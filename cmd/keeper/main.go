// Package main implements the feed keeper daemon. The keeper polls
// data feed registries, collects signed off-chain data and stages
// on-chain updates when feeds drift or go stale.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nebulafi/feedkeeper/internal/app/runtime"
)

func main() {
	configPath := flag.String("config", "", "Path to keeper configuration file")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("KEEPER_CONFIG", *configPath)
	}

	app, err := runtime.NewApplication()
	if err != nil {
		fmt.Fprintf(os.Stderr, "keeper: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "keeper: %v\n", err)
		os.Exit(1)
	}
}
