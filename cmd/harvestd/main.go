package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockberries/harvest/internal/cmd/harvestd"
)

func main() {
	cfg, err := harvestd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := harvestd.Run(ctx, cfg); err != nil {
		log.Fatalf("harvestd: %v", err)
	}
}
