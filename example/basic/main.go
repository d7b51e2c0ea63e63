package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/mcmd1962/p1-slimmelezer/pkg/p1"
)

func main() {
	cfg, err := p1.LoadConfig("../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := p1.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("reader exited: %v", err)
	}
}
