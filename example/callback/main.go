package main

import (
	"context"
	"fmt"
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

	printer := p1.NewCallbackPublisher("printer", func(msg *p1.Message) error {
		fmt.Printf("frame %d at %s: power=%v drift=%.3fs\n",
			msg.Meta.FrameNumber,
			msg.Meta.DatagramTimestamp,
			msg.Telegram["1-0:1.7.0"],
			msg.Meta.ClockDrift)
		return nil
	})

	rt, err := p1.NewRuntime(cfg, p1.WithPublisher(printer))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("reader exited: %v", err)
	}
}
