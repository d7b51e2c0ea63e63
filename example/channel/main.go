package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mcmd1962/p1-slimmelezer/pkg/p1"
)

func main() {
	cfg, err := p1.LoadConfig("../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pub, telegrams, closeTelegrams := p1.NewChannelPublisher("consumer", 32)
	defer closeTelegrams()

	go consumer("meter", telegrams)

	rt, err := p1.NewRuntime(cfg, p1.WithPublisher(pub))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rt.Run(ctx); err != nil {
		log.Fatalf("reader exited: %v", err)
	}
}

func consumer(name string, telegrams <-chan *p1.Message) {
	for msg := range telegrams {
		fmt.Printf("[%s] frame %d with %d fields at %s\n",
			name, msg.Meta.FrameNumber, len(msg.Telegram), time.Now().Format(time.RFC3339))
	}
}
