package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arenasync/internal/app"
	"arenasync/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%v", err)
	}
	flag.StringVar(&cfg.Client.Server, "server", cfg.Client.Server, "websocket endpoint of the server")
	flag.StringVar(&cfg.Client.Peer, "peer", cfg.Client.Peer, "peer id to connect as; random when empty")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunClient(ctx, cfg, app.Options{}); err != nil {
		log.Fatalf("%v", err)
	}
}
