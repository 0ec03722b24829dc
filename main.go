package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microcosm-game/microcosm-server/app"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()
	config, err := app.LoadConfigFromFile(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load config: %s\n", err.Error())
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	server := app.NewApp(config)
	if err := server.Boot(ctx); err != nil {
		os.Exit(1)
	}
}
