package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/websoft9/agentbridge/internal/config"
	"github.com/websoft9/agentbridge/internal/logging"
	"github.com/websoft9/agentbridge/internal/orchestrator"
)

func main() {
	configPath := flag.String("config", "agentbridge.yaml", "path to the orchestrator configuration file")
	pretty := flag.Bool("pretty", false, "use human-readable console logging instead of JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.General.LogLevel, *pretty)

	log.Info().Str("config", *configPath).Msg("starting agentbridge")

	o, err := orchestrator.Build(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	<-quit
	log.Info().Msg("shutting down agentbridge")
	o.Stop()
	cancel()
	<-done

	log.Info().Msg("agentbridge exited")
}
