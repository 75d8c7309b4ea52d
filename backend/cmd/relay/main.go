package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"MatrixConnectionRelay/internal/config"
	"MatrixConnectionRelay/internal/logging"
	"MatrixConnectionRelay/internal/server"
)

/*
STARTUP ORDER:

1. Config        :   defaults, YAML file, .env, RELAY_* environment
2. Logger        :   console output at the configured level
3. Server        :   relay log, page, relay chain, status API
4. Run           :   until SIGINT or SIGTERM, then drain
*/

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a dotenv file")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		bootLog := logging.New("info")
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logging.New(cfg.LogLevel)

	srv, err := server.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize relay")
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
}
