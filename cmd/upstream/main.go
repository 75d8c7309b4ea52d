package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"

	"MatrixConnectionRelay/internal/logging"
	"MatrixConnectionRelay/internal/upstream"
)

// Demo backend for local runs: answers POST /regbutton by echoing the question.
func main() {
	addr := flag.String("addr", ":5000", "listen address")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logging.New(*level)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router, err := graceful.Default(graceful.WithAddr(*addr))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create router")
	}
	defer router.Close()

	h, err := upstream.NewHandler(upstream.EchoAnswerer{}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create handler")
	}
	upstream.Register(router, h)

	log.Info().Str("addr", *addr).Str("path", upstream.Path).Msg("demo upstream listening")
	if err := router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("upstream error")
	}
}
