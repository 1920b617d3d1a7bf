package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/server"
	"github.com/ALex-Everett-Liu/screenshot-note/pkg/logger"
)

func main() {
	log, err := logger.NewConsole(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := server.NewServices(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	c := &cli{cfg: cfg, svc: svc, log: log, in: os.Stdin, out: os.Stdout, now: time.Now}
	runErr := c.run(ctx, os.Args[1:])

	if err := svc.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to save screenshots:", err)
		os.Exit(1)
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, errUsage):
		if runErr != errUsage {
			fmt.Fprintln(os.Stderr, runErr)
		}
		os.Exit(2)
	default:
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}
