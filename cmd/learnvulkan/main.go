package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"github.com/vkngwrapper/learnvulkan/internal/config"
	"github.com/vkngwrapper/learnvulkan/internal/render"
)

func init() {
	// SDL and the presentation engine want the main thread.
	runtime.LockOSThread()
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := render.New(ctx, cfg, render.Options{Logger: logger})
	if err != nil {
		return err
	}

	err = app.Run(ctx)
	return errors.CombineErrors(err, app.Close())
}

func main() {
	cfg, err := config.ParseArgs(os.Args[1:], os.Stdout)
	if errors.Is(err, config.ErrHelp) {
		return
	} else if err != nil {
		log.Fatalf("%+v", err)
	}

	level, err := cfg.Level()
	if err != nil {
		log.Fatalf("%+v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		log.Fatalf("%+v", err)
	}
}
