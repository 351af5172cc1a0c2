package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"marketsync/config"
	"marketsync/internal/app"
	"marketsync/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to the config directory)")
	flag.Parse()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to build app", zap.Error(err))
	}
	defer a.Close()

	// surface real-time failures to the operator
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case f := <-a.Engine.Failures():
				log.Warn(f.Message, zap.Time("at", f.At), zap.Error(f.Err))
			}
		}
	}()

	if err := a.Run(ctx); err != nil {
		log.Error("marketsync stopped with error", zap.Error(err))
		return
	}
	log.Info("marketsync stopped")
}
