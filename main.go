package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/screenrec/core/app/recorder"
	"github.com/screenrec/core/config"
	"github.com/screenrec/core/log"

	_ "github.com/joho/godotenv/autoload"
	_ "github.com/screenrec/core/mux/flv"
)

func main() {
	logger := log.New("Core").WithOutput(log.NewConsoleWriter(os.Stderr, log.Linfo, true))

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error().WithError(err).Log("Invalid configuration")
		os.Exit(1)
	}

	logger = logger.WithOutput(log.NewConsoleWriter(os.Stderr, logLevel(cfg.Log.Level), true))

	rec, err := recorder.New(recorder.Config{
		Data:   cfg,
		Logger: logger,
	})
	if err != nil {
		logger.Error().WithError(err).Log("Failed to create recorder")
		os.Exit(1)
	}

	logger.Info().WithField("shm", rec.Channel().MainID()).Log("Publish this id to the producer")

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		// Wait for interrupt signal to gracefully shutdown the recorder
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt)
		<-quit

		cancel()
	}()

	rec.Run(ctx)
	rec.Destroy()
}

func logLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.Ldebug
	case "info":
		return log.Linfo
	case "warn":
		return log.Lwarn
	case "error":
		return log.Lerror
	case "silent":
		return log.Lsilent
	}

	return log.Linfo
}
