package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-whatsapp-crm/src/infrastructure/di"
	logger "go-whatsapp-crm/src/infrastructure/logger"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	daemon := flag.Bool("daemon", false, "Keep running and process on the configured cron schedule")
	flag.Parse()

	_ = godotenv.Load()

	env := os.Getenv("GO_ENV")
	var loggerInstance *logger.Logger
	var err error
	if env == "development" || env == "" {
		loggerInstance, err = logger.NewDevelopmentLogger()
	} else {
		loggerInstance, err = logger.NewLogger()
	}
	if err != nil {
		panic(fmt.Errorf("error initializing logger: %w", err))
	}
	defer func() {
		_ = loggerInstance.Log.Sync()
	}()

	// A deployment without provider credentials has nothing to dispatch;
	// exiting clean keeps the cron entry quiet until they are configured.
	if os.Getenv("WHATSAPP_PHONE_NUMBER_ID") == "" || os.Getenv("WHATSAPP_ACCESS_TOKEN") == "" {
		loggerInstance.Warn("WhatsApp credentials not configured, nothing to do")
		return
	}

	appContext, err := di.SetupDependencies(loggerInstance)
	if err != nil {
		loggerInstance.Fatal("Error initializing application context", zap.Error(err))
	}

	if !*daemon {
		if err := appContext.Processor.RunOnce(context.Background()); err != nil {
			loggerInstance.Fatal("Dispatch run failed", zap.Error(err))
		}
		return
	}

	if err := appContext.Processor.Start(appContext.ProcessorConfig.CronSpec); err != nil {
		loggerInstance.Fatal("Error starting dispatch processor", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appContext.Processor.Shutdown()
}
