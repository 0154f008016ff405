// Command infergate runs the inference gateway: the HTTP API, the
// asynchronous task executor and, when configured, the object storage
// endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itsneelabh/infergate/api"
	"github.com/itsneelabh/infergate/core"
	"github.com/itsneelabh/infergate/executor"
	"github.com/itsneelabh/infergate/model"
	"github.com/itsneelabh/infergate/oss"
	"github.com/itsneelabh/infergate/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	var opts []core.Option
	if *configFile != "" {
		opts = append(opts, core.WithConfigFile(*configFile))
	}
	config, err := core.NewConfig(opts...)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(config.Logging, config.Name)
	logger.Info("Starting inference gateway", map[string]interface{}{
		"operation": "startup",
		"name":      config.Name,
		"address":   config.Address,
		"port":      config.Port,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if config.Telemetry.Enabled {
		provider, err := telemetry.NewOTelProvider(config.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Telemetry shutdown failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}

	redisClient, err := executor.NewRedisClient(config.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	store := executor.NewRedisTaskStore(redisClient, &executor.RedisTaskStoreConfig{
		QueueKey:   config.Executor.QueueName,
		Expiration: config.Executor.TaskExpiration,
		Logger:     logger,
	})

	models, err := model.NewRegistry(config.Models, logger)
	if err != nil {
		return err
	}

	exec := executor.New(store, store, models, config.Executor, logger)

	var objects api.ObjectStore
	if config.OSS.Configured() {
		ossClient, err := oss.NewClient(config.OSS, logger)
		if err != nil {
			return err
		}
		objects = ossClient
	} else {
		logger.Info("Object storage not configured, file endpoints disabled", map[string]interface{}{
			"operation": "startup",
		})
	}

	addr := fmt.Sprintf("%s:%d", config.Address, config.Port)
	server := api.NewServer(addr, config.HTTP, exec, models, objects, logger)
	return server.Run(ctx, config.Name)
}
