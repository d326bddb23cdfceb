package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medkg/backend/internal/app"
	"github.com/medkg/backend/internal/config"
	"github.com/medkg/backend/internal/queue"
	"github.com/medkg/backend/internal/util"
	"github.com/medkg/backend/pkg/logger"
	"github.com/medkg/backend/pkg/logger/console"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "err", err)
	}

	deps, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialise dependencies", "err", err)
	}
	defer deps.Close()

	// Init rabbitmq
	conn, err := util.RetryWithContext(ctx, 5, time.Second, func(ctx context.Context) (*amqp.Connection, error) {
		return queue.Init()
	})
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	// Init rabbitmq queues if not exist
	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	queueName := cfg.Queue.Name
	if err := queue.SetupQueues(ch, []string{queueName}, 10*time.Second); err != nil {
		logger.Fatal("Failed to declare queues", "err", err)
	}

	// A separate consumer channel so prefetch does not affect publishing.
	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	workers := max(cfg.Resolver.Workers, 1)
	if err := consumerCh.Qos(workers, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queueName,
		fmt.Sprintf("%s_consumer", queueName),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queueName, "err", err)
	}

	handler := &queue.Handler{
		Resolver:   deps.Resolver,
		Publisher:  ch,
		QueueName:  queueName,
		MaxRetries: cfg.Queue.MaxRetries,
	}

	logger.Info("Listening for messages", "queue", queueName, "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case msg, ok := <-msgs:
					if !ok {
						logger.Info("Message channel closed", "queue", queueName)
						return nil
					}
					handler.HandleDelivery(gctx, msg)
					logAIMetrics(deps)
				}
			}
		})
	}
	_ = g.Wait()

	logger.Info("Shutdown signal received, exiting...")
}

func logAIMetrics(deps *app.Deps) {
	metrics := deps.AI.GetMetrics()
	logger.Debug(
		"AI Metrics",
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", time.Duration(metrics.DurationMs)*time.Millisecond,
	)
}
