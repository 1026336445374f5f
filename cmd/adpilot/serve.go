package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/adpilot-bot/adpilot/config"
	"github.com/adpilot-bot/adpilot/internal/chat"
	"github.com/adpilot-bot/adpilot/internal/queue/streams"
	"github.com/adpilot-bot/adpilot/internal/schedule"
	"github.com/adpilot-bot/adpilot/internal/server"
	"github.com/adpilot-bot/adpilot/internal/worker"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant: workers, scheduler, chat poller and ops server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	return cmd
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)

	transport, err := chat.NewTelegramTransport(cfg.Telegram)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, transport, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr, err)
	}
	defer rdb.Close()

	for _, stream := range []string{cfg.Queues.ReportStream, cfg.Queues.MessageStream, cfg.Queues.SystemStream} {
		if err := streams.EnsureGroup(ctx, rdb, stream, cfg.Queues.Group); err != nil {
			return err
		}
	}
	publisher := streams.NewPublisher(rdb)
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "adpilot"
	}
	consumer := streams.NewConsumer(rdb, cfg.Queues.Group, hostname)

	meter := otel.GetMeterProvider().Meter("adpilot")
	tracer := otel.GetTracerProvider().Tracer("adpilot")
	dispatcher := worker.NewDispatcher(
		log.New(log.Writer(), "[WORKER] ", log.LstdFlags),
		a.store, a.orch, transport, consumer, cfg.Queues, meter, tracer)

	gateway := worker.NewGateway(log.New(log.Writer(), "[CHAT] ", log.LstdFlags), publisher, a.actions, cfg.Queues)
	poller, err := chat.NewTelegramPoller(cfg.Telegram, gateway, log.New(log.Writer(), "[CHAT] ", log.LstdFlags))
	if err != nil {
		return err
	}

	trigger, err := schedule.New(log.New(log.Writer(), "[SCHED] ", log.LstdFlags), publisher, rdb, cfg.Schedule, cfg.Queues)
	if err != nil {
		return err
	}

	srv := server.New(cfg.Server, cfg.Queues, server.Deps{
		Actions:   a.actions,
		Store:     a.store,
		Publisher: publisher,
		Logger:    log.New(log.Writer(), "[HTTP] ", log.LstdFlags),
	})

	errCh := make(chan error, 4)
	go func() { errCh <- dispatcher.Start(ctx) }()
	go func() { errCh <- poller.Run(ctx) }()
	go func() { errCh <- trigger.Run(ctx) }()
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Printf("component failed: %v", err)
			stop()
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
