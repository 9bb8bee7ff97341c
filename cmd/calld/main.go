package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/CyCoreSystems/ari/v6/client/native"

	"github.com/wazo-platform/wazo-calld-sub001/internal/adhocconf"
	"github.com/wazo-platform/wazo-calld-sub001/internal/amid"
	"github.com/wazo-platform/wazo-calld-sub001/internal/api"
	"github.com/wazo-platform/wazo-calld-sub001/internal/api/middleware"
	"github.com/wazo-platform/wazo-calld-sub001/internal/bus"
	"github.com/wazo-platform/wazo-calld-sub001/internal/calls"
	"github.com/wazo-platform/wazo-calld-sub001/internal/confd"
	"github.com/wazo-platform/wazo-calld-sub001/internal/config"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchboard"
	"github.com/wazo-platform/wazo-calld-sub001/internal/switchctl"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting wazo-calld",
		"http_addr", cfg.ListenAddr(),
		"ari_application", cfg.ARIApplication,
	)

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to load jwt secret", "error", err)
		os.Exit(1)
	}

	// Switch control interface.
	ariClient, err := native.Connect(&native.Options{
		Application:  cfg.ARIApplication,
		Username:     cfg.ARIUsername,
		Password:     cfg.ARIPassword,
		URL:          cfg.ARIURL,
		WebsocketURL: websocketURL(cfg.ARIURL),
	})
	if err != nil {
		slog.Error("failed to connect to switch control interface", "error", err)
		os.Exit(1)
	}
	defer ariClient.Close()

	// Manager interface for the operations the control interface lacks.
	manager, err := amid.Connect(cfg.AMIAddr, cfg.AMIUser, cfg.AMISecret)
	if err != nil {
		slog.Error("failed to connect to manager interface", "error", err)
		os.Exit(1)
	}
	defer manager.Close()

	// Event bus.
	publisher, err := bus.Connect(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		slog.Error("failed to connect to event bus", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	directory := confd.NewClient(cfg.ConfdURL, cfg.ConfdToken)

	// Application context for background goroutines.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Assemble the subsystems.
	cli := switchctl.NewARIClient(ariClient)
	acc := switchctl.NewAccessor(cli)
	store := switchctl.NewStateStore(cli)

	stats := calls.NewStats(publisher)
	machine := calls.NewStateMachine(acc, store, stats)
	stasis := calls.NewStasisHandler(acc, machine, publisher)
	relay := calls.NewRelay(acc, publisher)
	callService := calls.NewService(acc, publisher, manager, directory)
	switchboards := switchboard.NewOrchestrator(acc, publisher, directory, cfg.ARIApplication)
	conferences := adhocconf.NewOrchestrator(acc, store, publisher, manager, cfg.ARIApplication)

	// Switch event dispatch.
	dispatcher := switchctl.NewDispatcher()
	stasis.Register(dispatcher)
	relay.Register(dispatcher)
	switchboards.Register(dispatcher)
	conferences.Register(dispatcher)
	go dispatcher.Run(appCtx, ariClient)

	// Manager event stream: recordings are driven over the manager protocol
	// and only surface there.
	relay.RegisterManager(manager)

	// Inbound bus subscriptions.
	consumer, err := bus.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, relay.BusHandlers())
	if err != nil {
		slog.Error("failed to subscribe to event bus", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	go func() {
		if err := consumer.Run(appCtx); err != nil && appCtx.Err() == nil {
			slog.Error("bus consumer stopped", "error", err)
		}
	}()

	// HTTP server.
	limiter := middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig())
	defer limiter.Stop()

	handler := api.NewServer(api.Deps{
		Calls:        callService,
		Switchboards: switchboards,
		Conferences:  conferences,
		StatusFunc:   statusFunc(cli, manager, publisher),
		JWTSecret:    jwtSecret,
		RateLimiter:  limiter,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	appCancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("wazo-calld stopped")
}

// websocketURL derives the event websocket endpoint from the base ARI URL.
func websocketURL(ariURL string) string {
	ws := strings.Replace(ariURL, "http", "ws", 1)
	return strings.TrimSuffix(ws, "/") + "/events"
}

// statusFunc reports component connectivity for the health endpoint.
func statusFunc(cli *switchctl.ARIClient, manager *amid.Client, publisher *bus.AMQPPublisher) func() api.Status {
	return func() api.Status {
		st := api.Status{ARI: "ok", AMI: "ok", Bus: "ok", OK: true}
		if err := cli.Ping(); err != nil {
			st.ARI = "disconnected"
			st.OK = false
		}
		if !manager.Connected() {
			st.AMI = "disconnected"
			st.OK = false
		}
		if !publisher.Connected() {
			st.Bus = "disconnected"
			st.OK = false
		}
		return st
	}
}
