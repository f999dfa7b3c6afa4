package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/pulsewatch/pulsewatch/pkg/logging"
	"github.com/pulsewatch/pulsewatch/pkg/rpc"
	"github.com/pulsewatch/pulsewatch/server/internal/api"
	"github.com/pulsewatch/pulsewatch/server/internal/config"
	"github.com/pulsewatch/pulsewatch/server/internal/ingest"
	"github.com/pulsewatch/pulsewatch/server/internal/live"
	"github.com/pulsewatch/pulsewatch/server/internal/notify"
	"github.com/pulsewatch/pulsewatch/server/internal/receiver"
	"github.com/pulsewatch/pulsewatch/server/internal/relay"
	"github.com/pulsewatch/pulsewatch/server/internal/report"
	"github.com/pulsewatch/pulsewatch/server/internal/store"
	"github.com/pulsewatch/pulsewatch/server/internal/store/postgres"
	"github.com/pulsewatch/pulsewatch/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsewatch-server: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Server.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsewatch-server: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, *configPath, log); err != nil {
		log.Error("server: exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, log *zap.Logger) error {
	s := cfg.Server
	log.Info("server: config loaded",
		zap.Int("grpc_port", s.GRPCPort),
		zap.Int("http_port", s.HTTPPort),
		zap.String("storage", s.Storage.Backend),
		zap.Int("queue_size", s.Live.QueueSize),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Stores.
	var (
		samples store.SampleStore
		alerts  store.AlertStore
	)
	switch s.Storage.Backend {
	case "postgres":
		db, err := postgres.Open(ctx, s.Storage.DSN(), s.Storage.AutoMigrate)
		if err != nil {
			return err
		}
		defer db.Close()
		samples, alerts = db.Samples(), db.Alerts()
	default:
		samples, alerts = store.NewSamples(), store.NewAlerts()
	}

	// Notification transports. A misconfigured transport is logged and
	// skipped; the rest still deliver.
	transports, email, err := s.Notify.Transports()
	if err != nil {
		log.Warn("server: some notification transports disabled", zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(log, s.Notify.Timeout, transports...)
	log.Info("server: notification transports", zap.Strings("transports", dispatcher.Transports()))

	var mailer report.Mailer
	if email != nil {
		mailer = email
	}

	pub := live.New(log, s.Live.QueueSize)
	defer pub.Close()

	coord := ingest.New(samples, alerts, dispatcher, pub, s.Ingest.DefaultDeviceID, log)
	reports := report.New(samples, mailer, log)

	// Relays to external brokers.
	var sinks []relay.Sink
	if k := s.Relay.Kafka; k.Enabled() {
		sink, err := relay.NewKafka(k.Brokers, k.Topic, k.WriteTimeout)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	if a := s.Relay.AMQP; a.Enabled() {
		sink, err := relay.NewAMQP(a.URL(), a.Queue)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
	}
	defer func() {
		if err := relay.CloseAll(sinks...); err != nil {
			log.Warn("server: close relays", zap.Error(err))
		}
	}()
	for _, sink := range sinks {
		go relay.New(pub, sink, log).Run(ctx)
	}

	// Hot-reload notification transports when the config file changes.
	go func() {
		err := config.Watch(ctx, configPath, log, func(c *config.Config) {
			ts, _, err := c.Server.Notify.Transports()
			if err != nil {
				log.Warn("server: some notification transports disabled", zap.Error(err))
			}
			dispatcher.Reload(ts...)
			log.Info("server: notification transports reloaded", zap.Strings("transports", dispatcher.Transports()))
		})
		if err != nil {
			log.Warn("server: config watch stopped", zap.Error(err))
		}
	}()

	// gRPC receiver.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(receiver.LoggingInterceptor(log)))
	rpc.RegisterIngestServer(grpcSrv, receiver.New(coord, log))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc :%d: %w", s.GRPCPort, err)
	}
	go func() {
		log.Info("server: gRPC receiver listening", zap.Int("port", s.GRPCPort))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("server: gRPC server stopped", zap.Error(err))
		}
	}()

	// WebSocket hub and REST API share the HTTP port.
	hub := ws.New(pub, log)
	go hub.Run(ctx)

	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", s.HTTPPort),
		Handler: api.New(api.Deps{
			Ingester:    coord,
			Samples:     samples,
			Alerts:      alerts,
			Reports:     reports,
			Live:        hub,
			Subscribers: pub.Count,
			Clients:     hub.Count,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("server: HTTP server listening", zap.Int("port", s.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server: HTTP server stopped", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("server: shutting down")

	grpcSrv.GracefulStop()
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	return httpSrv.Shutdown(sctx)
}
