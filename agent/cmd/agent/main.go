package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pulsewatch/pulsewatch/agent/internal/config"
	"github.com/pulsewatch/pulsewatch/agent/internal/device"
	"github.com/pulsewatch/pulsewatch/agent/internal/shipper"
	"github.com/pulsewatch/pulsewatch/pkg/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsewatch-agent: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Agent.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsewatch-agent: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("agent: config loaded",
		zap.String("server_endpoint", cfg.Agent.ServerEndpoint),
		zap.Int("devices", len(cfg.Agent.Devices)),
		zap.Duration("poll_interval", cfg.Agent.PollInterval),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fleet := &pollers{log: log}
	fleet.set(cfg.Agent.Devices)

	// Device list changes apply on the next poll tick; the endpoint,
	// interval and buffer size need a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, log, func(updated *config.Config) {
			fleet.set(updated.Agent.Devices)
		}); err != nil {
			log.Error("agent: config watcher stopped", zap.Error(err))
		}
	}()

	ship := shipper.New(cfg.Agent, log)
	go ship.Run(ctx)

	ticker := time.NewTicker(cfg.Agent.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("agent: shutting down", zap.Int("unsent", ship.Pending()))
			return
		case <-ticker.C:
			for _, p := range fleet.get() {
				r, err := p.Poll(ctx)
				switch {
				case errors.Is(err, device.ErrNoReading):
					continue
				case err != nil:
					log.Warn("agent: poll failed", zap.String("device", p.ID()), zap.Error(err))
					continue
				}
				ship.Ship(r)
			}
		}
	}
}

// pollers is the hot-swappable set of device pollers.
type pollers struct {
	log *zap.Logger
	mu  sync.RWMutex
	all []*device.Poller
}

func (f *pollers) set(devs []config.Device) {
	next := make([]*device.Poller, 0, len(devs))
	for _, d := range devs {
		p, err := device.New(d)
		if err != nil {
			f.log.Error("agent: skipping device, could not build poller", zap.String("device", d.ID), zap.Error(err))
			continue
		}
		next = append(next, p)
		f.log.Info("agent: registered device", zap.String("id", d.ID), zap.String("endpoint", d.Endpoint))
	}
	if len(next) == 0 {
		f.log.Warn("agent: no devices configured, agent will idle")
	}

	f.mu.Lock()
	f.all = next
	f.mu.Unlock()
}

func (f *pollers) get() []*device.Poller {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.all
}
