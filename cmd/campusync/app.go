package main

import (
	"context"
	"net/http"

	"github.com/kimhsiao/campusync/internal/api"
	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/metrics"
	"github.com/kimhsiao/campusync/internal/network"
	"github.com/kimhsiao/campusync/internal/offline"
	"github.com/kimhsiao/campusync/internal/store"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
	"github.com/kimhsiao/campusync/internal/sync/queue"
)

// app is the wired sync layer used by every command.
type app struct {
	store   *store.Store
	queue   *queue.SyncQueue
	monitor *network.Monitor
	prober  *network.Prober
	metrics *metrics.Recorder
	client  *offline.Client
}

// openApp opens the store and wires the facade. Unless forced offline,
// the server is probed once so the first command sees the real state.
func openApp(ctx context.Context, s *rootState, handlers ...syncpkg.EventHandler) (*app, error) {
	cfg := s.cfg
	logger := logging.Get()

	st, err := store.Open(ctx, cfg.Storage.DataDir, store.DefaultSchema(), logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		store:   st,
		queue:   queue.NewSyncQueue(st, queue.WithLogger(logger)),
		monitor: network.NewMonitor(false, logger),
		metrics: metrics.New(),
	}

	httpClient := &http.Client{Timeout: cfg.API.Timeout.Duration}
	remote := api.New(cfg.API.BaseURL, api.StaticToken(cfg.API.Token),
		api.WithHTTPClient(httpClient),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.Burst),
		api.WithLogger(logger),
	)

	opts := []offline.Option{}
	for _, h := range handlers {
		opts = append(opts, offline.WithEventHandler(h))
	}
	a.client, err = offline.New(offline.Deps{
		Store:   st,
		Queue:   a.queue,
		Remote:  remote,
		Monitor: a.monitor,
		Metrics: a.metrics,
		Logger:  logger,
	}, opts...)
	if err != nil {
		st.Close()
		return nil, err
	}

	if !s.flags.offline && cfg.API.BaseURL != "" {
		pc := network.DefaultProberConfig(cfg.API.BaseURL)
		pc.HealthPath = cfg.Network.HealthPath
		pc.Interval = cfg.Network.ProbeInterval.Duration
		pc.Timeout = cfg.Network.ProbeTimeout.Duration
		a.prober = network.NewProber(a.monitor, pc, nil)
		if err := a.prober.ProbeOnce(ctx); err != nil {
			logger.Warn("Server unreachable, working offline", logging.Fields{"error": err.Error()})
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.prober != nil {
		a.prober.Stop()
	}
	a.client.Close()
	a.monitor.Close()
	a.store.Close()
}
