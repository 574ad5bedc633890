package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kimhsiao/campusync/internal/logging"
	"github.com/kimhsiao/campusync/internal/network"
	"github.com/kimhsiao/campusync/internal/offline"
	"github.com/kimhsiao/campusync/internal/statusfeed"
	syncpkg "github.com/kimhsiao/campusync/internal/sync"
	"github.com/kimhsiao/campusync/internal/sync/scheduler"
)

func newServeCmd(s *rootState) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep syncing in the background and serve status endpoints",
		Long: `Keep syncing in the background and serve status endpoints.

Endpoints:
  /ws       websocket feed of network and sync events
  /status   JSON snapshot of connectivity, queue and scheduler
  /metrics  Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("listen") {
				s.cfg.Server.ListenAddr = listen
			}
			return serve(cmd.Context(), s)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}

// server bundles the long-running components of serve.
type server struct {
	app       *app
	hub       *statusfeed.Hub
	scheduler *scheduler.Scheduler
}

func serve(ctx context.Context, s *rootState) error {
	logger := logging.Get()

	var hub *statusfeed.Hub
	a, err := openApp(ctx, s, func(ev syncpkg.Event) {
		if hub != nil {
			hub.HandleSyncEvent(ev)
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	hub = statusfeed.NewHub(a.monitor, logger)
	defer hub.Close()

	sched := scheduler.NewScheduler(a.client, a.monitor, &scheduler.SchedulerConfig{
		Debounce: s.cfg.Sync.Debounce.Duration,
		Interval: s.cfg.Sync.Interval.Duration,
		Logger:   logger,
	})
	sched.Start(ctx)
	defer sched.Stop()

	if a.prober != nil {
		a.prober.Start(ctx)
	}

	srv := &server{app: a, hub: hub, scheduler: sched}
	httpSrv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Status server listening", logging.Fields{"addr": httpSrv.Addr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("Status server stopped")
	return nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", s.app.metrics.Handler())
	mux.HandleFunc("POST /sync", s.handleSync)
	return mux
}

// statusResponse is the /status body.
type statusResponse struct {
	Network   network.State             `json:"network"`
	Sync      offline.Status            `json:"sync"`
	Scheduler scheduler.SchedulerStatus `json:"scheduler"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	syncStatus, err := s.app.client.SyncStatus(r.Context())
	if err != nil {
		http.Error(w, "Failed to read sync queue", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	printJSON(w, statusResponse{
		Network:   s.app.monitor.State(),
		Sync:      syncStatus,
		Scheduler: s.scheduler.Status(),
	})
}

// handleSync starts a background run; 409 when one is already active.
func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.scheduler.TriggerSync(context.WithoutCancel(r.Context())) {
		http.Error(w, "Sync already in progress", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
