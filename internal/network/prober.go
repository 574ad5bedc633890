package network

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/campusync/internal/logging"
)

// ProberConfig holds prober configuration.
type ProberConfig struct {
	BaseURL    string
	HealthPath string        // appended to BaseURL (default: "/health")
	Interval   time.Duration // time between probes (default: 15 seconds)
	Timeout    time.Duration // per-probe timeout (default: 5 seconds)
}

// DefaultProberConfig returns default prober configuration for baseURL.
func DefaultProberConfig(baseURL string) ProberConfig {
	return ProberConfig{
		BaseURL:    baseURL,
		HealthPath: "/health",
		Interval:   15 * time.Second,
		Timeout:    5 * time.Second,
	}
}

// Prober periodically checks that the server is reachable and feeds the
// result into a Monitor.
type Prober struct {
	monitor *Monitor
	client  *http.Client
	url     string
	cfg     ProberConfig
	logger  *logging.Logger

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewProber creates a prober. client may be nil.
func NewProber(m *Monitor, cfg ProberConfig, client *http.Client) *Prober {
	def := DefaultProberConfig(cfg.BaseURL)
	if cfg.HealthPath == "" {
		cfg.HealthPath = def.HealthPath
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{
		monitor: m,
		client:  client,
		url:     strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.HealthPath, "/"),
		cfg:     cfg,
		logger:  m.logger.With(logging.Fields{"component": "prober"}),
	}
}

// ClassifyLatency maps a round-trip time to a quality hint.
func ClassifyLatency(rtt time.Duration) string {
	switch {
	case rtt < 150*time.Millisecond:
		return Quality4G
	case rtt < 500*time.Millisecond:
		return Quality3G
	case rtt < 1500*time.Millisecond:
		return Quality2G
	default:
		return QualitySlow2G
	}
}

// ProbeOnce issues one HEAD request and updates the monitor. Any HTTP
// response counts as reachable; only transport failures mean offline.
func (p *Prober) ProbeOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("Probe failed", logging.Fields{"url": p.url, "error": err.Error()})
		p.monitor.HandleOffline()
		return err
	}
	resp.Body.Close()
	rtt := time.Since(start)

	p.monitor.HandleQualityChange(ClassifyLatency(rtt))
	p.monitor.HandleOnline()
	return nil
}

// Start probes immediately and then every Interval until Stop or ctx ends.
func (p *Prober) Start(ctx context.Context) {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = true
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		_ = p.ProbeOnce(ctx)

		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				_ = p.ProbeOnce(ctx)
			}
		}
	}()

	p.logger.Info("Connectivity prober started", logging.Fields{
		"url":      p.url,
		"interval": p.cfg.Interval.String(),
	})
}

// Stop stops probing and waits for the loop to exit.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return
	}
	p.isRunning = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("Connectivity prober stopped")
}
