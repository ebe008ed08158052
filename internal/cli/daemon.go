// Package cli holds the wiring behind the synx commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/aretw0/synx"
	"github.com/aretw0/synx/internal/config"
	"github.com/aretw0/synx/internal/logging"
	synxhttp "github.com/aretw0/synx/pkg/adapters/http"
	"github.com/aretw0/synx/pkg/adapters/memory"
	"github.com/aretw0/synx/pkg/adapters/redis"
	"github.com/aretw0/synx/pkg/observability"
	"github.com/aretw0/synx/pkg/ports"
)

const shutdownTimeout = 5 * time.Second

// NewLogger builds the logger described by cfg.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logging.NewWriter(stderr, level, format), nil
}

// OpenDirectory connects the directory backend named in cfg.
func OpenDirectory(cfg config.DirectoryConfig) ports.Directory {
	if cfg.Backend == config.BackendRedis {
		return redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithCapacity(cfg.Capacity),
		)
	}
	return memory.NewRegion(cfg.Capacity)
}

// Daemon is a configured service together with its HTTP surface.
type Daemon struct {
	Service *synx.Service
	Metrics *observability.Metrics
	Streams *synxhttp.StreamManager

	cfg      config.Config
	logger   *slog.Logger
	handler  http.Handler
	mu       sync.Mutex
	listener net.Listener
}

// NewDaemon validates cfg and wires the service, metrics and HTTP handler.
func NewDaemon(cfg config.Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	streams := synxhttp.NewStreamManager(logger)

	svc, err := synx.New(
		synx.WithLogger(logger),
		synx.WithDirectory(OpenDirectory(cfg.Directory)),
		synx.WithHooks(observability.Chain(
			metrics.Hooks(),
			streams.Hooks(),
			observability.LogHooks(logger),
		)),
		synx.WithMergePolicy(cfg.Dispatch.MergePolicy),
		synx.WithMaxCallbacks(cfg.Dispatch.MaxCallbacks),
		synx.WithMaxHandles(cfg.Dispatch.MaxHandles),
		synx.WithPublishRetries(cfg.Dispatch.PublishRetries, cfg.Dispatch.PublishBackoff),
		synx.WithPollInterval(cfg.Dispatch.PollInterval),
	)
	if err != nil {
		return nil, err
	}

	return &Daemon{
		Service: svc,
		Metrics: metrics,
		Streams: streams,
		cfg:     cfg,
		logger:  logger,
		handler: synxhttp.NewHandler(svc,
			synxhttp.WithLogger(logger),
			synxhttp.WithStreams(streams),
			synxhttp.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
			synxhttp.WithRecover(cfg.HTTP.EnableRecover),
		),
	}, nil
}

// Handler returns the HTTP handler served by Run.
func (d *Daemon) Handler() http.Handler {
	return d.handler
}

// Addr returns the bound HTTP address once Run is listening.
func (d *Daemon) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Run follows the directory and serves HTTP until ctx is cancelled, then
// shuts both down and closes the service.
func (d *Daemon) Run(ctx context.Context) error {
	// Bind before starting anything so a busy address leaves nothing running.
	var ln net.Listener
	if d.cfg.HTTP.Addr != "" {
		var err error
		ln, err = net.Listen("tcp", d.cfg.HTTP.Addr)
		if err != nil {
			return errors.Join(fmt.Errorf("listen %s: %w", d.cfg.HTTP.Addr, err), d.Service.Close(context.Background()))
		}
		d.mu.Lock()
		d.listener = ln
		d.mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.Service.Run(gctx)
	})

	if ln != nil {
		srv := &http.Server{Handler: d.handler, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			d.logger.Info("serving http", "addr", ln.Addr().String())
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				d.logger.Warn("graceful shutdown did not complete", "error", err)
				return srv.Close()
			}
			return nil
		})
	}

	err := g.Wait()
	if cerr := d.Service.Close(context.Background()); cerr != nil {
		d.logger.Warn("closing service", "error", cerr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
