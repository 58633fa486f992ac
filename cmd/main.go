package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/okian/moodblocks/internal/adapters/http/api"
	"github.com/okian/moodblocks/internal/adapters/http/swagger"
	"github.com/okian/moodblocks/internal/adapters/ledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/gateway"
	"github.com/okian/moodblocks/internal/adapters/ledger/memledger"
	"github.com/okian/moodblocks/internal/adapters/ledger/natsfeed"
	service "github.com/okian/moodblocks/internal/app"
	"github.com/okian/moodblocks/internal/config"
	"github.com/okian/moodblocks/pkg/logger"
	"github.com/okian/moodblocks/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Custom system gauges replace the default Go collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		_, _ = os.Stderr.WriteString("moodblocks: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		// Logger is not configured yet.
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.InitWith(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	client, closeLedger, err := buildLedger(cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	svc := newService(client, cfg, log)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	mux := http.NewServeMux()
	swagger.Register(mux)
	apiServer := newAPIServer(svc, cfg, log)
	apiServer.Register(mux)

	srv := newHTTPServer(cfg.Addr, mux)
	srv.RegisterOnShutdown(apiServer.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		every := cfg.MetricsRefresh
		if every <= 0 {
			every = metrics.Global().RefreshInterval()
		}
		runSystemMetrics(gctx, every)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "server shutdown failed", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// buildLedger picks the ledger client and, when configured, swaps its live
// feed for NATS. The returned func releases whatever was opened.
func buildLedger(cfg *config.Config, log logger.Logger) (ledger.Client, func(), error) {
	var client ledger.Client
	switch cfg.LedgerMode {
	case config.LedgerGateway:
		opts := []gateway.Option{gateway.WithLogger(log.Named("gateway"))}
		if cfg.LedgerWSURL != "" {
			opts = append(opts, gateway.WithWebsocketURL(cfg.LedgerWSURL))
		}
		gw, err := gateway.New(cfg.LedgerURL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("ledger gateway: %w", err)
		}
		client = gw
	default:
		client = memledger.New(memledger.WithEvent(cfg.EventName))
	}

	if cfg.LiveSource != config.LiveNATS {
		return client, func() {}, nil
	}

	conn, err := natsfeed.Connect(cfg.NATSURL, log.Named("nats"))
	if err != nil {
		return nil, nil, fmt.Errorf("live feed: %w", err)
	}
	feed := natsfeed.New(conn,
		natsfeed.WithPrefix(cfg.NATSSubjectPrefix),
		natsfeed.WithLogger(log.Named("natsfeed")),
	)
	return ledger.WithSubscriber(client, feed), func() { _ = conn.Drain() }, nil
}

func newService(client ledger.Client, cfg *config.Config, log logger.Logger) *service.Service {
	return service.New(client,
		service.WithLogger(log.Named("service")),
		service.WithIdentity(cfg.Identity),
		service.WithEvent(cfg.EventName),
		service.WithRefreshInterval(cfg.RefreshInterval),
		service.WithFetchTimeout(cfg.FetchTimeout),
		service.WithShutdownTimeout(cfg.ShutdownTimeout),
		service.WithSnapshotMaxEntries(cfg.SnapshotMaxEntries),
		service.WithInboxSize(cfg.InboxSize),
		service.WithDedupeSize(cfg.DedupeSize),
	)
}

func newAPIServer(svc *service.Service, cfg *config.Config, log logger.Logger) *api.Server {
	return api.NewServer(svc,
		api.WithSubmitLimit(cfg.SubmitRate, cfg.SubmitBurst),
		api.WithStreamInterval(cfg.StreamInterval),
		api.WithLogger(log.Named("api")),
	)
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// runSystemMetrics refreshes the system gauges until ctx is done.
func runSystemMetrics(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	updateSystemMetrics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond)
	}
}
