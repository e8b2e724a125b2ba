package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"netsync/internal/config"
	servernet "netsync/internal/net"
	"netsync/internal/net/ws"
	"netsync/internal/sim"
	"netsync/internal/telemetry"
	"netsync/logging"
	loggingSinks "netsync/logging/sinks"
	"netsync/replication"
)

const shutdownTimeout = 5 * time.Second

// ErrAuthorityGone is returned by a peer whose connection to the authority
// closed.
var ErrAuthorityGone = errors.New("authority connection closed")

type Config struct {
	Runtime config.Config
	Logger  telemetry.Logger
	// Stdout receives the console log sink. Defaults to os.Stdout.
	Stdout io.Writer
	// Ready is called once the process is serving, with the HTTP listen
	// address for the authority.
	Ready func(addr string)
}

type runtime struct {
	logger   telemetry.Logger
	router   *logging.Router
	registry *prometheus.Registry
	metrics  telemetry.Metrics
	prom     *telemetry.PrometheusMetrics
}

func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Runtime.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rt, closeLogs, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer closeLogs()

	switch cfg.Runtime.Role {
	case config.RolePeer:
		return runPeer(ctx, cfg, rt)
	default:
		return runAuthority(ctx, cfg, rt)
	}
}

func newRuntime(cfg Config) (*runtime, func(), error) {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	router, closeFiles, err := buildRouter(cfg, fallbackLogger)
	if err != nil {
		return nil, nil, err
	}
	rt := &runtime{logger: telemetryLogger, router: router, metrics: telemetry.NopMetrics{}}

	if cfg.Runtime.Metrics.Enabled {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.prom = telemetry.NewPrometheusMetrics(rt.registry, cfg.Runtime.Metrics.Namespace)
		rt.metrics = rt.prom
	}

	closeLogs := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(ctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		closeFiles()
	}
	return rt, closeLogs, nil
}

func buildRouter(cfg Config, fallback *log.Logger) (*logging.Router, func(), error) {
	logCfg, err := routerConfig(cfg.Runtime)
	if err != nil {
		return nil, nil, err
	}

	var named []logging.NamedSink
	closeFiles := func() {}
	if logCfg.HasSink(logging.SinkConsole) {
		stdout := cfg.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		named = append(named, logging.NamedSink{Name: logging.SinkConsole, Sink: loggingSinks.NewConsoleSink(stdout)})
	}
	if logCfg.HasSink(logging.SinkJSON) {
		file, err := os.OpenFile(logCfg.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open json log: %w", err)
		}
		named = append(named, logging.NamedSink{Name: logging.SinkJSON, Sink: loggingSinks.NewJSON(file, logCfg.JSON.FlushInterval)})
		closeFiles = func() { file.Close() }
	}
	return logging.NewRouter(logging.SystemClock{}, logCfg, named, fallback), closeFiles, nil
}

// routerConfig maps the runtime logging section onto the router config.
func routerConfig(cfg config.Config) (logging.Config, error) {
	logCfg := logging.DefaultConfig()
	logCfg.EnabledSinks = nil
	severity, err := logging.ParseSeverity(cfg.Logging.Severity)
	if err != nil {
		return logCfg, err
	}
	logCfg.MinimumSeverity = severity
	if cfg.Logging.BufferSize > 0 {
		logCfg.BufferSize = cfg.Logging.BufferSize
	}
	logCfg.Fields = map[string]any{"role": cfg.Role}
	if cfg.Logging.Console {
		logCfg.EnableSink(logging.SinkConsole)
	}
	if path := cfg.Logging.JSONPath; path != "" {
		logCfg.EnableSink(logging.SinkJSON)
		logCfg.JSON.FilePath = path
		logCfg.JSON.FlushInterval = cfg.Logging.FlushInterval
	}
	return logCfg, logCfg.Validate()
}

func (rt *runtime) replicationOptions(cfg config.Config) replication.Options {
	return replication.Options{
		Publisher:      rt.router,
		Metrics:        rt.metrics,
		ResyncCapacity: cfg.ResyncCapacity,
	}
}

func (rt *runtime) transportOptions(cfg config.Config, messages *replication.MessageTable) ws.Options {
	return ws.Options{
		Messages:   messages,
		Publisher:  rt.router,
		Metrics:    rt.metrics,
		Logger:     rt.logger,
		SendQueue:  cfg.Transport.SendQueue,
		InboxLimit: cfg.Transport.InboxLimit,
		RateLimit:  rate.Limit(cfg.Transport.RateLimit),
		RateBurst:  cfg.Transport.RateBurst,
	}
}

func (rt *runtime) newLoop(cfg config.Config, h *host) *sim.Loop {
	return sim.NewLoop(h.repl, sim.LoopConfig{
		TickRate:        cfg.TickRate,
		CatchupMaxTicks: cfg.CatchupMaxTicks,
		PerEntityLimit:  16,
		WarningStep:     256,
	}, sim.LoopHooks{
		Step:      h.step,
		AfterStep: func(result sim.LoopStepResult) { logStep(rt.logger, result) },
		OnQueueWarning: func(length int) {
			rt.logger.Printf("[backpressure] command queue length=%d", length)
		},
	}, sim.Deps{Logger: rt.logger, Metrics: rt.metrics, Clock: logging.SystemClock{}})
}

// logStep reports ticks that ran over budget or had their delta clamped.
func logStep(logger telemetry.Logger, result sim.LoopStepResult) {
	if result.ClampedDelta {
		logger.Printf("[tick] tick=%d delta clamped to %.3fs (max %.3fs)", result.Tick, result.Delta, result.MaxDelta)
	}
	if result.Duration > result.Budget {
		logger.Printf("[tick] tick=%d took %s over budget %s delta=%.3fs", result.Tick, result.Duration, result.Budget, result.Delta)
	}
}

func runAuthority(ctx context.Context, cfg Config, rt *runtime) error {
	messages := replication.NewMessageTable()
	var repl *replication.Replicator
	opts := rt.transportOptions(cfg.Runtime, messages)
	// Every join forces a full resync.
	opts.OnConnect = func(replication.ConnID) { repl.ResyncAll() }
	server := ws.NewServer(opts)
	repl = replication.NewAuthority(server, rt.replicationOptions(cfg.Runtime))

	h, err := newHost(cfg.Runtime, repl, messages, rt.logger)
	if err != nil {
		return err
	}
	if err := h.seed(true); err != nil {
		return err
	}
	h.loop = rt.newLoop(cfg.Runtime, h)
	h.diagnostics = func() map[string]any {
		extra := map[string]any{
			"sessions": server.Sessions(),
			"logging":  rt.router.Stats(),
		}
		if rt.prom != nil {
			extra["metrics"] = rt.prom.Snapshot()
		}
		return extra
	}

	httpCfg := servernet.HTTPHandlerConfig{
		Socket: server,
		Pprof:  cfg.Runtime.Observability.PprofHandler(),
	}
	if rt.registry != nil {
		httpCfg.Metrics = promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})
	}
	srv := &http.Server{Addr: cfg.Runtime.Listen, Handler: servernet.NewHTTPHandler(h, httpCfg)}
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.logger.Printf("server listening on %s", listener.Addr())
		if cfg.Ready != nil {
			cfg.Ready(listener.Addr().String())
		}
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return h.loop.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Close(shutdownCtx)
		return errors.Join(err, srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func runPeer(ctx context.Context, cfg Config, rt *runtime) error {
	messages := replication.NewMessageTable()
	client := ws.NewClient(rt.transportOptions(cfg.Runtime, messages))
	repl := replication.NewPeer(client, rt.replicationOptions(cfg.Runtime))
	h, err := newHost(cfg.Runtime, repl, messages, rt.logger)
	if err != nil {
		return err
	}
	if err := h.seed(false); err != nil {
		return err
	}
	// Frames of unregistered types are dropped, so connect after registration.
	if err := client.Connect(ctx, cfg.Runtime.AuthorityURL); err != nil {
		return err
	}
	defer client.Close()
	h.loop = rt.newLoop(cfg.Runtime, h)
	if cfg.Ready != nil {
		cfg.Ready(cfg.Runtime.AuthorityURL)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.loop.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-client.Done():
			return fmt.Errorf("%w: %s", ErrAuthorityGone, client.Reason())
		}
	})
	return g.Wait()
}
