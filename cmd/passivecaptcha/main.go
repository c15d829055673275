package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/detection"
	httpx "github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/http"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/logger"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/metrics"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/sink"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath, logLevel, logFormat string

	root := &cobra.Command{
		Use:           "passivecaptcha",
		Short:         "Passive CAPTCHA telemetry relay and collector tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format: console or json")

	newLogger := func() *zap.Logger { return logger.New(logLevel, logFormat) }

	root.AddCommand(newServeCmd(&cfgPath, newLogger))
	root.AddCommand(newHealthcheckCmd())
	root.AddCommand(newReplayCmd(newLogger))
	return root
}

func newServeCmd(cfgPath *string, newLogger func() *zap.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the verification relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(*cfgPath)
			if err != nil {
				return err
			}
			log := newLogger()
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func newHealthcheckCmd() *cobra.Command {
	var host, port string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running relay's /healthz (for container health checks)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return performHealthCheck(host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "relay host")
	cmd.Flags().StringVar(&port, "port", "19890", "relay port")
	return cmd
}

func serve(parent context.Context, cfg config.Config, log *zap.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	tracker, ready, err := initializeTracker(ctx, cfg)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	appMetrics := metrics.New(reg)
	metricsCfg := metrics.LoadConfig()
	metricsCfg.Enabled = cfg.MetricsEnabled
	metricsCfg.Addr = cfg.MetricsAddr
	metricsServer := metrics.NewServer(metricsCfg, reg, log)
	if err := metricsServer.Start(ctx); err != nil {
		return err
	}

	sinks := initializeSinks(ctx, cfg.Outputs, log)

	env := httpx.Env{
		Cfg:        cfg,
		Emit:       createEmitFunc(sinks, appMetrics, log),
		Auth:       httpx.NewTokenAuth(cfg.SiteTokens),
		Tracker:    tracker,
		Classifier: httpx.NewClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout),
		Metrics:    appMetrics,
		Logger:     log.Named("http"),
		Ready:      ready,
	}
	if env.Classifier == nil {
		log.Warn("no classifier configured, every verification fails open")
	}

	srv := startHTTPServer(cfg, env, log)
	waitForShutdown(ctx, srv, metricsServer, sinks, log)
	return nil
}

// initializeSinks starts every configured output. Unknown outputs and sinks
// that fail to start are logged and skipped.
func initializeSinks(ctx context.Context, outputs []string, log *zap.Logger) []sink.Sink {
	if log == nil {
		log = zap.NewNop()
	}
	var sinks []sink.Sink
	for _, name := range outputs {
		var s sink.Sink
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "log":
			s = sink.NewLogSink()
		case "kafka":
			s = sink.NewKafkaSinkFromEnv(log)
		case "postgres", "pg":
			s = sink.NewPGSinkFromEnv(log)
		case "nats":
			s = sink.NewNATSSinkFromEnv(log)
		default:
			log.Warn("unknown output, skipping", zap.String("output", name))
			continue
		}
		if err := s.Start(ctx); err != nil {
			log.Error("sink failed to start", zap.String("sink", s.Name()), zap.Error(err))
			continue
		}
		log.Info("sink started", zap.String("sink", s.Name()))
		sinks = append(sinks, s)
	}
	return sinks
}

// initializeTracker picks the shared Redis tracker when configured and the
// in-process one otherwise. The returned probe backs /readyz.
func initializeTracker(ctx context.Context, cfg config.Config) (detection.Tracker, func(context.Context) error, error) {
	if cfg.RedisAddr == "" {
		return detection.NewMemoryTracker(cfg.TrackerTTL), nil, nil
	}
	client, err := detection.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, int(cfg.RedisDB))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect redis tracker")
	}
	ready := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return detection.NewRedisTracker(client, "", cfg.TrackerTTL), ready, nil
}

// createEmitFunc fans a batch out to every sink. A failing sink never
// blocks the others.
func createEmitFunc(sinks []sink.Sink, appMetrics *metrics.Metrics, log *zap.Logger) func(sink.Batch) {
	if log == nil {
		log = zap.NewNop()
	}
	return func(b sink.Batch) {
		for _, s := range sinks {
			start := time.Now()
			if err := s.Enqueue(b); err != nil {
				log.Warn("sink enqueue failed", zap.String("sink", s.Name()), zap.String("batch", b.BatchID), zap.Error(err))
				if appMetrics != nil {
					appMetrics.IncrementSinkErrors(s.Name(), "enqueue")
				}
				continue
			}
			if appMetrics != nil {
				appMetrics.IncrementBatchesIngested(s.Name())
				appMetrics.ObserveBatchFlushLatency(s.Name(), time.Since(start))
				if buf, ok := s.(sink.Buffered); ok {
					appMetrics.SetQueueDepth(s.Name(), float64(buf.Pending()))
				}
			}
		}
	}
}

func startHTTPServer(cfg config.Config, env httpx.Env, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           httpx.NewMux(env),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("relay listening", zap.String("addr", cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
		}
	}()
	return srv
}

// waitForShutdown blocks until ctx ends or SIGINT/SIGTERM arrives, then
// stops the servers and closes the sinks.
func waitForShutdown(ctx context.Context, srv *http.Server, metricsServer *metrics.Server, sinks []sink.Sink, log *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
	case <-ctx.Done():
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx, srv, metricsServer, sinks); err != nil {
		log.Warn("shutdown finished with errors", zap.Error(err))
	}
}

func shutdown(ctx context.Context, srv *http.Server, metricsServer *metrics.Server, sinks []sink.Sink) error {
	var err error
	if srv != nil {
		err = multierr.Append(err, srv.Shutdown(ctx))
	}
	if metricsServer != nil {
		err = multierr.Append(err, metricsServer.Shutdown(ctx))
	}
	for _, s := range sinks {
		if cerr := s.Close(); cerr != nil {
			err = multierr.Append(err, errors.Wrapf(cerr, "close %s", s.Name()))
		}
	}
	return err
}

// performHealthCheck expects "ok" from host:port/healthz.
func performHealthCheck(host, port string) error {
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + net.JoinHostPort(host, port) + "/healthz")
	if err != nil {
		return errors.Wrap(err, "failed to connect")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check failed with status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return errors.Wrap(err, "read health response")
	}
	if strings.TrimSpace(string(body)) != "ok" {
		return errors.Errorf("unexpected health response %q", body)
	}
	return nil
}
