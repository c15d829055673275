package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/detection"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/metrics"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/sink"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/config"
)

// Mock sink for testing
type mockSink struct {
	name     string
	mu       sync.Mutex
	batches  []sink.Batch
	startErr error
	enqErr   error
	closeErr error
	closed   bool
}

func (m *mockSink) Start(ctx context.Context) error { return m.startErr }

func (m *mockSink) Enqueue(b sink.Batch) error {
	if m.enqErr != nil {
		return m.enqErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, b)
	return nil
}

func (m *mockSink) Close() error {
	m.closed = true
	return m.closeErr
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

type bufferedSink struct {
	mockSink
	pending int
}

func (b *bufferedSink) Pending() int { return b.pending }

func TestInitializeSinks(t *testing.T) {
	ctx := context.Background()
	t.Setenv("LOG_PATH", t.TempDir()+"/batches.ndjson")

	t.Run("log sink", func(t *testing.T) {
		sinks := initializeSinks(ctx, []string{"log"}, nil)
		defer shutdown(ctx, nil, nil, sinks)

		if len(sinks) != 1 {
			t.Fatalf("expected 1 sink, got %d", len(sinks))
		}
		if sinks[0].Name() != "log" {
			t.Errorf("expected log sink, got %s", sinks[0].Name())
		}
	})

	t.Run("unknown output type is skipped and logged", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		sinks := initializeSinks(ctx, []string{"unknown", " LOG "}, zap.New(core))
		defer shutdown(ctx, nil, nil, sinks)

		if len(sinks) != 1 {
			t.Errorf("expected 1 sink, got %d", len(sinks))
		}
		if logs.FilterMessage("unknown output, skipping").Len() != 1 {
			t.Error("expected a warning for the unknown output")
		}
	})

	t.Run("postgres that cannot start is skipped", func(t *testing.T) {
		t.Setenv("PG_DSN", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
		core, logs := observer.New(zap.ErrorLevel)
		sinks := initializeSinks(ctx, []string{"postgres"}, zap.New(core))

		if len(sinks) != 0 {
			t.Errorf("expected 0 sinks, got %d", len(sinks))
		}
		if logs.FilterMessage("sink failed to start").Len() != 1 {
			t.Error("expected a start failure to be logged")
		}
	})
}

func TestInitializeTracker(t *testing.T) {
	t.Run("memory without redis", func(t *testing.T) {
		tracker, ready, err := initializeTracker(context.Background(), config.Defaults())
		if err != nil {
			t.Fatalf("initializeTracker: %v", err)
		}
		if _, ok := tracker.(*detection.MemoryTracker); !ok {
			t.Errorf("tracker = %T, want *detection.MemoryTracker", tracker)
		}
		if ready != nil {
			t.Error("memory tracker needs no readiness probe")
		}
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := config.Defaults()
		cfg.RedisAddr = "127.0.0.1:1"
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, _, err := initializeTracker(ctx, cfg); err == nil {
			t.Error("expected an error for an unreachable redis")
		}
	})
}

func TestCreateEmitFunc(t *testing.T) {
	batch := sink.Batch{BatchID: "b-123", Kind: sink.KindVerify}

	t.Run("successful emit to all sinks", func(t *testing.T) {
		mock1 := &mockSink{name: "sink1"}
		mock2 := &mockSink{name: "sink2"}
		m := metrics.New(prometheus.NewRegistry())

		createEmitFunc([]sink.Sink{mock1, mock2}, m, nil)(batch)

		if mock1.count() != 1 || mock2.count() != 1 {
			t.Fatalf("counts = %d/%d, want 1/1", mock1.count(), mock2.count())
		}
		if mock1.batches[0].BatchID != "b-123" {
			t.Errorf("batch id = %s, want b-123", mock1.batches[0].BatchID)
		}
		if n := testutil.ToFloat64(m.BatchesIngested.WithLabelValues("sink2")); n != 1 {
			t.Errorf("ingested metric = %v, want 1", n)
		}
	})

	t.Run("failing sink does not block others", func(t *testing.T) {
		failing := &mockSink{name: "failing-sink", enqErr: fmt.Errorf("enqueue failed")}
		working := &mockSink{name: "working-sink"}
		m := metrics.New(prometheus.NewRegistry())
		core, logs := observer.New(zap.WarnLevel)

		createEmitFunc([]sink.Sink{failing, working}, m, zap.New(core))(batch)

		if working.count() != 1 {
			t.Error("working sink should receive the batch despite the failing sink")
		}
		if n := testutil.ToFloat64(m.SinkErrors.WithLabelValues("failing-sink", "enqueue")); n != 1 {
			t.Errorf("sink error metric = %v, want 1", n)
		}
		if logs.FilterMessage("sink enqueue failed").Len() != 1 {
			t.Error("expected the failure to be logged")
		}
	})

	t.Run("reports queue depth of buffered sinks", func(t *testing.T) {
		pg := &bufferedSink{mockSink: mockSink{name: "postgres"}, pending: 7}
		m := metrics.New(prometheus.NewRegistry())

		createEmitFunc([]sink.Sink{pg}, m, nil)(batch)

		if n := testutil.ToFloat64(m.QueueDepth.WithLabelValues("postgres")); n != 7 {
			t.Errorf("queue depth = %v, want 7", n)
		}
	})

	t.Run("nil metrics and no sinks", func(t *testing.T) {
		createEmitFunc(nil, nil, nil)(batch)
		createEmitFunc([]sink.Sink{&mockSink{name: "x"}}, nil, nil)(batch)
	})
}

func TestShutdown(t *testing.T) {
	t.Run("closes every sink and joins errors", func(t *testing.T) {
		ok := &mockSink{name: "ok"}
		bad := &mockSink{name: "bad", closeErr: fmt.Errorf("close error")}
		srv := &http.Server{Addr: "127.0.0.1:0"}
		ms := metrics.NewServer(metrics.Config{Enabled: false, Addr: ":0"}, prometheus.NewRegistry(), nil)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := shutdown(ctx, srv, ms, []sink.Sink{bad, ok})

		if !ok.closed || !bad.closed {
			t.Error("every sink should be closed")
		}
		if err == nil || !strings.Contains(err.Error(), "close bad") {
			t.Errorf("err = %v, want close bad error", err)
		}
	})

	t.Run("waitForShutdown returns when context ends", func(t *testing.T) {
		s := &mockSink{name: "s"}
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			waitForShutdown(ctx, &http.Server{Addr: "127.0.0.1:0"}, nil, []sink.Sink{s}, zap.NewNop())
			close(done)
		}()
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("shutdown took too long")
		}
		if !s.closed {
			t.Error("sink should be closed on shutdown")
		}
	})
}

func TestPerformHealthCheck(t *testing.T) {
	serve := func(h http.HandlerFunc) (string, string, func()) {
		srv := httptest.NewServer(h)
		host, port, _ := net.SplitHostPort(strings.TrimPrefix(srv.URL, "http://"))
		return host, port, srv.Close
	}

	t.Run("successful health check", func(t *testing.T) {
		host, port, stop := serve(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				_, _ = w.Write([]byte("ok"))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		})
		defer stop()

		if err := performHealthCheck(host, port); err != nil {
			t.Errorf("health check should succeed: %v", err)
		}
	})

	t.Run("connection error", func(t *testing.T) {
		err := performHealthCheck("127.0.0.1", "1")
		if err == nil || !strings.Contains(err.Error(), "failed to connect") {
			t.Errorf("err = %v, want connection failure", err)
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		host, port, stop := serve(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		defer stop()

		err := performHealthCheck(host, port)
		if err == nil || !strings.Contains(err.Error(), "status") {
			t.Errorf("err = %v, want status error", err)
		}
	})

	t.Run("wrong response body", func(t *testing.T) {
		host, port, stop := serve(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("wrong"))
		})
		defer stop()

		err := performHealthCheck(host, port)
		if err == nil || !strings.Contains(err.Error(), "unexpected") {
			t.Errorf("err = %v, want unexpected response error", err)
		}
	})
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"serve": false, "healthcheck": false, "replay": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("missing --config flag")
	}
}
