package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestLoadConfig tests the configuration loading from environment
func TestLoadConfig(t *testing.T) {
	envVars := []string{
		"METRICS_ENABLED", "METRICS_ADDR", "METRICS_TLS_CERT",
		"METRICS_TLS_KEY", "METRICS_CLIENT_CA", "METRICS_REQUIRE_TLS",
	}
	oldValues := make(map[string]string)
	for _, key := range envVars {
		oldValues[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, val := range oldValues {
			if val != "" {
				os.Setenv(key, val)
			} else {
				os.Unsetenv(key)
			}
		}
	}()

	t.Run("returns defaults when env not set", func(t *testing.T) {
		cfg := LoadConfig()

		if cfg.Enabled {
			t.Error("Enabled should be false by default")
		}
		if cfg.Addr != "127.0.0.1:9090" {
			t.Errorf("Addr = %q, want 127.0.0.1:9090", cfg.Addr)
		}
		if cfg.RequireTLS {
			t.Error("RequireTLS should be false by default")
		}
	})

	t.Run("loads custom values from environment", func(t *testing.T) {
		os.Setenv("METRICS_ENABLED", "true")
		os.Setenv("METRICS_ADDR", "0.0.0.0:8080")
		os.Setenv("METRICS_TLS_CERT", "/path/to/cert.pem")
		os.Setenv("METRICS_TLS_KEY", "/path/to/key.pem")
		os.Setenv("METRICS_REQUIRE_TLS", "true")

		cfg := LoadConfig()

		if !cfg.Enabled {
			t.Error("Enabled should be true")
		}
		if cfg.Addr != "0.0.0.0:8080" {
			t.Errorf("Addr = %q, want 0.0.0.0:8080", cfg.Addr)
		}
		if cfg.TLSCert != "/path/to/cert.pem" || cfg.TLSKey != "/path/to/key.pem" {
			t.Errorf("TLS = %q/%q", cfg.TLSCert, cfg.TLSKey)
		}
		if !cfg.RequireTLS {
			t.Error("RequireTLS should be true")
		}
	})
}

// TestGetBool tests the boolean environment helper
func TestGetBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{name: "returns default when not set", value: "", defaultValue: true, want: true},
		{name: "parses 'true'", value: "true", defaultValue: false, want: true},
		{name: "parses '0'", value: "0", defaultValue: true, want: false},
		{name: "returns default for invalid value", value: "maybe", defaultValue: true, want: true},
	}

	const key = "TEST_METRICS_GETBOOL"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				os.Setenv(key, tt.value)
				defer os.Unsetenv(key)
			} else {
				os.Unsetenv(key)
			}

			if got := getBool(key, tt.defaultValue); got != tt.want {
				t.Errorf("getBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRelayMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementBatchesIngested("log")
	m.IncrementBatchesIngested("log")
	m.IncrementBatchesIngested("kafka")
	m.IncrementSinkErrors("postgres", "flush_error")
	m.IncrementHTTPRequests("/prototype/api/verify", "POST", "200")
	m.IncrementVerdicts("fail-open")
	m.SetQueueDepth("kafka", 12)
	m.ObserveBatchFlushLatency("postgres", 50*time.Millisecond)
	m.ObserveHTTPDuration("/prototype/api/verify", "POST", 10*time.Millisecond)

	if got := testutil.ToFloat64(m.BatchesIngested.WithLabelValues("log")); got != 2 {
		t.Errorf("batches ingested (log) = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("postgres", "flush_error")); got != 1 {
		t.Errorf("sink errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Verdicts.WithLabelValues("fail-open")); got != 1 {
		t.Errorf("verdicts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth.WithLabelValues("kafka")); got != 12 {
		t.Errorf("queue depth = %v, want 12", got)
	}
	if n := testutil.CollectAndCount(m.HTTPDuration); n != 1 {
		t.Errorf("http duration series = %d, want 1", n)
	}
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	New(reg)
}

func TestCollectorMetrics(t *testing.T) {
	t.Run("nil collector is a no-op", func(t *testing.T) {
		var m *Collector
		m.Sampled("movement")
		m.Dropped("movement")
		m.Flush("fetch", "ok", time.Millisecond)
		m.Windows(map[string]int{"movement": 3})
		if NewCollector(nil) != nil {
			t.Error("NewCollector(nil) should be nil")
		}
	})

	t.Run("records per channel", func(t *testing.T) {
		m := NewCollector(prometheus.NewRegistry())
		m.Sampled("movement")
		m.Sampled("movement")
		m.Dropped("click")
		m.Flush("legacy", "ok", 20*time.Millisecond)
		m.Windows(map[string]int{"movement": 100, "click": 4})

		if got := testutil.ToFloat64(m.EventsSampled.WithLabelValues("movement")); got != 2 {
			t.Errorf("sampled = %v, want 2", got)
		}
		if got := testutil.ToFloat64(m.EventsDropped.WithLabelValues("click")); got != 1 {
			t.Errorf("dropped = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.Flushes.WithLabelValues("legacy", "ok")); got != 1 {
			t.Errorf("flushes = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.WindowLength.WithLabelValues("movement")); got != 100 {
			t.Errorf("window length = %v, want 100", got)
		}
	})
	t.Run("shared registry reuses vectors", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		a := NewCollector(reg)
		b := NewCollector(reg)
		a.Sampled("movement")
		b.Sampled("movement")

		if a.EventsSampled != b.EventsSampled {
			t.Error("second collector should reuse the registered vector")
		}
		if got := testutil.ToFloat64(a.EventsSampled.WithLabelValues("movement")); got != 2 {
			t.Errorf("sampled = %v, want 2", got)
		}
	})
}

// TestNewServer tests metrics server creation
func TestNewServer(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true, Addr: "localhost:9090"}, prometheus.NewRegistry(), nil)

		if srv.server == nil {
			t.Fatal("server.server should not be nil")
		}
		if srv.config.Addr != "localhost:9090" {
			t.Errorf("config.Addr = %q, want localhost:9090", srv.config.Addr)
		}
	})

	t.Run("configures TLS when enabled", func(t *testing.T) {
		cfg := Config{
			Enabled:    true,
			Addr:       "localhost:9090",
			RequireTLS: true,
			TLSCert:    "/path/to/cert.pem",
			TLSKey:     "/path/to/key.pem",
			ClientCA:   filepath.Join(t.TempDir(), "missing-ca.pem"),
		}

		srv := NewServer(cfg, prometheus.NewRegistry(), nil)

		if srv.server.TLSConfig == nil {
			t.Fatal("TLSConfig should be set when RequireTLS is true")
		}
		if srv.server.TLSConfig.ClientCAs != nil {
			t.Error("unreadable client CA should leave mTLS off")
		}
	})

	t.Run("does not configure TLS when disabled", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true, Addr: "localhost:9090"}, prometheus.NewRegistry(), nil)
		if srv.server.TLSConfig != nil {
			t.Error("TLSConfig should be nil when RequireTLS is false")
		}
	})

	t.Run("sets timeouts for security", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true}, prometheus.NewRegistry(), nil)

		if srv.server.ReadTimeout != 10*time.Second {
			t.Errorf("ReadTimeout = %v, want 10s", srv.server.ReadTimeout)
		}
		if srv.server.WriteTimeout != 10*time.Second {
			t.Errorf("WriteTimeout = %v, want 10s", srv.server.WriteTimeout)
		}
		if srv.server.IdleTimeout != 60*time.Second {
			t.Errorf("IdleTimeout = %v, want 60s", srv.server.IdleTimeout)
		}
	})
}

func TestServerRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.IncrementBatchesIngested("nats")
	srv := NewServer(Config{Enabled: true}, reg, nil)

	t.Run("health endpoint returns OK", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		body, _ := io.ReadAll(w.Body)
		if w.Code != http.StatusOK || string(body) != "OK" {
			t.Errorf("healthz = %d %q", w.Code, body)
		}
	})

	t.Run("metrics endpoint exposes registry", func(t *testing.T) {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if !strings.Contains(w.Body.String(), `passivecaptcha_batches_ingested_total{sink="nats"} 1`) {
			t.Errorf("metrics body missing counter:\n%s", w.Body.String())
		}
	})
}

func TestServerLifecycle(t *testing.T) {
	t.Run("disabled server is a no-op", func(t *testing.T) {
		srv := NewServer(Config{Enabled: false}, prometheus.NewRegistry(), nil)
		if err := srv.Start(context.Background()); err != nil {
			t.Errorf("Start() should not error when disabled: %v", err)
		}
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() should not error when disabled: %v", err)
		}
	})

	t.Run("shuts down running server", func(t *testing.T) {
		srv := NewServer(Config{Enabled: true, Addr: "localhost:0"}, prometheus.NewRegistry(), nil)
		if err := srv.Start(context.Background()); err != nil {
			t.Fatalf("Start() failed: %v", err)
		}
		time.Sleep(100 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() failed: %v", err)
		}
	})
}
