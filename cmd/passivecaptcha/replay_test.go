package main

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	httpx "github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/http"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/config"
)

func TestGenerateSession(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)

	for _, mode := range []string{ModeHuman, ModeScripted} {
		t.Run(mode, func(t *testing.T) {
			events := generateSession(mode, rand.New(rand.NewSource(7)), start)
			if len(events) == 0 {
				t.Fatal("no events generated")
			}
			counts := map[string]int{}
			prev := int64(0)
			for i, e := range events {
				counts[e.Type]++
				if e.Time < start.UnixMilli() {
					t.Fatalf("event %d before start", i)
				}
				if e.Time < prev {
					t.Fatalf("event %d out of order: %d < %d", i, e.Time, prev)
				}
				prev = e.Time
			}
			for _, typ := range []string{event.MouseMove, event.Click, event.KeyDown, event.KeyUp, event.Scroll} {
				if counts[typ] == 0 {
					t.Errorf("no %s events", typ)
				}
			}
			if counts[event.KeyDown] != counts[event.KeyUp] {
				t.Errorf("unbalanced keys: %d down, %d up", counts[event.KeyDown], counts[event.KeyUp])
			}
		})
	}

	t.Run("human timing is jittered", func(t *testing.T) {
		events := humanSession(rand.New(rand.NewSource(1)), start)
		gaps := map[int64]bool{}
		var last int64
		for _, e := range events {
			if e.Type == event.MouseMove {
				if last != 0 {
					gaps[e.Time-last] = true
				}
				last = e.Time
			}
		}
		if len(gaps) < 3 {
			t.Errorf("expected varied movement gaps, got %v", gaps)
		}
	})

	t.Run("scripted timing is fixed", func(t *testing.T) {
		events := scriptedSession(start)
		var last int64
		for _, e := range events {
			if e.Type != event.MouseMove {
				continue
			}
			if last != 0 && e.Time-last != 10 {
				t.Fatalf("gap = %d, want 10", e.Time-last)
			}
			last = e.Time
		}
	})

	t.Run("same seed same session", func(t *testing.T) {
		a := humanSession(rand.New(rand.NewSource(42)), start)
		b := humanSession(rand.New(rand.NewSource(42)), start)
		if len(a) != len(b) || a[10] != b[10] {
			t.Error("sessions with the same seed should match")
		}
	})
}

func TestRunReplay(t *testing.T) {
	cfg := config.Defaults()
	cfg.SiteTokens = []string{"tok-1"}
	relay := httptest.NewServer(httpx.NewMux(httpx.Env{
		Cfg:    cfg,
		Auth:   httpx.NewTokenAuth(cfg.SiteTokens),
		Logger: zap.NewNop(),
	}))
	defer relay.Close()

	var out bytes.Buffer
	err := runReplay(context.Background(), replayOptions{
		Endpoint:   relay.URL,
		Token:      "tok-1",
		WebsiteURL: "https://shop.example.com/",
		Mode:       ModeHuman,
		Seed:       3,
		Timeout:    5 * time.Second,
	}, zap.NewNop(), &out)
	if err != nil {
		t.Fatalf("runReplay: %v", err)
	}

	var report replayReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v (%s)", err, out.String())
	}
	if report.SessionID == "" || report.Mode != ModeHuman {
		t.Errorf("report = %+v", report)
	}
	// The relay has no classifier, so its fail-open verdict comes back as a
	// regular server verdict.
	if report.Verification.IsBot || report.Verification.Confidence != cfg.FailOpenConfidence {
		t.Errorf("verification = %+v", report.Verification)
	}
	if report.Verification.FailOpen {
		t.Error("a server verdict should not be marked as local fail-open")
	}
}

func TestRunReplayUnreachableRelayFailsOpen(t *testing.T) {
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer relay.Close()

	var out bytes.Buffer
	err := runReplay(context.Background(), replayOptions{
		Endpoint: relay.URL,
		Mode:     ModeScripted,
		Seed:     1,
		Timeout:  5 * time.Second,
	}, zap.NewNop(), &out)
	if err != nil {
		t.Fatalf("runReplay: %v", err)
	}

	var report replayReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Verification.FailOpen || report.Verification.IsBot {
		t.Errorf("verification = %+v, want local fail-open", report.Verification)
	}
}
