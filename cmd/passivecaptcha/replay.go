package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/fingerprint"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/collector"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/config"
)

// Replay modes.
const (
	ModeHuman    = "human"
	ModeScripted = "scripted"
)

const replayUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

type replayOptions struct {
	Endpoint   string
	Token      string
	WebsiteURL string
	Mode       string
	Seed       int64
	Timeout    time.Duration
	Debug      bool
}

func newReplayCmd(newLogger func() *zap.Logger) *cobra.Command {
	var o replayOptions
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Drive a collector with a synthetic session against a relay and print the verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.Mode != ModeHuman && o.Mode != ModeScripted {
				return errors.Errorf("unknown mode %q (want %s or %s)", o.Mode, ModeHuman, ModeScripted)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runReplay(ctx, o, newLogger(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&o.Endpoint, "endpoint", "http://127.0.0.1:19890", "relay base URL")
	cmd.Flags().StringVar(&o.Token, "token", "", "site script token")
	cmd.Flags().StringVar(&o.WebsiteURL, "website", "https://example.com/", "embedding page URL")
	cmd.Flags().StringVar(&o.Mode, "mode", ModeHuman, "synthetic behaviour: human or scripted")
	cmd.Flags().Int64Var(&o.Seed, "seed", 0, "random seed (0 uses the clock)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 15*time.Second, "how long to wait for a verdict")
	cmd.Flags().BoolVar(&o.Debug, "debug", false, "log collector internals")
	return cmd
}

// runReplay starts a collector, feeds it one synthetic session, flushes and
// writes the first verdict it publishes to out.
func runReplay(ctx context.Context, o replayOptions, log *zap.Logger, out io.Writer) error {
	cfg := config.CollectorDefaults()
	cfg.APIEndpoint = o.Endpoint
	cfg.ScriptToken = o.Token
	cfg.WebsiteURL = o.WebsiteURL
	cfg.SamplingRate = 1
	cfg.DebugMode = o.Debug
	cfg.SendInterval = o.Timeout.Milliseconds() * 2

	seed := o.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	c := collector.New(collector.Options{
		Config:     cfg,
		Probes:     fingerprint.Desktop(replayUA),
		UserAgent:  replayUA,
		Logger:     log,
		Rand:       rand.New(rand.NewSource(seed)),
		HTTPClient: &http.Client{Timeout: o.Timeout},
	})
	defer c.Close()

	verdicts := make(chan collector.VerificationResult, 1)
	unsubscribe := c.Subscribe(func(r collector.VerificationResult) {
		select {
		case verdicts <- r:
		default:
		}
	})
	defer unsubscribe()

	c.Start(ctx)
	events := generateSession(o.Mode, rand.New(rand.NewSource(seed+1)), time.Now())
	for _, e := range events {
		c.Dispatch(e)
	}
	log.Info("replaying synthetic session",
		zap.String("session", c.SessionID()),
		zap.String("mode", o.Mode),
		zap.Int("events", len(events)),
		zap.String("types", describe(events)),
	)
	c.SendData()

	select {
	case r := <-verdicts:
		return writeReport(out, c.SessionID(), o.Mode, c.Metrics(), r)
	case <-time.After(o.Timeout):
		return errors.New("timed out waiting for a verdict")
	case <-ctx.Done():
		return ctx.Err()
	}
}

type replayReport struct {
	SessionID    string                       `json:"sessionId"`
	Mode         string                       `json:"mode"`
	Metrics      collector.BehaviorMetrics    `json:"metrics"`
	Verification collector.VerificationResult `json:"verification"`
}

func writeReport(out io.Writer, sessionID, mode string, m collector.BehaviorMetrics, r collector.VerificationResult) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(replayReport{SessionID: sessionID, Mode: mode, Metrics: m, Verification: r}); err != nil {
		return errors.Wrap(err, "write report")
	}
	return nil
}

// generateSession returns a few seconds of interaction starting at start.
// Human sessions wander with jittered timing; scripted ones move in straight
// lines on a fixed cadence.
func generateSession(mode string, rng *rand.Rand, start time.Time) []event.RawEvent {
	if mode == ModeScripted {
		return scriptedSession(start)
	}
	return humanSession(rng, start)
}

func humanSession(rng *rand.Rand, start time.Time) []event.RawEvent {
	t := start.UnixMilli()
	var out []event.RawEvent
	add := func(e event.RawEvent) {
		e.Time = t
		out = append(out, e)
	}

	add(event.RawEvent{Type: event.Focus, Target: "input"})

	// A curved approach to a button with eased speed and hand tremor.
	x0, y0 := 80+rng.Float64()*40, 400+rng.Float64()*60
	x1, y1 := 620+rng.Float64()*30, 180+rng.Float64()*30
	cx, cy := (x0+x1)/2+rng.Float64()*120-60, (y0+y1)/2-80-rng.Float64()*60
	const steps = 60
	for i := 0; i <= steps; i++ {
		u := 0.5 - math.Cos(math.Pi*float64(i)/steps)/2
		x := (1-u)*(1-u)*x0 + 2*(1-u)*u*cx + u*u*x1 + rng.NormFloat64()*1.5
		y := (1-u)*(1-u)*y0 + 2*(1-u)*u*cy + u*u*y1 + rng.NormFloat64()*1.5
		t += 8 + rng.Int63n(18)
		add(event.RawEvent{Type: event.MouseMove, X: x, Y: y})
	}
	t += 90 + rng.Int63n(160)
	add(event.RawEvent{Type: event.Click, X: x1, Y: y1, Target: "button"})

	// Typing with variable dwell and flight times.
	for _, r := range "hello world" {
		key := string(r)
		t += 60 + rng.Int63n(140)
		add(event.RawEvent{Type: event.KeyDown, Key: key, Target: "input"})
		t += 50 + rng.Int63n(70)
		add(event.RawEvent{Type: event.KeyUp, Key: key, Target: "input"})
	}
	t += 40
	add(event.RawEvent{Type: event.Input, Target: "input", FieldType: "text"})

	// A couple of uneven scroll bursts.
	y := 0.0
	for burst := 0; burst < 2; burst++ {
		t += 400 + rng.Int63n(600)
		for i := 0; i < 8; i++ {
			y += 20 + rng.Float64()*90
			t += 16 + rng.Int63n(40)
			add(event.RawEvent{Type: event.Scroll, Y: y})
		}
	}
	return out
}

func scriptedSession(start time.Time) []event.RawEvent {
	t := start.UnixMilli()
	var out []event.RawEvent
	add := func(e event.RawEvent) {
		e.Time = t
		out = append(out, e)
	}

	for i := 0; i <= 50; i++ {
		t += 10
		add(event.RawEvent{Type: event.MouseMove, X: 100 + float64(i)*10, Y: 400 - float64(i)*4})
	}
	t += 10
	add(event.RawEvent{Type: event.Click, X: 600, Y: 200, Target: "button"})
	for _, r := range "hello world" {
		t += 50
		add(event.RawEvent{Type: event.KeyDown, Key: string(r), Target: "input"})
		t += 50
		add(event.RawEvent{Type: event.KeyUp, Key: string(r), Target: "input"})
	}
	for i := 1; i <= 10; i++ {
		t += 100
		add(event.RawEvent{Type: event.Scroll, Y: float64(i) * 100})
	}
	return out
}

// describe counts events per type.
func describe(events []event.RawEvent) string {
	counts := map[string]int{}
	for _, e := range events {
		counts[e.Type]++
	}
	return fmt.Sprint(counts)
}
