// Package collector is the embeddable passive-CAPTCHA collector. A host
// feeds raw interaction events through Dispatch; the collector samples them
// into bounded windows, periodically posts a behavioral summary to the
// verification endpoint and publishes the verdict to subscribers.
package collector

import (
	"context"
	"math/rand"
	"net/http"
	"net/url"
	"sync"

	"github.com/facebookgo/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/buffer"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/capture"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/dispatch"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/fingerprint"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/logger"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/metrics"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/shim"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/stats"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/transport"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/config"
)

type (
	RawEvent           = event.RawEvent
	BehaviorMetrics    = event.BehaviorMetrics
	VerificationResult = event.VerificationResult
)

// Options configures a Collector. Only Config is required.
type Options struct {
	Config config.Collector

	Probes       fingerprint.Probes
	Capabilities *shim.Capabilities // nil means every transport is available
	Loading      bool               // document still loading; wait for DOMContentLoaded
	UserAgent    string             // used when no fingerprint is collected

	Clock      clock.Clock
	Rand       *rand.Rand
	Logger     *zap.Logger // used in debug mode; nil falls back to a console logger
	Registerer prometheus.Registerer
	HTTPClient *http.Client
}

// Collector is one embedded collector instance. All handlers run under a
// single mutex; network I/O happens on tracked goroutines outside it.
type Collector struct {
	cfg     config.Collector
	probes  fingerprint.Probes
	loading bool
	ua      string

	env      *shim.Env
	log      *zap.Logger
	metrics  *metrics.Collector
	buffers  *buffer.Set
	gate     *capture.Gate
	fp       fingerprint.Collector
	sender   *transport.Sender
	inbound  *dispatch.Dispatcher[event.RawEvent]
	outbound *dispatch.Dispatcher[event.VerificationResult]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	session      Session
	started      bool
	closed       bool
	unloading    bool // an unload flush was sent; cleared when the page is shown again
	device       *event.DeviceFingerprint
	navTiming    *fingerprint.NavigationTiming
	verification *event.VerificationResult
	ticker       *clock.Ticker
	removers     []func()
}

// New builds a collector. Nothing is observed or sent until Start.
func New(o Options) *Collector {
	cfg := o.Config
	cfg.Normalize()

	log := zap.NewNop()
	if cfg.DebugMode {
		log = o.Logger
		if log == nil {
			log = logger.Debug()
		}
	}
	log = log.Named("collector")

	caps := shim.FullCapabilities()
	if o.Capabilities != nil {
		caps = *o.Capabilities
	}

	env := shim.NewEnv(o.Clock)
	buffers := buffer.NewSet()
	m := metrics.NewCollector(o.Registerer)

	c := &Collector{
		cfg:     cfg,
		probes:  o.Probes,
		loading: o.Loading,
		ua:      o.UserAgent,
		env:     env,
		log:     log,
		metrics: m,
		buffers: buffers,
		session: newSession(env.Now()),
	}
	c.gate = capture.New(capture.Options{
		SamplingRate: cfg.SamplingRate,
		Channels: capture.Channels{
			Mouse:    cfg.CollectMouseMovements,
			Keyboard: cfg.CollectKeyboardPatterns,
			Scroll:   cfg.CollectScrollBehavior,
			Touch:    cfg.CollectTouchPatterns,
		},
		Env:     env,
		Buffers: buffers,
		Rand:    o.Rand,
		Metrics: m,
	})
	c.sender = transport.NewSender(caps, transport.Options{
		Client:  o.HTTPClient,
		Origin:  origin(cfg.WebsiteURL),
		Timeout: cfg.Timeout(),
		Logger:  log,
	})
	c.inbound = dispatch.New[event.RawEvent](c.handlerPanic)
	c.outbound = dispatch.New[event.VerificationResult](c.handlerPanic)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

func (c *Collector) handlerPanic(name string, err error) {
	c.log.Debug("handler recovered", zap.String("event", name), zap.Error(err))
}

// SessionID is fixed for the collector's lifetime.
func (c *Collector) SessionID() string { return c.session.ID }

// Session returns a copy of the session bookkeeping.
func (c *Collector) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Metrics computes the behavioral scores over the current windows.
func (c *Collector) Metrics() BehaviorMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return stats.Compute(c.snapshotLocked())
}

// SendData triggers a flush. It is a no-op until the session is active.
func (c *Collector) SendData() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked(transport.ModeNormal)
}

func (c *Collector) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.State == StateActive
}

// Verification returns the last verdict, if any.
func (c *Collector) Verification() (VerificationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.verification == nil {
		return VerificationResult{}, false
	}
	return *c.verification, true
}

// Subscribe registers fn for the passiveCaptchaVerification event and
// returns a func that removes it. fn runs outside the collector lock and
// after its send goroutine has finished, so fn may call Close.
func (c *Collector) Subscribe(fn func(VerificationResult)) (unsubscribe func()) {
	return c.outbound.On(event.VerificationEvent, fn)
}

// Dispatch feeds one host event to the collector. It never blocks on I/O
// and never panics.
func (c *Collector) Dispatch(e RawEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.inbound.Emit(e.Type, e)
}

// Close stops the ticker, removes every listener, cancels in-flight sends
// and waits for the goroutines to return.
func (c *Collector) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.ticker != nil {
		c.ticker.Stop()
	}
	for _, remove := range c.removers {
		remove()
	}
	c.removers = nil
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.sender.Wait()
	return nil
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
