package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/transport"
)

// Start begins the session. When the document is still loading,
// initialization is deferred to the DOMContentLoaded event. parent bounds
// the lifetime of every goroutine the collector starts.
func (c *Collector) Start(parent context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closed {
		return
	}
	c.started = true

	if parent != nil {
		stop := context.AfterFunc(parent, c.cancel)
		c.removers = append(c.removers, func() { stop() })
	}

	if c.loading {
		c.removers = append(c.removers, c.inbound.On(event.DOMContentLoaded, func(event.RawEvent) {
			c.initializeLocked()
		}))
		return
	}
	c.initializeLocked()
}

// initializeLocked runs once. Each step is guarded; the session becomes
// active whatever fails.
func (c *Collector) initializeLocked() {
	if c.session.State != StateUninitialized {
		return
	}
	c.session.State = StateInitializing
	c.log.Debug("initializing", zap.String("session", c.session.ID))

	c.guard("fingerprint", c.fingerprintLocked)
	c.guard("listeners", c.listenLocked)
	c.guard("ticker", c.tickLocked)
	c.guard("activation", c.activateLocked)

	c.session.State = StateActive
	c.log.Debug("active", zap.Duration("interval", c.cfg.Interval()))
}

func (c *Collector) guard(step string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		c.log.Debug("initialization step failed", zap.String("step", step), zap.Error(err))
	}
}

func (c *Collector) fingerprintLocked() error {
	if !c.cfg.CollectDeviceInfo && !c.cfg.CollectTimingData {
		return nil
	}
	res := c.fp.Collect(c.probes)
	if c.cfg.CollectDeviceInfo && c.probes != nil {
		fp := res.Fingerprint
		c.device = &fp
	}
	c.navTiming = res.Timing
	return res.Err
}

func (c *Collector) listenLocked() error {
	c.removers = append(c.removers,
		c.gate.Register(c.inbound),
		c.inbound.On(event.VisibilityChange, func(e event.RawEvent) {
			if !e.Hidden {
				c.unloading = false
				return
			}
			if !c.unloading {
				c.flushLocked(transport.ModeNormal)
			}
		}),
		c.inbound.On(event.PageHide, c.unloadLocked),
		c.inbound.On(event.BeforeUnload, c.unloadLocked),
	)
	return nil
}

// unloadLocked flushes once per teardown. A navigation fires both
// beforeunload and pagehide; only the first one sends.
func (c *Collector) unloadLocked(event.RawEvent) {
	if c.unloading || c.session.State != StateActive {
		return
	}
	c.unloading = true
	c.flushLocked(transport.ModeUnload)
}

func (c *Collector) tickLocked() error {
	c.ticker = c.env.Clock().Ticker(c.cfg.Interval())
	c.wg.Add(1)
	go c.loop(c.ticker)
	return nil
}

func (c *Collector) loop(t *clock.Ticker) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			c.SendData()
		}
	}
}

func (c *Collector) activateLocked() error {
	req := c.activationLocked()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sender.Fire(c.ctx, req); err != nil {
			c.log.Debug("activation failed", zap.Error(err))
		}
	}()
	return nil
}

// flushLocked snapshots the windows and hands the payload to a send
// goroutine. It is a no-op unless the session is active.
func (c *Collector) flushLocked(mode transport.Mode) {
	if c.session.State != StateActive || c.closed {
		return
	}
	req := c.requestLocked()
	c.metrics.Windows(c.buffers.Lens())

	c.wg.Add(1)
	go c.deliver(req, mode)
}

// deliver sends one flush and publishes the resulting verdict, if any. The
// goroutine leaves the wait group before subscribers run.
func (c *Collector) deliver(req transport.Request, mode transport.Mode) {
	emit := func() *event.VerificationResult {
		defer c.wg.Done()
		return c.send(req, mode)
	}()
	if emit != nil {
		c.publish(*emit)
	}
}

func (c *Collector) send(req transport.Request, mode transport.Mode) *event.VerificationResult {
	start := time.Now()
	out, err := c.sender.Send(c.ctx, req, mode)

	name := out.Transport
	if name == "" {
		name = "none"
	}
	if err != nil {
		c.metrics.Flush(name, "failure", time.Since(start))
		return c.onFailure(err)
	}
	outcome := "success"
	if out.Queued {
		outcome = "queued"
	}
	c.metrics.Flush(name, outcome, time.Since(start))
	return c.onDelivered(out)
}
