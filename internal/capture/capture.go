// Package capture turns raw host events into channel samples. Every event
// passes an independent Bernoulli trial first; rejected events leave nothing
// behind but a drop counter.
package capture

import (
	"math"
	"math/rand"
	"time"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/buffer"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/metrics"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/shim"
)

// maxPendingKeys bounds the keydown table used for dwell times.
const maxPendingKeys = 32

// Channels selects which channels are captured. Focus is always on.
type Channels struct {
	Mouse    bool // movement and click
	Keyboard bool // keystroke and form
	Scroll   bool
	Touch    bool
}

// Options configures a Gate.
type Options struct {
	SamplingRate float64
	Channels     Channels
	Env          *shim.Env
	Buffers      *buffer.Set
	Rand         *rand.Rand        // nil seeds from the clock
	Metrics      *metrics.Collector // may be nil
}

// Gate samples, normalizes and buffers raw events. It is not safe for
// concurrent use; the collector serializes all calls.
type Gate struct {
	rate     float64
	channels Channels
	env      *shim.Env
	buf      *buffer.Set
	rng      *rand.Rand
	metrics  *metrics.Collector

	lastMove   *event.MovementSample
	lastScroll *event.ScrollSample
	keysDown   map[string]int64

	firstInteraction *float64
}

func New(o Options) *Gate {
	rng := o.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	env := o.Env
	if env == nil {
		env = shim.NewEnv(nil)
	}
	set := o.Buffers
	if set == nil {
		set = buffer.NewSet()
	}
	return &Gate{
		rate:     o.SamplingRate,
		channels: o.Channels,
		env:      env,
		buf:      set,
		rng:      rng,
		metrics:  o.Metrics,
		keysDown: make(map[string]int64),
	}
}

// Buffers exposes the windows the gate appends to.
func (g *Gate) Buffers() *buffer.Set { return g.buf }

// Events lists the raw event names the gate listens to given its channels.
func (g *Gate) Events() []string {
	names := []string{event.Focus, event.Blur}
	if g.channels.Mouse {
		names = append(names, event.MouseMove, event.PointerMove, event.Click)
	}
	if g.channels.Keyboard {
		names = append(names, event.KeyDown, event.KeyUp, event.Input, event.Change, event.Submit)
	}
	if g.channels.Scroll {
		names = append(names, event.Scroll)
	}
	if g.channels.Touch {
		names = append(names, event.TouchStart, event.TouchMove, event.TouchEnd)
	}
	return names
}

// Register subscribes the gate on target for every enabled event and
// returns a func removing all of them.
func (g *Gate) Register(target shim.Target) (remove func()) {
	var removers []func()
	for _, name := range g.Events() {
		removers = append(removers, shim.AddListener(target, name, func(e event.RawEvent) { g.Handle(e) }))
	}
	return func() {
		for _, r := range removers {
			r()
		}
	}
}

// FirstInteraction is the ms since page origin of the first accepted pointer
// or key event, or nil.
func (g *Gate) FirstInteraction() *float64 { return g.firstInteraction }

// Handle routes one raw event and reports whether it was buffered.
func (g *Gate) Handle(e event.RawEvent) bool {
	ch := channelOf(e.Type)
	if ch == "" || !g.enabled(ch) {
		return false
	}
	if !g.sample() {
		g.metrics.Dropped(ch)
		return false
	}
	g.metrics.Sampled(ch)

	ts := e.Time
	if ts <= 0 {
		ts = g.env.NowMillis()
	}

	switch ch {
	case buffer.Movement:
		g.buf.Movements.Append(g.movement(e, ts))
	case buffer.Clicks:
		g.buf.Clicks.Append(event.ClickSample{
			X: finite(e.X), Y: finite(e.Y), Button: e.Button, Target: e.Target, Timestamp: ts,
		})
	case buffer.Keystroke:
		g.buf.Keystrokes.Append(g.keystroke(e, ts))
	case buffer.Scrolls:
		g.buf.Scrolls.Append(g.scroll(e, ts))
	case buffer.Touch:
		g.buf.Touches.Append(event.TouchSample{
			Type: e.Type, X: finite(e.X), Y: finite(e.Y), Touches: e.Touches, Force: finite(e.Pressure), Timestamp: ts,
		})
	case buffer.Focus:
		g.buf.Focus.Append(event.FocusSample{Type: e.Type, Target: e.Target, Timestamp: ts})
	case buffer.Form:
		g.buf.Forms.Append(event.FormSample{Type: e.Type, Target: e.Target, FieldType: e.FieldType, Timestamp: ts})
	}

	if isInteraction(e.Type) && g.firstInteraction == nil {
		at := float64(ts) - float64(g.env.Origin().UnixMilli())
		if at < 0 {
			at = 0
		}
		g.firstInteraction = &at
	}
	return true
}

// sample draws the Bernoulli trial. Float64 is in [0,1), so a rate of 1
// keeps everything and 0 keeps nothing.
func (g *Gate) sample() bool {
	return g.rng.Float64() < g.rate
}

func (g *Gate) enabled(ch string) bool {
	switch ch {
	case buffer.Movement, buffer.Clicks:
		return g.channels.Mouse
	case buffer.Keystroke, buffer.Form:
		return g.channels.Keyboard
	case buffer.Scrolls:
		return g.channels.Scroll
	case buffer.Touch:
		return g.channels.Touch
	case buffer.Focus:
		return true
	}
	return false
}

func (g *Gate) movement(e event.RawEvent, ts int64) event.MovementSample {
	s := event.MovementSample{X: finite(e.X), Y: finite(e.Y), Timestamp: ts, Pressure: finite(e.Pressure)}
	if prev := g.lastMove; prev != nil {
		dt := float64(ts - prev.Timestamp)
		s.DeltaTime = math.Max(dt, 0)
		if dt > 0 {
			dist := math.Hypot(s.X-prev.X, s.Y-prev.Y)
			s.Velocity = dist / dt
			s.Acceleration = (s.Velocity - prev.Velocity) / dt
		}
	}
	g.lastMove = &s
	return s
}

func (g *Gate) scroll(e event.RawEvent, ts int64) event.ScrollSample {
	s := event.ScrollSample{X: finite(e.X), Y: finite(e.Y), Timestamp: ts}
	if prev := g.lastScroll; prev != nil {
		dt := float64(ts - prev.Timestamp)
		s.DeltaTime = math.Max(dt, 0)
		s.Delta = math.Hypot(s.X-prev.X, s.Y-prev.Y)
		if dt > 0 {
			s.Velocity = s.Delta / dt
		}
	}
	g.lastScroll = &s
	return s
}

func (g *Gate) keystroke(e event.RawEvent, ts int64) event.KeystrokeSample {
	s := event.KeystrokeSample{
		Type:      e.Type,
		KeyClass:  ClassifyKey(e.Key),
		Modifiers: modifiers(e),
		Repeat:    e.Repeat,
		Timestamp: ts,
	}
	switch e.Type {
	case event.KeyDown:
		if e.Repeat {
			break
		}
		if len(g.keysDown) >= maxPendingKeys {
			g.keysDown = make(map[string]int64)
		}
		g.keysDown[e.Key] = ts
	case event.KeyUp:
		if down, ok := g.keysDown[e.Key]; ok {
			delete(g.keysDown, e.Key)
			if ts > down {
				s.Dwell = float64(ts - down)
			}
		}
	}
	return s
}

// Modifier bits in KeystrokeSample.Modifiers.
const (
	ModAlt = 1 << iota
	ModCtrl
	ModMeta
	ModShift
)

func modifiers(e event.RawEvent) int {
	m := 0
	if e.Alt {
		m |= ModAlt
	}
	if e.Ctrl {
		m |= ModCtrl
	}
	if e.Meta {
		m |= ModMeta
	}
	if e.Shift {
		m |= ModShift
	}
	return m
}

func channelOf(eventType string) string {
	switch eventType {
	case event.MouseMove, event.PointerMove:
		return buffer.Movement
	case event.Click:
		return buffer.Clicks
	case event.KeyDown, event.KeyUp:
		return buffer.Keystroke
	case event.Scroll:
		return buffer.Scrolls
	case event.TouchStart, event.TouchMove, event.TouchEnd:
		return buffer.Touch
	case event.Focus, event.Blur:
		return buffer.Focus
	case event.Input, event.Change, event.Submit:
		return buffer.Form
	}
	return ""
}

func isInteraction(eventType string) bool {
	switch eventType {
	case event.MouseMove, event.PointerMove, event.Click,
		event.KeyDown, event.KeyUp,
		event.TouchStart, event.TouchMove, event.TouchEnd:
		return true
	}
	return false
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
