// Package shim gives the rest of the collector one uniform set of host
// primitives: a clock, best-effort JSON, listener registration and the
// transport variant the host can support.
package shim

import (
	stdjson "encoding/json"
	"time"

	"github.com/facebookgo/clock"
	json "github.com/goccy/go-json"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/dispatch"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
)

// Env is the host environment as seen by the collector.
type Env struct {
	clock  clock.Clock
	origin time.Time
}

// NewEnv returns an Env on c (the wall clock when nil). The page origin is
// the current time of c.
func NewEnv(c clock.Clock) *Env {
	if c == nil {
		c = clock.New()
	}
	return &Env{clock: c, origin: c.Now()}
}

func (e *Env) Clock() clock.Clock { return e.clock }

func (e *Env) Now() time.Time { return e.clock.Now() }

// NowMillis is the current time as unix milliseconds.
func (e *Env) NowMillis() int64 { return e.clock.Now().UnixMilli() }

// Origin is the page-origin instant.
func (e *Env) Origin() time.Time { return e.origin }

// SinceOrigin is the elapsed time since the page origin in fractional ms.
func (e *Env) SinceOrigin() float64 {
	return float64(e.clock.Now().Sub(e.origin).Nanoseconds()) / 1e6
}

var null = []byte("null")

// Marshal encodes v as JSON and never fails. It tries the fast codec first,
// then encoding/json, and finally yields "null".
func Marshal(v any) []byte {
	if b, err := json.Marshal(v); err == nil {
		return b
	}
	if b, err := stdjson.Marshal(v); err == nil {
		return b
	}
	return null
}

// Target is anything raw events can be subscribed on.
type Target interface {
	On(name string, h dispatch.Handler[event.RawEvent]) (remove func())
}

// AddListener subscribes h to name on target. A nil target or handler is a
// no-op whose remove func does nothing.
func AddListener(target Target, name string, h dispatch.Handler[event.RawEvent]) (remove func()) {
	if target == nil || h == nil {
		return func() {}
	}
	return target.On(name, h)
}
