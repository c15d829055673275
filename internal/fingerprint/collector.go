package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
)

// signatureLen is the hex length kept from canvas/WebGL digests.
const signatureLen = 16

// Result is a possibly partial fingerprint. Err aggregates every sub-probe
// failure; Fingerprint is always usable.
type Result struct {
	Fingerprint event.DeviceFingerprint
	Timing      *NavigationTiming
	Err         error
}

// Collector runs the probes exactly once.
type Collector struct {
	once   sync.Once
	result Result
}

// Collect probes p on the first call and returns the cached result on every
// later call, whatever p is.
func (c *Collector) Collect(p Probes) Result {
	c.once.Do(func() { c.result = collect(p) })
	return c.result
}

func collect(p Probes) Result {
	var (
		fp   event.DeviceFingerprint
		errs error
	)
	if p == nil {
		return Result{Err: fmt.Errorf("fingerprint: no probes")}
	}

	errs = multierr.Append(errs, guard("navigator", func() error {
		n, err := p.Navigator()
		if err != nil {
			return err
		}
		cookies := n.CookieEnabled
		fp.UserAgent = n.UserAgent
		fp.Language = n.Language
		fp.Languages = n.Languages
		fp.Platform = n.Platform
		fp.HardwareConcurrency = n.HardwareConcurrency
		fp.DeviceMemory = n.DeviceMemory
		fp.MaxTouchPoints = n.MaxTouchPoints
		fp.CookieEnabled = &cookies
		fp.DoNotTrack = n.DoNotTrack
		return nil
	}))

	errs = multierr.Append(errs, guard("screen", func() error {
		s, err := p.Screen()
		if err != nil {
			return err
		}
		fp.Screen = &s
		return nil
	}))

	errs = multierr.Append(errs, guard("viewport", func() error {
		v, err := p.Viewport()
		if err != nil {
			return err
		}
		fp.Viewport = &v
		return nil
	}))

	errs = multierr.Append(errs, guard("timezone", func() error {
		name, offset, err := p.Timezone()
		if err != nil {
			return err
		}
		fp.Timezone, fp.TimezoneOffset = name, offset
		return nil
	}))

	errs = multierr.Append(errs, guard("canvas", func() error {
		raw, err := p.Canvas()
		if err != nil {
			return err
		}
		if len(raw) > 0 {
			sig := Signature(raw)
			fp.Canvas = &sig
		}
		return nil
	}))

	errs = multierr.Append(errs, guard("webgl", func() error {
		gl, err := p.WebGL()
		if err != nil {
			return err
		}
		fp.WebGL = &event.WebGLInfo{
			Vendor:    gl.Vendor,
			Renderer:  gl.Renderer,
			Version:   gl.Version,
			Signature: webglSignature(gl),
		}
		return nil
	}))

	errs = multierr.Append(errs, guard("fonts", func() error {
		fonts, err := p.Fonts()
		if err != nil {
			return err
		}
		fp.Fonts = nonNil(fonts)
		return nil
	}))

	errs = multierr.Append(errs, guard("plugins", func() error {
		plugins, err := p.Plugins()
		if err != nil {
			return err
		}
		fp.Plugins = nonNil(plugins)
		return nil
	}))

	var timing *NavigationTiming
	errs = multierr.Append(errs, guard("timing", func() error {
		t, err := p.Timing()
		if err != nil {
			return err
		}
		timing = &t
		return nil
	}))

	return Result{Fingerprint: fp, Timing: timing, Err: errs}
}

// guard runs one probe, converting a panic into an error.
func guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fingerprint: %s probe panicked: %v", name, r)
		}
	}()
	if e := fn(); e != nil {
		return fmt.Errorf("fingerprint: %s: %w", name, e)
	}
	return nil
}

// Signature reduces raw probe output to a short hex digest.
func Signature(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:signatureLen]
}

func webglSignature(gl WebGLRaw) string {
	ext := append([]string(nil), gl.Extensions...)
	sort.Strings(ext)
	return Signature([]byte(strings.Join([]string{gl.Vendor, gl.Renderer, gl.Version, strings.Join(ext, ",")}, "|")))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
