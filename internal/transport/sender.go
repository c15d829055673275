package transport

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/shim"
)

// Mode selects the delivery strategy.
type Mode int

const (
	// ModeNormal waits for a verdict and falls back once on failure.
	ModeNormal Mode = iota
	// ModeUnload prefers a beacon and never falls back.
	ModeUnload
)

// DefaultUnloadTimeout bounds unload sends that cannot use a beacon.
const DefaultUnloadTimeout = 2 * time.Second

// Outcome describes a delivered flush.
type Outcome struct {
	Transport string
	Response  *event.VerifyResponse // nil for beacons
	Queued    bool
}

// Options configures a Sender.
type Options struct {
	Client        *http.Client // shared by every transport; nil uses defaults
	Origin        string       // page origin for cookie scoping
	Timeout       time.Duration
	UnloadTimeout time.Duration
	Logger        *zap.Logger
}

// Sender owns the transports chosen for the host's capabilities.
type Sender struct {
	variant   shim.Variant
	primary   Poster
	secondary Poster
	beacon    *Beacon
	timeout   time.Duration
	unload    time.Duration
	log       *zap.Logger
}

// NewSender wires the transports for caps. The variant is fixed for the
// Sender's lifetime.
func NewSender(caps shim.Capabilities, o Options) *Sender {
	s := &Sender{
		variant: shim.Select(caps),
		timeout: o.Timeout,
		unload:  o.UnloadTimeout,
		log:     o.Logger,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("transport")
	if s.unload <= 0 {
		s.unload = DefaultUnloadTimeout
	}

	switch s.variant {
	case shim.VariantModern:
		s.primary = NewFetch(o.Client, o.Origin)
		if caps.Legacy {
			s.secondary = NewLegacy(o.Client)
		}
	case shim.VariantLegacy:
		s.primary = NewLegacy(o.Client)
	}
	if caps.Beacon {
		s.beacon = NewBeacon(o.Client, s.unload)
	}
	return s
}

// NewSenderWith builds a Sender from explicit transports, mainly for tests.
func NewSenderWith(primary, secondary Poster, beacon *Beacon, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		variant:   shim.VariantModern,
		primary:   primary,
		secondary: secondary,
		beacon:    beacon,
		unload:    DefaultUnloadTimeout,
		log:       logger.Named("transport"),
	}
}

func (s *Sender) Variant() shim.Variant { return s.variant }

// Send delivers req according to mode. In ModeNormal an error from the
// primary (transport error, non-2xx status, undecodable body) triggers one
// secondary attempt; its failure is terminal.
func (s *Sender) Send(ctx context.Context, req Request, mode Mode) (Outcome, error) {
	if mode == ModeUnload {
		return s.sendUnload(ctx, req)
	}
	if s.primary == nil {
		return Outcome{}, ErrUnavailable
	}

	resp, err := s.attempt(ctx, s.primary, req, s.timeout)
	if err == nil {
		return Outcome{Transport: s.primary.Name(), Response: resp}, nil
	}
	if s.secondary == nil || ctx.Err() != nil {
		return Outcome{Transport: s.primary.Name()}, err
	}

	s.log.Debug("primary failed, falling back", zap.String("primary", s.primary.Name()), zap.Error(err))
	resp, err2 := s.attempt(ctx, s.secondary, req, s.timeout)
	if err2 != nil {
		return Outcome{Transport: s.secondary.Name()}, errors.Wrapf(err2, "fallback after %v", err)
	}
	return Outcome{Transport: s.secondary.Name(), Response: resp}, nil
}

func (s *Sender) sendUnload(ctx context.Context, req Request) (Outcome, error) {
	if s.beacon != nil {
		if s.beacon.Send(req) {
			return Outcome{Transport: s.beacon.Name(), Queued: true}, nil
		}
		s.log.Debug("beacon rejected request")
	}
	if s.primary == nil {
		return Outcome{}, ErrUnavailable
	}
	resp, err := s.attempt(ctx, s.primary, req, s.unload)
	return Outcome{Transport: s.primary.Name(), Response: resp}, err
}

// Fire posts req on the primary transport and discards the answer.
func (s *Sender) Fire(ctx context.Context, req Request) error {
	if s.primary == nil {
		return ErrUnavailable
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.primary.Post(ctx, req)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return errors.Wrapf(ErrStatus, "%s: %d", s.primary.Name(), resp.Status)
	}
	return nil
}

// Wait blocks until queued beacons complete.
func (s *Sender) Wait() {
	if s.beacon != nil {
		s.beacon.Wait()
	}
}

func (s *Sender) attempt(ctx context.Context, p Poster, req Request, timeout time.Duration) (*event.VerifyResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := p.Post(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, errors.Wrapf(ErrStatus, "%s: %d", p.Name(), resp.Status)
	}
	var out event.VerifyResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrapf(ErrDecode, "%s: %v", p.Name(), err)
	}
	return &out, nil
}
