package sink

import (
	"context"
	"time"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/detection"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
)

// Batch kinds.
const (
	KindVerify   = "verify"
	KindActivate = "activate"
)

// Batch is one accepted collector submission as handed to the sinks and the
// upstream classifier. Exactly one of Payload and Activation is set.
type Batch struct {
	BatchID    string             `json:"batch_id"`
	Kind       string             `json:"kind"`
	ReceivedAt time.Time          `json:"received_at"`
	WebsiteURL string             `json:"website_url"`
	RemoteIP   string             `json:"remote_ip,omitempty"`
	Payload    *event.Payload     `json:"payload,omitempty"`
	Activation *event.Activation  `json:"activation,omitempty"`
	Signals    *detection.Signals `json:"signals,omitempty"`
	Verdict    *event.Verdict     `json:"verdict,omitempty"`
}

// SessionID returns the collector session the batch belongs to.
func (b Batch) SessionID() string {
	switch {
	case b.Payload != nil:
		return b.Payload.SessionID
	case b.Activation != nil:
		return b.Activation.SessionID
	}
	return ""
}

type Sink interface {
	Start(ctx context.Context) error
	Enqueue(b Batch) error
	Close() error
	Name() string // Returns the sink name for metrics and logging
}

// Buffered is implemented by sinks that hold batches before writing them.
type Buffered interface {
	Pending() int
}
