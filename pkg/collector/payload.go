package collector

import (
	"net/url"
	"strings"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/buffer"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/shim"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/stats"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/transport"
)

const (
	VerifyPath   = "/prototype/api/verify"
	ActivatePath = "/api/script/activate"

	HeaderToken       = "X-Passive-Captcha-Token"
	HeaderWebsiteURL  = "X-Website-URL"
	HeaderScriptToken = "X-Script-Token"
)

// Per-channel tail lengths of one payload, before the batchSize cap.
const (
	tailMouse    = 30
	tailKeyboard = 20
	tailScroll   = 15
	tailClick    = 10
	tailFocus    = 5
	tailTouch    = 10
	tailForm     = 10
)

func (c *Collector) snapshotLocked() stats.Snapshot {
	return stats.Snapshot{
		Movements:  c.buffers.Movements.Snapshot(),
		Keystrokes: c.buffers.Keystrokes.Snapshot(),
		Scrolls:    c.buffers.Scrolls.Snapshot(),
	}
}

func tail[T event.Stamped](w *buffer.Window[T], n, batch int) []T {
	if batch < n {
		n = batch
	}
	return w.Last(n)
}

func (c *Collector) payloadLocked() event.Payload {
	b, n := c.buffers, c.cfg.BatchSize
	p := event.Payload{
		SessionData: event.SessionData{
			MouseMovements: tail(b.Movements, tailMouse, n),
			KeyboardEvents: tail(b.Keystrokes, tailKeyboard, n),
			ScrollEvents:   tail(b.Scrolls, tailScroll, n),
			ClickEvents:    tail(b.Clicks, tailClick, n),
			FocusEvents:    tail(b.Focus, tailFocus, n),
			TouchEvents:    tail(b.Touches, tailTouch, n),
			FormEvents:     tail(b.Forms, tailForm, n),
		},
		WebsiteID: WebsiteID(c.cfg.WebsiteURL),
		SessionID: c.session.ID,
		Timestamp: c.env.NowMillis(),
		UserAgent: c.userAgentLocked(),
		Metrics:   stats.Compute(c.snapshotLocked()),
	}
	if c.device != nil {
		d := *c.device
		p.DeviceInfo = &d
	}
	if c.cfg.CollectTimingData {
		p.Timing = c.timingLocked()
	}
	return p
}

func (c *Collector) timingLocked() *event.TimingData {
	t := &event.TimingData{TimeOnPage: c.env.SinceOrigin()}
	if c.navTiming != nil {
		t.PageLoadTime = c.navTiming.PageLoad
		t.DOMReadyTime = c.navTiming.DOMReady
	}
	if fi := c.gate.FirstInteraction(); fi != nil {
		v := *fi
		t.FirstInteraction = &v
	}
	return t
}

func (c *Collector) userAgentLocked() string {
	if c.device != nil && c.device.UserAgent != "" {
		return c.device.UserAgent
	}
	return c.ua
}

func (c *Collector) requestLocked() transport.Request {
	return transport.Request{
		URL: endpoint(c.cfg.APIEndpoint, VerifyPath),
		Headers: map[string]string{
			"Content-Type":   "application/json",
			HeaderToken:      c.cfg.ScriptToken,
			HeaderWebsiteURL: c.cfg.WebsiteURL,
		},
		Body: shim.Marshal(c.payloadLocked()),
	}
}

func (c *Collector) activationLocked() transport.Request {
	body := event.Activation{
		WebsiteURL: c.cfg.WebsiteURL,
		SessionID:  c.session.ID,
		UserAgent:  c.userAgentLocked(),
		Timestamp:  c.env.NowMillis(),
	}
	return transport.Request{
		URL: endpoint(c.cfg.APIEndpoint, ActivatePath),
		Headers: map[string]string{
			"Content-Type":    "application/json",
			HeaderScriptToken: c.cfg.ScriptToken,
		},
		Body: shim.Marshal(body),
	}
}

func endpoint(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

// WebsiteID reduces a site URL to its lowercased host with every character
// outside [a-z0-9-] replaced by '_'.
func WebsiteID(siteURL string) string {
	host := siteURL
	if u, err := url.Parse(siteURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)
	var sb strings.Builder
	sb.Grow(len(host))
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
