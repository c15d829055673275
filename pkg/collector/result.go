package collector

import (
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/buffer"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/transport"
)

// onDelivered records a delivered flush and returns the verdict it carried,
// if any.
func (c *Collector) onDelivered(out transport.Outcome) *event.VerificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.LastSendTime = c.env.Now()
	c.session.RetryCount = 0
	if out.Response == nil {
		return nil
	}
	r := c.onResultLocked(out.Response)
	if c.closed {
		return nil
	}
	return r
}

// publish hands a verdict to subscribers unless the collector was closed
// in the meantime.
func (c *Collector) publish(r event.VerificationResult) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		c.outbound.Emit(event.VerificationEvent, r)
	}
}

// onResultLocked overwrites the verdict and prunes expired samples. A
// response without a complete verification object leaves everything as is.
func (c *Collector) onResultLocked(resp *event.VerifyResponse) *event.VerificationResult {
	v := resp.Verification
	if v == nil || v.IsBot == nil || v.Confidence == nil {
		c.log.Debug("response carried no verification, keeping previous verdict")
		return nil
	}

	now := c.env.NowMillis()
	r := event.VerificationResult{IsBot: *v.IsBot, Confidence: *v.Confidence, Timestamp: now}
	c.verification = &r

	pruned := c.buffers.PruneOlderThan(now - buffer.TTL.Milliseconds())
	c.log.Debug("verdict",
		zap.Bool("isBot", r.IsBot),
		zap.Float64("confidence", r.Confidence),
		zap.Int("pruned", pruned),
	)
	return &r
}

// onFailure handles a terminal flush failure. With no verdict yet the
// visitor is reported as human with the fail-open confidence.
func (c *Collector) onFailure(err error) *event.VerificationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.RetryCount < c.cfg.MaxRetries {
		c.session.RetryCount++
	}
	c.log.Debug("flush failed", zap.Error(err), zap.Int("retries", c.session.RetryCount))

	var emit *event.VerificationResult
	if c.verification == nil && !c.closed {
		r := event.VerificationResult{
			IsBot:      false,
			Confidence: c.cfg.FailOpenConfidence,
			Timestamp:  c.env.NowMillis(),
			FailOpen:   true,
		}
		c.verification = &r
		emit = &r
	}
	return emit
}
