package detection

import (
	"context"
	"net/http"
	"time"
)

// Input bundles what the relay knows about one submission.
type Input struct {
	Request          *http.Request
	Body             []byte
	SessionID        string
	PayloadUserAgent string
	Now              time.Time
}

// Analyze collects server-side signals for a submission using the given tracker.
func Analyze(ctx context.Context, in Input, tracker Tracker) Signals {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	signals := Signals{
		Headers:           analyzeHeaders(in.Request.Header),
		HeaderFingerprint: headerFingerprint(in.Request.Header),
		Request:           analyzeRequest(in.Request, in.Body),
	}
	if in.PayloadUserAgent != "" && in.PayloadUserAgent != in.Request.UserAgent() {
		signals.Request.UAMismatch = true
	}
	if tracker != nil && in.SessionID != "" {
		signals.Timing = analyzeTiming(ctx, in.SessionID, in.Now, tracker)
	}
	return signals
}
