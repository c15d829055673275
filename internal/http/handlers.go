package httpx

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/detection"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/metrics"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/sink"
	cfg "github.com/Riishi-01/Passive-Captcha-Model-sub001/pkg/config"
)

const (
	headerToken       = "X-Passive-Captcha-Token"
	headerWebsiteURL  = "X-Website-URL"
	headerScriptToken = "X-Script-Token"
)

// Verdict sources reported in responses and metrics.
const (
	SourceClassifier = "classifier"
	SourceFailOpen   = "fail-open"
)

type Env struct {
	Cfg        cfg.Config
	Emit       func(sink.Batch) // injected sink fan-out
	Auth       *TokenAuth       // nil accepts any token
	Tracker    detection.Tracker
	Classifier *Classifier // nil always fails open
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
	Ready      func(ctx context.Context) error // optional readiness probe
	Now        func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Env) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e Env) Readyz(w http.ResponseWriter, r *http.Request) {
	if e.Ready != nil {
		if err := e.Ready(r.Context()); err != nil {
			e.log().Warn("readyz: not ready", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// readJSON enforces method, content type, body limit and token. It writes
// the error response itself and returns ok=false on rejection.
func (e Env) readJSON(w http.ResponseWriter, r *http.Request, tokenHeader string) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return nil, false
	}
	if !e.Auth.Valid(r.Header.Get(tokenHeader)) {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return nil, false
	}
	defer r.Body.Close()
	limit := e.Cfg.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func (e Env) emit(b sink.Batch) {
	if e.Emit != nil {
		e.Emit(b)
	}
}

// Verify handles POST /prototype/api/verify: the collector's periodic
// submission. The batch is enriched with request signals, fanned out to the
// sinks and answered with the classifier verdict, or the fail-open default
// when no verdict can be obtained.
func (e Env) Verify(w http.ResponseWriter, r *http.Request) {
	body, ok := e.readJSON(w, r, headerToken)
	if !ok {
		return
	}
	var p event.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if p.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	now := e.now()
	signals := detection.Analyze(r.Context(), detection.Input{
		Request:          r,
		Body:             body,
		SessionID:        p.SessionID,
		PayloadUserAgent: p.UserAgent,
		Now:              now,
	}, e.Tracker)

	b := sink.Batch{
		BatchID:    uuid.NewString(),
		Kind:       sink.KindVerify,
		ReceivedAt: now.UTC(),
		WebsiteURL: r.Header.Get(headerWebsiteURL),
		RemoteIP:   clientIP(r, e.Cfg.TrustProxy),
		Payload:    &p,
		Signals:    &signals,
	}

	verdict, err := e.Classifier.Classify(r.Context(), b)
	if err != nil {
		if err != ErrNoClassifier {
			e.log().Warn("verify: classifier unavailable, failing open", zap.String("session", p.SessionID), zap.Error(err))
		}
		verdict = e.failOpen()
	}
	b.Verdict = verdict
	e.emit(b)
	if e.Metrics != nil {
		e.Metrics.IncrementVerdicts(verdict.Source)
	}

	writeJSON(w, http.StatusOK, event.VerifyResponse{Verification: verdict})
}

func (e Env) failOpen() *event.Verdict {
	isBot := false
	conf := e.Cfg.FailOpenConfidence
	return &event.Verdict{IsBot: &isBot, Confidence: &conf, Source: SourceFailOpen}
}

// Activate handles POST /api/script/activate, sent once per session.
func (e Env) Activate(w http.ResponseWriter, r *http.Request) {
	body, ok := e.readJSON(w, r, headerScriptToken)
	if !ok {
		return
	}
	var a event.Activation
	if err := json.Unmarshal(body, &a); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if a.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	e.emit(sink.Batch{
		BatchID:    uuid.NewString(),
		Kind:       sink.KindActivate,
		ReceivedAt: e.now().UTC(),
		WebsiteURL: a.WebsiteURL,
		RemoteIP:   clientIP(r, e.Cfg.TrustProxy),
		Activation: &a,
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "active", "session_id": a.SessionID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
