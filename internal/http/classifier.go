package httpx

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/event"
	"github.com/Riishi-01/Passive-Captcha-Model-sub001/internal/sink"
)

// ErrNoClassifier is returned when no upstream classifier is configured.
var ErrNoClassifier = errors.New("no classifier configured")

// Classifier forwards enriched batches to the external classifier and
// returns its verdict. The relay never scores on its own.
type Classifier struct {
	url    string
	client *resty.Client
}

// NewClassifier returns nil when url is empty.
func NewClassifier(url string, timeout time.Duration) *Classifier {
	if url == "" {
		return nil
	}
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Classifier{url: url, client: c}
}

// Classify posts b and decodes {verification:{isBot, confidence}}.
func (c *Classifier) Classify(ctx context.Context, b sink.Batch) (*event.Verdict, error) {
	if c == nil {
		return nil, ErrNoClassifier
	}
	body, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "encode batch")
	}
	resp, err := c.client.R().SetContext(ctx).SetBody(body).Post(c.url)
	if err != nil {
		return nil, errors.Wrap(err, "classifier request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("classifier status %d", resp.StatusCode())
	}
	var out event.VerifyResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, errors.Wrap(err, "decode classifier response")
	}
	v := out.Verification
	if v == nil || v.IsBot == nil || v.Confidence == nil {
		return nil, errors.New("classifier response without verification")
	}
	if v.Source == "" {
		v.Source = SourceClassifier
	}
	return v, nil
}
