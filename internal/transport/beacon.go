package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// Beacon queues a POST and returns without waiting for the answer. It is
// used on page teardown, when nobody is left to read a response.
type Beacon struct {
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewBeacon(client *http.Client, timeout time.Duration) *Beacon {
	if client == nil {
		client = http.DefaultClient
	}
	return &Beacon{client: client, timeout: timeout}
}

func (b *Beacon) Name() string { return "beacon" }

// Send queues req and reports whether it was accepted for delivery.
func (b *Beacon) Send(req Request) bool {
	hr, err := http.NewRequest(http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return false
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		defer cancel()
		resp, err := b.client.Do(hr.WithContext(ctx))
		if err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
	}()
	return true
}

// Wait blocks until every queued beacon has completed.
func (b *Beacon) Wait() { b.wg.Wait() }
