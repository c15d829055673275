// Package transport delivers collector payloads. A Sender tries its primary
// transport and, on any failure, exactly one secondary attempt.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

var (
	ErrStatus      = errors.New("transport: unexpected status")
	ErrDecode      = errors.New("transport: malformed response")
	ErrUnavailable = errors.New("transport: no transport available")
)

// Request is one POST.
type Request struct {
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is the raw answer to a Request.
type Response struct {
	Status int
	Body   []byte
}

// Poster sends a Request and waits for the response.
type Poster interface {
	Name() string
	Post(ctx context.Context, req Request) (Response, error)
}

// Fetch is the modern transport. Cookies are only attached for URLs on the
// page origin.
type Fetch struct {
	client *http.Client
}

// NewFetch builds a Fetch on base (http.DefaultClient's transport when nil)
// with a cookie jar scoped to origin.
func NewFetch(base *http.Client, origin string) *Fetch {
	c := &http.Client{}
	if base != nil {
		*c = *base
	}
	c.Jar = newSameOriginJar(origin)
	return &Fetch{client: c}
}

func (f *Fetch) Name() string { return "fetch" }

func (f *Fetch) Post(ctx context.Context, req Request) (Response, error) {
	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, errors.Wrap(err, "fetch: build request")
	}
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	resp, err := f.client.Do(hr)
	if err != nil {
		return Response{}, errors.Wrap(err, "fetch")
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Response{Status: resp.StatusCode}, errors.Wrap(err, "fetch: read body")
	}
	return Response{Status: resp.StatusCode, Body: body}, nil
}

// Legacy is the fallback transport.
type Legacy struct {
	client *resty.Client
}

func NewLegacy(base *http.Client) *Legacy {
	var c *resty.Client
	if base != nil {
		c = resty.NewWithClient(base)
	} else {
		c = resty.New()
	}
	return &Legacy{client: c}
}

func (l *Legacy) Name() string { return "legacy" }

func (l *Legacy) Post(ctx context.Context, req Request) (Response, error) {
	resp, err := l.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetBody(req.Body).
		Post(req.URL)
	if err != nil {
		return Response{}, errors.Wrap(err, "legacy")
	}
	return Response{Status: resp.StatusCode(), Body: resp.Body()}, nil
}

// sameOriginJar stores and returns cookies only for the page origin.
type sameOriginJar struct {
	jar    http.CookieJar
	origin *url.URL
}

func newSameOriginJar(origin string) http.CookieJar {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil
	}
	jar, _ := cookiejar.New(nil)
	return &sameOriginJar{jar: jar, origin: u}
}

func (j *sameOriginJar) allowed(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, j.origin.Scheme) && strings.EqualFold(u.Host, j.origin.Host)
}

func (j *sameOriginJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if j.allowed(u) {
		j.jar.SetCookies(u, cookies)
	}
}

func (j *sameOriginJar) Cookies(u *url.URL) []*http.Cookie {
	if !j.allowed(u) {
		return nil
	}
	return j.jar.Cookies(u)
}
