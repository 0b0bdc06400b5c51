package instagram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"igfeed/pkg/config"
	"igfeed/pkg/logger"
	"igfeed/pkg/ratelimit"
	"igfeed/pkg/session"
)

const (
	defaultTimeout = 30 * time.Second

	// maxBodySize caps how much of a response is read
	maxBodySize = 16 << 20

	acceptEncoding = "gzip, deflate, br, zstd"
)

// Options configures a Transport
type Options struct {
	UserAgent string
	AppID     string
	// ProxyURL routes every request through an HTTP or SOCKS5 proxy. Empty means a direct
	// connection; proxy environment variables are never consulted.
	ProxyURL string
	Timeout  time.Duration
	// ChromeTLS sends a Chrome TLS ClientHello. Ignored when a proxy is set.
	ChromeTLS bool
	// Compress advertises gzip, deflate, br and zstd and decodes the response accordingly
	Compress bool
	Limiter  ratelimit.Limiter
	// HTTPClient replaces the client built from the options above
	HTTPClient *http.Client
}

// OptionsFromConfig maps the instagram section of the configuration to transport options
func OptionsFromConfig(cfg config.InstagramConfig, rl config.RateLimitConfig) Options {
	return Options{
		UserAgent: cfg.UserAgent,
		AppID:     cfg.AppID,
		ProxyURL:  cfg.Proxy,
		Timeout:   cfg.Timeout,
		ChromeTLS: cfg.ChromeTLS,
		Compress:  cfg.Compress,
		Limiter:   ratelimit.PerMinute(rl.RequestsPerMinute, rl.BurstSize),
	}
}

// Request is one HTTP exchange. When Session is set it acts as the cookie jar for the exchange,
// so cookies are sent from it and Set-Cookie headers are written back into it.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Form    url.Values
	Session *session.Session
}

// Response is a fully read 2xx response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StatusError is returned for non-2xx responses. It carries the body so callers can inspect the
// service's error document.
type StatusError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// Transport issues requests to Instagram with the configured identity and proxy
type Transport struct {
	client *http.Client
	opts   Options
	logger logger.Logger
}

// NewTransport creates a Transport
func NewTransport(opts Options, log logger.Logger) (*Transport, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.AppID == "" {
		opts.AppID = config.DefaultAppID
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		rt, err := newRoundTripper(opts, log)
		if err != nil {
			return nil, err
		}
		client = &http.Client{Timeout: opts.Timeout, Transport: rt}
	}

	return &Transport{client: client, opts: opts, logger: log}, nil
}

func newRoundTripper(opts Options, log logger.Logger) (http.RoundTripper, error) {
	if opts.ProxyURL == "" && opts.ChromeTLS {
		return newChromeRoundTripper(opts.Timeout), nil
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = nil
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil || proxy.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q", opts.ProxyURL)
		}
		tr.Proxy = http.ProxyURL(proxy)
		if opts.ChromeTLS {
			log.Warn("chrome TLS fingerprint is not available through a proxy, using the standard TLS stack")
		}
	}
	return tr, nil
}

// UserAgent returns the user agent sent with every request
func (t *Transport) UserAgent() string {
	return t.opts.UserAgent
}

// AppID returns the value of the x-ig-app-id header for XHR requests
func (t *Transport) AppID() string {
	return t.opts.AppID
}

// Do performs the request and reads the whole body. Non-2xx responses are returned as *StatusError;
// any other error means no response was received.
func (t *Transport) Do(ctx context.Context, r Request) (*Response, error) {
	if t.opts.Limiter != nil {
		if err := t.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", t.opts.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if t.opts.Compress {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	if r.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for key, values := range r.Header {
		for i, v := range values {
			if i == 0 {
				req.Header.Set(key, v)
				continue
			}
			req.Header.Add(key, v)
		}
	}

	client := *t.client
	client.Jar = nil
	if r.Session != nil {
		client.Jar = r.Session
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		t.logger.WithError(err).DebugWithFields("HTTP request failed", map[string]interface{}{
			"method":      method,
			"url":         r.URL,
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil, err
	}
	defer resp.Body.Close()

	data, err := readBody(resp)
	logger.LogRequest(t.logger, method, r.URL, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: data, URL: r.URL}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		reader = zr
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		reader = zr
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(reader, maxBodySize)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
