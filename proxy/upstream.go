package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Ltamann/tbg-ollama-bff/proxy/compat"
	"github.com/Ltamann/tbg-ollama-bff/proxy/config"
	"github.com/rs/zerolog"
)

// headers never copied from the client request to the runtime
var skipForwardHeaders = map[string]bool{
	"Host":                true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Connection":    true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
	"Content-Encoding":    true,
	"Accept-Encoding":     true,
	"Origin":              true,
	"Cookie":              true,
}

// UpstreamClient talks to the runtime. A single pooled http.Client is
// shared by all requests; deadlines are applied per call from the
// operation's TimeoutPolicy rather than on the client.
type UpstreamClient struct {
	baseURL        string
	client         *http.Client
	boundedTimeout time.Duration
	logger         zerolog.Logger
}

func NewUpstreamClient(policy config.Policy, logger zerolog.Logger) *UpstreamClient {
	return &UpstreamClient{
		baseURL: strings.TrimSuffix(policy.RuntimeBaseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				// no ResponseHeaderTimeout: generation and pulls can sit
				// for minutes before the first byte
			},
		},
		boundedTimeout: policy.BoundedTimeout,
		logger:         logger,
	}
}

func (uc *UpstreamClient) HTTPClient() *http.Client {
	return uc.client
}

// UpstreamResponse is a 2xx reply whose body has not been read yet.
// Close must be called once the body is consumed; it also releases the
// call's deadline.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser

	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (r *UpstreamResponse) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.Body.Close()
		if r.cancel != nil {
			r.cancel()
		}
	})
	return err
}

// Call issues one request to the runtime. Non-2xx replies come back as
// *UpstreamError carrying the status and body verbatim. There is no retry.
func (uc *UpstreamClient) Call(ctx context.Context, method, path string, body []byte, header http.Header, policy compat.TimeoutPolicy) (*UpstreamResponse, error) {
	var cancel context.CancelFunc
	if policy == compat.Bounded && uc.boundedTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, uc.boundedTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uc.baseURL+path, reqBody)
	if err != nil {
		cancel()
		return nil, err
	}
	copyForwardHeaders(req.Header, header)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := uc.client.Do(req)
	if err != nil {
		cancel()
		uc.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("upstream request failed")
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s %s: %w", method, path, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrUpstreamUnavailable, method, path, err)
	}

	uc.logger.Debug().
		Str("method", method).
		Str("path", path).
		Str("timeout", policy.String()).
		Int("status", resp.StatusCode).
		Dur("ttfb", time.Since(start)).
		Msg("upstream responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		errBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			uc.logger.Warn().Err(readErr).Str("path", path).Msg("failed reading upstream error body")
		}
		return nil, &UpstreamError{
			Method:      method,
			Path:        path,
			StatusCode:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        errBody,
		}
	}

	return &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		cancel:     cancel,
	}, nil
}

func copyForwardHeaders(dst, src http.Header) {
	for key, values := range src {
		if skipForwardHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}
