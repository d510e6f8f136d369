package compat

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

type NormalizeResult struct {
	Body      []byte
	Canonical CanonicalRequest
}

// NormalizeProxyRequest decodes any Content-Encoding on body and rewrites
// the request headers so the body can be forwarded as plain JSON.
func NormalizeProxyRequest(r *http.Request, body []byte) (NormalizeResult, error) {
	op := Route(r.URL.Path)
	if op == OpUnknown {
		return NormalizeResult{}, fmt.Errorf("unsupported proxy endpoint: %s", r.URL.Path)
	}

	decoded, err := DecodeContentEncoding(body, r.Header.Get("Content-Encoding"))
	if err != nil {
		return NormalizeResult{}, fmt.Errorf("invalid compressed request body: %w", err)
	}

	r.Header.Del("Content-Encoding")
	if len(decoded) > 0 {
		// the runtime only speaks JSON
		r.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(r.Header.Get("Accept")) == "" {
		r.Header.Set("Accept", "application/json")
	}
	r.Header.Del("Transfer-Encoding")
	r.Header.Set("Content-Length", strconv.Itoa(len(decoded)))
	r.ContentLength = int64(len(decoded))

	return NormalizeResult{
		Body:      decoded,
		Canonical: ToCanonical(op, decoded),
	}, nil
}

func DecodeContentEncoding(body []byte, encodingHeader string) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(encodingHeader))
	if encoding == "" || encoding == "identity" {
		return body, nil
	}

	// Handle headers such as "zstd, br" by taking the first encoding token.
	if idx := strings.Index(encoding, ","); idx > 0 {
		encoding = strings.TrimSpace(encoding[:idx])
	}

	switch encoding {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	case "zstd":
		r, err := zstd.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported content-encoding: %s", encoding)
	}
}
