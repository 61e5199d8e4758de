// Package transport issues HTTP requests against the analysis backend and
// returns raw status, headers and body. It holds no business logic.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"execal-client/internal/shared/metrics"
	"execal-client/internal/shared/telemetry"
)

// DefaultContentType is declared for multipart parts whose type is unknown.
const DefaultContentType = "application/octet-stream"

// Body encodes a request payload.
type Body interface {
	encode() (io.Reader, string, error)
}

// JSONBody serializes Value as UTF-8 JSON.
type JSONBody struct {
	Value any
}

func (b JSONBody) encode() (io.Reader, string, error) {
	payload, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", fmt.Errorf("encode json body: %w", err)
	}
	return bytes.NewReader(payload), "application/json", nil
}

// MultipartBody is a multipart/form-data body with a single file part.
type MultipartBody struct {
	Field       string
	FileName    string
	ContentType string
	Data        []byte
}

func (b MultipartBody) encode() (io.Reader, string, error) {
	field := b.Field
	if field == "" {
		field = "file"
	}
	ctype := strings.TrimSpace(b.ContentType)
	if ctype == "" {
		ctype = DefaultContentType
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(field), escapeQuotes(b.FileName)))
	h.Set("Content-Type", ctype)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(b.Data); err != nil {
		return nil, "", fmt.Errorf("write multipart part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Request describes one backend call. Op labels logs and metrics.
type Request struct {
	Op     string
	Method string
	Path   string
	Header http.Header
	Body   Body
}

// Response is the raw result of a completed HTTP exchange.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// TransportError is a network-level failure: no usable HTTP response was received.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Options configures the underlying http.Client.
type Options struct {
	// Timeout bounds a whole exchange. Zero means no client-side timeout.
	Timeout time.Duration
	// HTTPClient replaces the default client when set. Timeout is ignored then.
	HTTPClient *http.Client
	UserAgent  string
}

// Client sends requests relative to a base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// New constructs a Client. Connection pooling and TLS come from http.Client.
func New(baseURL string, opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("base URL is required")
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("base URL %q must start with http:// or https://", baseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "execal-client/1"
	}
	return &Client{baseURL: base, httpClient: hc, userAgent: ua}, nil
}

// Send performs the request and reads the full response body.
func (c *Client) Send(ctx context.Context, r Request) (Response, error) {
	url := c.baseURL + "/" + strings.TrimLeft(r.Path, "/")
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body  io.Reader
		ctype string
	)
	if r.Body != nil {
		var err error
		body, ctype, err = r.Body.encode()
		if err != nil {
			return Response{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Response{}, &TransportError{Method: method, URL: url, Err: err}
	}
	for k, vals := range r.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(r.Op, 0, time.Since(start))
		telemetry.Debug("transport.request_failed", map[string]any{
			"op":     r.Op,
			"method": method,
			"path":   r.Path,
			"error":  err.Error(),
		})
		return Response{}, &TransportError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	metrics.ObserveRequest(r.Op, resp.StatusCode, elapsed)
	if err != nil {
		return Response{}, &TransportError{Method: method, URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	telemetry.Debug("transport.request", map[string]any{
		"op":          r.Op,
		"method":      method,
		"path":        r.Path,
		"status":      resp.StatusCode,
		"bytes":       len(data),
		"duration_ms": float64(elapsed.Microseconds()) / 1000.0,
	})

	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
