// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package vgirpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// HTTPTransport sends each call as one POST to an HttpServer.
type HTTPTransport struct {
	baseURL string
	prefix  string
	client  *http.Client
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport) error

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) error {
		t.client = c
		return nil
	}
}

// WithCompressionLevel compresses request bodies with zstd at the given level.
// Level 0 leaves bodies uncompressed.
func WithCompressionLevel(level int) HTTPOption {
	return func(t *HTTPTransport) error {
		if level <= 0 {
			return nil
		}
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return fmt.Errorf("zstd encoder: %w", err)
		}
		t.encoder = enc
		return nil
	}
}

// NewHTTPTransport creates a transport for the engine at baseURL
// (e.g. "http://127.0.0.1:50052").
func NewHTTPTransport(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	t := &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		prefix:  defaultPrefix,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	t.decoder = dec
	return t, nil
}

// Open starts a call. The request is buffered until the first Read.
func (t *HTTPTransport) Open(ctx context.Context, method string, stream bool) (Conn, error) {
	url := t.baseURL + t.prefix + "/" + method
	if stream {
		url += "/init"
	}
	return &httpConn{ctx: ctx, t: t, url: url}, nil
}

// Close releases the compression codecs.
func (t *HTTPTransport) Close() error {
	if t.encoder != nil {
		t.encoder.Close()
	}
	t.decoder.Close()
	return nil
}

type httpConn struct {
	ctx  context.Context
	t    *HTTPTransport
	url  string
	req  bytes.Buffer
	resp io.Reader
}

func (c *httpConn) Write(p []byte) (int, error) {
	if c.resp != nil {
		return 0, fmt.Errorf("vgirpc: write after response on %s", c.url)
	}
	return c.req.Write(p)
}

func (c *httpConn) Read(p []byte) (int, error) {
	if c.resp == nil {
		if err := c.roundTrip(); err != nil {
			return 0, err
		}
	}
	return c.resp.Read(p)
}

func (c *httpConn) roundTrip() error {
	body := c.req.Bytes()
	if c.t.encoder != nil {
		body = c.t.encoder.EncodeAll(body, nil)
	}
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", arrowContentType)
	req.Header.Set("Accept-Encoding", zstdEncoding)
	if c.t.encoder != nil {
		req.Header.Set("Content-Encoding", zstdEncoding)
	}

	resp, err := c.t.client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w", c.url, err)
	}
	// Error statuses still carry an Arrow error stream; anything else is a
	// plain transport failure.
	if resp.Header.Get("Content-Type") != arrowContentType {
		return fmt.Errorf("POST %s: %s: %s", c.url, resp.Status, strings.TrimSpace(string(data)))
	}
	if resp.Header.Get("Content-Encoding") == zstdEncoding {
		if data, err = c.t.decoder.DecodeAll(data, nil); err != nil {
			return fmt.Errorf("zstd response body: %w", err)
		}
	}
	c.resp = bytes.NewReader(data)
	return nil
}

func (c *httpConn) Lockstep() bool { return false }

func (c *httpConn) Close() error { return nil }
