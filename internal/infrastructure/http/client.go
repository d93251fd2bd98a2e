package infrastructure

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"listing_orchestrator/config"
)

// HTTPClient is the pooled client used for out-of-browser uploads.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient builds a client tuned from the performance section of cfg.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:     true,
		WriteBufferSize:       64 * 1024,
		ReadBufferSize:        64 * 1024,
	}
	return &HTTPClient{client: &http.Client{Transport: transport, Timeout: cfg.HTTPClientTimeout}}
}

// NewHTTPClientFrom wraps an existing client, mostly for tests.
func NewHTTPClientFrom(c *http.Client) *HTTPClient {
	return &HTTPClient{client: c}
}

// FilePart is the file field of a multipart request.
type FilePart struct {
	Field    string
	Name     string
	MIMEType string
	Data     []byte
}

// Reply is a fully read response.
type Reply struct {
	Status int
	Body   []byte
}

// PostMultipart sends fields plus one file as multipart/form-data.
func (c *HTTPClient) PostMultipart(ctx context.Context, url string, header map[string]string, fields map[string]string, file FilePart) (*Reply, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Name))
	h.Set("Content-Type", file.MIMEType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.Do(req)
}

// Do performs req and reads the whole body.
func (c *HTTPClient) Do(req *http.Request) (*Reply, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Reply{Status: resp.StatusCode, Body: body}, nil
}

// GetClient returns the underlying HTTP client
func (c *HTTPClient) GetClient() *http.Client {
	return c.client
}
