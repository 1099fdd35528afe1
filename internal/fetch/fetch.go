// Package fetch downloads the content referenced by a validation request.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/minio/minio-go/v7/pkg/signer"
)

const (
	// DefaultTimeout bounds a whole download including the body transfer.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBytes caps the size of a downloaded body.
	DefaultMaxBytes int64 = 64 << 20

	// signingRegion is the region the data proxy expects in SigV4 scopes.
	signingRegion = "us-east-1"
	emptySHA256   = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

var (
	// ErrTooLarge is returned when the body exceeds the configured size cap.
	ErrTooLarge = errors.New("download exceeds size limit")
	// ErrNotText is returned when the body is not valid UTF-8 text.
	ErrNotText = errors.New("download is not text")
)

// StatusError reports a non-success HTTP status from the download endpoint.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %s", e.Status)
}

// Request describes a single download.
type Request struct {
	URL       string
	AccessKey string
	SecretKey string
}

// Client performs downloads with a bounded timeout and size.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *slog.Logger
}

// NewClient creates a download client. Zero values select the defaults.
func NewClient(logger *slog.Logger, timeout time.Duration, maxBytes int64) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		logger:     logger.With("component", "fetch"),
	}
}

// Fetch downloads req.URL and returns the body as text.
func (c *Client) Fetch(ctx context.Context, req Request) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/plain, */*")

	if shouldSign(httpReq.URL, req) {
		httpReq.Header.Set("X-Amz-Content-Sha256", emptySHA256)
		httpReq = signer.SignV4(*httpReq, req.AccessKey, req.SecretKey, "", signingRegion)
		c.logger.Debug("signed download request", "host", httpReq.URL.Host)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", fmt.Errorf("GET %s: %w", redact(httpReq.URL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return "", fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.maxBytes)
	}
	if !utf8.Valid(body) {
		return "", ErrNotText
	}

	c.logger.Debug("download complete",
		"host", httpReq.URL.Host,
		"bytes", len(body),
		"duration", time.Since(start))

	return string(body), nil
}

// shouldSign reports whether credentials were supplied for a URL that is not
// already presigned.
func shouldSign(u *url.URL, req Request) bool {
	if req.AccessKey == "" || req.SecretKey == "" {
		return false
	}
	return u.Query().Get("X-Amz-Signature") == ""
}

// redact strips the query, which carries signatures for presigned URLs.
func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
