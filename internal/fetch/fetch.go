// Package fetch retrieves source images over HTTP into bounded memory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Kind classifies a fetch failure.
type Kind string

const (
	KindTimeout   Kind = "timeout"
	KindTooLarge  Kind = "too_large"
	KindNetwork   Kind = "network"
	KindBadStatus Kind = "bad_status"
)

// Error is a classified fetch failure. The kind is assigned at the failure
// site, never inferred from message text.
type Error struct {
	Kind   Kind
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBadStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Kind, e.Status)
	case KindTooLarge:
		return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	userAgent    = "ThumbForgeWorker/1.0 (+https://thumbforge.example.com)"
	acceptHeader = "image/*,application/octet-stream;q=0.9,*/*;q=0.8"
)

// Fetcher downloads source images with a per-request timeout and a hard
// byte cap.
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// New creates a Fetcher. maxBytes bounds the response body; timeout bounds
// the whole request.
func New(timeout time.Duration, maxBytes int64, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:   &http.Client{},
		timeout:  timeout,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch retrieves url and returns the body bytes and the response content
// type. The body is streamed through a limited reader and aborted the moment
// the byte cap would be exceeded.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", &Error{Kind: KindNetwork, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", &Error{Kind: classifyTransport(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", &Error{Kind: KindBadStatus, URL: url, Status: resp.StatusCode}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, "", &Error{
			Kind: KindTooLarge,
			URL:  url,
			Err:  fmt.Errorf("declared length %d exceeds limit of %d bytes", resp.ContentLength, f.maxBytes),
		}
	}

	// Read one byte past the cap to detect oversized chunked bodies without
	// buffering them.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", &Error{Kind: classifyTransport(err), URL: url, Err: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, "", &Error{
			Kind: KindTooLarge,
			URL:  url,
			Err:  fmt.Errorf("payload exceeds limit of %d bytes", f.maxBytes),
		}
	}

	f.logger.Debug("Image fetched",
		slog.String("url", url),
		slog.Int("bytes", len(body)),
		slog.String("content_type", resp.Header.Get("Content-Type")),
	)
	return body, resp.Header.Get("Content-Type"), nil
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindNetwork
}
