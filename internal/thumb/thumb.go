// Package thumb turns source image bytes into JPEG thumbnails. The CPU-bound
// work runs on its own bounded pool so it cannot starve the fetch stage or
// take down an orchestration goroutine.
package thumb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"
)

// Kind classifies a transform failure.
type Kind string

const (
	KindDecodeFailed      Kind = "decode_failed"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindInternal          Kind = "internal"
)

// Error is a classified transform failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Metadata describes the source image and the produced thumbnail.
type Metadata struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	SizeBytes   int    `json:"size_bytes"`
	ThumbWidth  int    `json:"thumb_width"`
	ThumbHeight int    `json:"thumb_height"`
}

const jpegQuality = 90

// Transformer produces thumbnails bounded to maxDimension on the longest
// side. A fixed-size semaphore bounds concurrent transforms; a full pool
// blocks callers rather than failing.
type Transformer struct {
	maxDimension int
	sem          chan struct{}
	logger       *slog.Logger
}

// New creates a Transformer with the given output bound and pool size.
func New(maxDimension, concurrency int, logger *slog.Logger) *Transformer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Transformer{
		maxDimension: maxDimension,
		sem:          make(chan struct{}, concurrency),
		logger:       logger,
	}
}

type transformResult struct {
	thumb []byte
	meta  *Metadata
	err   error
}

// Transform decodes data, scales it to fit the configured bound without
// upscaling, and re-encodes it as JPEG. The decode and resize run on a
// separate goroutine; a panic there surfaces as an internal Error instead of
// crashing the caller.
func (t *Transformer) Transform(ctx context.Context, data []byte) ([]byte, *Metadata, error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, &Error{Kind: KindInternal, Err: ctx.Err()}
	}
	defer func() { <-t.sem }()

	resCh := make(chan transformResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resCh <- transformResult{err: &Error{Kind: KindInternal, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		thumbBytes, meta, err := t.process(data)
		resCh <- transformResult{thumb: thumbBytes, meta: meta, err: err}
	}()

	select {
	case res := <-resCh:
		return res.thumb, res.meta, res.err
	case <-ctx.Done():
		// The goroutine keeps the pool slot until it finishes; the result is
		// discarded.
		return nil, nil, &Error{Kind: KindInternal, Err: ctx.Err()}
	}
}

func (t *Transformer) process(data []byte) ([]byte, *Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, nil, &Error{Kind: KindUnsupportedFormat, Err: err}
		}
		return nil, nil, &Error{Kind: KindDecodeFailed, Err: err}
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, &Error{Kind: KindDecodeFailed, Err: err}
	}

	thumbImg := imaging.Fit(src, t.maxDimension, t.maxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbImg, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, nil, &Error{Kind: KindInternal, Err: err}
	}

	bounds := thumbImg.Bounds()
	meta := &Metadata{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      strings.ToUpper(format),
		SizeBytes:   len(data),
		ThumbWidth:  bounds.Dx(),
		ThumbHeight: bounds.Dy(),
	}

	t.logger.Debug("Thumbnail generated",
		slog.String("format", meta.Format),
		slog.Int("source_width", meta.Width),
		slog.Int("source_height", meta.Height),
		slog.Int("thumb_width", meta.ThumbWidth),
		slog.Int("thumb_height", meta.ThumbHeight),
	)
	return buf.Bytes(), meta, nil
}
