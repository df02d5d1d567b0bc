// Package attachment converts raw files into transportable payloads for
// provider requests.
//
// Encoding is a pure transform: the file's bytes become a base64 payload
// bounded by a configurable size limit. Files over the limit are rejected
// per-file so the caller can skip them and continue with the rest.
package attachment

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"github.com/BTreeMap/ScriptPipe/internal/models"
)

// Opts holds configuration options for the encoder.
type Opts struct {
	MaxSize int64 // per-file byte ceiling; defaults to models.MaxAttachmentSize
}

// Option defines a configuration option for the encoder.
type Option func(*Opts)

// WithMaxSize overrides the per-file byte ceiling.
func WithMaxSize(n int64) Option {
	return func(o *Opts) {
		o.MaxSize = n
	}
}

// Encoder produces models.Attachment payloads from raw file content.
type Encoder struct {
	maxSize int64
}

// NewEncoder creates an encoder with the given options.
func NewEncoder(opts ...Option) *Encoder {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = models.MaxAttachmentSize
	}
	slog.Debug("Encoder.NewEncoder: created", "max_size", cfg.MaxSize)
	return &Encoder{maxSize: cfg.MaxSize}
}

// MaxSize returns the configured per-file byte ceiling.
func (e *Encoder) MaxSize() int64 {
	return e.maxSize
}

// Encode reads the file content and produces an attachment with a base64
// payload. Files larger than the configured ceiling are rejected with
// models.ErrAttachmentTooLarge.
func (e *Encoder) Encode(name, mediaType string, r io.Reader) (models.Attachment, error) {
	slog.Debug("Encoder.Encode: encoding file", "name", name, "media_type", mediaType)

	// Read one byte past the limit so oversized files are detected without
	// buffering their full content.
	data, err := io.ReadAll(io.LimitReader(r, e.maxSize+1))
	if err != nil {
		slog.Error("Encoder.Encode: read failed", "error", err, "name", name)
		return models.Attachment{}, fmt.Errorf("failed to read attachment %s: %w", name, err)
	}
	if int64(len(data)) > e.maxSize {
		slog.Warn("Encoder.Encode: file exceeds size limit", "name", name, "limit", e.maxSize)
		return models.Attachment{}, models.ErrAttachmentTooLarge
	}

	att := models.Attachment{
		Name:      name,
		MediaType: mediaType,
		Data:      base64.StdEncoding.EncodeToString(data),
	}
	slog.Debug("Encoder.Encode: succeeded", "name", name, "raw_bytes", len(data), "encoded_bytes", len(att.Data))
	return att, nil
}
