package versionsgen

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
)

const (
	CodecLilliput = "lilliput"
	CodecImaging  = "imaging"
)

var ErrUnknownCodec = errors.New("unknown image codec")

// EncodeOptions are applied when a bitmap is written to disk. A zero
// Quality lets the codec use its own default.
type EncodeOptions struct {
	Quality  int
	Optimize bool
}

// ImageCodec provides the image primitives the generator is built on.
// Output format is derived from the destination file extension.
type ImageCodec interface {
	Name() string
	Decode(path string) (image.Image, error)
	Resize(img image.Image, width, height int) (image.Image, error)
	Crop(img image.Image, rect image.Rectangle) (image.Image, error)
	Encode(img image.Image, destPath string, opts EncodeOptions) error
}

// CodecConfig selects and tunes the ImageCodec used by the process.
type CodecConfig struct {
	Name   string
	Strict bool

	// Size of the buffered writer used when saving files.
	MaxBlock int

	// Size of the output buffer handed to lilliput.
	LilliputBufferSize int
}

// ResolveCodec returns the codec named in cfg. It is meant to be called
// once while the process starts. In strict mode an unknown or unusable
// codec is an error; otherwise the pure Go imaging codec is used instead.
func ResolveCodec(cfg CodecConfig) (ImageCodec, error) {
	codec, err := newCodec(cfg)
	if err == nil {
		return codec, nil
	}

	if cfg.Strict {
		return nil, err
	}

	slog.Warn(
		"Image codec not available, falling back",
		"requested", cfg.Name,
		"fallback", CodecImaging,
		"error", err,
	)
	return NewImagingCodec(cfg.MaxBlock), nil
}

func newCodec(cfg CodecConfig) (ImageCodec, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case CodecLilliput:
		return NewLilliputCodec(cfg.LilliputBufferSize, cfg.MaxBlock)
	case CodecImaging:
		return NewImagingCodec(cfg.MaxBlock), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, cfg.Name)
	}
}
