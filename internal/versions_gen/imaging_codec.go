package versionsgen

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP decoding
)

const defaultMaxBlock = 64 * 1024

// ImagingCodec is a pure Go ImageCodec backed by disintegration/imaging.
type ImagingCodec struct {
	maxBlock int
}

func NewImagingCodec(maxBlock int) *ImagingCodec {
	if maxBlock <= 0 {
		maxBlock = defaultMaxBlock
	}

	return &ImagingCodec{maxBlock: maxBlock}
}

func (c *ImagingCodec) Name() string {
	return CodecImaging
}

func (c *ImagingCodec) Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return img, nil
}

func (c *ImagingCodec) Resize(
	img image.Image,
	width int,
	height int,
) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resize target %dx%d", width, height)
	}

	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

func (c *ImagingCodec) Crop(
	img image.Image,
	rect image.Rectangle,
) (image.Image, error) {
	if !rect.In(img.Bounds()) || rect.Empty() {
		return nil, fmt.Errorf(
			"crop rectangle %v outside image bounds %v",
			rect,
			img.Bounds(),
		)
	}

	return imaging.Crop(img, rect), nil
}

func (c *ImagingCodec) Encode(
	img image.Image,
	destPath string,
	opts EncodeOptions,
) error {
	format, err := imaging.FormatFromFilename(destPath)
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", destPath, err)
	}

	var encOpts []imaging.EncodeOption
	if opts.Quality > 0 {
		encOpts = append(encOpts, imaging.JPEGQuality(opts.Quality))
	}
	if opts.Optimize {
		encOpts = append(encOpts, imaging.PNGCompressionLevel(png.BestCompression))
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", destPath, err)
	}

	w := bufio.NewWriterSize(f, c.maxBlock)
	if err := imaging.Encode(w, img, format, encOpts...); err != nil {
		discardFile(f, destPath)
		return fmt.Errorf("failed to encode %s: %w", destPath, err)
	}
	if err := w.Flush(); err != nil {
		discardFile(f, destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
	}

	return nil
}

// discardFile closes and removes a partially written file.
func discardFile(f *os.File, path string) {
	f.Close()
	os.Remove(path)
}
