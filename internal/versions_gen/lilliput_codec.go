package versionsgen

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/discord/lilliput"
	"golang.org/x/image/draw"
)

const defaultLilliputBufferSize = 64 * 1024 * 1024

var errLilliputFormat = errors.New("format not written by lilliput")

// LilliputCodec decodes and encodes through lilliput, which normalizes
// orientation and handles more formats than the standard library. Pixel
// operations run on decoded bitmaps with x/image/draw. Formats lilliput
// cannot write (GIF, TIFF, BMP) are encoded by an ImagingCodec.
type LilliputCodec struct {
	bufferSize int
	maxBlock   int
	fallback   *ImagingCodec

	mu        sync.Mutex
	outputBuf []byte
}

func NewLilliputCodec(bufferSize, maxBlock int) (*LilliputCodec, error) {
	if bufferSize < 0 {
		return nil, fmt.Errorf("invalid lilliput buffer size %d", bufferSize)
	}
	if bufferSize == 0 {
		bufferSize = defaultLilliputBufferSize
	}
	if maxBlock <= 0 {
		maxBlock = defaultMaxBlock
	}

	c := &LilliputCodec{
		bufferSize: bufferSize,
		maxBlock:   maxBlock,
		fallback:   NewImagingCodec(maxBlock),
	}
	if err := c.probe(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *LilliputCodec) Name() string {
	return CodecLilliput
}

func (c *LilliputCodec) Decode(path string) (image.Image, error) {
	inputBuf, err := c.readFile(path)
	if err != nil {
		return nil, err
	}

	decoder, err := c.decode(path, inputBuf)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	width, height, err := c.getDimensions(path, decoder)
	if err != nil {
		return nil, err
	}

	// Re-encode losslessly so the bitmap can be read by image/png
	pngBuf, err := c.transform(decoder, &lilliput.ImageOptions{
		FileType:             ".png",
		Width:                width,
		Height:               height,
		ResizeMethod:         lilliput.ImageOpsNoResize,
		NormalizeOrientation: true,
	}, max(width, height), transformBufferSize(width, height))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	img, err := png.Decode(bytes.NewReader(pngBuf))
	if err != nil {
		return nil, fmt.Errorf("failed to read decoded bitmap %s: %w", path, err)
	}

	return img, nil
}

func (c *LilliputCodec) Resize(
	img image.Image,
	width int,
	height int,
) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid resize target %dx%d", width, height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst, nil
}

func (c *LilliputCodec) Crop(
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

	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}

func (c *LilliputCodec) Encode(
	img image.Image,
	destPath string,
	opts EncodeOptions,
) error {
	fileType, err := lilliputFileType(destPath)
	if errors.Is(err, errLilliputFormat) {
		return c.fallback.Encode(img, destPath, opts)
	}
	if err != nil {
		return err
	}

	var raw bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&raw, img); err != nil {
		return fmt.Errorf("failed to serialize bitmap for %s: %w", destPath, err)
	}

	decoder, err := c.decode(destPath, raw.Bytes())
	if err != nil {
		return err
	}
	defer decoder.Close()

	width, height := img.Bounds().Dx(), img.Bounds().Dy()
	ops := &lilliput.ImageOptions{
		FileType:      fileType,
		Width:         width,
		Height:        height,
		ResizeMethod:  lilliput.ImageOpsNoResize,
		EncodeOptions: encodeOptions(fileType, opts),
	}
	outBuf, err := c.transform(
		decoder,
		ops,
		max(width, height),
		transformBufferSize(width, height),
	)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", destPath, err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", destPath, err)
	}

	w := bufio.NewWriterSize(f, c.maxBlock)
	if _, err := w.Write(outBuf); err != nil {
		discardFile(f, destPath)
		return fmt.Errorf("failed to write %s: %w", destPath, err)
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

// transform runs ops and returns a copy of the encoded bytes. The shared
// output buffer is used when bufSize fits in it, a dedicated one otherwise.
func (c *LilliputCodec) transform(
	decoder lilliput.Decoder,
	opts *lilliput.ImageOptions,
	maxSize int,
	bufSize int,
) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var buf []byte
	if bufSize > c.bufferSize {
		buf = make([]byte, bufSize)
	} else {
		if c.outputBuf == nil {
			c.outputBuf = make([]byte, c.bufferSize)
		}
		buf = c.outputBuf
	}

	ops := lilliput.NewImageOps(maxSize)
	defer ops.Close()

	out, err := ops.Transform(decoder, opts, buf)
	if err != nil {
		return nil, err
	}

	return bytes.Clone(out), nil
}

func (c *LilliputCodec) readFile(fileAbsPath string) ([]byte, error) {
	inputBuf, err := os.ReadFile(fileAbsPath)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to read image file %s: %w",
			fileAbsPath,
			err,
		)
	}

	return inputBuf, nil
}

func (c *LilliputCodec) decode(
	filePath string,
	inputBuf []byte,
) (lilliput.Decoder, error) {
	decoder, err := lilliput.NewDecoder(inputBuf)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to create lilliput decoder for %s: %w",
			filePath,
			err,
		)
	}

	return decoder, nil
}

func (c *LilliputCodec) getDimensions(
	filePath string,
	decoder lilliput.Decoder,
) (int, int, error) {
	imgHeader, err := decoder.Header()
	if err != nil {
		return 0, 0, fmt.Errorf(
			"failed to get image header for %s: %w",
			filePath,
			err,
		)
	}

	width := imgHeader.Width()
	height := imgHeader.Height()
	if width == 0 || height == 0 {
		return 0, 0, fmt.Errorf(
			"invalid image dimensions for %s: width=%d, height=%d",
			filePath,
			width,
			height,
		)
	}

	return width, height, nil
}

// transformBufferSize bounds the encoded size of a width x height RGBA
// bitmap, uncompressed, with room for container overhead.
func transformBufferSize(width, height int) int {
	raw := width * height * 4
	return raw + raw/100 + height + 64*1024
}

// probe makes sure the native library can read a trivial image.
func (c *LilliputCodec) probe() error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 1, 1))); err != nil {
		return err
	}

	decoder, err := c.decode("probe.png", buf.Bytes())
	if err != nil {
		return err
	}
	defer decoder.Close()

	_, _, err = c.getDimensions("probe.png", decoder)
	return err
}

func lilliputFileType(destPath string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(destPath)); ext {
	case ".jpg", ".jpeg":
		return ".jpg", nil
	case ".png", ".webp":
		return ext, nil
	default:
		return "", fmt.Errorf("%w: %q for %s", errLilliputFormat, ext, destPath)
	}
}

func encodeOptions(fileType string, opts EncodeOptions) map[int]int {
	encOpts := make(map[int]int)
	switch fileType {
	case ".jpg":
		if opts.Quality > 0 {
			encOpts[lilliput.JpegQuality] = opts.Quality
		}
	case ".webp":
		if opts.Quality > 0 {
			encOpts[lilliput.WebpQuality] = opts.Quality
		}
	case ".png":
		if opts.Optimize {
			encOpts[lilliput.PngCompression] = 9
		}
	}

	return encOpts
}
