package versionsgen

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/discord/lilliput"

	"github.com/giobyte8/imgversions/internal/filetypes"
)

func TestResolveCodec(t *testing.T) {
	tests := []struct {
		name     string
		cfg      CodecConfig
		wantName string
		wantErr  error
	}{
		{
			name:     "Imaging",
			cfg:      CodecConfig{Name: "imaging"},
			wantName: CodecImaging,
		},
		{
			name:     "Name is case insensitive",
			cfg:      CodecConfig{Name: " Imaging ", Strict: true},
			wantName: CodecImaging,
		},
		{
			name:     "Unknown falls back",
			cfg:      CodecConfig{Name: "pil"},
			wantName: CodecImaging,
		},
		{
			name:    "Unknown strict",
			cfg:     CodecConfig{Name: "pil", Strict: true},
			wantErr: ErrUnknownCodec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := ResolveCodec(tt.cfg)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if codec.Name() != tt.wantName {
				t.Errorf("Codec = %s, want %s", codec.Name(), tt.wantName)
			}
		})
	}
}

func TestImagingCodecRejectsBadInput(t *testing.T) {
	codec := NewImagingCodec(0)
	img := newGradient(10, 10)

	if _, err := codec.Resize(img, 0, 5); err == nil {
		t.Error("Expected error for zero width")
	}
	if _, err := codec.Crop(img, image.Rect(5, 5, 20, 20)); err == nil {
		t.Error("Expected error for crop outside bounds")
	}

	dest := filepath.Join(t.TempDir(), "out.xyz")
	if err := codec.Encode(img, dest, EncodeOptions{}); err == nil {
		t.Error("Expected error for unknown extension")
	}
}

func TestImagingCodecRoundTrip(t *testing.T) {
	codec := NewImagingCodec(1024)
	dir := t.TempDir()

	for _, name := range []string{"out.jpg", "out.png", "out.gif"} {
		dest := filepath.Join(dir, name)
		err := codec.Encode(newGradient(64, 48), dest, EncodeOptions{Quality: 90, Optimize: true})
		if err != nil {
			t.Fatalf("Encode(%s): %v", name, err)
		}

		img, err := codec.Decode(dest)
		if err != nil {
			t.Fatalf("Decode(%s): %v", name, err)
		}
		if got := img.Bounds().Size(); got != image.Pt(64, 48) {
			t.Errorf("%s size = %v, want 64x48", name, got)
		}
	}
}

func TestLilliputFileType(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"a/b/photo.JPG", ".jpg", false},
		{"photo.jpeg", ".jpg", false},
		{"photo.png", ".png", false},
		{"photo.webp", ".webp", false},
		{"photo.gif", "", true},
		{"photo.tiff", "", true},
		{"photo.bmp", "", true},
	}

	for _, tt := range tests {
		got, err := lilliputFileType(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("lilliputFileType(%q) error = %v", tt.path, err)
			continue
		}
		if tt.wantErr && !errors.Is(err, errLilliputFormat) {
			t.Errorf("lilliputFileType(%q) error = %v, want %v", tt.path, err, errLilliputFormat)
		}
		if got != tt.want {
			t.Errorf("lilliputFileType(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLilliputEncodeOptions(t *testing.T) {
	opts := encodeOptions(".jpg", EncodeOptions{Quality: 90})
	if opts[lilliput.JpegQuality] != 90 {
		t.Errorf("JPEG quality = %d, want 90", opts[lilliput.JpegQuality])
	}

	opts = encodeOptions(".png", EncodeOptions{Quality: 90, Optimize: true})
	if _, ok := opts[lilliput.JpegQuality]; ok {
		t.Error("PNG options should not carry JPEG quality")
	}
	if opts[lilliput.PngCompression] != 9 {
		t.Errorf("PNG compression = %d, want 9", opts[lilliput.PngCompression])
	}

	if opts := encodeOptions(".jpg", EncodeOptions{}); len(opts) != 0 {
		t.Errorf("Expected codec defaults, got %v", opts)
	}
}

func TestImagingCodecRemovesPartialFile(t *testing.T) {
	codec := NewImagingCodec(0)
	dest := filepath.Join(t.TempDir(), "empty.png")

	// png refuses to encode an image without pixels
	err := codec.Encode(image.NewNRGBA(image.Rect(0, 0, 0, 0)), dest, EncodeOptions{})
	if err == nil {
		t.Fatal("Expected error")
	}
	assertMissing(t, dest)
}

func newLilliputTestCodec(t *testing.T, bufferSize int) *LilliputCodec {
	t.Helper()

	codec, err := NewLilliputCodec(bufferSize, 0)
	if err != nil {
		t.Skipf("lilliput not usable: %v", err)
	}

	return codec
}

// newNoise creates a bitmap that does not compress
func newNoise(width, height int) *image.NRGBA {
	rnd := rand.New(rand.NewPCG(1, 2))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(rnd.UintN(256)),
				G: uint8(rnd.UintN(256)),
				B: uint8(rnd.UintN(256)),
				A: 255,
			})
		}
	}

	return img
}

func TestLilliputCodecGenerate(t *testing.T) {
	tests := []struct {
		name      string
		mode      Mode
		specs     SpecSet
		version   string
		wantSize  image.Point
		wantThumb image.Point
	}{
		{
			name: "Landscape proportional",
			mode: Proportional,
			specs: SpecSet{
				Landscape: []SizeSpec{{Name: "large_", Width: 800}},
				Portrait:  []SizeSpec{{Name: "large_", Width: 300}},
			},
			version:   "large_photo.jpg",
			wantSize:  image.Pt(800, 600),
			wantThumb: image.Pt(120, 90),
		},
		{
			name: "Square crop",
			mode: Crop,
			specs: SpecSet{
				Crop: []SizeSpec{{Name: "square_", Width: 200, Height: 200}},
			},
			version:   "square_photo.jpg",
			wantSize:  image.Pt(200, 200),
			wantThumb: image.Pt(120, 120),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			g := newTestGenerator(newLilliputTestCodec(t, 0))
			src := openSource(t, g, dir, "photo.jpg", 1600, 1200)
			if got := src.Image.Bounds().Size(); got != image.Pt(1600, 1200) {
				t.Fatalf("Decoded size = %v, want 1600x1200", got)
			}

			failures, err := g.Generate(
				context.Background(),
				src,
				tt.specs,
				GenerationPolicy{Mode: tt.mode},
			)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(failures) != 0 {
				t.Fatalf("Unexpected failures: %v", failures)
			}

			versionsDir := filepath.Join(dir, "photo_jpg_versions")
			if got := imageSize(t, filepath.Join(versionsDir, tt.version)); got != tt.wantSize {
				t.Errorf("Version size = %v, want %v", got, tt.wantSize)
			}
			if got := imageSize(t, filepath.Join(versionsDir, "thumb_"+tt.version)); got != tt.wantThumb {
				t.Errorf("Thumbnail size = %v, want %v", got, tt.wantThumb)
			}
		})
	}
}

func TestLilliputCodecEncodesImageExtensions(t *testing.T) {
	codec := newLilliputTestCodec(t, 0)
	dir := t.TempDir()

	for _, ext := range filetypes.DefaultExtensions[filetypes.Image] {
		t.Run(ext, func(t *testing.T) {
			dest := filepath.Join(dir, "out"+ext)
			err := codec.Encode(newGradient(64, 48), dest, EncodeOptions{Quality: 90, Optimize: true})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got := imageSize(t, dest); got != image.Pt(64, 48) {
				t.Errorf("Size = %v, want 64x48", got)
			}
		})
	}
}

func TestLilliputCodecGenerateFromGIF(t *testing.T) {
	dir := t.TempDir()
	err := NewImagingCodec(0).Encode(newGradient(400, 300), filepath.Join(dir, "anim.gif"), EncodeOptions{})
	if err != nil {
		t.Fatalf("Failed to write gif: %v", err)
	}

	g := newTestGenerator(newLilliputTestCodec(t, 0))
	src, err := g.Open(dir, "anim.gif")
	if err != nil {
		t.Fatalf("Failed to open source: %v", err)
	}

	failures, err := g.GenerateProportional(
		context.Background(),
		src,
		[]SizeSpec{{Name: "small_", Width: 200}},
		nil,
		GenerationPolicy{Mode: Proportional},
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("Unexpected failures: %v", failures)
	}

	versionsDir := filepath.Join(dir, "anim_gif_versions")
	if got := imageSize(t, filepath.Join(versionsDir, "small_anim.gif")); got != image.Pt(200, 150) {
		t.Errorf("Version size = %v, want 200x150", got)
	}
	if got := imageSize(t, filepath.Join(versionsDir, "thumb_small_anim.gif")); got != image.Pt(120, 90) {
		t.Errorf("Thumbnail size = %v, want 120x90", got)
	}
}

func TestLilliputCodecOutgrowsBuffer(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "noise.png")

	f, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := png.Encode(f, newNoise(400, 300)); err != nil {
		f.Close()
		t.Fatalf("Failed to encode noise: %v", err)
	}
	f.Close()

	// Far smaller than the bitmap
	codec := newLilliputTestCodec(t, 4096)

	img, err := codec.Decode(srcPath)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := img.Bounds().Size(); got != image.Pt(400, 300) {
		t.Fatalf("Decoded size = %v, want 400x300", got)
	}

	for _, name := range []string{"out.png", "out.jpg"} {
		dest := filepath.Join(dir, name)
		if err := codec.Encode(img, dest, EncodeOptions{Quality: 95}); err != nil {
			t.Fatalf("Encode(%s): %v", name, err)
		}
		if got := imageSize(t, dest); got != image.Pt(400, 300) {
			t.Errorf("%s size = %v, want 400x300", name, got)
		}
	}
}
