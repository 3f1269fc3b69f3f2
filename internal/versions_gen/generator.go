package versionsgen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/giobyte8/imgversions/internal/telemetry"
	"github.com/giobyte8/imgversions/internal/telemetry/metrics"
)

var (
	ErrDecode      = errors.New("image decode failed")
	ErrVersionsDir = errors.New("versions directory unavailable")
)

// Stage identifies the step of a version that failed.
type Stage string

const (
	StageResize    Stage = "resize"
	StageCrop      Stage = "crop"
	StageSave      Stage = "save"
	StageThumbnail Stage = "thumbnail"
)

// Failure records a version that could not be (fully) produced. It never
// aborts the pass it happened in.
type Failure struct {
	Filename string
	Version  string
	Stage    Stage
	Err      error
}

func (f Failure) Error() string {
	what := "image creation failed"
	if f.Stage == StageThumbnail {
		what = "thumbnail creation failed"
	}

	return fmt.Sprintf("%s: %s: %v", f.Filename, what, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

type Generator struct {
	codec     ImageCodec
	opts      Options
	telemetry *telemetry.TelemetrySvc
}

func NewGenerator(
	codec ImageCodec,
	opts Options,
	telemetry *telemetry.TelemetrySvc,
) *Generator {
	if opts.DirMode == 0 {
		opts.DirMode = DefaultDirMode
	}

	return &Generator{
		codec:     codec,
		opts:      opts,
		telemetry: telemetry,
	}
}

// Open decodes dir/filename into a Source for the generation passes.
func (g *Generator) Open(dir, filename string) (*Source, error) {
	img, err := g.codec.Decode(filepath.Join(dir, filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf(
			"%w: %s has empty dimensions",
			ErrDecode,
			filename,
		)
	}

	return &Source{Dir: dir, Filename: filename, Image: img}, nil
}

// VersionsDir returns the directory that holds the versions of filename
// stored in dir.
func (g *Generator) VersionsDir(dir, filename string) string {
	normalized := strings.ToLower(strings.ReplaceAll(filename, ".", "_"))
	return filepath.Join(dir, normalized+g.opts.DirSuffix)
}

// ThumbnailPath returns where the thumbnail of dir/filename is stored.
func (g *Generator) ThumbnailPath(dir, filename string) string {
	return filepath.Join(dir, g.opts.ThumbPrefix+filename)
}

// Generate runs the pass selected by policy.Mode.
func (g *Generator) Generate(
	ctx context.Context,
	src *Source,
	specs SpecSet,
	policy GenerationPolicy,
) ([]Failure, error) {
	switch policy.Mode {
	case Proportional:
		return g.GenerateProportional(
			ctx,
			src,
			specs.Landscape,
			specs.Portrait,
			policy,
		)
	case Crop:
		return g.GenerateCrop(ctx, src, specs.Crop)
	default:
		return nil, fmt.Errorf("unsupported generation mode %s", policy.Mode)
	}
}

// GenerateProportional writes one width-bound version of src per spec.
// Landscape specs are used when the source is wider than tall, portrait
// specs otherwise (square images included).
func (g *Generator) GenerateProportional(
	ctx context.Context,
	src *Source,
	landscape []SizeSpec,
	portrait []SizeSpec,
	policy GenerationPolicy,
) ([]Failure, error) {
	width, height := src.Width(), src.Height()

	specs := portrait
	if width > height {
		specs = landscape
	}

	slog.Debug(
		"Generating proportional versions",
		"file", src.Filename,
		"width", width,
		"height", height,
		"versions", len(specs),
	)

	run := g.newPass(src)
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			slog.Warn("Context cancelled during versions generation")
			return run.failures, err
		}

		if width > spec.Width {
			tgtHeight := proportionalHeight(width, height, spec.Width)
			resized, err := g.codec.Resize(src.Image, spec.Width, tgtHeight)
			if err != nil {
				run.fail(spec, StageResize, err)
				continue
			}

			if err := run.write(spec, resized, g.versionsEncodeOptions()); err != nil {
				return run.failures, err
			}
		} else if policy.ForceOverwriteIfNotSmaller {
			if err := run.write(spec, src.Image, EncodeOptions{}); err != nil {
				return run.failures, err
			}
		} else {
			slog.Debug(
				"Skipping version, source is not larger",
				"file", src.Filename,
				"version", spec.Name,
				"targetWidth", spec.Width,
			)
		}
	}

	return run.failures, nil
}

// GenerateCrop writes one version per spec, scaled to cover the spec box
// and center cropped to it.
func (g *Generator) GenerateCrop(
	ctx context.Context,
	src *Source,
	specs []SizeSpec,
) ([]Failure, error) {
	slog.Debug(
		"Generating cropped versions",
		"file", src.Filename,
		"versions", len(specs),
	)

	run := g.newPass(src)
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			slog.Warn("Context cancelled during versions generation")
			return run.failures, err
		}

		cropped, err := ScaleAndCrop(
			g.codec,
			src.Image,
			image.Pt(spec.Width, spec.Height),
			ScaleOptions{Crop: true},
		)
		if err != nil {
			run.fail(spec, StageCrop, err)
			continue
		}

		if err := run.write(spec, cropped, g.versionsEncodeOptions()); err != nil {
			return run.failures, err
		}
	}

	return run.failures, nil
}

// MakeThumbnail writes a copy of the image at srcPath, scaled down to fit
// bounds, to destPath.
func (g *Generator) MakeThumbnail(
	srcPath string,
	destPath string,
	bounds image.Point,
) error {
	img, err := g.codec.Decode(srcPath)
	if err != nil {
		return err
	}

	size := fitWithin(img.Bounds().Size(), bounds)
	if size != img.Bounds().Size() {
		img, err = g.codec.Resize(img, size.X, size.Y)
		if err != nil {
			return err
		}
	}

	if err := g.codec.Encode(img, destPath, EncodeOptions{}); err != nil {
		return err
	}

	g.telemetry.Metrics().IncrementWAttrs(
		metrics.ThumbCreated,
		map[string]string{
			"thumbFile":   filepath.Base(destPath),
			"thumbWidth":  fmt.Sprintf("%d", size.X),
			"thumbHeight": fmt.Sprintf("%d", size.Y),
		},
	)
	return nil
}

func (g *Generator) versionsEncodeOptions() EncodeOptions {
	return EncodeOptions{Quality: VersionsQuality, Optimize: true}
}

// pass tracks the state of one generation pass over a source.
type pass struct {
	g          *Generator
	src        *Source
	dir        string
	dirCreated bool
	failures   []Failure
}

func (g *Generator) newPass(src *Source) *pass {
	return &pass{
		g:   g,
		src: src,
		dir: g.VersionsDir(src.Dir, src.Filename),
	}
}

func (p *pass) fail(spec SizeSpec, stage Stage, err error) {
	slog.Warn(
		"Version generation failed",
		"file", p.src.Filename,
		"version", spec.Name,
		"stage", stage,
		"error", err,
	)

	p.failures = append(p.failures, Failure{
		Filename: p.src.Filename,
		Version:  spec.Name,
		Stage:    stage,
		Err:      err,
	})
	p.g.telemetry.Metrics().IncrementWAttrs(
		metrics.VersionFailed,
		map[string]string{"version": spec.Name, "stage": string(stage)},
	)
}

// write saves img as the version described by spec and thumbnails it.
// Only a versions directory failure is returned; everything else is
// recorded as a Failure.
func (p *pass) write(spec SizeSpec, img image.Image, opts EncodeOptions) error {
	if !p.dirCreated {
		if err := ensureVersionsDir(p.dir, p.g.opts.DirMode); err != nil {
			return err
		}
		p.dirCreated = true
	}

	versionName := spec.Name + p.src.Filename
	versionPath := filepath.Join(p.dir, versionName)
	if err := p.g.codec.Encode(img, versionPath, opts); err != nil {
		p.fail(spec, StageSave, err)
		return nil
	}

	bounds := img.Bounds()
	p.g.telemetry.Metrics().IncrementWAttrs(
		metrics.VersionCreated,
		map[string]string{
			"version":       spec.Name,
			"origWidth":     fmt.Sprintf("%d", p.src.Width()),
			"versionWidth":  fmt.Sprintf("%d", bounds.Dx()),
			"versionHeight": fmt.Sprintf("%d", bounds.Dy()),
		},
	)

	err := p.g.MakeThumbnail(
		versionPath,
		p.g.ThumbnailPath(p.dir, versionName),
		p.g.opts.ThumbBounds,
	)
	if err != nil {
		p.fail(spec, StageThumbnail, err)
	}

	return nil
}

// ensureVersionsDir creates dir with exactly mode. The directory is
// prepared under a temporary name and renamed into place, so it never
// exists with umask-derived permissions.
func ensureVersionsDir(dir string, mode os.FileMode) error {
	if info, err := os.Stat(dir); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("%w: %s is not a directory", ErrVersionsDir, dir)
	}

	tmpDir, err := os.MkdirTemp(filepath.Dir(dir), ".versions-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVersionsDir, err)
	}

	if err := os.Chmod(tmpDir, mode); err != nil {
		os.Remove(tmpDir)
		return fmt.Errorf("%w: %w", ErrVersionsDir, err)
	}

	if err := os.Rename(tmpDir, dir); err != nil {
		os.Remove(tmpDir)

		// Somebody else may have created it meanwhile
		if info, statErr := os.Stat(dir); statErr == nil && info.IsDir() {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrVersionsDir, err)
	}

	slog.Debug("Created versions directory", "path", dir, "mode", mode)
	return nil
}
