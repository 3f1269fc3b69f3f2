package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/giobyte8/imgversions/internal/config"
	"github.com/giobyte8/imgversions/internal/filetypes"
	"github.com/giobyte8/imgversions/internal/models"
	versionsgen "github.com/giobyte8/imgversions/internal/versions_gen"
)

var ErrInvalidPath = errors.New("invalid file path")

// Report is the outcome of a generation request. Failures are what the
// uploading user should be told about; everything else was written.
type Report struct {
	FilePath string
	Skipped  bool
	Failures []versionsgen.Failure
}

func (r *Report) Messages() []string {
	msgs := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		msgs = append(msgs, f.Error())
	}

	return msgs
}

type VersionsService struct {
	config     config.VersionsConfig
	generator  *versionsgen.Generator
	classifier *filetypes.Classifier
}

func NewVersionsService(
	config config.VersionsConfig,
	generator *versionsgen.Generator,
	classifier *filetypes.Classifier,
) *VersionsService {
	return &VersionsService{
		config:     config,
		generator:  generator,
		classifier: classifier,
	}
}

// ProcessGenRequest thumbnails the requested original and generates its
// versions. Only failures that prevent any output are returned as error.
func (s *VersionsService) ProcessGenRequest(
	ctx context.Context,
	req models.VersionsRequest,
) (*Report, error) {
	slog.Debug(
		"Processing versions generation request",
		"requestId", req.RequestID,
		"filePath", req.FilePath,
	)

	dir, filename, err := s.resolve(req.FilePath)
	if err != nil {
		return nil, err
	}
	report := &Report{FilePath: req.FilePath}

	if s.isGenerated(filename) {
		slog.Debug("Skipping generated file", "filePath", req.FilePath)
		report.Skipped = true
		return report, nil
	}

	absPath := filepath.Join(dir, filename)
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat original %s: %w", absPath, err)
	}

	if s.classifier.TypeOf(filename) != filetypes.Image {
		slog.Debug("Skipping non image file", "filePath", req.FilePath)
		report.Skipped = true
		return report, nil
	}

	isImage, err := s.classifier.IsImageFile(absPath)
	if err != nil {
		return nil, err
	}
	if !isImage {
		return nil, fmt.Errorf(
			"%w: %s content is not an image",
			versionsgen.ErrDecode,
			req.FilePath,
		)
	}

	slog.Info(
		"Generating versions",
		"filePath", req.FilePath,
		"size", filetypes.HumanSize(info.Size()),
	)

	src, err := s.generator.Open(dir, filename)
	if err != nil {
		return nil, err
	}

	thumbPath := s.generator.ThumbnailPath(dir, filename)
	err = s.generator.MakeThumbnail(
		absPath,
		thumbPath,
		s.config.Options.ThumbBounds,
	)
	if err != nil {
		report.Failures = append(report.Failures, versionsgen.Failure{
			Filename: filename,
			Stage:    versionsgen.StageThumbnail,
			Err:      err,
		})
	}

	if s.config.UseImageGenerator {
		failures, err := s.generator.GenerateProportional(
			ctx,
			src,
			s.config.Specs.Landscape,
			s.config.Specs.Portrait,
			versionsgen.GenerationPolicy{
				Mode:                       versionsgen.Proportional,
				ForceOverwriteIfNotSmaller: s.config.ForceGenerator,
			},
		)
		report.Failures = append(report.Failures, failures...)
		if err != nil {
			return report, err
		}
	}

	if s.config.UseCropGenerator {
		failures, err := s.generator.GenerateCrop(
			ctx,
			src,
			s.config.Specs.Crop,
		)
		report.Failures = append(report.Failures, failures...)
		if err != nil {
			return report, err
		}
	}

	for _, msg := range report.Messages() {
		slog.Warn("Versions generation incomplete", "message", msg)
	}

	return report, nil
}

// ProcessDelRequest removes every file derived from the requested
// original: its versions directory and its thumbnail.
func (s *VersionsService) ProcessDelRequest(
	ctx context.Context,
	req models.VersionsRequest,
) error {
	slog.Debug(
		"Processing versions delete request",
		"requestId", req.RequestID,
		"filePath", req.FilePath,
	)

	dir, filename, err := s.resolve(req.FilePath)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	versionsDir := s.generator.VersionsDir(dir, filename)
	if strings.EqualFold(versionsDir, filepath.Join(dir, filename)) {
		return fmt.Errorf(
			"%w: versions directory of %q is the original itself",
			ErrInvalidPath,
			req.FilePath,
		)
	}

	slog.Debug("Removing versions directory", "path", versionsDir)
	if err := os.RemoveAll(versionsDir); err != nil {
		return fmt.Errorf(
			"failed to remove versions directory %s: %w",
			versionsDir,
			err,
		)
	}

	thumbPath := s.generator.ThumbnailPath(dir, filename)
	if err := os.Remove(thumbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove thumbnail %s: %w", thumbPath, err)
	}

	return nil
}

// resolve splits a path relative to the originals root into its absolute
// directory and filename, refusing paths that leave the root.
func (s *VersionsService) resolve(relPath string) (string, string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if relPath == "" || !filepath.IsLocal(cleaned) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, relPath)
	}

	dir := filepath.Join(s.config.DirOriginalsRoot, filepath.Dir(cleaned))
	return dir, filepath.Base(cleaned), nil
}

func (s *VersionsService) isGenerated(filename string) bool {
	return strings.HasPrefix(filename, s.config.Options.ThumbPrefix) ||
		s.config.Specs.IsImageVersion(filename)
}

// GenerateVersions adapts ProcessGenRequest to the consumer, which only
// needs to know whether the message was handled.
func (s *VersionsService) GenerateVersions(
	ctx context.Context,
	req models.VersionsRequest,
) error {
	_, err := s.ProcessGenRequest(ctx, req)
	return err
}

func (s *VersionsService) DeleteVersions(
	ctx context.Context,
	req models.VersionsRequest,
) error {
	return s.ProcessDelRequest(ctx, req)
}
