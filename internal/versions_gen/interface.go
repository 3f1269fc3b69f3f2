package versionsgen

import (
	"fmt"
	"image"
	"os"
	"strings"
)

const (
	VersionsQuality = 90
	DefaultDirMode  = 0775
)

// Mode selects how a generation pass derives its versions.
type Mode int

const (
	Proportional Mode = iota
	Crop
)

func (m Mode) String() string {
	switch m {
	case Proportional:
		return "proportional"
	case Crop:
		return "crop"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// SizeSpec describes a named version. Name is used verbatim as the
// filename prefix of the generated file, so "large_" produces
// "large_photo.jpg". Height is ignored by proportional generation.
type SizeSpec struct {
	Name   string `toml:"name"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// SpecSet groups every version spec known to the generator.
type SpecSet struct {
	Landscape []SizeSpec `toml:"landscape"`
	Portrait  []SizeSpec `toml:"portrait"`
	Crop      []SizeSpec `toml:"crop"`
}

// IsImageVersion reports whether filename looks like a generated version,
// that is, it starts with the name of any registered spec.
func (s SpecSet) IsImageVersion(filename string) bool {
	for _, specs := range [][]SizeSpec{s.Landscape, s.Portrait, s.Crop} {
		for _, spec := range specs {
			if strings.HasPrefix(filename, spec.Name) {
				return true
			}
		}
	}

	return false
}

// Validate checks that every spec is usable and that no two specs of a
// single pass would write to the same file.
func (s SpecSet) Validate() error {
	if err := validateList("landscape", s.Landscape, false); err != nil {
		return err
	}
	if err := validateList("portrait", s.Portrait, false); err != nil {
		return err
	}
	if err := validateList("crop", s.Crop, true); err != nil {
		return err
	}

	// Crop and proportional passes share the versions directory
	for _, c := range s.Crop {
		for _, p := range append(append([]SizeSpec{}, s.Landscape...), s.Portrait...) {
			if c.Name == p.Name {
				return fmt.Errorf(
					"crop version %q collides with a proportional version name",
					c.Name,
				)
			}
		}
	}

	return nil
}

func validateList(kind string, specs []SizeSpec, needHeight bool) error {
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("%s version with empty name", kind)
		}
		if _, dup := seen[spec.Name]; dup {
			return fmt.Errorf("duplicated %s version name %q", kind, spec.Name)
		}
		seen[spec.Name] = struct{}{}

		if spec.Width <= 0 {
			return fmt.Errorf(
				"%s version %q: width must be a positive integer",
				kind,
				spec.Name,
			)
		}
		if needHeight && spec.Height <= 0 {
			return fmt.Errorf(
				"%s version %q: height must be a positive integer",
				kind,
				spec.Name,
			)
		}
	}

	return nil
}

// GenerationPolicy controls a single generation pass.
type GenerationPolicy struct {
	Mode Mode

	// Save the unresized original under the version name when the
	// source is not larger than the requested width.
	ForceOverwriteIfNotSmaller bool
}

// Options holds the settings shared by every pass of a Generator.
type Options struct {

	// Suffix appended to the normalized filename to build the versions
	// directory name, e.g. "_versions" for "photo_jpg_versions".
	DirSuffix string

	// Permission bits of newly created versions directories.
	DirMode os.FileMode

	// Prefix for thumbnail file names.
	ThumbPrefix string

	// Bounding box for thumbnails.
	ThumbBounds image.Point
}

// Source is a decoded original image together with its location.
type Source struct {
	Dir      string
	Filename string
	Image    image.Image
}

func (s *Source) Width() int {
	return s.Image.Bounds().Dx()
}

func (s *Source) Height() int {
	return s.Image.Bounds().Dy()
}
