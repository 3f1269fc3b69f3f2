package config

import (
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"

	"code.cloudfoundry.org/bytefmt"
	"github.com/BurntSushi/toml"

	"github.com/giobyte8/imgversions/internal/filetypes"
	"github.com/giobyte8/imgversions/internal/telemetry"
	versionsgen "github.com/giobyte8/imgversions/internal/versions_gen"
)

const (
	defaultLandscape = "thumbnail_:60,small_:140,medium_:300,big_:460,large_:680"
	defaultPortrait  = "thumbnail_:40,small_:70,medium_:150,big_:230,large_:340"
	defaultCrop      = "cropped_:60x60,croppedthumbnail_:140x140"
)

// Holds the config params for the consumer
type AMQPConfig struct {
	AMQPUri  string
	Exchange string

	VersionsGenQueueName string
	VersionsDelQueueName string
}

type VersionsConfig struct {
	DirOriginalsRoot string

	UseImageGenerator bool
	UseCropGenerator  bool
	ForceGenerator    bool

	Specs      versionsgen.SpecSet
	Options    versionsgen.Options
	Extensions map[string][]string
}

type Config struct {
	AMQP      AMQPConfig
	Versions  VersionsConfig
	Codec     versionsgen.CodecConfig
	Telemetry telemetry.Config
}

// specFile is the layout of the optional TOML file that overrides the
// version lists and the extensions table.
type specFile struct {
	Landscape  []versionsgen.SizeSpec `toml:"landscape"`
	Portrait   []versionsgen.SizeSpec `toml:"portrait"`
	Crop       []versionsgen.SizeSpec `toml:"crop"`
	Extensions map[string][]string    `toml:"extensions"`
}

// Load builds the configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	var err error

	cfg.AMQP = AMQPConfig{
		AMQPUri: fmt.Sprintf(
			"amqp://%s:%s@%s:%s/",
			os.Getenv("RABBITMQ_USER"),
			os.Getenv("RABBITMQ_PASS"),
			os.Getenv("RABBITMQ_HOST"),
			os.Getenv("RABBITMQ_PORT"),
		),
		Exchange:             os.Getenv("AMQP_EXCHANGE"),
		VersionsGenQueueName: os.Getenv("AMQP_QUEUE_VERSIONS_GEN_REQUESTS"),
		VersionsDelQueueName: os.Getenv("AMQP_QUEUE_VERSIONS_DEL_REQUESTS"),
	}

	if cfg.Versions, err = loadVersions(); err != nil {
		return nil, err
	}
	if cfg.Codec, err = loadCodec(); err != nil {
		return nil, err
	}

	cfg.Telemetry = telemetry.Config{
		OtelEnabled:          os.Getenv("OTEL_ENABLED") == "true",
		CollectorGrpcAddress: os.Getenv("OTEL_COLLECTOR_GRPC_ENDPOINT"),
	}

	return &cfg, nil
}

func loadVersions() (VersionsConfig, error) {
	var vc VersionsConfig
	var err error

	vc.DirOriginalsRoot = os.Getenv("DIR_ORIGINALS_ROOT")
	if vc.DirOriginalsRoot == "" {
		return vc, fmt.Errorf("DIR_ORIGINALS_ROOT is required")
	}

	if vc.UseImageGenerator, err = envBool("USE_IMAGE_GENERATOR", true); err != nil {
		return vc, err
	}
	if vc.UseCropGenerator, err = envBool("USE_CROP_GENERATOR", false); err != nil {
		return vc, err
	}
	if vc.ForceGenerator, err = envBool("FORCE_GENERATOR", false); err != nil {
		return vc, err
	}

	landscape := envOr("IMAGE_GENERATOR_LANDSCAPE", defaultLandscape)
	if vc.Specs.Landscape, err = ParseWidthSpecs(landscape); err != nil {
		return vc, fmt.Errorf("invalid IMAGE_GENERATOR_LANDSCAPE: %w", err)
	}
	portrait := envOr("IMAGE_GENERATOR_PORTRAIT", defaultPortrait)
	if vc.Specs.Portrait, err = ParseWidthSpecs(portrait); err != nil {
		return vc, fmt.Errorf("invalid IMAGE_GENERATOR_PORTRAIT: %w", err)
	}
	crop := envOr("IMAGE_CROP_GENERATOR", defaultCrop)
	if vc.Specs.Crop, err = ParseBoxSpecs(crop); err != nil {
		return vc, fmt.Errorf("invalid IMAGE_CROP_GENERATOR: %w", err)
	}

	vc.Extensions = filetypes.DefaultExtensions
	if path := os.Getenv("VERSIONS_SPEC_FILE"); path != "" {
		if err := applySpecFile(path, &vc); err != nil {
			return vc, err
		}
	}

	if err := vc.Specs.Validate(); err != nil {
		return vc, err
	}

	thumbBounds, err := ParseBox(envOr("THUMBNAIL_SIZE", "120x120"))
	if err != nil {
		return vc, fmt.Errorf("invalid THUMBNAIL_SIZE: %w", err)
	}

	dirMode, err := strconv.ParseUint(envOr("VERSIONS_DIR_MODE", "0775"), 8, 32)
	if err != nil || dirMode > 0777 {
		return vc, fmt.Errorf(
			"invalid VERSIONS_DIR_MODE %q",
			os.Getenv("VERSIONS_DIR_MODE"),
		)
	}

	vc.Options = versionsgen.Options{
		DirSuffix:   envOr("VERSIONS_DIR_SUFFIX", "_versions"),
		DirMode:     os.FileMode(dirMode),
		ThumbPrefix: envOr("THUMB_PREFIX", "thumb_"),
		ThumbBounds: thumbBounds,
	}
	if vc.Options.ThumbPrefix == "" {
		return vc, fmt.Errorf("THUMB_PREFIX cannot be empty")
	}
	if vc.Options.DirSuffix == "" {
		return vc, fmt.Errorf("VERSIONS_DIR_SUFFIX cannot be empty")
	}

	return vc, nil
}

func loadCodec() (versionsgen.CodecConfig, error) {
	var cc versionsgen.CodecConfig
	var err error

	cc.Name = envOr("IMAGE_CODEC", versionsgen.CodecLilliput)
	if cc.Strict, err = envBool("STRICT_CODEC", false); err != nil {
		return cc, err
	}

	if cc.MaxBlock, err = envBytes("IMAGE_MAXBLOCK", "64K"); err != nil {
		return cc, err
	}
	if cc.LilliputBufferSize, err = envBytes("LILLIPUT_BUFFER_SIZE", "64M"); err != nil {
		return cc, err
	}

	return cc, nil
}

func applySpecFile(path string, vc *VersionsConfig) error {
	var sf specFile
	md, err := toml.DecodeFile(path, &sf)
	if err != nil {
		return fmt.Errorf("failed to read versions spec file %s: %w", path, err)
	}

	if md.IsDefined("landscape") {
		vc.Specs.Landscape = sf.Landscape
	}
	if md.IsDefined("portrait") {
		vc.Specs.Portrait = sf.Portrait
	}
	if md.IsDefined("crop") {
		vc.Specs.Crop = sf.Crop
	}
	if md.IsDefined("extensions") {
		vc.Extensions = sf.Extensions
	}

	return nil
}

// ParseWidthSpecs parses "name:width,..." lists.
func ParseWidthSpecs(value string) ([]versionsgen.SizeSpec, error) {
	var specs []versionsgen.SizeSpec
	for _, item := range splitList(value) {
		name, widthStr, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("expected name:width, got %q", item)
		}

		width, err := strconv.Atoi(strings.TrimSpace(widthStr))
		if err != nil {
			return nil, fmt.Errorf("invalid width in %q: %w", item, err)
		}

		specs = append(specs, versionsgen.SizeSpec{
			Name:  strings.TrimSpace(name),
			Width: width,
		})
	}

	return specs, nil
}

// ParseBoxSpecs parses "name:WxH,..." lists.
func ParseBoxSpecs(value string) ([]versionsgen.SizeSpec, error) {
	var specs []versionsgen.SizeSpec
	for _, item := range splitList(value) {
		name, boxStr, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("expected name:WxH, got %q", item)
		}

		box, err := ParseBox(boxStr)
		if err != nil {
			return nil, fmt.Errorf("invalid size in %q: %w", item, err)
		}

		specs = append(specs, versionsgen.SizeSpec{
			Name:   strings.TrimSpace(name),
			Width:  box.X,
			Height: box.Y,
		})
	}

	return specs, nil
}

// ParseBox parses a "WxH" pair of positive integers.
func ParseBox(value string) (image.Point, error) {
	wStr, hStr, ok := strings.Cut(strings.ToLower(strings.TrimSpace(value)), "x")
	if !ok {
		return image.Point{}, fmt.Errorf("expected WxH, got %q", value)
	}

	w, err := strconv.Atoi(strings.TrimSpace(wStr))
	if err != nil {
		return image.Point{}, err
	}
	h, err := strconv.Atoi(strings.TrimSpace(hStr))
	if err != nil {
		return image.Point{}, err
	}
	if w <= 0 || h <= 0 {
		return image.Point{}, fmt.Errorf("size must be positive, got %q", value)
	}

	return image.Pt(w, h), nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		// Trim spaces in case of "a:1, b:2"
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}

	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %q", key, v)
	}

	return b, nil
}

func envBytes(key, fallback string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		v = fallback
	}

	n, err := bytefmt.ToBytes(v)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size for %s: %w", key, err)
	}

	return int(n), nil
}
