// Package filetypes classifies files of the originals tree by extension
// and by content.
package filetypes

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h2non/filetype"
)

const (
	Image    = "Image"
	Video    = "Video"
	Document = "Document"
	Sound    = "Sound"
	Code     = "Code"
)

// DefaultExtensions maps every known file category to its extensions.
var DefaultExtensions = map[string][]string{
	Image:    {".jpg", ".jpeg", ".gif", ".png", ".tif", ".tiff", ".webp"},
	Video:    {".mov", ".wmv", ".mpeg", ".mpg", ".avi", ".rm", ".mp4"},
	Document: {".pdf", ".doc", ".rtf", ".txt", ".xls", ".csv"},
	Sound:    {".mp3", ".mp4", ".wav", ".aiff", ".midi"},
	Code:     {".html", ".py", ".js", ".css", ".go"},
}

type Classifier struct {
	byExt map[string]string
}

// NewClassifier builds a classifier from a category to extensions table.
// When an extension is listed under several categories the one that sorts
// last wins, so lookups are deterministic.
func NewClassifier(extensions map[string][]string) *Classifier {
	categories := make([]string, 0, len(extensions))
	for category := range extensions {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	byExt := make(map[string]string)
	for _, category := range categories {
		for _, ext := range extensions[category] {
			byExt[strings.ToLower(ext)] = category
		}
	}

	return &Classifier{byExt: byExt}
}

// TypeOf returns the category of filename, or "" when its extension is
// not registered.
func (c *Classifier) TypeOf(filename string) string {
	return c.byExt[strings.ToLower(filepath.Ext(filename))]
}

// IsImageFile reports whether the file at path is registered as an image
// and its content really is one.
func (c *Classifier) IsImageFile(path string) (bool, error) {
	if c.TypeOf(path) != Image {
		return false, nil
	}

	kind, err := filetype.MatchFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to inspect %s: %w", path, err)
	}

	return kind.MIME.Type == "image", nil
}

// HumanSize renders size with decimal units as B, kB or MB.
func HumanSize(size int64) string {
	switch {
	case size < 1000:
		return fmt.Sprintf("%d B", size)
	case size < 1000000:
		return fmt.Sprintf("%d kB", size/1000)
	default:
		return fmt.Sprintf("%d MB", size/1000000)
	}
}
