package models

import (
	"github.com/google/uuid"
)

// VersionsRequest asks for the versions of an original file to be
// generated or deleted.
type VersionsRequest struct {
	RequestID uuid.UUID `json:"requestId"`

	// Path to original image file, relative to env
	// variable 'DIR_ORIGINALS_ROOT'
	FilePath string `json:"filePath"`
}
