// Package storage defines the boundary to the byte stores holding document
// content.
package storage

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StoredFilename generates the unique name a file is stored under,
// preserving the extension of the original filename.
func StoredFilename(originalFilename string) string {
	name := uuid.NewString()
	if ext := Extension(originalFilename); ext != "" {
		name += "." + ext
	}
	return name
}

// Extension returns the lowercase extension of a filename without the dot.
func Extension(filename string) string {
	ext := path.Ext(filename)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// DocumentPath builds the location-relative path a document is stored at.
// Files are sharded into year/month directories by upload time.
//
// Example:
//
//	t: 2024-03-17, filename: "9f1c...e2.pdf"
//	result: "2024/03/9f1c...e2.pdf"
func DocumentPath(t time.Time, storedFilename string) string {
	return path.Join(t.UTC().Format("2006"), t.UTC().Format("01"), storedFilename)
}
