// Package fileid derives stable identifiers for documents and their index entries.
package fileid

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// PointID returns the index entry ID for the chunk at ordinal within sourceDocument:
// a name-based (SHA-1, version 5) UUID in the DNS namespace over "<document>_<ordinal>".
// The same pair always yields the same ID.
func PointID(sourceDocument string, ordinal int) string {
	name := fmt.Sprintf("%s_%d", sourceDocument, ordinal)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// DocumentName returns the document identifier for a file path: its base name.
func DocumentName(path string) string {
	return filepath.Base(filepath.Clean(path))
}
