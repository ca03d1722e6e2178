package filestore

import (
	"io"
	"time"
)

// ObjectInfo is what the store reports about one stored file, such as an
// NDJSON export under exports/<table>/.
type ObjectInfo struct {
	Key          string
	Size         int64 // -1 when the backend does not report it
	ContentType  string
	ETag         string
	LastModified time.Time

	// IsDir marks a common prefix returned by a non-recursive listing.
	// Such entries have no content.
	IsDir bool
}

// Object streams a stored file back to a caller. Close must be called.
type Object interface {
	io.ReadCloser
	Info() *ObjectInfo
}

// ListOptions selects the objects ListObjects returns. Exports are listed
// with the table's prefix and Recursive set, so every file under it is
// returned without prefix entries.
type ListOptions struct {
	Prefix    string
	Recursive bool
	// Limit stops the listing after that many entries. Zero lists all.
	Limit int
}
