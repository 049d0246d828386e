// Package remote defines the contract between the sync core and a remote
// document store. Adapters live in sub-packages.
package remote

import (
	"context"
)

// FileState is the lifecycle state a store reports for a document.
type FileState string

const (
	StateActive  FileState = "active"
	StatePending FileState = "pending"
	StateFailed  FileState = "failed"
	StateUnknown FileState = "unknown"
)

// RemoteFile is an immutable snapshot of one remote entry for the duration of a run.
type RemoteFile struct {
	ID          string    // store-assigned identifier
	DisplayName string    // human-readable name
	Identity    string    // declared original identity, used for matching
	ContentHash string    // hex sha-256, empty when the entry predates hashing
	State       FileState // lifecycle state
	Size        int64
}

// HasHash reports whether the entry carries a declared content hash.
func (f RemoteFile) HasHash() bool {
	return f.ContentHash != ""
}

// UploadRequest describes one whole-file upload.
type UploadRequest struct {
	Identity    string // written to the remote identity field
	DisplayName string
	ContentHash string
	Path        string // absolute local path, streamed by the adapter
	Size        int64

	// Replaces is the entry superseded by this upload, nil for new files.
	Replaces *RemoteFile
}

// Store is the remote document store as seen by the sync core.
type Store interface {
	// ListFiles returns every entry currently held by the store.
	ListFiles(ctx context.Context, store string) ([]RemoteFile, error)

	// UploadFile stores the file content and its identity/hash metadata.
	UploadFile(ctx context.Context, store string, req UploadRequest) (*RemoteFile, error)

	// DeleteFile removes an entry. A missing entry is not an error.
	DeleteFile(ctx context.Context, store string, file RemoteFile) error
}
