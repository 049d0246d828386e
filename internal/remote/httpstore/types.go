package httpstore

import (
	"strings"

	"github.com/openmined/docsync/internal/remote"
)

// Document is a store entry as returned by the API.
type Document struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"displayName"`
	State       string            `json:"state"`
	SizeBytes   int64             `json:"sizeBytes"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ListResponse is one page of documents.
type ListResponse struct {
	Documents     []Document `json:"documents"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

func (d *Document) toRemote() remote.RemoteFile {
	identity := d.Metadata[MetaIdentity]
	if identity == "" {
		// entries written before identities were recorded
		identity = d.DisplayName
	}
	return remote.RemoteFile{
		ID:          d.ID,
		DisplayName: d.DisplayName,
		Identity:    identity,
		ContentHash: d.Metadata[MetaContentHash],
		State:       parseState(d.State),
		Size:        d.SizeBytes,
	}
}

func parseState(s string) remote.FileState {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "active"):
		return remote.StateActive
	case strings.Contains(s, "pending"), strings.Contains(s, "processing"):
		return remote.StatePending
	case strings.Contains(s, "fail"):
		return remote.StateFailed
	default:
		return remote.StateUnknown
	}
}
