// Package planner diffs local files against a remote listing.
//
// Every local file ends up in exactly one of Uploads or Skips. Remote entries
// without a local counterpart end up in Deletes when deletion is enabled and
// are left alone otherwise.
package planner

import (
	"errors"
	"fmt"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/scanner"
)

// ActionKind is what the executor does with one file.
type ActionKind string

const (
	ActionUpload ActionKind = "upload"
	ActionSkip   ActionKind = "skip"
	ActionDelete ActionKind = "delete"
)

const (
	ReasonNewFile       = "new file"
	ReasonChanged       = "content changed"
	ReasonMissingHash   = "missing remote hash"
	ReasonUnchanged     = "unchanged"
	ReasonNotLocal      = "not present locally"
	ReasonDuplicateCopy = "duplicate remote entry"
)

var ErrMissingDigest = errors.New("planner: local file has no digest")

// SyncAction is one classified file.
type SyncAction struct {
	Kind   ActionKind
	Local  *scanner.LocalFile // nil for deletes
	Remote *remote.RemoteFile // nil for new files
	Hash   string             // local digest, empty for deletes
	Reason string
}

// Identity is the key the action is matched and reported by.
func (a *SyncAction) Identity() string {
	if a.Local != nil {
		return IdentityKey(a.Local.RelPath)
	}
	if a.Remote != nil {
		return a.Remote.Identity
	}
	return ""
}

// Size is the number of bytes the action moves.
func (a *SyncAction) Size() int64 {
	if a.Local != nil {
		return a.Local.Size
	}
	if a.Remote != nil {
		return a.Remote.Size
	}
	return 0
}

// SyncPlan is the read-only classification of a run.
type SyncPlan struct {
	Uploads []SyncAction
	Skips   []SyncAction
	Deletes []SyncAction
}

func (p *SyncPlan) Total() int {
	return len(p.Uploads) + len(p.Skips) + len(p.Deletes)
}

// Mutations is the number of actions that change the remote store.
func (p *SyncPlan) Mutations() int {
	return len(p.Uploads) + len(p.Deletes)
}

func (p *SyncPlan) HasWork() bool {
	return p.Mutations() > 0
}

type Options struct {
	// Delete turns unmatched remote entries into delete actions.
	Delete bool
}

// IdentityKey maps a local relative path to the identity stored remotely.
// relPath is the slash separated path produced by the scanner. A backslash is
// a legal filename character on Unix and is kept as is, so distinct local
// files never share a key.
func IdentityKey(relPath string) string {
	return strings.TrimPrefix(path.Clean("/"+relPath), "/")
}

// Plan classifies local against remote in a single pass over each side.
// hashes maps LocalFile.AbsPath to its hex digest.
func Plan(local []scanner.LocalFile, hashes map[string]string, remoteFiles []remote.RemoteFile, opts Options) (*SyncPlan, error) {
	plan := &SyncPlan{}

	// identity -> listing position of the match candidate
	index := make(map[string]int, len(remoteFiles))
	duplicates := mapset.NewThreadUnsafeSet[int]()
	for i := range remoteFiles {
		id := remoteFiles[i].Identity
		if _, seen := index[id]; seen {
			duplicates.Add(i)
			continue
		}
		index[id] = i
	}

	for i := range local {
		lf := &local[i]
		digest, ok := hashes[lf.AbsPath]
		if !ok || digest == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingDigest, lf.RelPath)
		}

		key := IdentityKey(lf.RelPath)
		pos, matched := index[key]
		if !matched {
			plan.Uploads = append(plan.Uploads, SyncAction{Kind: ActionUpload, Local: lf, Hash: digest, Reason: ReasonNewFile})
			continue
		}
		delete(index, key)

		rf := &remoteFiles[pos]
		switch {
		case !rf.HasHash():
			plan.Uploads = append(plan.Uploads, SyncAction{Kind: ActionUpload, Local: lf, Remote: rf, Hash: digest, Reason: ReasonMissingHash})
		case !strings.EqualFold(rf.ContentHash, digest):
			plan.Uploads = append(plan.Uploads, SyncAction{Kind: ActionUpload, Local: lf, Remote: rf, Hash: digest, Reason: ReasonChanged})
		default:
			plan.Skips = append(plan.Skips, SyncAction{Kind: ActionSkip, Local: lf, Remote: rf, Hash: digest, Reason: ReasonUnchanged})
		}
	}

	if !opts.Delete {
		return plan, nil
	}

	// walk the listing rather than the map so deletes keep listing order
	for i := range remoteFiles {
		rf := &remoteFiles[i]
		switch {
		case duplicates.Contains(i):
			plan.Deletes = append(plan.Deletes, SyncAction{Kind: ActionDelete, Remote: rf, Reason: ReasonDuplicateCopy})
		case isOrphan(index, rf.Identity, i):
			plan.Deletes = append(plan.Deletes, SyncAction{Kind: ActionDelete, Remote: rf, Reason: ReasonNotLocal})
		}
	}

	return plan, nil
}

func isOrphan(index map[string]int, identity string, pos int) bool {
	p, ok := index[identity]
	return ok && p == pos
}
