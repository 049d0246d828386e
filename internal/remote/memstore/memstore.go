// Package memstore is an in-memory remote.Store. It backs the "memory"
// backend and the engine tests.
package memstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/openmined/docsync/internal/remote"
)

type document struct {
	file    remote.RemoteFile
	content []byte
}

// Store keeps documents per store identity. The zero value is not usable; call New.
type Store struct {
	mu     sync.RWMutex
	stores map[string]map[string]*document // store -> id -> doc
	seq    int
	order  map[string]int // id -> insertion sequence, for stable listing
}

var _ remote.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		stores: make(map[string]map[string]*document),
		order:  make(map[string]int),
	}
}

// Seed inserts entries as if an earlier run (or another tool) had written them.
func (s *Store) Seed(store string, files ...remote.RemoteFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		s.put(store, &document{file: f})
	}
}

func (s *Store) put(store string, doc *document) {
	docs, ok := s.stores[store]
	if !ok {
		docs = make(map[string]*document)
		s.stores[store] = docs
	}
	docs[doc.file.ID] = doc
	s.seq++
	s.order[doc.file.ID] = s.seq
}

func (s *Store) ListFiles(ctx context.Context, store string) ([]remote.RemoteFile, error) {
	if store == "" {
		return nil, remote.Client("list", "", remote.ErrInvalidStore)
	}
	if err := ctx.Err(); err != nil {
		return nil, remote.NewError(remote.KindCancelled, "list", "", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	files := make([]remote.RemoteFile, 0, len(s.stores[store]))
	for _, doc := range s.stores[store] {
		files = append(files, doc.file)
	}
	sort.Slice(files, func(i, j int) bool { return s.order[files[i].ID] < s.order[files[j].ID] })
	return files, nil
}

func (s *Store) UploadFile(ctx context.Context, store string, req remote.UploadRequest) (*remote.RemoteFile, error) {
	if store == "" {
		return nil, remote.Client("upload", req.Identity, remote.ErrInvalidStore)
	}
	if err := ctx.Err(); err != nil {
		return nil, remote.NewError(remote.KindCancelled, "upload", req.Identity, err)
	}

	content, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, remote.Client("upload", req.Identity, fmt.Errorf("read content: %w", err))
	}

	file := remote.RemoteFile{
		ID:          uuid.NewString(),
		DisplayName: req.DisplayName,
		Identity:    req.Identity,
		ContentHash: req.ContentHash,
		State:       remote.StateActive,
		Size:        int64(len(content)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Replaces != nil {
		delete(s.stores[store], req.Replaces.ID)
		delete(s.order, req.Replaces.ID)
	}
	s.put(store, &document{file: file, content: content})
	return &file, nil
}

func (s *Store) DeleteFile(ctx context.Context, store string, file remote.RemoteFile) error {
	if err := ctx.Err(); err != nil {
		return remote.NewError(remote.KindCancelled, "delete", file.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.stores[store], file.ID)
	delete(s.order, file.ID)
	return nil
}

// Content returns the stored bytes of the entry with the given identity.
func (s *Store) Content(store, identity string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.stores[store] {
		if doc.file.Identity == identity {
			return doc.content, true
		}
	}
	return nil, false
}
