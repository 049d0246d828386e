package memstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/docsync/internal/remote"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed("kb", remote.RemoteFile{Identity: "old.txt", ContentHash: "h0"})

	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	uploaded, err := s.UploadFile(ctx, "kb", remote.UploadRequest{Identity: "a.txt", DisplayName: "a.txt", ContentHash: "h1", Path: path})
	require.NoError(t, err)
	assert.Equal(t, int64(5), uploaded.Size)
	assert.NotEmpty(t, uploaded.ID)

	files, err := s.ListFiles(ctx, "kb")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "old.txt", files[0].Identity)
	assert.Equal(t, "a.txt", files[1].Identity)

	// replacing removes the superseded entry
	replaced, err := s.UploadFile(ctx, "kb", remote.UploadRequest{Identity: "a.txt", ContentHash: "h2", Path: path, Replaces: uploaded})
	require.NoError(t, err)
	files, _ = s.ListFiles(ctx, "kb")
	require.Len(t, files, 2)
	assert.Equal(t, replaced.ID, files[1].ID)

	require.NoError(t, s.DeleteFile(ctx, "kb", files[0]))
	// deleting twice is fine
	require.NoError(t, s.DeleteFile(ctx, "kb", files[0]))

	files, _ = s.ListFiles(ctx, "kb")
	require.Len(t, files, 1)

	content, ok := s.Content("kb", "a.txt")
	require.True(t, ok)
	assert.Equal(t, "hello", string(content))
}

func TestStore_Errors(t *testing.T) {
	s := New()
	_, err := s.ListFiles(context.Background(), "")
	assert.Equal(t, remote.KindClient, remote.KindOf(err))

	_, err = s.UploadFile(context.Background(), "kb", remote.UploadRequest{Identity: "x", Path: filepath.Join(t.TempDir(), "missing")})
	assert.Equal(t, remote.KindClient, remote.KindOf(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.ListFiles(ctx, "kb")
	assert.Equal(t, remote.KindCancelled, remote.KindOf(err))
}
