package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/docsync/internal/scanner"
)

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	digest, err := HashFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sum("hello world"), digest)
	assert.Len(t, digest, 64)
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHashReader_LargerThanBuffer(t *testing.T) {
	content := strings.Repeat("0123456789abcdef", 3*bufferSize/16+7)
	digest, err := HashReader(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, sum(content), digest)
}

// endless never returns EOF
type endless struct{ reads int }

func (e *endless) Read(p []byte) (int, error) {
	e.reads++
	return len(p), nil
}

func TestHashReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &cancellingReader{r: &endless{}, after: 3, cancel: cancel}

	digest, err := HashReader(ctx, r)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, digest)
}

type cancellingReader struct {
	r      io.Reader
	n      int
	after  int
	cancel context.CancelFunc
}

func (c *cancellingReader) Read(p []byte) (int, error) {
	c.n++
	if c.n == c.after {
		c.cancel()
	}
	return c.r.Read(p)
}

func TestHashFiles(t *testing.T) {
	dir := t.TempDir()
	var files []scanner.LocalFile
	for i := range 20 {
		rel := fmt.Sprintf("f%02d.txt", i)
		abs := filepath.Join(dir, rel)
		require.NoError(t, os.WriteFile(abs, []byte(rel), 0o644))
		files = append(files, scanner.LocalFile{RelPath: rel, AbsPath: abs})
	}

	digests, err := HashFiles(context.Background(), files, 4)
	require.NoError(t, err)
	require.Len(t, digests, len(files))
	for _, f := range files {
		assert.Equal(t, sum(f.RelPath), digests[f.AbsPath], f.RelPath)
	}
}

func TestHashFiles_Errors(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "ok.txt")
	require.NoError(t, os.WriteFile(ok, []byte("ok"), 0o644))

	t.Run("missing file aborts", func(t *testing.T) {
		files := []scanner.LocalFile{
			{RelPath: "ok.txt", AbsPath: ok},
			{RelPath: "gone.txt", AbsPath: filepath.Join(dir, "gone.txt")},
		}
		_, err := HashFiles(context.Background(), files, 2)
		assert.ErrorIs(t, err, os.ErrNotExist)
		assert.ErrorContains(t, err, "gone.txt")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := HashFiles(ctx, []scanner.LocalFile{{RelPath: "ok.txt", AbsPath: ok}}, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
