// Package hasher computes streaming content digests for change detection.
package hasher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openmined/docsync/internal/scanner"
)

const (
	DefaultWorkers = 8
	bufferSize     = 64 * 1024
)

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// HashFile returns the hex sha-256 of the file at path. The read stops as soon
// as ctx is done and the context error is returned instead of a digest.
func HashFile(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	return HashReader(ctx, file)
}

// HashReader streams r into a sha-256 digest.
func HashReader(ctx context.Context, r io.Reader) (string, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)

	h := sha256.New()
	if _, err := io.CopyBuffer(h, &ctxReader{ctx: ctx, r: r}, *bufp); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFiles hashes every file with at most workers concurrent reads and
// returns AbsPath -> digest. The first failure cancels the remaining work.
func HashFiles(ctx context.Context, files []scanner.LocalFile, workers int) (map[string]string, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	tStart := time.Now()
	var mu sync.Mutex
	digests := make(map[string]string, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for _, f := range files {
		eg.Go(func() error {
			digest, err := HashFile(egCtx, f.AbsPath)
			if err != nil {
				return fmt.Errorf("hash %s: %w", f.RelPath, err)
			}
			mu.Lock()
			digests[f.AbsPath] = digest
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// report the caller's cancellation rather than whichever read noticed it first
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("hashing interrupted: %w", ctxErr)
		}
		return nil, err
	}

	slog.Debug("hashed files", "count", len(digests), "workers", workers, "took", time.Since(tStart))
	return digests, nil
}

// ctxReader fails the read loop once its context ends.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
