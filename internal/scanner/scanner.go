// Package scanner enumerates the local files taking part in a sync.
package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the base directory when present.
const IgnoreFileName = ".docsyncignore"

var (
	ErrNoBaseDir      = errors.New("scanner: base directory missing")
	ErrNotADirectory  = errors.New("scanner: base path is not a directory")
	ErrInvalidPattern = errors.New("scanner: invalid pattern")
)

// LocalFile is one regular file found under the base directory.
type LocalFile struct {
	RelPath string // slash separated, relative to the base directory
	AbsPath string
	Size    int64
	ModTime time.Time
}

type Options struct {
	BaseDir string
	Include []string
	Exclude []string
}

// Scan walks opts.BaseDir and returns every file passing the filters, sorted
// by RelPath. Any filesystem error aborts the scan.
func Scan(ctx context.Context, opts Options) ([]LocalFile, error) {
	if opts.BaseDir == "" {
		return nil, ErrNoBaseDir
	}

	root, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base dir: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat base dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	filter, err := NewFilter(opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	ignore, err := loadIgnoreFile(root)
	if err != nil {
		return nil, err
	}

	var files []LocalFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if !filter.EnterDir(relPath) || (ignore != nil && ignore.MatchesPath(relPath+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		// symlinks, sockets, devices
		if !d.Type().IsRegular() {
			slog.Debug("scan", "skip", "not a regular file", "path", relPath)
			return nil
		}

		if !filter.Match(relPath) {
			return nil
		}
		if ignore != nil && ignore.MatchesPath(relPath) {
			slog.Debug("scan", "skip", "ignored", "path", relPath)
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", relPath, err)
		}

		files = append(files, LocalFile{
			RelPath: relPath,
			AbsPath: path,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func loadIgnoreFile(root string) (*gitignore.GitIgnore, error) {
	path := filepath.Join(root, IgnoreFileName)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("open %s: %w", IgnoreFileName, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", IgnoreFileName, err)
	}

	// the ignore file never syncs itself
	lines = append(lines, IgnoreFileName)
	slog.Info("loaded ignore file", "path", path, "rules", len(lines)-1)
	return gitignore.CompileIgnoreLines(lines...), nil
}

// Filter decides which relative paths take part in a sync.
type Filter struct {
	include []string
	exclude []string
	// include patterns that name a dot segment and may therefore select hidden paths
	explicitHidden mapset.Set[string]
}

// NewFilter validates the patterns. An empty include list selects everything.
func NewFilter(include, exclude []string) (*Filter, error) {
	f := &Filter{
		include:        include,
		exclude:        exclude,
		explicitHidden: mapset.NewThreadUnsafeSet[string](),
	}
	if len(f.include) == 0 {
		f.include = []string{"**"}
	}

	for _, p := range append(append([]string{}, f.include...), f.exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, p)
		}
	}
	for _, p := range f.include {
		if namesHidden(p) {
			f.explicitHidden.Add(p)
		}
	}
	return f, nil
}

// Match reports whether a file at relPath is selected.
func (f *Filter) Match(relPath string) bool {
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return false
		}
	}

	patterns := f.include
	if isHidden(relPath) {
		patterns = f.explicitHidden.ToSlice()
	}
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}

// EnterDir reports whether the walk should descend into relDir. Excluded
// directories are pruned, as are hidden ones no explicit pattern reaches into.
func (f *Filter) EnterDir(relDir string) bool {
	for _, p := range f.exclude {
		if ok, _ := doublestar.Match(p, relDir); ok {
			return false
		}
	}
	if !isHidden(relDir) {
		return true
	}
	return f.explicitHidden.Cardinality() > 0
}

func isHidden(relPath string) bool {
	for _, seg := range strings.Split(relPath, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func namesHidden(pattern string) bool {
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return true
		}
	}
	return false
}
