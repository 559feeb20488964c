package ingest

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Directories never worth indexing.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "dist": {}, "build": {},
	"__pycache__": {}, ".venv": {}, "target": {},
}

// DirSource ingests files under a root directory, honoring include/exclude
// globs (path.Match against the repo-relative path and against the base
// name).
type DirSource struct {
	Root    string
	Include []string
	Exclude []string
}

// Acquire is a no-op: the directory already exists (the clone worker owns
// the fetch step for github sources).
func (d *DirSource) Acquire(ctx context.Context, emit func(float64, string)) error {
	emit(1, d.Root)
	return nil
}

func (d *DirSource) Enumerate(ctx context.Context) ([]Item, error) {
	var items []Item
	err := filepath.WalkDir(d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if _, skip := skipDirs[entry.Name()]; skip {
				return fs.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !d.selected(rel) {
			return nil
		}
		full := p
		items = append(items, Item{
			Ref:  rel,
			Kind: SourceCode,
			Load: func(context.Context) ([]byte, error) {
				data, err := os.ReadFile(full)
				if err != nil {
					return nil, err
				}
				if isBinary(data) {
					return nil, nil
				}
				return data, nil
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (d *DirSource) selected(rel string) bool {
	base := path.Base(rel)
	for _, pat := range d.Exclude {
		if matchEither(pat, rel, base) {
			return false
		}
	}
	if len(d.Include) == 0 {
		return true
	}
	for _, pat := range d.Include {
		if matchEither(pat, rel, base) {
			return true
		}
	}
	return false
}

func matchEither(pattern, rel, base string) bool {
	if ok, err := path.Match(pattern, rel); err == nil && ok {
		return true
	}
	if ok, err := path.Match(pattern, base); err == nil && ok {
		return true
	}
	// Directory prefix patterns like "docs/" exclude whole subtrees.
	if strings.HasSuffix(pattern, "/") && strings.HasPrefix(rel, pattern) {
		return true
	}
	return false
}

// isBinary applies the classic null-byte sniff over the first 8 KiB.
func isBinary(data []byte) bool {
	probe := data
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
