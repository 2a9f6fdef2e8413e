package engine

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"hybridlint/internal/core"
)

// excludedDirs are never descended into. Matching is on the lower-cased
// directory name.
var excludedDirs = map[string]bool{
	// dependencies
	"node_modules": true, "bower_components": true, "jspm_packages": true, "vendor": true,
	// build output
	"dist": true, "build": true, "out": true, ".next": true, ".nuxt": true, ".output": true,
	"coverage": true, ".turbo": true, ".parcel-cache": true,
	// version control
	".git": true, ".svn": true, ".hg": true,
	// editors and caches
	".cache": true, ".idea": true, ".vscode": true,
}

// SourceFile is a collected file and its size on disk.
type SourceFile struct {
	Path string
	Size int64
}

// Collector finds analyzable files under a set of paths.
type Collector struct {
	Include []string
	Exclude []string
}

// Validate checks that every glob is well formed.
func (c Collector) Validate() error {
	for _, p := range append(append([]string(nil), c.Include...), c.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid glob pattern %q", p)
		}
	}
	return nil
}

// Collect walks paths and returns the matching source files sorted by path.
// A path naming a file is taken as long as it has a supported extension
// and is not excluded; include globs apply to directory walks only.
func (c Collector) Collect(paths []string) ([]SourceFile, error) {
	seen := make(map[string]bool)
	var files []SourceFile

	add := func(path string, size int64) {
		path = filepath.Clean(path)
		if !seen[path] {
			seen[path] = true
			files = append(files, SourceFile{Path: path, Size: size})
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("collect %s: %w", root, err)
		}
		if !info.IsDir() {
			if core.IsSourceFile(root) && !c.excluded(filepath.ToSlash(filepath.Base(root))) {
				add(root, info.Size())
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if excludedDirs[strings.ToLower(d.Name())] || c.excluded(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !core.IsSourceFile(path) || !c.included(rel) || c.excluded(rel) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			add(path, fi.Size())
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", root, err)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (c Collector) included(rel string) bool {
	if len(c.Include) == 0 {
		return true
	}
	return matchAny(c.Include, rel)
}

func (c Collector) excluded(rel string) bool {
	return matchAny(c.Exclude, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}
