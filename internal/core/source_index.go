package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// SourceIndex provides parsed trees for the files under analysis.
type SourceIndex interface {
	GetTree(filePath string) (*ParsedUnit, bool)
	IsReady() bool
}

// MemoryIndex is a SourceIndex holding every parsed unit in memory.
// Writes happen only while loading; afterwards it is read-only.
type MemoryIndex struct {
	mu    sync.RWMutex
	units map[string]*ParsedUnit
	ready atomic.Bool

	failures map[string]error
}

// NewMemoryIndex returns an empty index that is not ready yet.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		units:    make(map[string]*ParsedUnit),
		failures: make(map[string]error),
	}
}

// Add stores a unit under its cleaned file path.
func (idx *MemoryIndex) Add(unit *ParsedUnit) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.units[filepath.Clean(unit.FilePath)] = unit
}

// MarkReady publishes the index to readers.
func (idx *MemoryIndex) MarkReady() {
	idx.ready.Store(true)
}

// IsReady reports whether loading has completed.
func (idx *MemoryIndex) IsReady() bool {
	return idx.ready.Load()
}

// GetTree returns the parsed unit for filePath.
func (idx *MemoryIndex) GetTree(filePath string) (*ParsedUnit, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	unit, ok := idx.units[filepath.Clean(filePath)]
	return unit, ok
}

// Len returns the number of parsed files.
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.units)
}

// Failures returns the files that could not be parsed and why.
func (idx *MemoryIndex) Failures() map[string]error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]error, len(idx.failures))
	for k, v := range idx.failures {
		out[k] = v
	}
	return out
}

// Bytes returns the total size of the indexed sources.
func (idx *MemoryIndex) Bytes() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var n int64
	for _, u := range idx.units {
		n += int64(len(u.Source))
	}
	return n
}

func (idx *MemoryIndex) fail(filePath string, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.failures[filepath.Clean(filePath)] = err
}

// LoadIndex parses files concurrently into a ready MemoryIndex. A file that
// fails to parse is recorded in Failures and left out of the index; only
// cancellation aborts the load.
func LoadIndex(ctx context.Context, files []string, workers int) (*MemoryIndex, error) {
	if workers < 1 {
		workers = 1
	}
	idx := NewMemoryIndex()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			unit, err := ParseFile(gctx, file)
			if err != nil {
				idx.fail(file, err)
				return nil
			}
			idx.Add(unit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load source index: %w", err)
	}

	idx.MarkReady()
	return idx, nil
}
