// Package engine drives deduplication to a fixed point: enumerate leaf
// candidates across the corpus, tally occurrences, promote qualifying
// sub-trees into the shared table, and splice references back into the file
// trees. Passes repeat until nothing changes, because each pass can turn a
// parent into a new leaf candidate.
package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaydedup/internal/canon"
	"relaydedup/internal/naming"
	"relaydedup/internal/tree"
)

// ArtifactSuffix recognises generated artifact files under the scan root.
const ArtifactSuffix = ".graphql.ts"

// Config parameterises one run.
type Config struct {
	Root             string
	SharedName       string
	MinOccurrences   int
	OrderInsensitive map[string]struct{}
	DryRun           bool
	Verbose          bool
	MaxPasses        int
	ComputeGzip      bool
	Workers          int
	Logger           *zap.Logger
}

// DefaultOrderInsensitive returns the default key set: the artifact fields
// whose array values compare as multisets.
func DefaultOrderInsensitive() map[string]struct{} {
	return map[string]struct{}{
		"selections":          {},
		"args":                {},
		"argumentDefinitions": {},
	}
}

// File is one loaded artifact: the byte-exact prelude and postlude around the
// literal, and the parsed tree that passes mutate.
type File struct {
	Path     string
	Prelude  []byte
	Postlude []byte
	Root     *tree.Value
	Changed  bool
}

// Extraction is one promoted sub-tree. Content holds the representative
// occurrence with child references already in place; Count is the number of
// sites rewritten to this name.
type Extraction struct {
	Name    string
	Digest  canon.Digest
	Content *tree.Value
	Count   int
}

// Stats summarises a run.
type Stats struct {
	RawBefore       uint64
	RawAfter        uint64
	GzippedBefore   uint64
	GzippedAfter    uint64
	TotalExtracted  int
	Passes          int
	ExhaustedPasses bool
}

func (s *Stats) RawSavings() int64     { return int64(s.RawBefore) - int64(s.RawAfter) }
func (s *Stats) GzippedSavings() int64 { return int64(s.GzippedBefore) - int64(s.GzippedAfter) }

func (s *Stats) RawSavingsPercent() float64 {
	if s.RawBefore == 0 {
		return 0
	}
	return float64(s.RawSavings()) / float64(s.RawBefore) * 100
}

func (s *Stats) GzippedSavingsPercent() float64 {
	if s.GzippedBefore == 0 {
		return 0
	}
	return float64(s.GzippedSavings()) / float64(s.GzippedBefore) * 100
}

// Timings accumulates per-phase durations, in nanoseconds so parallel workers
// can add atomically.
type Timings struct {
	FileRead  atomic.Int64
	Parse     atomic.Int64
	Enumerate atomic.Int64
	Rewrite   atomic.Int64
	Serialize atomic.Int64
	Gzip      atomic.Int64
	FileWrite atomic.Int64
}

// Engine owns the loaded corpus and the shared table for one run.
type Engine struct {
	cfg    Config
	log    *zap.Logger
	files  []*File
	shared []*Extraction // insertion order, emitted as-is
	byDig  map[canon.Digest]*Extraction
	alloc  *naming.Allocator

	Timing Timings
}

// New builds an engine. Zero-value config fields get the documented defaults.
func New(cfg Config) *Engine {
	if cfg.SharedName == "" {
		cfg.SharedName = "__shared.ts"
	}
	if cfg.MinOccurrences < 2 {
		cfg.MinOccurrences = 2
	}
	if cfg.OrderInsensitive == nil {
		cfg.OrderInsensitive = DefaultOrderInsensitive()
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg:   cfg,
		log:   log,
		byDig: make(map[canon.Digest]*Extraction),
		alloc: naming.NewAllocator(),
	}
}

// Extractions returns the shared table in insertion order.
func (e *Engine) Extractions() []*Extraction {
	return e.shared
}

// Files returns the loaded corpus in sorted path order.
func (e *Engine) Files() []*File {
	return e.files
}

// Run executes the full load → fixed point → emit cycle.
func (e *Engine) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	raw, gz, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	stats.RawBefore = raw
	stats.GzippedBefore = gz
	e.log.Debug("corpus loaded",
		zap.Int("files", len(e.files)),
		zap.Uint64("raw_bytes", raw))

	for {
		stats.Passes++
		promoted, rewritten, err := e.pass(ctx)
		if err != nil {
			return nil, err
		}
		e.log.Debug("pass complete",
			zap.Int("pass", stats.Passes),
			zap.Int("promoted", promoted),
			zap.Int("rewritten", rewritten))
		if e.cfg.Verbose {
			fmt.Printf("--- pass %d: %d extracted, %d sites rewritten\n", stats.Passes, promoted, rewritten)
		}
		if promoted == 0 && rewritten == 0 {
			break
		}
		if stats.Passes >= e.cfg.MaxPasses {
			stats.ExhaustedPasses = true
			e.log.Warn("fixed point not reached", zap.Int("max_passes", e.cfg.MaxPasses))
			break
		}
	}
	stats.TotalExtracted = len(e.shared)

	if !e.cfg.DryRun {
		if err := e.writeAll(ctx); err != nil {
			return nil, err
		}
	}

	raw, gz, err = e.sizeAfter(ctx)
	if err != nil {
		return nil, err
	}
	stats.RawAfter = raw
	stats.GzippedAfter = gz
	return stats, nil
}

// load discovers, reads and parses every artifact under the root. Returns the
// total raw (and, when configured, gzipped) size of the loaded originals.
func (e *Engine) load(ctx context.Context) (uint64, uint64, error) {
	var paths []string
	err := filepath.WalkDir(e.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(path, ArtifactSuffix) {
			return nil
		}
		if filepath.Base(path) == e.cfg.SharedName {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("scan %s: %w", e.cfg.Root, err)
	}
	sort.Strings(paths)

	files := make([]*File, len(paths))
	var rawTotal, gzTotal atomic.Uint64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			src, err := os.ReadFile(path)
			e.Timing.FileRead.Add(int64(time.Since(t0)))
			if err != nil {
				return err
			}
			prelude, literal, postlude, ok := tree.ExtractLiteral(src)
			if !ok {
				return nil // no literal; file passes through untouched
			}
			rawTotal.Add(uint64(len(src)))
			if e.cfg.ComputeGzip {
				t1 := time.Now()
				gzTotal.Add(uint64(gzippedLen(src)))
				e.Timing.Gzip.Add(int64(time.Since(t1)))
			}
			t2 := time.Now()
			root, err := tree.Parse(literal)
			e.Timing.Parse.Add(int64(time.Since(t2)))
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
			files[i] = &File{
				Path:     path,
				Prelude:  append([]byte(nil), prelude...),
				Postlude: append([]byte(nil), postlude...),
				Root:     root,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	e.files = e.files[:0]
	for _, f := range files {
		if f != nil {
			e.files = append(e.files, f)
		}
	}
	return rawTotal.Load(), gzTotal.Load(), nil
}
