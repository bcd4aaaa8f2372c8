package engine

import (
	"compress/gzip"
	"context"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"relaydedup/internal/emit"
)

// gzippedLen measures the gzip-compressed size of data at the default level.
func gzippedLen(data []byte) int {
	var counter countingWriter
	zw := gzip.NewWriter(&counter)
	_, _ = zw.Write(data)
	_ = zw.Close()
	return int(counter.n)
}

type countingWriter struct{ n int64 }

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

var _ io.Writer = (*countingWriter)(nil)

// sizeAfter renders every loaded file (rewritten or not) plus the shared
// module and sums their raw and, when configured, gzipped sizes. Pure
// in-memory work, shared by dry runs and real runs.
func (e *Engine) sizeAfter(ctx context.Context) (uint64, uint64, error) {
	var raw, gz atomic.Uint64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, f := range e.files {
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			content := emit.RenderFile(f.Prelude, f.Postlude, f.Root, e.cfg.SharedName)
			e.Timing.Serialize.Add(int64(time.Since(t0)))
			raw.Add(uint64(len(content)))
			if e.cfg.ComputeGzip {
				t1 := time.Now()
				gz.Add(uint64(gzippedLen([]byte(content))))
				e.Timing.Gzip.Add(int64(time.Since(t1)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	if len(e.shared) > 0 {
		content := emit.SharedModule(e.sharedEntries())
		raw.Add(uint64(len(content)))
		if e.cfg.ComputeGzip {
			t := time.Now()
			gz.Add(uint64(gzippedLen([]byte(content))))
			e.Timing.Gzip.Add(int64(time.Since(t)))
		}
	}
	return raw.Load(), gz.Load(), nil
}

func (e *Engine) sharedEntries() []emit.SharedEntry {
	entries := make([]emit.SharedEntry, len(e.shared))
	for i, ex := range e.shared {
		entries[i] = emit.SharedEntry{Name: ex.Name, Content: ex.Content}
	}
	return entries
}
