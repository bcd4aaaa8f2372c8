package engine

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaydedup/internal/emit"
)

// writeAll rewrites every changed file and emits the shared module. Each file
// goes through a temp-sibling rename, so a failure mid-run leaves only whole
// files behind; a later run over the directory converges to the same output.
func (e *Engine) writeAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, f := range e.files {
		if !f.Changed {
			continue
		}
		f := f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			t0 := time.Now()
			content := emit.RenderFile(f.Prelude, f.Postlude, f.Root, e.cfg.SharedName)
			e.Timing.Serialize.Add(int64(time.Since(t0)))

			t1 := time.Now()
			err := emit.WriteFileAtomic(f.Path, content)
			e.Timing.FileWrite.Add(int64(time.Since(t1)))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(e.shared) == 0 {
		return nil
	}
	sharedPath := filepath.Join(e.cfg.Root, e.cfg.SharedName)
	t := time.Now()
	err := emit.WriteFileAtomic(sharedPath, emit.SharedModule(e.sharedEntries()))
	e.Timing.FileWrite.Add(int64(time.Since(t)))
	if err != nil {
		return err
	}
	e.log.Debug("shared module written",
		zap.String("path", sharedPath),
		zap.Int("entries", len(e.shared)))
	return nil
}
