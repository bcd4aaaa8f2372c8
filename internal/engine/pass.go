package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"relaydedup/internal/canon"
	"relaydedup/internal/tree"
)

// site is one occurrence of a leaf candidate within a file.
type site struct {
	path     []tree.Step
	node     *tree.Value
	digest   canon.Digest
	preIndex int // position in the file's pre-order candidate walk
}

// pass runs one enumerate → tally → promote → rewrite cycle. It returns the
// number of newly promoted extractions and the number of sites rewritten.
// Sites whose digest was promoted in an earlier pass are rewritten to the
// existing name, so equivalent sub-trees always share one extraction no
// matter which pass surfaces them.
func (e *Engine) pass(ctx context.Context) (int, int, error) {
	// Enumerate candidates per file in parallel; results land in a slice
	// indexed by file so the merge below observes sorted path order.
	perFile := make([][]site, len(e.files))
	t0 := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, f := range e.files {
		i, f := i, f
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perFile[i] = e.enumerate(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	e.Timing.Enumerate.Add(int64(time.Since(t0)))

	// Tally site counts per digest across the corpus, remembering the
	// first-seen occurrence: its node becomes the representative content and
	// its position breaks promotion-order ties.
	type tallyEntry struct {
		count     int
		firstFile int
		firstIdx  int
		rep       *tree.Value
	}
	tally := make(map[canon.Digest]*tallyEntry)
	order := make([]canon.Digest, 0)
	for fi, sites := range perFile {
		for _, s := range sites {
			te, ok := tally[s.digest]
			if !ok {
				te = &tallyEntry{firstFile: fi, firstIdx: s.preIndex, rep: s.node}
				tally[s.digest] = te
				order = append(order, s.digest)
			}
			te.count++
		}
	}

	// Promote. order already reflects first-seen (file, pre-order) position.
	promoted := make(map[canon.Digest]*Extraction)
	for _, d := range order {
		te := tally[d]
		if _, exists := e.byDig[d]; exists {
			continue
		}
		if te.count < e.cfg.MinOccurrences {
			continue
		}
		name, err := e.alloc.Name(d)
		if err != nil {
			return 0, 0, fmt.Errorf("allocate name for digest %s: %w", d.Hex(), err)
		}
		ex := &Extraction{Name: name, Digest: d, Content: te.rep}
		e.shared = append(e.shared, ex)
		e.byDig[d] = ex
		promoted[d] = ex
		e.log.Debug("promoted",
			zap.String("name", name),
			zap.Int("count", te.count))
	}

	// Rewrite every site whose digest now has an extraction.
	t1 := time.Now()
	rewrittenPerFile := make([]int, len(e.files))
	rg, rctx := errgroup.WithContext(ctx)
	rg.SetLimit(e.cfg.Workers)
	for i, f := range e.files {
		i, f := i, f
		sites := perFile[i]
		rg.Go(func() error {
			if err := rctx.Err(); err != nil {
				return err
			}
			for _, s := range sites {
				ex, ok := e.byDig[s.digest]
				if !ok {
					continue
				}
				newRoot, err := tree.ReplaceAt(f.Root, s.path, tree.NewReference(ex.Name))
				if err != nil {
					return fmt.Errorf("rewrite %s: %w", f.Path, err)
				}
				f.Root = newRoot
				f.Changed = true
				rewrittenPerFile[i]++
			}
			return nil
		})
	}
	if err := rg.Wait(); err != nil {
		return 0, 0, err
	}
	e.Timing.Rewrite.Add(int64(time.Since(t1)))

	rewritten := 0
	for _, n := range rewrittenPerFile {
		rewritten += n
	}
	// Count rewrites against their extraction. Sequential, after the
	// parallel stage, so no locking on the shared table.
	for _, sites := range perFile {
		for _, s := range sites {
			if ex, ok := e.byDig[s.digest]; ok {
				ex.Count++
			}
		}
	}
	return len(promoted), rewritten, nil
}

// enumerate walks one file's tree in pre-order and collects every leaf
// candidate whose canonical form is at least canon.MinCanonicalLen bytes,
// with the digest of that form.
func (e *Engine) enumerate(f *File) []site {
	var sites []site
	pre := 0
	var walk func(v *tree.Value, parentKey string, path []tree.Step)
	walk = func(v *tree.Value, parentKey string, path []tree.Step) {
		if v.Kind != tree.Object && v.Kind != tree.Array {
			return
		}
		pre++
		if canon.IsCandidate(v) {
			sortElems := false
			if v.Kind == tree.Array {
				_, sortElems = e.cfg.OrderInsensitive[parentKey]
			}
			c := canon.Canonical(v, sortElems, e.cfg.OrderInsensitive)
			if len(c) >= canon.MinCanonicalLen {
				sites = append(sites, site{
					path:     append([]tree.Step(nil), path...),
					node:     v,
					digest:   canon.Sum(c),
					preIndex: pre,
				})
			}
			return // a candidate has no container children to descend into
		}
		switch v.Kind {
		case tree.Array:
			for i, el := range v.Elems {
				walk(el, "", append(path, tree.Step{Index: i}))
			}
		case tree.Object:
			for _, en := range v.Entries {
				walk(en.Val, en.Key, append(path, tree.Step{Key: en.Key, Index: -1}))
			}
		}
	}
	walk(f.Root, "", nil)
	return sites
}
