package build

import (
	"context"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
	"github.com/BluejacketSoftware/vba-blocks/internal/report"
)

// Stage materialises an import graph into dir, which is emptied first.
// Components land as {name}.{ext} with binary sidecars as {name}.frx; writes
// target disjoint paths, so they fan out without inter-item ordering.
func Stage(ctx context.Context, ig ImportGraph, dir string, rep report.Reporter) error {
	if rep == nil {
		rep = report.Noop()
	}

	if err := fs.EmptyDir(dir); err != nil {
		return err
	}

	comps := append([]Component(nil), ig.Components...)
	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })

	rep.Start("stage "+ig.Target.Name, len(comps))
	defer rep.Done()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, c := range comps {
		c := c
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ext := extByType[c.Type]
			if err := fs.WriteFileAtomic(filepath.Join(dir, c.Name+ext), []byte(c.Code), 0666); err != nil {
				return err
			}
			if len(c.Binary) > 0 {
				if err := fs.WriteFileAtomic(filepath.Join(dir, c.Name+binaryExt), c.Binary, 0666); err != nil {
					return err
				}
			}
			rep.Tick(c.Name)
			return nil
		})
	}
	return eg.Wait()
}
