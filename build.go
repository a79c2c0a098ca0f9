// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// BuildOptions carry the build command's flags.
type BuildOptions struct {
	Target  string
	Release bool
	Open    bool
}

// Build is the full pipeline: load the project, resolve and lock its
// dependencies, fetch sources, and bring every selected target document up
// to date with the staged component set.
func Build(ctx context.Context, c *Ctx, bridge build.Bridge, opts BuildOptions) error {
	p, err := c.LoadProject("")
	if err != nil {
		return err
	}

	sm, err := c.SourceManager(ctx)
	if err != nil {
		return err
	}
	defer sm.Release()

	graph, err := resolveProject(ctx, c, p, sm)
	if err != nil {
		return err
	}

	if err := writeLockIfChanged(p, graph); err != nil {
		return err
	}

	dirs, err := sm.FetchAll(ctx, graph, c.Reporter)
	if err != nil {
		return classify(err)
	}

	pkgs, err := assemblePackages(p, graph, dirs, opts.Release)
	if err != nil {
		return err
	}

	bg, err := build.LoadGraph(ctx, pkgs)
	if err != nil {
		return classify(err)
	}

	targets, err := p.BuildTargets(opts.Target)
	if err != nil {
		return err
	}

	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := buildTarget(ctx, c, bridge, sm.StagingDir(), bg, t); err != nil {
			return err
		}
	}

	if opts.Open {
		t, err := p.FindTarget(opts.Target)
		if err != nil {
			return err
		}
		// Hand the document to the user; the bridge leaves unclosed handles
		// to the host application.
		if _, err := bridge.Open(ctx, t.File()); err != nil {
			return classify(err)
		}
	}

	return nil
}

// buildTarget stages one target's import graph and applies the difference to
// the document. The action-scoped staging directory is removed on every exit
// path.
func buildTarget(ctx context.Context, c *Ctx, bridge build.Bridge, stagingRoot string, bg build.BuildGraph, t build.Target) error {
	ig, err := build.ForTarget(bg, t)
	if err != nil {
		return classify(err)
	}

	if err := ensureTargetSeed(c, t); err != nil {
		return err
	}

	actionDir := filepath.Join(stagingRoot, fmt.Sprintf("build-%s-%d", t.Name, os.Getpid()))
	defer os.RemoveAll(actionDir)

	stageDir := filepath.Join(actionDir, t.Type)
	if err := build.Stage(ctx, ig, stageDir, c.Reporter); err != nil {
		return classify(err)
	}

	// The previous graph comes from the document itself, via export.
	exportDir := filepath.Join(actionDir, "current")
	if err := fs.EnsureDir(exportDir); err != nil {
		return err
	}
	prev, err := exportCurrent(ctx, c, bridge, t, exportDir)
	if err != nil {
		return err
	}

	cs := build.Diff(prev, ig.Components, ig.References)
	if cs.Empty() {
		if c.Verbose {
			c.Out.Printf("%s is up to date", t.Filename)
		}
		return nil
	}

	applier := build.Applier{
		Bridge:    bridge,
		BackupDir: filepath.Join(stagingRoot, "backup"),
		Log:       c.Err,
	}
	if err := applier.Apply(ctx, ig, cs, stageDir); err != nil {
		return classify(err)
	}

	c.Out.Printf("built %s (%d added, %d changed, %d removed)",
		t.Filename, len(cs.Added), len(cs.Changed), len(cs.Removed))
	return nil
}

// exportCurrent reads the target document's present component set.
func exportCurrent(ctx context.Context, c *Ctx, bridge build.Bridge, t build.Target, dir string) ([]build.Component, error) {
	h, err := bridge.Open(ctx, t.File())
	if err != nil {
		return nil, classify(err)
	}
	if _, err := bridge.Export(ctx, h, dir); err != nil {
		if cerr := bridge.Close(ctx, h, false); cerr != nil {
			c.Err.Printf("closing %s after failed export: %s", t.Filename, cerr)
		}
		return nil, classify(&build.TargetExportError{Path: t.File(), Err: err})
	}
	if err := bridge.Close(ctx, h, false); err != nil {
		return nil, classify(err)
	}
	return build.LoadExportDir(dir)
}

// ensureTargetSeed guarantees the target document exists before the bridge
// opens it: blank targets start from a template of their type, others must
// already be present.
func ensureTargetSeed(c *Ctx, t build.Target) error {
	file := t.File()
	if ok, _ := fs.IsRegular(file); ok {
		return nil
	}

	if !t.Blank {
		return errKind(KindTargetNotFound, nil, "target document %s does not exist", file)
	}

	seed, err := c.readTemplate(t.Type)
	if err != nil {
		return err
	}
	if err := fs.EnsureDir(t.Path); err != nil {
		return errKind(KindTargetCreateFailed, err, "could not create %s", t.Path)
	}
	if err := fs.WriteFileAtomic(file, seed, 0666); err != nil {
		return errKind(KindTargetCreateFailed, err, "could not create %s", file)
	}
	return nil
}
