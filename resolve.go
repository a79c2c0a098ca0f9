// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"context"
	"path/filepath"

	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

// resolveProject computes the dependency graph for the project, preferring
// still-valid locked versions, and refreshes the registry index when
// registry dependencies are in play.
func resolveProject(ctx context.Context, c *Ctx, p *Project, sm *solve.SourceMgr) (solve.Graph, error) {
	ws := p.Workspace()

	if workspaceUsesRegistry(ws) {
		if err := sm.UpdateRegistries(ctx); err != nil {
			return solve.Graph{}, classify(err)
		}
	}

	params := solve.SolveParameters{
		Workspace:   ws,
		Lock:        p.lockedRegistrations(),
		Trace:       c.Trace != nil,
		TraceLogger: c.Trace,
	}

	slv, err := solve.Prepare(params, sm)
	if err != nil {
		return solve.Graph{}, classify(err)
	}

	g, err := slv.Solve(ctx)
	if err != nil {
		return solve.Graph{}, classify(err)
	}
	return g, nil
}

func workspaceUsesRegistry(ws solve.Workspace) bool {
	snaps := append([]solve.Snapshot{ws.Root}, ws.Members...)
	for _, snap := range snaps {
		for _, d := range snap.Dependencies {
			if solve.SourceType(d) == solve.SourceRegistry {
				return true
			}
		}
	}
	return false
}

// writeLockIfChanged records the resolve result beside the manifest, unless
// the existing lock already encodes it.
func writeLockIfChanged(p *Project, g solve.Graph) error {
	next := NewLock(p.Workspace(), g)
	if locksAreEquivalent(p.Lock, next, p.AbsRoot) {
		return nil
	}

	sw := SafeWriter{Payload: &SafeWriterPayload{Lock: next}}
	return sw.Write(p.AbsRoot)
}

// assemblePackages pairs the root project and every fetched dependency with
// their component declarations. In release mode, src entries with a binary
// artifact contribute that artifact instead of the text module.
func assemblePackages(p *Project, g solve.Graph, dirs map[string]string, release bool) ([]build.Package, error) {
	pkgs := []build.Package{srcPackage(p.Manifest, release)}

	for _, reg := range g.Registrations {
		m, err := LoadManifest(filepath.Join(dirs[reg.Name], ManifestName))
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, srcPackage(m, release))
	}
	return pkgs, nil
}

func srcPackage(m *Manifest, release bool) build.Package {
	pkg := m.BuildPackage()
	if release {
		for i, s := range m.Src {
			if s.Binary != "" {
				pkg.Src[i].Path = s.Binary
			}
		}
	}
	return pkg
}
