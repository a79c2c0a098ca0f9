// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

// A Project is a loaded workspace: the root manifest, any member manifests,
// and the lockfile when a usable one was present.
type Project struct {
	AbsRoot  string
	Manifest *Manifest
	Members  []*Manifest
	Lock     *Lock
}

// Workspace reduces the project to the resolver's input.
func (p *Project) Workspace() solve.Workspace {
	ws := solve.Workspace{Root: p.Manifest.Snapshot()}
	for _, m := range p.Members {
		ws.Members = append(ws.Members, m.Snapshot())
	}
	return ws
}

// lockedRegistrations returns the lock's packages when the lock is still
// valid for the workspace, to steer the solver toward locked versions.
func (p *Project) lockedRegistrations() []solve.Registration {
	if p.Lock == nil {
		return nil
	}
	if !p.Lock.IsValid(p.Workspace(), snapshotLoader{}) {
		return nil
	}
	return p.Lock.Packages
}

// FindTarget selects the target to operate on: an explicit type wins, then
// the manifest's declared default, then an only target.
func (p *Project) FindTarget(targetType string) (build.Target, error) {
	targets := p.Manifest.Targets

	if targetType != "" {
		for _, t := range targets {
			if t.Type == targetType {
				return t, nil
			}
		}
		return build.Target{}, errKind(KindTargetNoMatching, nil, "project has no %s target", targetType)
	}

	if p.Manifest.DefaultTarget != "" {
		for _, t := range targets {
			if t.Type == p.Manifest.DefaultTarget {
				return t, nil
			}
		}
		return build.Target{}, errKind(KindTargetNoMatching, nil, "default target %s is not declared", p.Manifest.DefaultTarget)
	}

	switch len(targets) {
	case 0:
		return build.Target{}, errKind(KindTargetNoDefault, nil, "project declares no targets")
	case 1:
		return targets[0], nil
	default:
		return build.Target{}, errKind(KindTargetNoDefault, nil, "project declares several targets; pass --target to pick one")
	}
}

// BuildTargets returns the targets a build should produce: all of them, or
// the one selected by type.
func (p *Project) BuildTargets(targetType string) ([]build.Target, error) {
	if targetType == "" {
		if len(p.Manifest.Targets) == 0 {
			return nil, errKind(KindTargetNoDefault, nil, "project declares no targets")
		}
		return p.Manifest.Targets, nil
	}
	t, err := p.FindTarget(targetType)
	if err != nil {
		return nil, err
	}
	return []build.Target{t}, nil
}
