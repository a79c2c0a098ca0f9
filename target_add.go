// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"context"
	"path/filepath"

	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// TargetAddOptions carry the target add command's arguments.
type TargetAddOptions struct {
	Type string
	From string
	Name string
	Path string
}

// TargetAdd registers a new target in the manifest, optionally seeded from
// an existing document, then builds it once.
func TargetAdd(ctx context.Context, c *Ctx, bridge build.Bridge, opts TargetAddOptions) error {
	if opts.Type == "" {
		return errKind(KindTargetAddNoType, nil, "target add needs a type (e.g. xlsm)")
	}

	p, err := c.LoadProject("")
	if err != nil {
		return err
	}

	for _, t := range p.Manifest.Targets {
		if t.Type == opts.Type {
			return errKind(KindManifestInvalid, nil, "project already declares an %s target", opts.Type)
		}
	}

	t, err := targetFromRaw(p.Manifest, rawTarget{
		Type: opts.Type,
		Name: opts.Name,
		Path: opts.Path,
	})
	if err != nil {
		return errKind(KindManifestInvalid, err, "%s", err)
	}
	t.Blank = opts.From == ""

	if opts.From != "" {
		if ok, _ := fs.IsRegular(opts.From); !ok {
			return errKind(KindFromNotFound, nil, "%s does not exist", opts.From)
		}
		if err := fs.EnsureDir(t.Path); err != nil {
			return errKind(KindTargetCreateFailed, err, "could not create %s", t.Path)
		}
		if err := fs.CopyFile(opts.From, t.File()); err != nil {
			return errKind(KindTargetCreateFailed, err, "could not seed %s from %s", t.File(), opts.From)
		}
	}

	// Only explicitly-given fields land in the file; defaults stay implicit.
	patch := AddTarget{Target: t, ExplicitPath: opts.Path}
	patch.Target.Name = opts.Name

	sw := SafeWriter{Payload: &SafeWriterPayload{ManifestPatches: []Patch{patch}}}
	if err := sw.Write(p.AbsRoot); err != nil {
		return err
	}
	c.Out.Printf("added %s target to %s", opts.Type, filepath.Join(p.AbsRoot, ManifestName))

	return Build(ctx, c, bridge, BuildOptions{Target: opts.Type})
}
