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

// ExportOptions carry the export command's flags.
type ExportOptions struct {
	Target string
	// Completed names a directory holding an already-exported component set
	// to fold back, skipping the bridge round-trip.
	Completed string
}

// Export pulls the target document's current components out through the
// bridge and folds them back into the project's src/ tree, patching the
// manifest's [[src]] entries to match.
func Export(ctx context.Context, c *Ctx, bridge build.Bridge, opts ExportOptions) error {
	p, err := c.LoadProject("")
	if err != nil {
		return err
	}

	t, err := p.FindTarget(opts.Target)
	if err != nil {
		if KindOf(err) == KindTargetNoDefault {
			return errKind(KindExportNoDefault, err, "export needs a target; pass --target")
		}
		return err
	}

	exportDir := opts.Completed
	if exportDir == "" {
		sm, err := c.SourceManager(ctx)
		if err != nil {
			return err
		}
		defer sm.Release()

		exportDir = filepath.Join(sm.StagingDir(), fmt.Sprintf("export-%s-%d", t.Name, os.Getpid()))
		defer os.RemoveAll(exportDir)
		if err := fs.EmptyDir(exportDir); err != nil {
			return err
		}

		if _, err := exportCurrent(ctx, c, bridge, t, exportDir); err != nil {
			return err
		}
	} else if ok, _ := fs.IsDir(exportDir); !ok {
		return errKind(KindTargetExportFailed, nil, "completed directory %s does not exist", exportDir)
	}

	return foldExport(c, p, exportDir)
}

// foldExport copies exported components into src/ and reconciles the
// manifest's [[src]] array with what actually came out of the document.
func foldExport(c *Ctx, p *Project, exportDir string) error {
	comps, err := build.LoadExportDir(exportDir)
	if err != nil {
		return classify(err)
	}

	srcDir := filepath.Join(p.AbsRoot, "src")
	if err := fs.EnsureDir(srcDir); err != nil {
		return err
	}

	declared := make(map[string]SrcEntry, len(p.Manifest.Src))
	for _, s := range p.Manifest.Src {
		declared[s.Name] = s
	}

	var patches []Patch
	exported := make(map[string]bool, len(comps))
	for _, comp := range comps {
		exported[comp.Name] = true

		dest := filepath.Join(srcDir, comp.Filename)
		if entry, exists := declared[comp.Name]; exists {
			dest = entry.Path
			if !filepath.IsAbs(dest) {
				dest = filepath.Join(p.AbsRoot, dest)
			}
		} else {
			rel, err := fs.PosixRel(p.AbsRoot, dest)
			if err != nil {
				return err
			}
			patches = append(patches, AddSource{Entry: SrcEntry{Name: comp.Name, Path: rel}})
		}

		if err := fs.WriteFileAtomic(dest, []byte(comp.Code), 0666); err != nil {
			return err
		}
		if len(comp.Binary) > 0 {
			sidecar := dest[:len(dest)-len(filepath.Ext(dest))] + ".frx"
			if err := fs.WriteFileAtomic(sidecar, comp.Binary, 0666); err != nil {
				return err
			}
		}
		if c.Verbose {
			c.Out.Printf("exported %s", comp.Filename)
		}
	}

	// Entries the document no longer carries fall out of the manifest.
	for name := range declared {
		if !exported[name] {
			patches = append(patches, RemoveSource{Name: name})
		}
	}

	if len(patches) > 0 {
		sw := SafeWriter{Payload: &SafeWriterPayload{ManifestPatches: patches}}
		if err := sw.Write(p.AbsRoot); err != nil {
			return err
		}
	}

	c.Out.Printf("exported %d components into %s", len(comps), srcDir)
	return nil
}
