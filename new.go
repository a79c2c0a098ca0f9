// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"fmt"
	"path/filepath"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

const starterModule = `Attribute VB_Name = "Main"
Public Sub Main()
    ' TODO
End Sub
`

// New scaffolds a fresh project directory: manifest, src/ tree with a
// starter module, and a blank default target.
func New(c *Ctx, name string) error {
	if !namePattern.MatchString(name) {
		return errKind(KindNewInvalidName, nil, "%q is not a valid project name (lowercase kebab-case)", name)
	}

	dir := filepath.Join(c.WorkingDir, name)
	if fs.Exists(dir) {
		return errKind(KindNewDirExists, nil, "%s already exists", dir)
	}

	if err := fs.EnsureDir(filepath.Join(dir, "src")); err != nil {
		return err
	}

	manifest := fmt.Sprintf(`[package]
name = %q
version = "0.1.0"
authors = []

[dependencies]

[[src]]
name = "Main"
path = "src/Main.bas"

[[target]]
type = "xlsm"
blank = true
`, name)

	if err := fs.WriteFileAtomic(filepath.Join(dir, ManifestName), []byte(manifest), 0666); err != nil {
		return err
	}
	if err := fs.WriteFileAtomic(filepath.Join(dir, "src", "Main.bas"), []byte(starterModule), 0666); err != nil {
		return err
	}

	c.Out.Printf("created %s", dir)
	return nil
}
