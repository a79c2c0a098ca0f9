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

// Run hands a project script to the bridge, against the default target when
// one is declared.
func Run(ctx context.Context, c *Ctx, bridge build.Bridge, script string, args []string) error {
	p, err := c.LoadProject("")
	if err != nil {
		return err
	}

	path, err := findScript(p, script)
	if err != nil {
		return err
	}

	var targetFile string
	if t, err := p.FindTarget(""); err == nil {
		targetFile = t.File()
	}

	if err := bridge.Run(ctx, targetFile, path, args); err != nil {
		return classify(err)
	}
	return nil
}

// findScript resolves a script argument: an explicit path wins, then
// scripts/<name>, then scripts/<name>.vbs.
func findScript(p *Project, script string) (string, error) {
	candidates := []string{
		script,
		filepath.Join(p.AbsRoot, script),
		filepath.Join(p.AbsRoot, "scripts", script),
		filepath.Join(p.AbsRoot, "scripts", script+".vbs"),
	}
	for _, cand := range candidates {
		if ok, _ := fs.IsRegular(cand); ok {
			return cand, nil
		}
	}
	return "", errKind(KindRunScriptNotFound, nil, "no script %q found in %s", script, filepath.Join(p.AbsRoot, "scripts"))
}
