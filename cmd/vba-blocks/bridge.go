// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"log"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/BluejacketSoftware/vba-blocks/build"
)

// defaultAddin is the helper executable the bridge shells out to when -addin
// is not given; it is installed next to the Office add-in.
const defaultAddin = "vba-blocks-addin"

// execBridge implements build.Bridge by spawning the add-in helper once per
// call. The handle is the document path itself: the helper re-attaches to
// the document on every invocation, so no process state spans calls.
type execBridge struct {
	addin string
	log   *log.Logger
}

func newExecBridge(addin string, log *log.Logger) *execBridge {
	if addin == "" {
		addin = defaultAddin
	}
	return &execBridge{addin: addin, log: log}
}

func (b *execBridge) Open(ctx context.Context, path string) (build.Handle, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &build.TargetOpenError{Path: path, Err: err}
	}
	out, err := b.invoke(ctx, "open", path)
	if err != nil {
		if strings.Contains(out, "already open") {
			return nil, &build.TargetOpenError{Path: path, IsOpen: true, Err: err}
		}
		return nil, &build.TargetOpenError{Path: path, Err: err}
	}
	return path, nil
}

func (b *execBridge) Import(ctx context.Context, h build.Handle, dir string) error {
	_, err := b.invoke(ctx, "import", h.(string), dir)
	return err
}

func (b *execBridge) Export(ctx context.Context, h build.Handle, dir string) ([]build.Src, error) {
	if _, err := b.invoke(ctx, "export", h.(string), dir); err != nil {
		return nil, err
	}
	// The helper writes the fragment as files; the caller reads them back
	// from dir.
	return nil, nil
}

func (b *execBridge) Close(ctx context.Context, h build.Handle, save bool) error {
	args := []string{"close", h.(string)}
	if save {
		args = append(args, "--save")
	}
	_, err := b.invoke(ctx, args...)
	return err
}

func (b *execBridge) Run(ctx context.Context, path, script string, args []string) error {
	cmdArgs := append([]string{"run", script}, args...)
	if path != "" {
		cmdArgs = append([]string{"run", "--in", path, script}, args...)
	}
	_, err := b.invoke(ctx, cmdArgs...)
	return err
}

func (b *execBridge) invoke(ctx context.Context, args ...string) (string, error) {
	name := b.addin
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		name += ".exe"
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil && b.log != nil {
		b.log.Printf("addin %s: %s", strings.Join(args, " "), strings.TrimSpace(out.String()))
	}
	return out.String(), err
}
