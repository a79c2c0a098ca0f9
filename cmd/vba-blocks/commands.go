// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"

	vba "github.com/BluejacketSoftware/vba-blocks"
)

const buildShortHelp = "Build the project's target documents"
const buildLongHelp = `
Build resolves the project's dependencies against the lockfile and the
configured sources, stages the merged component set, and updates each target
document to match. A project.lock is written beside project.toml.
`

type buildCommand struct {
	target  string
	release bool
	open    bool
	addin   string
}

func (cmd *buildCommand) Name() string      { return "build" }
func (cmd *buildCommand) Args() string      { return "" }
func (cmd *buildCommand) ShortHelp() string { return buildShortHelp }
func (cmd *buildCommand) LongHelp() string  { return buildLongHelp }
func (cmd *buildCommand) Hidden() bool      { return false }

func (cmd *buildCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.target, "target", "", "build only the target of this type")
	fs.BoolVar(&cmd.release, "release", false, "prefer binary artifacts over text modules")
	fs.BoolVar(&cmd.open, "open", false, "open the built document afterwards")
	fs.StringVar(&cmd.addin, "addin", "", "path of the add-in helper to bridge through")
}

func (cmd *buildCommand) Run(ctx context.Context, c *vba.Ctx, args []string) error {
	return vba.Build(ctx, c, newExecBridge(cmd.addin, c.Err), vba.BuildOptions{
		Target:  cmd.target,
		Release: cmd.release,
		Open:    cmd.open,
	})
}

const exportShortHelp = "Export components from a target document into src/"
const exportLongHelp = `
Export pulls the current component set out of the chosen target document and
folds it back into the project's src/ tree, patching [[src]] entries in
project.toml to match what came out.
`

type exportCommand struct {
	target    string
	completed string
	addin     string
}

func (cmd *exportCommand) Name() string      { return "export" }
func (cmd *exportCommand) Args() string      { return "" }
func (cmd *exportCommand) ShortHelp() string { return exportShortHelp }
func (cmd *exportCommand) LongHelp() string  { return exportLongHelp }
func (cmd *exportCommand) Hidden() bool      { return false }

func (cmd *exportCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.target, "target", "", "export from the target of this type")
	fs.StringVar(&cmd.completed, "completed", "", "fold back an already-exported directory")
	fs.StringVar(&cmd.addin, "addin", "", "path of the add-in helper to bridge through")
}

func (cmd *exportCommand) Run(ctx context.Context, c *vba.Ctx, args []string) error {
	return vba.Export(ctx, c, newExecBridge(cmd.addin, c.Err), vba.ExportOptions{
		Target:    cmd.target,
		Completed: cmd.completed,
	})
}

const targetShortHelp = "Manage the project's targets"
const targetLongHelp = `
target add <type> registers a new target in project.toml, optionally seeded
from an existing document via -from, and builds it once.
`

type targetCommand struct {
	from  string
	name  string
	path  string
	addin string
}

func (cmd *targetCommand) Name() string      { return "target" }
func (cmd *targetCommand) Args() string      { return "add <type>" }
func (cmd *targetCommand) ShortHelp() string { return targetShortHelp }
func (cmd *targetCommand) LongHelp() string  { return targetLongHelp }
func (cmd *targetCommand) Hidden() bool      { return false }

func (cmd *targetCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.from, "from", "", "seed the target from this document")
	fs.StringVar(&cmd.name, "name", "", "name of the target (default: package name)")
	fs.StringVar(&cmd.path, "path", "", "directory the document is built into")
	fs.StringVar(&cmd.addin, "addin", "", "path of the add-in helper to bridge through")
}

func (cmd *targetCommand) Run(ctx context.Context, c *vba.Ctx, args []string) error {
	if len(args) < 1 || args[0] != "add" {
		return &vba.Error{Kind: vba.KindUnknownCommand, Msg: "target supports only: target add <type>"}
	}
	opts := vba.TargetAddOptions{From: cmd.from, Name: cmd.name, Path: cmd.path}
	if len(args) > 1 {
		opts.Type = args[1]
	}
	return vba.TargetAdd(ctx, c, newExecBridge(cmd.addin, c.Err), opts)
}

const newShortHelp = "Scaffold a new project"
const newLongHelp = `
New creates <name>/ with a starter manifest, a src/ tree and a blank default
target.
`

type newCommand struct{}

func (cmd *newCommand) Name() string            { return "new" }
func (cmd *newCommand) Args() string            { return "<name>" }
func (cmd *newCommand) ShortHelp() string       { return newShortHelp }
func (cmd *newCommand) LongHelp() string        { return newLongHelp }
func (cmd *newCommand) Hidden() bool            { return false }
func (cmd *newCommand) Register(*flag.FlagSet) {}

func (cmd *newCommand) Run(ctx context.Context, c *vba.Ctx, args []string) error {
	if len(args) != 1 {
		return &vba.Error{Kind: vba.KindNewInvalidName, Msg: "new takes exactly one argument: the project name"}
	}
	return vba.New(c, args[0])
}

const runShortHelp = "Run a project script through the add-in"
const runLongHelp = `
Run resolves <script> against the project's scripts/ directory and executes
it against the default target document.
`

type runCommand struct {
	addin string
}

func (cmd *runCommand) Name() string      { return "run" }
func (cmd *runCommand) Args() string      { return "<script> [args...]" }
func (cmd *runCommand) ShortHelp() string { return runShortHelp }
func (cmd *runCommand) LongHelp() string  { return runLongHelp }
func (cmd *runCommand) Hidden() bool      { return false }

func (cmd *runCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.addin, "addin", "", "path of the add-in helper to bridge through")
}

func (cmd *runCommand) Run(ctx context.Context, c *vba.Ctx, args []string) error {
	if len(args) < 1 {
		return &vba.Error{Kind: vba.KindRunScriptNotFound, Msg: "run takes the script name as its first argument"}
	}
	return vba.Run(ctx, c, newExecBridge(cmd.addin, c.Err), args[0], args[1:])
}

const versionHelp = "Show the vba-blocks version information"

// version is filled in by the release build.
var version = "devel"

type versionCommand struct{}

func (cmd *versionCommand) Name() string            { return "version" }
func (cmd *versionCommand) Args() string            { return "" }
func (cmd *versionCommand) ShortHelp() string       { return versionHelp }
func (cmd *versionCommand) LongHelp() string        { return versionHelp }
func (cmd *versionCommand) Hidden() bool            { return false }
func (cmd *versionCommand) Register(*flag.FlagSet) {}

func (cmd *versionCommand) Run(ctx context.Context, c *vba.Ctx, args []string) error {
	c.Out.Printf("vba-blocks %s", version)
	return nil
}
