// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command vba-blocks is a package manager and build tool for VBA projects.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	vba "github.com/BluejacketSoftware/vba-blocks"
)

type command interface {
	Name() string           // "build"
	Args() string           // "[spec...]"
	ShortHelp() string      // "Build the project's targets"
	LongHelp() string       // "Build the project's targets, resolving..."
	Register(*flag.FlagSet) // command-specific flags
	Hidden() bool           // excluded from help output
	Run(context.Context, *vba.Ctx, []string) error
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory", err)
		os.Exit(1)
	}
	c := &Config{
		Args:       os.Args,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		WorkingDir: wd,
		Env:        os.Environ(),
	}
	os.Exit(c.Run())
}

// A Config specifies a full configuration for a vba-blocks execution.
type Config struct {
	WorkingDir     string    // Where to execute
	Args           []string  // Command-line arguments, starting with the program name.
	Env            []string  // Environment variables
	Stdout, Stderr io.Writer // Log output
}

// Run executes a configuration and returns an exit code.
func (c *Config) Run() (exitCode int) {
	commands := []command{
		&buildCommand{},
		&exportCommand{},
		&targetCommand{},
		&newCommand{},
		&runCommand{},
		&versionCommand{},
	}

	examples := [][2]string{
		{
			"vba-blocks new report",
			"scaffold a new project",
		},
		{
			"vba-blocks build",
			"build the project's targets",
		},
		{
			"vba-blocks export",
			"pull components out of the built document",
		},
		{
			"vba-blocks target add xlsm",
			"register and build an xlsm target",
		},
	}

	outLogger := log.New(c.Stdout, "", 0)
	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("vba-blocks is a package manager and build tool for VBA projects")
		errLogger.Println()
		errLogger.Println("Usage: vba-blocks <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Examples:")
		for _, example := range examples {
			fmt.Fprintf(w, "\t%s\t%s\n", example[0], example[1])
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Use \"vba-blocks help [command]\" for more information about a command.")
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		return vba.ExitUser
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}

		// Build flag set with global flags in there.
		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		verbose := fs.Bool("v", false, "enable verbose logging")
		quiet := fs.Bool("quiet", false, "suppress progress output")

		cmd.Register(fs)

		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

		if printCommandHelp {
			fs.Usage()
			return vba.ExitUser
		}

		if err := fs.Parse(c.Args[2:]); err != nil {
			return vba.ExitUser
		}

		ctx, err := vba.NewContext(c.WorkingDir, c.Env, outLogger, errLogger)
		if err != nil {
			errLogger.Printf("%v\n", err)
			return vba.ExitUser
		}
		ctx.Verbose = *verbose
		if !*quiet {
			ctx.Reporter = newProgressReporter(c.Stderr)
		}

		// Actions honour cancellation at their stage boundaries.
		runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		if err := cmd.Run(runCtx, ctx, fs.Args()); err != nil {
			errLogger.Printf("%v\n", err)
			return vba.ExitCode(err)
		}
		return vba.ExitOK
	}

	errLogger.Printf("vba-blocks: %s: no such command\n", cmdName)
	usage()
	return vba.ExitUser
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		// Default-empty string vars should read "(default: <none>)"
		// rather than the comparatively ugly "(default: )".
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: vba-blocks %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// parseArgs determines the name of the command and whether the user asked
// for help to be printed.
func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelpArg := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}

	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelpArg() {
			exit = true
		}
		cmdName = args[1]
	default:
		if isHelpArg() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}
