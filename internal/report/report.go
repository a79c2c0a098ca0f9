// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report carries progress events from fan-out stages to the CLI.
// Reporters are advisory; correctness never depends on them.
package report

// A Reporter receives progress events for one named stage at a time.
type Reporter interface {
	// Start announces a stage with a known number of items.
	Start(stage string, total int)
	// Tick records completion of one item.
	Tick(item string)
	// Done closes the current stage.
	Done()
}

// Noop returns a Reporter that discards all events.
func Noop() Reporter {
	return noop{}
}

type noop struct{}

func (noop) Start(string, int) {}
func (noop) Tick(string)       {}
func (noop) Done()             {}
