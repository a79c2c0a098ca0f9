// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/BluejacketSoftware/vba-blocks/internal/report"
)

// progressReporter renders fan-out stages as a terminal progress bar. Events
// may arrive from several workers at once; the bar handles its own locking.
type progressReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newProgressReporter(w io.Writer) report.Reporter {
	return &progressReporter{w: w}
}

func (r *progressReporter) Start(stage string, total int) {
	if total == 0 {
		return
	}
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription(stage),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetPredictTime(false),
	)
}

func (r *progressReporter) Tick(item string) {
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

func (r *progressReporter) Done() {
	if r.bar != nil {
		_ = r.bar.Finish()
		r.bar = nil
	}
}
