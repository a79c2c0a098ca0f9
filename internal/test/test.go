// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package test provides the shared helper for filesystem-heavy tests.
package test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

// Helper with utilities for testing.
type Helper struct {
	t     *testing.T
	temps []string
}

// NewHelper initializes a new helper for testing.
func NewHelper(t *testing.T) *Helper {
	return &Helper{t: t}
}

// Must gives a fatal error if err is not nil.
func (h *Helper) Must(err error) {
	if err != nil {
		h.t.Fatalf("%+v", err)
	}
}

// Cleanup removes every temp directory the helper created.
func (h *Helper) Cleanup() {
	for _, td := range h.temps {
		os.RemoveAll(td)
	}
}

// TempDir creates a fresh temp directory scoped to the helper.
func (h *Helper) TempDir() string {
	td, err := ioutil.TempDir("", "vba-blocks-test")
	if err != nil {
		h.t.Fatalf("%+v", errors.Wrap(err, "creating temp dir"))
	}
	h.temps = append(h.temps, td)
	return td
}

// TempFile writes contents to name under dir and returns its path, creating
// parents as needed.
func (h *Helper) TempFile(dir, name, contents string) string {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		h.t.Fatalf("%+v", errors.Wrapf(err, "creating parents of %s", path))
	}
	if err := ioutil.WriteFile(path, []byte(contents), 0666); err != nil {
		h.t.Fatalf("%+v", errors.Wrapf(err, "writing %s", path))
	}
	return path
}

// ReadFile reads path or fails the test.
func (h *Helper) ReadFile(path string) string {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		h.t.Fatalf("%+v", errors.Wrapf(err, "reading %s", path))
	}
	return string(data)
}
