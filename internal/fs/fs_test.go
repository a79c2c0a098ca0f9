// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir, err := ioutil.TempDir("", "vba-blocks-fs")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	target := filepath.Join(dir, "out.toml")
	if err := WriteFileAtomic(target, []byte("first"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(target, []byte("second"), 0666); err != nil {
		t.Fatal(err)
	}

	got, err := ioutil.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("content = %q, want %q", got, "second")
	}

	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries in %s", len(entries), dir)
	}
}

func TestCopyDir(t *testing.T) {
	dir, err := ioutil.TempDir("", "vba-blocks-fs")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0777); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"a.bas":        "Attribute VB_Name = \"A\"\n",
		"nested/b.cls": "Attribute VB_Name = \"B\"\n",
	}
	for name, contents := range files {
		if err := ioutil.WriteFile(filepath.Join(src, name), []byte(contents), 0666); err != nil {
			t.Fatal(err)
		}
	}

	dst := filepath.Join(dir, "dst")
	if err := CopyDir(src, dst); err != nil {
		t.Fatal(err)
	}

	for name, want := range files {
		got, err := ioutil.ReadFile(filepath.Join(dst, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}

	if err := CopyDir(src, dst); err == nil {
		t.Error("expected error copying over an existing destination")
	}
}

func TestEmptyDir(t *testing.T) {
	dir, err := ioutil.TempDir("", "vba-blocks-fs")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, "staging")
	if err := os.MkdirAll(staged, 0777); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(filepath.Join(staged, "residue.bas"), []byte("x"), 0666); err != nil {
		t.Fatal(err)
	}

	if err := EmptyDir(staged); err != nil {
		t.Fatal(err)
	}
	entries, err := ioutil.ReadDir(staged)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("directory not emptied: %d entries", len(entries))
	}
}

func TestPosixRelRoundTrip(t *testing.T) {
	base := filepath.FromSlash("/projects/app")
	target := filepath.FromSlash("/projects/blocks/foo")

	rel, err := PosixRel(base, target)
	if err != nil {
		t.Fatal(err)
	}
	if rel != "../blocks/foo" {
		t.Errorf("PosixRel = %q, want %q", rel, "../blocks/foo")
	}

	back := FromPosix(base, rel+"/")
	if back != target {
		t.Errorf("FromPosix = %q, want %q", back, target)
	}
}

func TestTempScope(t *testing.T) {
	td, cleanup, err := TempScope("", "scope-")
	if err != nil {
		t.Fatal(err)
	}
	if !Exists(td) {
		t.Fatalf("scope dir %s was not created", td)
	}
	cleanup()
	if Exists(td) {
		t.Errorf("scope dir %s survived cleanup", td)
	}
	// Safe to call again.
	cleanup()
}
