// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"path/filepath"
	"testing"

	"github.com/BluejacketSoftware/vba-blocks/internal/test"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

const sampleManifest = `# A sample project
[package]
name = "analysis-toolkit"
version = "1.2.0"
authors = ["Tim Hall <tim@example.com>"]
target = "xlsm"

[dependencies]
json = "^2.0.0"
dictionary = { version = "^1.4.0", registry = "default" }
local-utils = { path = "../utils" }
web = { git = "https://github.com/vba-blocks/web.git", branch = "main" }

[[src]]
name = "Analysis"
path = "src/Analysis.bas"

[[src]]
name = "Helpers"
path = "src/Helpers.bas"
binary = "build/Helpers.bin"

[[target]]
type = "xlsm"
path = "targets/xlsm"

[[references]]
name = "Scripting"
guid = "{420B2830-E718-11CF-893D-00A0C9054228}"
major = 1
minor = 0
`

func TestLoadManifest(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	dir := h.TempDir()
	path := h.TempFile(dir, ManifestName, sampleManifest)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	if m.Name != "analysis-toolkit" {
		t.Errorf("name = %q", m.Name)
	}
	if m.Version.String() != "1.2.0" {
		t.Errorf("version = %s", m.Version)
	}
	if m.DefaultTarget != "xlsm" {
		t.Errorf("default target = %q", m.DefaultTarget)
	}
	if len(m.Src) != 2 || m.Src[1].Binary != "build/Helpers.bin" {
		t.Errorf("src = %+v", m.Src)
	}
	if len(m.Targets) != 1 {
		t.Fatalf("targets = %+v", m.Targets)
	}
	if m.Targets[0].Filename != "analysis-toolkit.xlsm" {
		t.Errorf("target filename = %q", m.Targets[0].Filename)
	}
	if want := filepath.Join(dir, "targets", "xlsm"); m.Targets[0].Path != want {
		t.Errorf("target path = %q, want %q", m.Targets[0].Path, want)
	}
	if len(m.References) != 1 || m.References[0].Major != 1 {
		t.Errorf("references = %+v", m.References)
	}

	if len(m.Dependencies) != 4 {
		t.Fatalf("dependencies = %+v", m.Dependencies)
	}
	kinds := map[string]string{}
	for _, d := range m.Dependencies {
		kinds[d.Name()] = solve.SourceType(d)
	}
	want := map[string]string{
		"json":        "registry",
		"dictionary":  "registry",
		"local-utils": "path",
		"web":         "git",
	}
	for name, k := range want {
		if kinds[name] != k {
			t.Errorf("dependency %s has source type %q, want %q", name, kinds[name], k)
		}
	}

	// Relative path dependencies resolve against the manifest directory.
	for _, d := range m.Dependencies {
		if pd, ok := d.(solve.PathDep); ok {
			if want := filepath.Join(filepath.Dir(dir), "utils"); pd.Path != want {
				t.Errorf("path dep = %q, want %q", pd.Path, want)
			}
		}
	}
}

func TestLoadManifestErrors(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	dir := h.TempDir()

	_, err := LoadManifest(filepath.Join(dir, ManifestName))
	if KindOf(err) != KindManifestNotFound {
		t.Errorf("missing manifest: kind = %q, want %q", KindOf(err), KindManifestNotFound)
	}

	cases := []struct {
		name     string
		contents string
	}{
		{"no name", "[package]\nversion = \"1.0.0\"\n"},
		{"no version", "[package]\nname = \"p\"\n"},
		{"bad name", "[package]\nname = \"Not-Kebab\"\nversion = \"1.0.0\"\n"},
		{"bad version", "[package]\nname = \"p\"\nversion = \"one\"\n"},
		{"bad toml", "[package\n"},
		{"duplicate src", "[package]\nname = \"p\"\nversion = \"1.0.0\"\n[[src]]\nname = \"A\"\npath = \"src/A.bas\"\n[[src]]\nname = \"A\"\npath = \"src/A2.bas\"\n"},
		{"unknown target type", "[package]\nname = \"p\"\nversion = \"1.0.0\"\n[[target]]\ntype = \"docx\"\n"},
		{"bad dependency", "[package]\nname = \"p\"\nversion = \"1.0.0\"\n[dependencies]\nfoo = { }\n"},
	}

	for _, c := range cases {
		sub := h.TempDir()
		path := h.TempFile(sub, ManifestName, c.contents)
		if _, err := LoadManifest(path); KindOf(err) != KindManifestInvalid {
			t.Errorf("%s: kind = %q, want %q", c.name, KindOf(err), KindManifestInvalid)
		}
	}
}

func TestBareStringDependency(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	path := h.TempFile(h.TempDir(), ManifestName, `
[package]
name = "p"
version = "1.0.0"

[dependencies]
json = "^1.0.0"
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rd, ok := m.Dependencies[0].(solve.RegistryDep)
	if !ok {
		t.Fatalf("got %T, want RegistryDep", m.Dependencies[0])
	}
	if rd.RegistryName() != solve.DefaultRegistry {
		t.Errorf("registry = %q", rd.RegistryName())
	}
	if rd.Constraint().String() != "^1.0.0" {
		t.Errorf("constraint = %q", rd.Constraint())
	}
}
