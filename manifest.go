// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

// ManifestName is the project manifest file name.
const ManifestName = "project.toml"

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// A SrcEntry names one component file belonging to the project.
type SrcEntry struct {
	Name   string
	Path   string
	Binary string
}

// A Manifest is the typed form of project.toml. It is immutable for the
// duration of a run; on-disk mutation goes through the patch layer.
type Manifest struct {
	Name          string
	Version       *semver.Version
	Authors       []string
	Src           []SrcEntry
	Dependencies  []solve.Dependency
	Targets       []build.Target
	DefaultTarget string
	References    []build.Reference
	Members       []string

	// Dir is the directory the manifest was loaded from; relative paths in
	// the manifest resolve against it.
	Dir string
}

type rawManifest struct {
	Package    rawPackage     `toml:"package"`
	Src        []rawSrc       `toml:"src"`
	Targets    []rawTarget    `toml:"target"`
	References []rawRef       `toml:"references"`
	Workspace  rawWorkspace   `toml:"workspace"`
}

type rawPackage struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version"`
	Authors []string `toml:"authors"`
	Target  string   `toml:"target"`
}

type rawSrc struct {
	Name   string `toml:"name"`
	Path   string `toml:"path"`
	Binary string `toml:"binary"`
}

type rawTarget struct {
	Type     string   `toml:"type"`
	Name     string   `toml:"name"`
	Path     string   `toml:"path"`
	Filename string   `toml:"filename"`
	Blank    bool     `toml:"blank"`
	Src      []string `toml:"src"`
}

type rawRef struct {
	Name  string `toml:"name"`
	GUID  string `toml:"guid"`
	Major int    `toml:"major"`
	Minor int    `toml:"minor"`
}

type rawWorkspace struct {
	Members []string `toml:"members"`
}

// LoadManifest reads and validates the manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errKind(KindManifestNotFound, err, "no %s found at %s", ManifestName, filepath.Dir(path))
		}
		return nil, errKind(KindManifestInvalid, err, "could not read %s", path)
	}

	tree, err := toml.LoadBytes(data)
	if err != nil {
		return nil, errKind(KindManifestInvalid, err, "%s is not valid TOML: %s", path, err)
	}

	var raw rawManifest
	if err := tree.Unmarshal(&raw); err != nil {
		return nil, errKind(KindManifestInvalid, err, "%s has an invalid shape: %s", path, err)
	}

	m := &Manifest{
		Name:          raw.Package.Name,
		Authors:       raw.Package.Authors,
		DefaultTarget: raw.Package.Target,
		Members:       raw.Workspace.Members,
		Dir:           filepath.Dir(path),
	}

	if m.Name == "" {
		return nil, errKind(KindManifestInvalid, nil, "%s: [package] must declare a name", path)
	}
	if !namePattern.MatchString(m.Name) {
		return nil, errKind(KindManifestInvalid, nil, "%s: package name %q must be lowercase kebab-case", path, m.Name)
	}
	if raw.Package.Version == "" {
		return nil, errKind(KindManifestInvalid, nil, "%s: [package] must declare a version", path)
	}
	m.Version, err = semver.StrictNewVersion(raw.Package.Version)
	if err != nil {
		return nil, errKind(KindManifestInvalid, err, "%s: version %q is not valid semver", path, raw.Package.Version)
	}

	seen := make(map[string]bool, len(raw.Src))
	for _, rs := range raw.Src {
		if rs.Name == "" || rs.Path == "" {
			return nil, errKind(KindManifestInvalid, nil, "%s: every [[src]] entry needs a name and a path", path)
		}
		if seen[rs.Name] {
			return nil, errKind(KindManifestInvalid, nil, "%s: duplicate src entry %q", path, rs.Name)
		}
		seen[rs.Name] = true
		m.Src = append(m.Src, SrcEntry{Name: rs.Name, Path: rs.Path, Binary: rs.Binary})
	}

	for _, rt := range raw.Targets {
		t, err := targetFromRaw(m, rt)
		if err != nil {
			return nil, errKind(KindManifestInvalid, err, "%s: %s", path, err)
		}
		m.Targets = append(m.Targets, t)
	}

	for _, rr := range raw.References {
		if rr.GUID == "" {
			return nil, errKind(KindManifestInvalid, nil, "%s: reference %q has no guid", path, rr.Name)
		}
		m.References = append(m.References, build.Reference{
			Name: rr.Name, GUID: rr.GUID, Major: rr.Major, Minor: rr.Minor,
		})
	}

	m.Dependencies, err = dependenciesFromTree(tree, m.Dir)
	if err != nil {
		return nil, errKind(KindManifestInvalid, err, "%s: %s", path, err)
	}

	return m, nil
}

// targetTypes is the closed set of container types the addin can produce.
var targetTypes = map[string]bool{
	"xlsm": true,
	"xlam": true,
}

func targetFromRaw(m *Manifest, rt rawTarget) (build.Target, error) {
	if rt.Type == "" {
		return build.Target{}, errors.New("every [[target]] entry needs a type")
	}
	if !targetTypes[rt.Type] {
		return build.Target{}, errors.Errorf("unknown target type %q", rt.Type)
	}

	t := build.Target{
		Type:     rt.Type,
		Name:     rt.Name,
		Path:     rt.Path,
		Filename: rt.Filename,
		Blank:    rt.Blank,
		Src:      rt.Src,
	}
	if t.Name == "" {
		t.Name = m.Name
	}
	if t.Path == "" {
		t.Path = filepath.Join(m.Dir, "build")
	} else if !filepath.IsAbs(t.Path) {
		t.Path = filepath.Join(m.Dir, t.Path)
	}
	if t.Filename == "" {
		t.Filename = t.Name + "." + t.Type
	}
	return t, nil
}

// dependenciesFromTree interprets the [dependencies] table, where each entry
// is either a bare requirement string or an inline table with path/git/
// version fields.
func dependenciesFromTree(tree *toml.Tree, dir string) ([]solve.Dependency, error) {
	v := tree.Get("dependencies")
	if v == nil {
		return nil, nil
	}

	dt, ok := v.(*toml.Tree)
	if !ok {
		return nil, errors.New("[dependencies] must be a table")
	}

	keys := dt.Keys()
	deps := make([]solve.Dependency, 0, len(keys))
	for _, name := range keys {
		var f solve.DepFields
		switch dv := dt.Get(name).(type) {
		case string:
			f.Version = dv
		case *toml.Tree:
			f = solve.DepFields{
				Version:  stringAt(dv, "version"),
				Path:     stringAt(dv, "path"),
				Git:      stringAt(dv, "git"),
				Rev:      stringAt(dv, "rev"),
				Tag:      stringAt(dv, "tag"),
				Branch:   stringAt(dv, "branch"),
				Registry: stringAt(dv, "registry"),
			}
			if fl, ok := dv.Get("features").([]interface{}); ok {
				for _, fv := range fl {
					if s, ok := fv.(string); ok {
						f.Features = append(f.Features, s)
					}
				}
			}
		default:
			return nil, errors.Errorf("dependency %s must be a version string or a table", name)
		}

		d, err := solve.NewDependency(name, f, dir)
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}

func stringAt(t *toml.Tree, key string) string {
	s, _ := t.GetDefault(key, "").(string)
	return s
}

// Snapshot reduces the manifest to its resolver-facing projection.
func (m *Manifest) Snapshot() solve.Snapshot {
	return solve.Snapshot{
		Name:         m.Name,
		Version:      m.Version,
		Dependencies: m.Dependencies,
	}
}

// BuildPackage converts the manifest into the loader's package form.
func (m *Manifest) BuildPackage() build.Package {
	pkg := build.Package{
		Name:       m.Name,
		Dir:        m.Dir,
		References: m.References,
	}
	for _, s := range m.Src {
		pkg.Src = append(pkg.Src, build.Src{Name: s.Name, Path: s.Path, Binary: s.Binary})
	}
	return pkg
}

// snapshotLoader adapts manifest loading to the solve package's view of the
// world. Sources use it to inspect path and git dependencies.
type snapshotLoader struct{}

func (snapshotLoader) Load(dir string) (solve.Snapshot, error) {
	m, err := LoadManifest(filepath.Join(dir, ManifestName))
	if err != nil {
		return solve.Snapshot{}, err
	}
	return m.Snapshot(), nil
}
