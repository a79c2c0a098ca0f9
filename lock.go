// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"bytes"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

// LockName is the lockfile name, written alongside the manifest.
const LockName = "project.lock"

// LockVersion is the current lockfile format version.
const LockVersion = "1"

const lockFileComment = "# This file is auto-generated by vba-blocks; changes may be undone by the next build.\n\n"

// A Lock is the serialisable record of one resolve: the workspace snapshots
// that produced it and the resolved registrations.
type Lock struct {
	Version  string
	Work     solve.Workspace
	Packages []solve.Registration
}

// NewLock captures a resolve result for writing.
func NewLock(ws solve.Workspace, g solve.Graph) *Lock {
	return &Lock{
		Version:  LockVersion,
		Work:     ws,
		Packages: g.Registrations,
	}
}

// Graph returns the locked registrations as a graph, for seeding the solver.
func (l *Lock) Graph() solve.Graph {
	return solve.Graph{Registrations: l.Packages}
}

// Raw lockfile shapes. Fields are emitted in declaration order: metadata,
// root, members, package at the top level, alphabetical within each table.
type rawLockFile struct {
	Metadata rawLockMetadata   `toml:"metadata"`
	Root     rawLockSnapshot   `toml:"root"`
	Members  []rawLockSnapshot `toml:"members,omitempty"`
	Packages []rawLockPackage  `toml:"package,omitempty"`
}

type rawLockMetadata struct {
	Version string `toml:"version"`
}

type rawLockSnapshot struct {
	Dependencies []string `toml:"dependencies"`
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
}

type rawLockPackage struct {
	Dependencies []string `toml:"dependencies"`
	Name         string   `toml:"name"`
	Source       string   `toml:"source"`
	Version      string   `toml:"version"`
}

// Marshal renders the lock deterministically: metadata, root, members in
// manifest order, packages alphabetised. Path sources are stored relative to
// dir with a trailing slash.
func (l *Lock) Marshal(dir string) ([]byte, error) {
	byName := make(map[string]solve.Registration, len(l.Packages))
	for _, r := range l.Packages {
		byName[r.Name] = r
	}

	ids := func(deps []solve.Dependency) ([]string, error) {
		out := make([]string, 0, len(deps))
		for _, d := range deps {
			r, exists := byName[d.Name()]
			if !exists {
				return nil, errors.Errorf("lock is incomplete: %s is not among the packages", d.Name())
			}
			id, err := registrationID(r, dir)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		}
		sort.Strings(out)
		return out, nil
	}

	raw := rawLockFile{
		Metadata: rawLockMetadata{Version: l.Version},
	}

	var err error
	raw.Root, err = snapshotToRaw(l.Work.Root, ids)
	if err != nil {
		return nil, err
	}
	for _, m := range l.Work.Members {
		rm, err := snapshotToRaw(m, ids)
		if err != nil {
			return nil, err
		}
		raw.Members = append(raw.Members, rm)
	}

	pkgs := append([]solve.Registration(nil), l.Packages...)
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	for _, r := range pkgs {
		src, err := sourceToString(r.Source, dir)
		if err != nil {
			return nil, err
		}
		depIDs, err := ids(r.Dependencies)
		if err != nil {
			return nil, err
		}
		raw.Packages = append(raw.Packages, rawLockPackage{
			Dependencies: depIDs,
			Name:         r.Name,
			Source:       src,
			Version:      r.Version.String(),
		})
	}

	var body bytes.Buffer
	if err := toml.NewEncoder(&body).Order(toml.OrderPreserve).Encode(raw); err != nil {
		return nil, errors.Wrap(err, "encoding lockfile")
	}

	var buf bytes.Buffer
	buf.WriteString(lockFileComment)
	buf.Write(body.Bytes())
	return buf.Bytes(), nil
}

func snapshotToRaw(s solve.Snapshot, ids func([]solve.Dependency) ([]string, error)) (rawLockSnapshot, error) {
	depIDs, err := ids(s.Dependencies)
	if err != nil {
		return rawLockSnapshot{}, err
	}
	return rawLockSnapshot{
		Dependencies: depIDs,
		Name:         s.Name,
		Version:      s.Version.String(),
	}, nil
}

// registrationID renders "{name} {version} {source}" with dir-relative path
// sources, the identity packages refer to each other by.
func registrationID(r solve.Registration, dir string) (string, error) {
	src, err := sourceToString(r.Source, dir)
	if err != nil {
		return "", err
	}
	return r.Name + " " + r.Version.String() + " " + src, nil
}

func sourceToString(u solve.SourceURI, dir string) (string, error) {
	if u.Type != solve.SourcePath {
		return u.String(), nil
	}
	rel, err := fs.PosixRel(dir, u.Value)
	if err != nil {
		return "", err
	}
	stored := u
	stored.Value = rel + "/"
	return stored.String(), nil
}

// UnmarshalLock parses lockfile bytes. Any shape problem is an error; the
// caller treats every error as "no lockfile" and falls back to a fresh
// resolve.
func UnmarshalLock(data []byte, dir string) (*Lock, error) {
	var raw rawLockFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parsing lockfile")
	}
	if raw.Root.Name == "" {
		return nil, errors.New("lockfile has no [root]")
	}

	l := &Lock{Version: raw.Metadata.Version}

	// First pass: placeholder identities for everything the lock registers,
	// so dependency ids can hydrate against them in the second pass.
	type placeholder struct {
		version *semver.Version
		source  solve.SourceURI
	}
	known := make(map[string]placeholder, len(raw.Packages))
	for _, rp := range raw.Packages {
		v, err := semver.StrictNewVersion(rp.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "lockfile package %s", rp.Name)
		}
		src, err := sourceFromString(rp.Source, dir)
		if err != nil {
			return nil, errors.Wrapf(err, "lockfile package %s", rp.Name)
		}
		known[rp.Name] = placeholder{version: v, source: src}
	}

	hydrate := func(ids []string) ([]solve.Dependency, error) {
		deps := make([]solve.Dependency, 0, len(ids))
		for _, id := range ids {
			parts := strings.SplitN(id, " ", 3)
			if len(parts) != 3 {
				return nil, errors.Errorf("malformed dependency id %q", id)
			}
			name := parts[0]
			ph, exists := known[name]
			if !exists {
				return nil, errors.Errorf("dependency id %q references an unregistered package", id)
			}
			deps = append(deps, dependencyFromPlaceholder(name, ph.version, ph.source))
		}
		return deps, nil
	}

	var err error
	l.Work.Root, err = snapshotFromRaw(raw.Root, hydrate)
	if err != nil {
		return nil, err
	}
	for _, rm := range raw.Members {
		m, err := snapshotFromRaw(rm, hydrate)
		if err != nil {
			return nil, err
		}
		l.Work.Members = append(l.Work.Members, m)
	}

	for _, rp := range raw.Packages {
		ph := known[rp.Name]
		deps, err := hydrate(rp.Dependencies)
		if err != nil {
			return nil, errors.Wrapf(err, "lockfile package %s", rp.Name)
		}
		l.Packages = append(l.Packages, solve.Registration{
			Name:         rp.Name,
			Version:      ph.version,
			Source:       ph.source,
			Dependencies: deps,
		})
	}

	return l, nil
}

func snapshotFromRaw(rs rawLockSnapshot, hydrate func([]string) ([]solve.Dependency, error)) (solve.Snapshot, error) {
	v, err := semver.StrictNewVersion(rs.Version)
	if err != nil {
		return solve.Snapshot{}, errors.Wrapf(err, "lockfile snapshot %s", rs.Name)
	}
	deps, err := hydrate(rs.Dependencies)
	if err != nil {
		return solve.Snapshot{}, errors.Wrapf(err, "lockfile snapshot %s", rs.Name)
	}
	return solve.Snapshot{Name: rs.Name, Version: v, Dependencies: deps}, nil
}

func sourceFromString(s, dir string) (solve.SourceURI, error) {
	u, err := solve.ParseSourceURI(s)
	if err != nil {
		return solve.SourceURI{}, err
	}
	if u.Type == solve.SourcePath {
		u.Value = fs.FromPosix(dir, u.Value)
	}
	return u, nil
}

func dependencyFromPlaceholder(name string, v *semver.Version, src solve.SourceURI) solve.Dependency {
	switch src.Type {
	case solve.SourcePath:
		return solve.PathDep{DepName: name, Path: src.Value, Version: v}
	case solve.SourceGit:
		return solve.GitDep{DepName: name, URL: src.Value, Rev: src.Details, Version: v}
	default:
		return solve.RegistryDep{DepName: name, Range: solve.Exact(v), Registry: src.Value}
	}
}

// ReadLockfile loads path, or returns nil on any read or parse failure; a
// broken lockfile never aborts the pipeline.
func ReadLockfile(path, dir string) *Lock {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil
	}
	l, err := UnmarshalLock(data, dir)
	if err != nil {
		return nil
	}
	return l
}

// IsValid reports whether the lock still describes the workspace: format
// version, matching snapshots, and every locked dependency still admissible
// under the current declarations.
func (l *Lock) IsValid(ws solve.Workspace, loader solve.ManifestLoader) bool {
	if l.Version != LockVersion {
		return false
	}
	if !snapshotMatches(l.Work.Root, ws.Root) {
		return false
	}
	if len(l.Work.Members) != len(ws.Members) {
		return false
	}
	for i, m := range ws.Members {
		if !snapshotMatches(l.Work.Members[i], m) {
			return false
		}
	}

	byName := make(map[string]solve.Registration, len(l.Packages))
	for _, r := range l.Packages {
		byName[r.Name] = r
	}

	snaps := append([]solve.Snapshot{ws.Root}, ws.Members...)
	for _, snap := range snaps {
		for _, d := range snap.Dependencies {
			locked, exists := byName[d.Name()]
			if !exists {
				return false
			}
			if !lockedStillSatisfies(d, locked, loader) {
				return false
			}
		}
	}
	return true
}

func lockedStillSatisfies(d solve.Dependency, locked solve.Registration, loader solve.ManifestLoader) bool {
	switch td := d.(type) {
	case solve.RegistryDep:
		return locked.Source.Type == solve.SourceRegistry &&
			locked.Source.Value == td.RegistryName() &&
			td.Constraint().Matches(locked.Version)
	case solve.PathDep:
		if locked.Source.Type != solve.SourcePath || locked.Source.Value != td.Path {
			return false
		}
		// A path dependency drifts when the manifest behind it moves on.
		snap, err := loader.Load(td.Path)
		if err != nil {
			return false
		}
		return snap.Version != nil && snap.Version.Equal(locked.Version)
	case solve.GitDep:
		return locked.Source.Type == solve.SourceGit && locked.Source.Value == td.URL
	}
	return false
}

// snapshotMatches compares snapshots by name, version and the set of
// dependency names. Constraint drift is caught separately, per dependency.
func snapshotMatches(locked, current solve.Snapshot) bool {
	if locked.Name != current.Name {
		return false
	}
	if locked.Version == nil || current.Version == nil || !locked.Version.Equal(current.Version) {
		return false
	}
	if len(locked.Dependencies) != len(current.Dependencies) {
		return false
	}
	names := make(map[string]string, len(locked.Dependencies))
	for _, d := range locked.Dependencies {
		names[d.Name()] = solve.SourceType(d)
	}
	for _, d := range current.Dependencies {
		if names[d.Name()] != solve.SourceType(d) {
			return false
		}
	}
	return true
}

// locksAreEquivalent compares two locks to see if a fresh write can be
// skipped.
func locksAreEquivalent(l, r *Lock, dir string) bool {
	if l == nil || r == nil {
		return false
	}
	if len(l.Packages) != len(r.Packages) {
		return false
	}
	lb, err := l.Marshal(dir)
	if err != nil {
		return false
	}
	rb, err := r.Marshal(dir)
	if err != nil {
		return false
	}
	return bytes.Equal(lb, rb)
}
