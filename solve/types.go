package solve

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Source type discriminators for dependencies and source URIs. The set is
// closed; adding a backend means extending it here and in the manager.
const (
	SourceRegistry = "registry"
	SourcePath     = "path"
	SourceGit      = "git"
)

// DefaultRegistry is the registry name assumed when a dependency does not
// name one.
const DefaultRegistry = "default"

// A Dependency is a requirement declared by a manifest or a registration.
// The concrete type carries the source discriminator; the set of concrete
// types is closed.
type Dependency interface {
	Name() string
	// Constraint the resolved registration's version must satisfy.
	Constraint() Constraint
	sourceType() string
}

// SourceType reports which backend a dependency belongs to.
func SourceType(d Dependency) string {
	return d.sourceType()
}

// RegistryDep requests a package from a named registry within a semver range.
type RegistryDep struct {
	DepName  string
	Range    Constraint
	Registry string
	Features []string
}

func (d RegistryDep) Name() string { return d.DepName }

func (d RegistryDep) Constraint() Constraint {
	if d.Range == nil {
		return Any()
	}
	return d.Range
}

func (d RegistryDep) sourceType() string { return SourceRegistry }

// RegistryName returns the registry the dependency should resolve against.
func (d RegistryDep) RegistryName() string {
	if d.Registry == "" {
		return DefaultRegistry
	}
	return d.Registry
}

// PathDep requests the package found at an absolute filesystem path.
type PathDep struct {
	DepName string
	Path    string
	Version *semver.Version
}

func (d PathDep) Name() string { return d.DepName }

func (d PathDep) Constraint() Constraint {
	if d.Version == nil {
		return Any()
	}
	return Exact(d.Version)
}

func (d PathDep) sourceType() string { return SourcePath }

// GitDep requests the package at a git URL, pinned by exactly one of rev, tag
// or branch.
type GitDep struct {
	DepName string
	URL     string
	Rev     string
	Tag     string
	Branch  string
	Version *semver.Version
}

func (d GitDep) Name() string { return d.DepName }

func (d GitDep) Constraint() Constraint {
	if d.Version == nil {
		return Any()
	}
	return Exact(d.Version)
}

func (d GitDep) sourceType() string { return SourceGit }

// Refspec renders the ref discriminator as "kind:value".
func (d GitDep) Refspec() string {
	switch {
	case d.Rev != "":
		return "rev:" + d.Rev
	case d.Tag != "":
		return "tag:" + d.Tag
	default:
		return "branch:" + d.Branch
	}
}

// A SourceURI locates the origin of a registration as a flat string of the
// form "{type}+{value}[#{details}]".
type SourceURI struct {
	Type    string
	Value   string
	Details string
}

func (u SourceURI) String() string {
	s := u.Type + "+" + u.Value
	if u.Details != "" {
		s += "#" + u.Details
	}
	return s
}

// ParseSourceURI splits a flat source string back into its parts.
func ParseSourceURI(s string) (SourceURI, error) {
	ti := strings.Index(s, "+")
	if ti <= 0 {
		return SourceURI{}, errors.Errorf("invalid source %q: missing type separator", s)
	}
	u := SourceURI{Type: s[:ti], Value: s[ti+1:]}
	switch u.Type {
	case SourceRegistry, SourcePath, SourceGit:
	default:
		return SourceURI{}, errors.Errorf("invalid source %q: unrecognized type %q", s, u.Type)
	}
	if di := strings.Index(u.Value, "#"); di >= 0 {
		u.Details = u.Value[di+1:]
		u.Value = u.Value[:di]
	}
	return u, nil
}

// A Registration is a resolved, uniquely-identified package version at a
// specific source. Registrations are immutable once minted.
type Registration struct {
	Name         string
	Version      *semver.Version
	Source       SourceURI
	Dependencies []Dependency
	Checksum     string
}

// ID is the globally unique identity "{name} {version} {source}".
func (r Registration) ID() string {
	return fmt.Sprintf("%s %s %s", r.Name, r.Version, r.Source)
}

// A Graph is the ordered output of a resolve: one registration per name,
// every dependency satisfied within the graph, acyclic.
type Graph struct {
	Registrations []Registration
}

// Find returns the registration for name, if present.
func (g Graph) Find(name string) (Registration, bool) {
	for _, r := range g.Registrations {
		if r.Name == name {
			return r, true
		}
	}
	return Registration{}, false
}

// sortRegistrations puts the graph into its stable alphabetical emission
// order.
func sortRegistrations(regs []Registration) {
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].Name < regs[j].Name
	})
}

// DepFields carries the raw, still-untyped fields a dependency was declared
// with, before the source discriminator has been chosen.
type DepFields struct {
	Version  string
	Path     string
	Git      string
	Rev      string
	Tag      string
	Branch   string
	Registry string
	Features []string
}

// NewDependency interprets raw dependency fields into the closed variant set.
// Discrimination priority is path, then git, then registry; a bare version
// string means a registry dependency. Relative paths are resolved against
// baseDir, the directory of the declaring manifest.
func NewDependency(name string, f DepFields, baseDir string) (Dependency, error) {
	if name == "" {
		return nil, errors.New("dependency must have a name")
	}

	switch {
	case f.Path != "":
		p := f.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		d := PathDep{DepName: name, Path: filepath.Clean(p)}
		if f.Version != "" {
			v, err := semver.StrictNewVersion(f.Version)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid version %q for path dependency %s", f.Version, name)
			}
			d.Version = v
		}
		return d, nil

	case f.Git != "":
		d := GitDep{DepName: name, URL: f.Git, Rev: f.Rev, Tag: f.Tag, Branch: f.Branch}
		refs := 0
		for _, r := range []string{f.Rev, f.Tag, f.Branch} {
			if r != "" {
				refs++
			}
		}
		if refs != 1 {
			return nil, errors.Errorf("git dependency %s must specify exactly one of rev, tag or branch", name)
		}
		if f.Version != "" {
			v, err := semver.StrictNewVersion(f.Version)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid version %q for git dependency %s", f.Version, name)
			}
			d.Version = v
		}
		return d, nil

	default:
		if f.Version == "" {
			return nil, errors.Errorf("dependency %s specifies no path, git or version", name)
		}
		c, err := NewSemverConstraint(f.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid version requirement %q for %s", f.Version, name)
		}
		return RegistryDep{DepName: name, Range: c, Registry: f.Registry, Features: f.Features}, nil
	}
}

// A Snapshot is the lockfile-oriented reduction of a manifest, used to detect
// manifest drift without re-resolving.
type Snapshot struct {
	Name         string
	Version      *semver.Version
	Dependencies []Dependency
}

// A Workspace pairs the root snapshot with member snapshots.
type Workspace struct {
	Root    Snapshot
	Members []Snapshot
}
