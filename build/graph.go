package build

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// A Src names one component file within a package, relative to the package
// directory unless absolute.
type Src struct {
	Name   string
	Path   string
	Binary string
}

// A Package is one contributor of components to a build: the root project or
// a fetched dependency.
type Package struct {
	Name       string
	Dir        string
	Src        []Src
	References []Reference
}

// A BuildGraph is the union of every component contributed by the project
// and its dependencies, with the merged reference set.
type BuildGraph struct {
	Components []Component
	References []Reference
}

// A Target is one container document the build produces.
type Target struct {
	Type     string
	Name     string
	Path     string
	Filename string
	Blank    bool
	// Src optionally narrows which components the target imports; empty
	// means all of them.
	Src []string
}

// File returns the target document's location.
func (t Target) File() string {
	return filepath.Join(t.Path, t.Filename)
}

// An ImportGraph is the per-target projection of a BuildGraph.
type ImportGraph struct {
	Target     Target
	Components []Component
	References []Reference
}

// LoadGraph reads every package's components, in parallel, and merges them
// into a single conflict-checked graph. Component names must be unique
// across the union; references sharing a GUID must agree on version.
func LoadGraph(ctx context.Context, pkgs []Package) (BuildGraph, error) {
	type loaded struct {
		pkg  string
		comp Component
	}

	var mu sync.Mutex
	var all []loaded

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, pkg := range pkgs {
		pkg := pkg
		for _, src := range pkg.Src {
			src := src
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				path := src.Path
				if !filepath.IsAbs(path) {
					path = filepath.Join(pkg.Dir, path)
				}
				c, err := LoadComponent(path, pkg.References)
				if err != nil {
					return err
				}
				mu.Lock()
				all = append(all, loaded{pkg: pkg.Name, comp: c})
				mu.Unlock()
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return BuildGraph{}, err
	}

	// Merge in stable order regardless of load completion order.
	sort.Slice(all, func(i, j int) bool {
		if all[i].comp.Name != all[j].comp.Name {
			return all[i].comp.Name < all[j].comp.Name
		}
		return all[i].pkg < all[j].pkg
	})

	g := BuildGraph{}
	owner := make(map[string]string, len(all))
	for _, l := range all {
		if prev, taken := owner[l.comp.Name]; taken {
			return BuildGraph{}, &InvalidGraphError{
				Msg: fmt.Sprintf("component %s is declared by both %s and %s", l.comp.Name, prev, l.pkg),
			}
		}
		owner[l.comp.Name] = l.pkg
		g.Components = append(g.Components, l.comp)
	}

	refs, err := mergeReferences(pkgs)
	if err != nil {
		return BuildGraph{}, err
	}
	g.References = refs

	return g, nil
}

// mergeReferences unions reference declarations across packages. Two
// references with the same GUID but different major/minor cannot be
// reconciled.
func mergeReferences(pkgs []Package) ([]Reference, error) {
	byGUID := make(map[string]Reference)
	owner := make(map[string]string)
	for _, pkg := range pkgs {
		for _, r := range pkg.References {
			if prev, seen := byGUID[r.GUID]; seen {
				if prev.Major != r.Major || prev.Minor != r.Minor {
					return nil, &InvalidGraphError{
						Msg: fmt.Sprintf(
							"reference %s %s requires %d.%d from %s but %d.%d from %s",
							r.Name, r.GUID, prev.Major, prev.Minor, owner[r.GUID], r.Major, r.Minor, pkg.Name,
						),
					}
				}
				continue
			}
			byGUID[r.GUID] = r
			owner[r.GUID] = pkg.Name
		}
	}

	refs := make([]Reference, 0, len(byGUID))
	for _, r := range byGUID {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].GUID < refs[j].GUID })
	return refs, nil
}

// ForTarget projects the build graph onto one target, applying its optional
// src filter.
func ForTarget(g BuildGraph, t Target) (ImportGraph, error) {
	ig := ImportGraph{Target: t, References: g.References}

	if len(t.Src) == 0 {
		ig.Components = g.Components
		return ig, nil
	}

	want := make(map[string]bool, len(t.Src))
	for _, name := range t.Src {
		want[name] = true
	}
	for _, c := range g.Components {
		if want[c.Name] {
			ig.Components = append(ig.Components, c)
			delete(want, c.Name)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for name := range want {
			missing = append(missing, name)
		}
		sort.Strings(missing)
		return ImportGraph{}, &InvalidGraphError{
			Msg: fmt.Sprintf("target %s names components that no package provides: %v", t.Name, missing),
		}
	}
	return ig, nil
}
