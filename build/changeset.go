package build

import (
	"context"
	"log"
	"path/filepath"
	"sort"
	"time"

	"github.com/karrick/godirwalk"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// changesName is the manifest the bridge reads from a staged directory to
// learn removals and reference updates.
const changesName = "changes.toml"

// A Changeset is the plan for moving a target from its current component set
// to the staged one.
type Changeset struct {
	Added   []Component
	Removed []Component
	Changed []Component
	// References is the full desired reference set after apply.
	References []Reference
}

// Empty reports whether applying the changeset would alter nothing.
func (cs Changeset) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Removed) == 0 && len(cs.Changed) == 0
}

// Diff computes the changeset that takes prev to next. It is symmetric
// modulo sign: Diff(a, b).Added mirrors Diff(b, a).Removed.
func Diff(prev, next []Component, refs []Reference) Changeset {
	cs := Changeset{References: refs}

	prevBy := make(map[string]Component, len(prev))
	for _, c := range prev {
		prevBy[c.Name] = c
	}
	nextBy := make(map[string]Component, len(next))
	for _, c := range next {
		nextBy[c.Name] = c
	}

	for _, c := range next {
		p, existed := prevBy[c.Name]
		switch {
		case !existed:
			cs.Added = append(cs.Added, c)
		case !c.equal(p):
			cs.Changed = append(cs.Changed, c)
		}
	}
	for _, c := range prev {
		if _, kept := nextBy[c.Name]; !kept {
			cs.Removed = append(cs.Removed, c)
		}
	}

	byName := func(s []Component) {
		sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	}
	byName(cs.Added)
	byName(cs.Removed)
	byName(cs.Changed)

	return cs
}

// An Applier owns the mutation of target documents: backup, bridge calls,
// and restore on fault.
type Applier struct {
	Bridge    Bridge
	BackupDir string
	Log       *log.Logger
}

// Apply pushes a changeset into the target document behind ig. The target
// file is backed up first; any failure during apply closes the document
// without saving and puts the backup bytes back. A failed restore is the one
// fatal outcome and is reported as such.
func (a Applier) Apply(ctx context.Context, ig ImportGraph, cs Changeset, stagedDir string) error {
	if cs.Empty() {
		return nil
	}

	target := ig.Target.File()

	if err := fs.EnsureDir(a.BackupDir); err != nil {
		return err
	}
	backup := filepath.Join(a.BackupDir, time.Now().Format("20060102T150405")+"-"+ig.Target.Filename)
	if err := fs.CopyFile(target, backup); err != nil {
		return errors.Wrapf(err, "backing up %s", target)
	}

	if err := writeChanges(stagedDir, cs); err != nil {
		return err
	}

	h, err := a.Bridge.Open(ctx, target)
	if err != nil {
		return err
	}

	if err := a.Bridge.Import(ctx, h, stagedDir); err != nil {
		return a.fault(ctx, h, target, backup, err)
	}
	if err := a.Bridge.Close(ctx, h, true); err != nil {
		return a.restore(target, backup, err)
	}
	return nil
}

// fault is the error path while the handle is still open: close without
// saving, then restore. The close error is logged, never allowed to mask the
// original failure.
func (a Applier) fault(ctx context.Context, h Handle, target, backup string, cause error) error {
	if cerr := a.Bridge.Close(ctx, h, false); cerr != nil && a.Log != nil {
		a.Log.Printf("closing %s after failed import: %s", target, cerr)
	}
	return a.restore(target, backup, cause)
}

func (a Applier) restore(target, backup string, cause error) error {
	if rerr := fs.CopyFile(backup, target); rerr != nil {
		return &TargetRestoreError{Path: target, Backup: backup, Err: rerr}
	}
	return &TargetImportError{Path: target, Restored: true, Err: cause}
}

// rawChanges is the on-disk shape of the changes manifest.
type rawChanges struct {
	Add       []rawChangeItem `toml:"add"`
	Change    []rawChangeItem `toml:"change"`
	Remove    []rawChangeItem `toml:"remove"`
	Reference []rawReference  `toml:"reference"`
}

type rawChangeItem struct {
	File string `toml:"file"`
	Name string `toml:"name"`
	Type string `toml:"type"`
}

type rawReference struct {
	GUID  string `toml:"guid"`
	Major int    `toml:"major"`
	Minor int    `toml:"minor"`
	Name  string `toml:"name"`
}

func writeChanges(dir string, cs Changeset) error {
	items := func(comps []Component) []rawChangeItem {
		out := make([]rawChangeItem, len(comps))
		for i, c := range comps {
			out[i] = rawChangeItem{
				File: c.Name + extByType[c.Type],
				Name: c.Name,
				Type: c.Type,
			}
		}
		return out
	}

	raw := rawChanges{
		Add:    items(cs.Added),
		Change: items(cs.Changed),
		Remove: items(cs.Removed),
	}
	for _, r := range cs.References {
		raw.Reference = append(raw.Reference, rawReference{
			GUID:  r.GUID,
			Major: r.Major,
			Minor: r.Minor,
			Name:  r.Name,
		})
	}

	data, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "encoding changes manifest")
	}
	return fs.WriteFileAtomic(filepath.Join(dir, changesName), data, 0666)
}

// LoadExportDir reads a directory the bridge exported a target into,
// producing the target's current component set.
func LoadExportDir(dir string) ([]Component, error) {
	var comps []Component

	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: false,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if _, recognized := typeByExt[ext]; !recognized {
				// Sidecars and bridge bookkeeping ride along with exports.
				return nil
			}
			c, err := LoadComponent(path, nil)
			if err != nil {
				return err
			}
			comps = append(comps, c)
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reading exported components in %s", dir)
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })
	return comps, nil
}
