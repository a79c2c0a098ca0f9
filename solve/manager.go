package solve

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/sdboyer/constext"
	"golang.org/x/sync/errgroup"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
	"github.com/BluejacketSoftware/vba-blocks/internal/report"
)

// lockRetryDelay is how often blocked flock contenders re-poll.
const lockRetryDelay = 25 * time.Millisecond

// RegistryConfig names a registry and the URL of its git-hosted index.
type RegistryConfig struct {
	Name string
	URL  string
}

// SourceMgr is the central dispatch point for all source backends. It owns
// the cache layout under its root, serialises cross-process access with a
// lockfile, and bounds parallel fetch work.
//
// A SourceMgr is safe for concurrent use.
type SourceMgr struct {
	cachedir   string
	loader     ManifestLoader
	registries map[string]*registrySource
	pathsrc    *pathSource
	gitsrc     *gitSource

	lf     *flock.Flock
	ctx    context.Context
	cancel context.CancelFunc

	relonce sync.Once
}

// NewSourceManager builds a SourceMgr rooted at cachedir, creating its
// sources/ and staging/ subdirectories up front. An exclusive lockfile
// under cachedir guards against concurrent processes mutating the cache in
// conflicting ways; contenders wait.
func NewSourceManager(ctx context.Context, loader ManifestLoader, cachedir string, registries []RegistryConfig) (*SourceMgr, error) {
	if loader == nil {
		return nil, errors.New("must provide a manifest loader")
	}

	for _, d := range []string{
		filepath.Join(cachedir, "sources", SourceRegistry),
		filepath.Join(cachedir, "sources", SourceGit),
		filepath.Join(cachedir, "staging"),
	} {
		if err := fs.EnsureDir(d); err != nil {
			return nil, err
		}
	}

	lf := flock.New(filepath.Join(cachedir, "sm.lock"))
	if _, err := lf.TryLockContext(ctx, lockRetryDelay); err != nil {
		return nil, errors.Wrap(err, "acquiring cache lock")
	}

	bg, cancel := context.WithCancel(context.Background())
	sm := &SourceMgr{
		cachedir:   cachedir,
		loader:     loader,
		registries: make(map[string]*registrySource),
		pathsrc:    &pathSource{loader: loader},
		gitsrc: &gitSource{
			cachedir: filepath.Join(cachedir, "sources", SourceGit),
			loader:   loader,
		},
		lf:     lf,
		ctx:    bg,
		cancel: cancel,
	}

	for _, rc := range registries {
		sm.registries[rc.Name] = newRegistrySource(
			rc.Name,
			rc.URL,
			filepath.Join(cachedir, "registry", rc.Name),
			filepath.Join(cachedir, "sources", SourceRegistry),
		)
	}

	return sm, nil
}

// Release ends the manager's lifetime: in-flight calls are cancelled and the
// cache lock is dropped. Calling it more than once is harmless.
func (sm *SourceMgr) Release() {
	sm.relonce.Do(func() {
		sm.cancel()
		sm.lf.Unlock()
	})
}

// StagingDir returns the directory actions should scope their staging
// subdirectories under.
func (sm *SourceMgr) StagingDir() string {
	return filepath.Join(sm.cachedir, "staging")
}

// sourceFor dispatches a dependency to its backend.
func (sm *SourceMgr) sourceFor(dep Dependency) (Source, error) {
	switch SourceType(dep) {
	case SourceRegistry:
		rd := dep.(RegistryDep)
		src, exists := sm.registries[rd.RegistryName()]
		if !exists {
			return nil, &UnknownRegistryError{Registry: rd.RegistryName()}
		}
		return src, nil
	case SourcePath:
		return sm.pathsrc, nil
	case SourceGit:
		return sm.gitsrc, nil
	}
	return nil, &UnknownSourceError{Type: SourceType(dep)}
}

// sourceForURI dispatches a minted registration back to its backend.
func (sm *SourceMgr) sourceForURI(uri SourceURI) (Source, error) {
	switch uri.Type {
	case SourceRegistry:
		src, exists := sm.registries[uri.Value]
		if !exists {
			return nil, &UnknownRegistryError{Registry: uri.Value}
		}
		return src, nil
	case SourcePath:
		return sm.pathsrc, nil
	case SourceGit:
		return sm.gitsrc, nil
	}
	return nil, &UnknownSourceError{Type: uri.Type}
}

// ListRegistrations enumerates candidates for dep through its backend. It
// implements CandidateSource for the solver.
func (sm *SourceMgr) ListRegistrations(ctx context.Context, dep Dependency) ([]Registration, error) {
	ctx, cancel := constext.Cons(ctx, sm.ctx)
	defer cancel()

	src, err := sm.sourceFor(dep)
	if err != nil {
		return nil, err
	}
	return src.Resolve(ctx, dep)
}

// Fetch materialises one registration and returns its source directory.
func (sm *SourceMgr) Fetch(ctx context.Context, reg Registration) (string, error) {
	ctx, cancel := constext.Cons(ctx, sm.ctx)
	defer cancel()

	src, err := sm.sourceForURI(reg.Source)
	if err != nil {
		return "", err
	}
	return src.Fetch(ctx, reg)
}

// FetchAll materialises every registration in the graph, fanning out over a
// bounded worker pool. Items are independent (disjoint cache entries), so no
// inter-item ordering is imposed. The returned map is keyed by name.
func (sm *SourceMgr) FetchAll(ctx context.Context, g Graph, rep report.Reporter) (map[string]string, error) {
	if rep == nil {
		rep = report.Noop()
	}

	dirs := make(map[string]string, len(g.Registrations))
	var mu sync.Mutex

	rep.Start("fetch", len(g.Registrations))
	defer rep.Done()

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, reg := range g.Registrations {
		reg := reg
		eg.Go(func() error {
			dir, err := sm.Fetch(ctx, reg)
			if err != nil {
				return err
			}
			mu.Lock()
			dirs[reg.Name] = dir
			mu.Unlock()
			rep.Tick(reg.Name)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return dirs, nil
}

// UpdateRegistries refreshes the local clone of every configured registry
// index.
func (sm *SourceMgr) UpdateRegistries(ctx context.Context) error {
	ctx, cancel := constext.Cons(ctx, sm.ctx)
	defer cancel()

	for _, src := range sm.registries {
		if err := src.Update(ctx); err != nil {
			return err
		}
	}
	return nil
}
