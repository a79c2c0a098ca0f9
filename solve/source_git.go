package solve

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Masterminds/vcs"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// gitSource serves dependencies pinned to a ref of a git repository. Resolve
// clones into cache/sources/git/<host>/<repo>@<ref>/; Fetch uses a separate
// clone at <host>/<repo>@<commit>/.
type gitSource struct {
	cachedir string // cache/sources/git
	loader   ManifestLoader
}

func (s *gitSource) Match(hint interface{}) bool {
	switch h := hint.(type) {
	case string:
		return h == SourceGit
	case Dependency:
		return SourceType(h) == SourceGit
	}
	return false
}

// cloneDir maps a dependency to its cache location,
// git/<host>/<repo>@<ref>.
func (s *gitSource) cloneDir(gd GitDep) string {
	host, repo := splitRepoURL(gd.URL)
	ref := strings.SplitN(gd.Refspec(), ":", 2)[1]
	return filepath.Join(s.cachedir, host, sanitize(repo)+"@"+sanitize(ref))
}

func (s *gitSource) Resolve(ctx context.Context, dep Dependency) ([]Registration, error) {
	gd, ok := dep.(GitDep)
	if !ok {
		return nil, &UnknownSourceError{Type: SourceType(dep)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.cloneDir(gd)
	commit, err := s.checkout(ctx, gd.URL, dir, refOf(gd))
	if err != nil {
		return nil, err
	}

	snap, err := s.loader.Load(dir)
	if err != nil {
		return nil, &PathNotFoundError{Name: gd.Name(), Path: dir, Err: err}
	}

	return []Registration{{
		Name:         gd.Name(),
		Version:      snap.Version,
		Source:       SourceURI{Type: SourceGit, Value: gd.URL, Details: commit},
		Dependencies: snap.Dependencies,
	}}, nil
}

func (s *gitSource) Fetch(ctx context.Context, reg Registration) (string, error) {
	host, repo := splitRepoURL(reg.Source.Value)
	// The clone made during resolve carries the ref name in its path; fetch
	// pins to the commit itself, so it uses a commit-addressed clone, cloning
	// it when absent. The ref-named clone is not reused.
	dir := filepath.Join(s.cachedir, host, sanitize(repo)+"@"+sanitize(reg.Source.Details))
	if _, err := s.checkout(ctx, reg.Source.Value, dir, reg.Source.Details); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *gitSource) Update(ctx context.Context) error {
	return nil
}

// checkout ensures dir holds a clone of url positioned at ref, and returns
// the commit it landed on.
func (s *gitSource) checkout(ctx context.Context, url, dir, ref string) (string, error) {
	if err := fs.EnsureDir(filepath.Dir(dir)); err != nil {
		return "", err
	}

	lf := flock.New(dir + ".lock")
	if _, err := lf.TryLockContext(ctx, lockRetryDelay); err != nil {
		return "", errors.Wrapf(err, "locking clone of %s", url)
	}
	defer lf.Unlock()

	repo, err := vcs.NewGitRepo(url, dir)
	if err != nil {
		return "", errors.Wrapf(err, "opening git source %s", url)
	}

	if !repo.CheckLocal() {
		if err := repo.Get(); err != nil {
			return "", errors.Wrapf(err, "cloning %s", url)
		}
	}

	if err := repo.UpdateVersion(ref); err != nil {
		// The ref may have appeared upstream since the clone was made.
		if uerr := repo.Update(); uerr != nil {
			return "", errors.Wrapf(uerr, "updating clone of %s", url)
		}
		if err := repo.UpdateVersion(ref); err != nil {
			return "", errors.Wrapf(err, "checking out %s of %s", ref, url)
		}
	}

	commit, err := repo.Version()
	if err != nil {
		return "", errors.Wrapf(err, "reading commit of %s", url)
	}
	return commit, nil
}

func refOf(gd GitDep) string {
	switch {
	case gd.Rev != "":
		return gd.Rev
	case gd.Tag != "":
		return gd.Tag
	default:
		return gd.Branch
	}
}

// splitRepoURL reduces a git URL to (host, repo-path) for cache layout.
func splitRepoURL(raw string) (string, string) {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host, strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".git")
	}
	// scp-like syntax: git@host:owner/repo.git
	if at := strings.Index(raw, "@"); at >= 0 {
		rest := raw[at+1:]
		if colon := strings.Index(rest, ":"); colon >= 0 {
			return rest[:colon], strings.TrimSuffix(rest[colon+1:], ".git")
		}
	}
	return "unknown", sanitize(raw)
}

var pathSanitizer = strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")

func sanitize(s string) string {
	return pathSanitizer.Replace(s)
}
