package solve

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/Masterminds/vcs"
	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// registrySource serves packages published to a git-hosted index of TOML
// files, one per package, listing every released version with its tarball
// location and checksum.
type registrySource struct {
	name     string // registry name as configured ("default", ...)
	url      string // remote URL of the index clone
	index    string // local clone directory
	cachedir string // cache/sources/registry
	client   *http.Client
}

func newRegistrySource(name, url, index, cachedir string) *registrySource {
	return &registrySource{
		name:     name,
		url:      url,
		index:    index,
		cachedir: cachedir,
		client:   http.DefaultClient,
	}
}

func (s *registrySource) Match(hint interface{}) bool {
	switch h := hint.(type) {
	case string:
		return h == SourceRegistry
	case RegistryDep:
		return h.RegistryName() == s.name
	case Dependency:
		return SourceType(h) == SourceRegistry
	}
	return false
}

// indexFile returns the path of the index entry for name:
// index/<first-two-chars>/<name>.toml.
func (s *registrySource) indexFile(name string) string {
	prefix := name
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join(s.index, "index", prefix, name+".toml")
}

type rawIndexFile struct {
	Versions []rawIndexEntry `toml:"versions"`
}

type rawIndexEntry struct {
	Version      string        `toml:"version"`
	Source       string        `toml:"source"`
	Checksum     string        `toml:"checksum"`
	Dependencies []rawIndexDep `toml:"dependencies"`
}

type rawIndexDep struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Path     string `toml:"path"`
	Git      string `toml:"git"`
	Rev      string `toml:"rev"`
	Tag      string `toml:"tag"`
	Branch   string `toml:"branch"`
	Registry string `toml:"registry"`
}

// readIndex parses the index entry for name into registrations plus the
// per-version tarball locations, which stay out of the registration identity.
func (s *registrySource) readIndex(name string) ([]Registration, map[string]rawIndexEntry, error) {
	data, err := ioutil.ReadFile(s.indexFile(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &NotFoundError{Name: name, Registry: s.name}
		}
		return nil, nil, errors.Wrapf(err, "reading index entry for %s", name)
	}

	var raw rawIndexFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing index entry for %s", name)
	}

	regs := make([]Registration, 0, len(raw.Versions))
	entries := make(map[string]rawIndexEntry, len(raw.Versions))
	for _, e := range raw.Versions {
		v, err := semver.StrictNewVersion(e.Version)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "index entry for %s has invalid version %q", name, e.Version)
		}

		deps := make([]Dependency, 0, len(e.Dependencies))
		for _, rd := range e.Dependencies {
			d, err := NewDependency(rd.Name, DepFields{
				Version:  rd.Version,
				Path:     rd.Path,
				Git:      rd.Git,
				Rev:      rd.Rev,
				Tag:      rd.Tag,
				Branch:   rd.Branch,
				Registry: rd.Registry,
			}, s.index)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "index entry for %s %s", name, e.Version)
			}
			deps = append(deps, d)
		}

		reg := Registration{
			Name:         name,
			Version:      v,
			Source:       SourceURI{Type: SourceRegistry, Value: s.name},
			Dependencies: deps,
			Checksum:     e.Checksum,
		}
		regs = append(regs, reg)
		entries[v.String()] = e
	}

	return regs, entries, nil
}

func (s *registrySource) Resolve(ctx context.Context, dep Dependency) ([]Registration, error) {
	rd, ok := dep.(RegistryDep)
	if !ok {
		return nil, &UnknownSourceError{Type: SourceType(dep)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regs, _, err := s.readIndex(rd.Name())
	return regs, err
}

func (s *registrySource) Fetch(ctx context.Context, reg Registration) (string, error) {
	dir := filepath.Join(s.cachedir, reg.Name+"-"+reg.Version.String())
	if fs.Exists(dir) {
		return dir, nil
	}

	// Per-entry writer exclusion; concurrent fetchers of the same entry wait
	// and then observe the completed rename.
	if err := fs.EnsureDir(s.cachedir); err != nil {
		return "", err
	}
	lf := flock.New(dir + ".lock")
	if _, err := lf.TryLockContext(ctx, lockRetryDelay); err != nil {
		return "", errors.Wrapf(err, "locking cache entry for %s", reg.ID())
	}
	defer lf.Unlock()

	if fs.Exists(dir) {
		return dir, nil
	}

	_, entries, err := s.readIndex(reg.Name)
	if err != nil {
		return "", err
	}
	entry, exists := entries[reg.Version.String()]
	if !exists {
		return "", &NotFoundError{Name: reg.Name, Registry: s.name}
	}

	uri, err := ParseSourceURI(entry.Source)
	if err != nil {
		return "", errors.Wrapf(err, "index entry for %s", reg.ID())
	}

	tmp, cleanup, err := fs.TempScope(s.cachedir, "fetch-")
	if err != nil {
		return "", err
	}
	defer cleanup()

	tarball := filepath.Join(tmp, "pkg.tar.gz")
	if err := s.download(ctx, uri.Value, tarball); err != nil {
		return "", err
	}

	// The checksum gate: nothing reaches the cache unless the bytes hash to
	// what the index registered.
	sum, err := hashFile(tarball)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(sum, entry.Checksum) {
		return "", &ChecksumMismatchError{Reg: reg, Want: entry.Checksum, Got: sum}
	}

	unpacked := filepath.Join(tmp, "src")
	if err := untar(tarball, unpacked); err != nil {
		return "", errors.Wrapf(err, "unpacking %s", reg.ID())
	}

	if err := fs.RenameWithFallback(unpacked, dir); err != nil {
		return "", errors.Wrapf(err, "moving %s into cache", reg.ID())
	}
	return dir, nil
}

// download GETs url into dest. Redirects are followed by the client; any
// non-2xx terminal status is a failure.
func (s *registrySource) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: url, Status: resp.Status}
	}

	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dest)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	return f.Close()
}

// Update refreshes the local index clone, creating it on first use.
func (s *registrySource) Update(ctx context.Context) error {
	if err := fs.EnsureDir(filepath.Dir(s.index)); err != nil {
		return err
	}

	// Coarse lock: index updates are serialised across processes.
	lf := flock.New(s.index + ".lock")
	if _, err := lf.TryLockContext(ctx, lockRetryDelay); err != nil {
		return errors.Wrapf(err, "locking registry index %s", s.name)
	}
	defer lf.Unlock()

	repo, err := vcs.NewRepo(s.url, s.index)
	if err != nil {
		return errors.Wrapf(err, "opening registry index %s", s.name)
	}
	if !repo.CheckLocal() {
		return errors.Wrapf(repo.Get(), "cloning registry index %s", s.name)
	}
	return errors.Wrapf(repo.Update(), "updating registry index %s", s.name)
}

func hashFile(name string) (string, error) {
	f, err := os.Open(name)
	if err != nil {
		return "", errors.Wrapf(err, "opening %s for hashing", name)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.Wrapf(err, "hashing %s", name)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// untar unpacks a (possibly gzipped) tarball into dir, refusing entries that
// would escape it.
func untar(tarball, dir string) error {
	f, err := os.Open(tarball)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if gz, err := gzip.NewReader(f); err == nil {
		defer gz.Close()
		r = gz
	} else {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.FromSlash(hdr.Name)
		if filepath.IsAbs(name) || strings.HasPrefix(name, ".."+string(filepath.Separator)) || name == ".." {
			return errors.Errorf("tarball entry %q escapes the unpack directory", hdr.Name)
		}
		target := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.EnsureDir(target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fs.EnsureDir(filepath.Dir(target)); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode)&0777)
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		default:
			// Links and specials never appear in published packages.
		}
	}
}
