// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package vba ties the project model to the resolve and build engines: it
// loads manifests and lockfiles, runs the solver over the source backends,
// and drives the build, export and target pipelines.
package vba

import (
	"context"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BluejacketSoftware/vba-blocks/internal/report"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

// Environment variables the tool honours.
const (
	EnvHome     = "VBA_BLOCKS_HOME"
	EnvRegistry = "VBA_BLOCKS_REGISTRY"
	EnvDebug    = "DEBUG"
)

// defaultRegistryURL backs the "default" registry when the environment does
// not override it.
const defaultRegistryURL = "https://github.com/vba-blocks/registry"

// debugNamespace is the prefix DEBUG entries must carry to enable traces.
const debugNamespace = "vba-blocks"

// Ctx defines the supporting context of the tool: where it runs, where its
// cache lives, and where its output goes. It is threaded explicitly through
// every action; there are no package-level singletons.
type Ctx struct {
	WorkingDir string
	CacheRoot  string
	Out        *log.Logger
	Err        *log.Logger
	Verbose    bool

	// Trace is non-nil when DEBUG selects the vba-blocks namespace; the
	// solver and sources write diagnostics to it.
	Trace *log.Logger

	// Reporter receives fan-out progress events.
	Reporter report.Reporter

	registryURL string
}

// NewContext builds a Ctx from the process environment.
func NewContext(wd string, env []string, out, errlog *log.Logger) (*Ctx, error) {
	c := &Ctx{
		WorkingDir: wd,
		Out:        out,
		Err:        errlog,
		Reporter:   report.Noop(),
	}

	c.CacheRoot = getEnv(env, EnvHome)
	if c.CacheRoot == "" {
		root, err := defaultCacheRoot()
		if err != nil {
			return nil, err
		}
		c.CacheRoot = root
	}

	c.registryURL = getEnv(env, EnvRegistry)
	if c.registryURL == "" {
		c.registryURL = defaultRegistryURL
	}

	if debugMatches(getEnv(env, EnvDebug)) {
		c.Trace = log.New(os.Stderr, debugNamespace+": ", log.Lmicroseconds)
	}

	return c, nil
}

// defaultCacheRoot yields the per-OS cache location the installer sets up.
func defaultCacheRoot() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "vba-blocks"), nil
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Group Containers", "UBF8T346G9.Office", ".vba-blocks"), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vba-blocks"), nil
}

// debugMatches applies the conventional DEBUG namespace filter: entries are
// comma-separated globs where only a trailing * is meaningful.
func debugMatches(val string) bool {
	for _, ns := range strings.Split(val, ",") {
		ns = strings.TrimSpace(ns)
		if ns == "" {
			continue
		}
		if ns == "*" {
			return true
		}
		if strings.HasSuffix(ns, "*") && strings.HasPrefix(debugNamespace, strings.TrimSuffix(ns, "*")) {
			return true
		}
		if ns == debugNamespace || strings.HasPrefix(ns, debugNamespace+":") {
			return true
		}
	}
	return false
}

// SourceManager builds the source manager over the context's cache, with the
// default registry wired in.
func (c *Ctx) SourceManager(ctx context.Context) (*solve.SourceMgr, error) {
	return solve.NewSourceManager(ctx, snapshotLoader{}, c.CacheRoot, []solve.RegistryConfig{
		{Name: solve.DefaultRegistry, URL: c.registryURL},
	})
}

// LoadProject searches from path (or the working directory when empty)
// upward for a manifest, then loads the workspace around it.
func (c *Ctx) LoadProject(path string) (*Project, error) {
	if path == "" {
		path = c.WorkingDir
	}

	root, err := findProjectRoot(path)
	if err != nil {
		return nil, err
	}

	p := &Project{AbsRoot: root}
	p.Manifest, err = LoadManifest(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, err
	}

	for _, glob := range p.Manifest.Members {
		matches, err := filepath.Glob(filepath.Join(root, glob))
		if err != nil {
			return nil, errKind(KindManifestInvalid, err, "workspace member glob %q is invalid", glob)
		}
		for _, dir := range matches {
			if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
				continue
			}
			m, err := LoadManifest(filepath.Join(dir, ManifestName))
			if err != nil {
				return nil, err
			}
			p.Members = append(p.Members, m)
		}
	}

	names := map[string]bool{p.Manifest.Name: true}
	for _, m := range p.Members {
		if names[m.Name] {
			return nil, errKind(KindManifestInvalid, nil, "workspace declares member name %q more than once", m.Name)
		}
		names[m.Name] = true
	}

	// A broken or stale lockfile is the same as no lockfile.
	p.Lock = ReadLockfile(filepath.Join(root, LockName), root)

	return p, nil
}

// findProjectRoot walks up the directory tree until it finds a manifest.
func findProjectRoot(from string) (string, error) {
	for {
		mp := filepath.Join(from, ManifestName)
		if ok, _ := isRegularFile(mp); ok {
			return from, nil
		}

		parent := filepath.Dir(from)
		if parent == from {
			return "", errKind(KindManifestNotFound, nil, "no %s found in %s or any parent directory", ManifestName, from)
		}
		from = parent
	}
}

func isRegularFile(path string) (bool, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}

// getEnv returns the last instance of an environment variable.
func getEnv(env []string, key string) string {
	for i := len(env) - 1; i >= 0; i-- {
		kv := strings.SplitN(env[i], "=", 2)
		if kv[0] == key {
			if len(kv) > 1 {
				return kv[1]
			}
			return ""
		}
	}
	return os.Getenv(key)
}

// TemplatesDir is where blank-target seed documents live under the cache.
func (c *Ctx) TemplatesDir() string {
	return filepath.Join(c.CacheRoot, "templates")
}

// readTemplate loads the seed bytes for a blank target of the given type.
func (c *Ctx) readTemplate(targetType string) ([]byte, error) {
	data, err := ioutil.ReadFile(filepath.Join(c.TemplatesDir(), "blank."+targetType))
	if err != nil {
		return nil, errKind(KindTargetCreateFailed, err, "no blank template available for %s targets", targetType)
	}
	return data, nil
}
