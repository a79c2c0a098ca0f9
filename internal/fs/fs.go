// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// IsDir determines is the path given is a directory or not.
func IsDir(name string) (bool, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, errors.Errorf("%q is not a directory", name)
	}
	return true, nil
}

// IsRegular determines if the path given is a regular file or not.
func IsRegular(name string) (bool, error) {
	fi, err := os.Stat(name)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	mode := fi.Mode()
	if mode&os.ModeType != 0 {
		return false, errors.Errorf("%q is a %v, expected a file", name, mode)
	}
	return true, nil
}

// Exists reports whether anything is present at the path.
func Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	return errors.Wrapf(os.MkdirAll(dir, 0777), "ensuring directory %s", dir)
}

// EmptyDir guarantees that dir exists and contains nothing.
func EmptyDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "emptying %s", dir)
	}
	return EnsureDir(dir)
}

// RenameWithFallback attempts to rename a file or directory, but falls back to
// copying in the event of a cross-device link error. If the fallback copy
// succeeds, src is still removed, emulating normal rename behavior.
func RenameWithFallback(src, dst string) error {
	_, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "cannot stat %s", src)
	}

	err = os.Rename(src, dst)
	if err == nil {
		return nil
	}

	return renameByCopy(src, dst)
}

// renameByCopy attempts to rename a file or directory by copying it to the
// destination and then removing the src thus emulating the rename behavior.
func renameByCopy(src, dst string) error {
	var cerr error
	if dir, _ := IsDir(src); dir {
		cerr = errors.Wrap(CopyDir(src, dst), "copying directory failed")
	} else {
		cerr = errors.Wrap(CopyFile(src, dst), "copying file failed")
	}

	if cerr != nil {
		return errors.Wrapf(cerr, "rename fallback failed: cannot rename %s to %s", src, dst)
	}

	return errors.Wrapf(os.RemoveAll(src), "cannot delete %s", src)
}

// CopyDir recursively copies a directory tree, attempting to preserve
// permissions. Source directory must exist, destination directory must not
// exist.
func CopyDir(src, dst string) error {
	src = filepath.Clean(src)
	dst = filepath.Clean(dst)

	sfi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !sfi.IsDir() {
		return errors.Errorf("source %q is not a directory", src)
	}

	_, err = os.Stat(dst)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err == nil {
		return errors.Errorf("destination %q already exists", dst)
	}

	if err = os.MkdirAll(dst, sfi.Mode()); err != nil {
		return errors.Wrapf(err, "cannot mkdir %s", dst)
	}

	entries, err := ioutil.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "cannot read directory %s", src)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err = CopyDir(srcPath, dstPath); err != nil {
				return errors.Wrap(err, "copying directory failed")
			}
		} else {
			// Skip symlinks; the cache and staging trees never contain any
			// that matter.
			if entry.Mode()&os.ModeSymlink != 0 {
				continue
			}

			if err = CopyFile(srcPath, dstPath); err != nil {
				return errors.Wrap(err, "copying file failed")
			}
		}
	}

	return nil
}

// CopyFile copies the contents of the file named src to the file named by dst.
// The file will be created if it does not already exist. If the destination
// file exists, all its contents will be replaced by the contents of the source
// file.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}

	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return
	}

	if err = out.Close(); err != nil {
		return
	}

	si, err := os.Stat(src)
	if err != nil {
		return
	}
	err = os.Chmod(dst, si.Mode())

	return
}

// WriteFileAtomic writes data to a sibling temp file, then renames it into
// place. Readers never observe a partially written target.
func WriteFileAtomic(name string, data []byte, perm os.FileMode) error {
	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}

	tmp, err := ioutil.TempFile(dir, base+".tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err = tmp.Chmod(perm); err != nil {
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", tmpName)
	}

	err = RenameWithFallback(tmpName, name)
	return err
}

// TempScope creates a temp directory under dir (or the system default when
// dir is empty) and returns it with a cleanup func that is safe to call on
// every exit path.
func TempScope(dir, prefix string) (string, func(), error) {
	td, err := ioutil.TempDir(dir, prefix)
	if err != nil {
		return "", nil, errors.Wrap(err, "creating temp scope")
	}
	return td, func() { os.RemoveAll(td) }, nil
}

// PosixRel returns target relative to base with forward slashes, for storage
// in text files shared across platforms.
func PosixRel(base, target string) (string, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", errors.Wrapf(err, "relativizing %s against %s", target, base)
	}
	return filepath.ToSlash(rel), nil
}

// FromPosix resolves a stored forward-slash path against base, unless it is
// already absolute.
func FromPosix(base, stored string) string {
	p := filepath.FromSlash(strings.TrimSuffix(stored, "/"))
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}
