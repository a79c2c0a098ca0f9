// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"os"
	"path/filepath"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// SafeWriter transactionalizes writes of the lockfile and manifest patches
// into a pseudo-atomic action. It is not impervious to errors (writing to
// disk is hard), but it guards against non-arcane failure conditions.
type SafeWriter struct {
	Payload *SafeWriterPayload
}

// SafeWriterPayload represents the actions SafeWriter will execute when
// Write is called.
type SafeWriterPayload struct {
	Lock            *Lock
	ManifestPatches []Patch
}

func (payload *SafeWriterPayload) HasLock() bool {
	return payload.Lock != nil
}

func (payload *SafeWriterPayload) HasManifestPatches() bool {
	return len(payload.ManifestPatches) > 0
}

// Write commits the payload into root. Each file is staged beside its final
// location and renamed into place; a failure on the second file restores the
// first from its pre-write bytes.
func (sw *SafeWriter) Write(root string) error {
	if sw.Payload == nil {
		return nil
	}

	lockPath := filepath.Join(root, LockName)
	manifestPath := filepath.Join(root, ManifestName)

	var prevLock []byte
	if sw.Payload.HasLock() {
		prevLock, _ = os.ReadFile(lockPath)

		data, err := sw.Payload.Lock.Marshal(root)
		if err != nil {
			return errKind(KindLockfileWriteFailed, err, "could not encode %s", LockName)
		}
		if err := fs.WriteFileAtomic(lockPath, data, 0666); err != nil {
			return errKind(KindLockfileWriteFailed, err, "could not write %s", LockName)
		}
	}

	if sw.Payload.HasManifestPatches() {
		if err := ApplyChanges(manifestPath, sw.Payload.ManifestPatches); err != nil {
			if prevLock != nil {
				// Roll the lock back so the pair stays consistent. A failure
				// here is reported in place of nothing; the original error
				// still wins.
				_ = fs.WriteFileAtomic(lockPath, prevLock, 0666)
			}
			return err
		}
	}

	return nil
}
