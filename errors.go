// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/solve"
)

// Kind is the stable identifier of a failure class, as surfaced to users and
// mapped to exit codes. Kinds are contract; the Go types behind them are not.
type Kind string

const (
	KindUnknownCommand Kind = "unknown-command"

	KindManifestNotFound Kind = "manifest-not-found"
	KindManifestInvalid  Kind = "manifest-invalid"

	KindSourceUnsupported           Kind = "source-unsupported"
	KindSourceMisconfiguredRegistry Kind = "source-misconfigured-registry"
	KindSourceNoMatching            Kind = "source-no-matching"
	KindSourceDownloadFailed        Kind = "source-download-failed"
	KindSourceUnrecognizedType      Kind = "source-unrecognized-type"

	KindDependencyNotFound        Kind = "dependency-not-found"
	KindDependencyInvalidChecksum Kind = "dependency-invalid-checksum"
	KindDependencyPathNotFound    Kind = "dependency-path-not-found"
	KindDependencyUnknownSource   Kind = "dependency-unknown-source"

	KindResolveFailed Kind = "resolve-failed"

	KindBuildInvalid        Kind = "build-invalid"
	KindLockfileWriteFailed Kind = "lockfile-write-failed"

	KindTargetNoMatching    Kind = "target-no-matching"
	KindTargetNoDefault     Kind = "target-no-default"
	KindTargetNotFound      Kind = "target-not-found"
	KindTargetIsOpen        Kind = "target-is-open"
	KindTargetCreateFailed  Kind = "target-create-failed"
	KindTargetImportFailed  Kind = "target-import-failed"
	KindTargetExportFailed  Kind = "target-export-failed"
	KindTargetRestoreFailed Kind = "target-restore-failed"
	KindTargetAddNoType     Kind = "target-add-no-type"

	KindComponentUnrecognized   Kind = "component-unrecognized"
	KindComponentInvalidNoName  Kind = "component-invalid-no-name"
	KindRunScriptNotFound       Kind = "run-script-not-found"
	KindNewInvalidName          Kind = "new-invalid-name"
	KindNewDirExists            Kind = "new-dir-exists"
	KindFromNotFound            Kind = "from-not-found"
	KindExportNoDefault         Kind = "export-no-default"
	KindAddinUnsupportedType    Kind = "addin-unsupported-type"
)

// Error pairs a Kind with a human-readable message for the user. The wrapped
// error keeps the technical detail reachable for -v output.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errKind(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// classify translates typed failures from the engines into user-facing
// kinds. Errors that already carry a Kind pass through; anything
// unclassified keeps its original shape for wrapping by the caller.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var ke *Error
	if errors.As(err, &ke) {
		return ke
	}

	var (
		resolveFail *solve.ResolveFailure
		checksum    *solve.ChecksumMismatchError
		pathMissing *solve.PathNotFoundError
		notFound    *solve.NotFoundError
		badRegistry *solve.UnknownRegistryError
		download    *solve.DownloadError
		badSource   *solve.UnknownSourceError

		compExt  *build.ComponentUnrecognizedError
		compName *build.ComponentNoNameError
		badGraph *build.InvalidGraphError
		tOpen    *build.TargetOpenError
		tImport  *build.TargetImportError
		tExport  *build.TargetExportError
		tRestore *build.TargetRestoreError
	)

	switch {
	case errors.As(err, &tRestore):
		// The one kind that must never be swallowed or transformed.
		return &Error{Kind: KindTargetRestoreFailed, Msg: tRestore.Error(), Err: tRestore}
	case errors.As(err, &resolveFail):
		return &Error{Kind: KindResolveFailed, Msg: resolveFail.Error(), Err: resolveFail}
	case errors.As(err, &checksum):
		return &Error{Kind: KindDependencyInvalidChecksum, Msg: checksum.Error(), Err: checksum}
	case errors.As(err, &pathMissing):
		return &Error{Kind: KindDependencyPathNotFound, Msg: pathMissing.Error(), Err: pathMissing}
	case errors.As(err, &notFound):
		return &Error{Kind: KindDependencyNotFound, Msg: notFound.Error(), Err: notFound}
	case errors.As(err, &badRegistry):
		return &Error{Kind: KindSourceMisconfiguredRegistry, Msg: badRegistry.Error(), Err: badRegistry}
	case errors.As(err, &download):
		return &Error{Kind: KindSourceDownloadFailed, Msg: download.Error(), Err: download}
	case errors.As(err, &badSource):
		return &Error{Kind: KindSourceUnrecognizedType, Msg: badSource.Error(), Err: badSource}
	case errors.As(err, &compExt):
		return &Error{Kind: KindComponentUnrecognized, Msg: compExt.Error(), Err: compExt}
	case errors.As(err, &compName):
		return &Error{Kind: KindComponentInvalidNoName, Msg: compName.Error(), Err: compName}
	case errors.As(err, &badGraph):
		return &Error{Kind: KindBuildInvalid, Msg: badGraph.Error(), Err: badGraph}
	case errors.As(err, &tOpen):
		if tOpen.IsOpen {
			return &Error{Kind: KindTargetIsOpen, Msg: tOpen.Error(), Err: tOpen}
		}
		return &Error{Kind: KindTargetNotFound, Msg: tOpen.Error(), Err: tOpen}
	case errors.As(err, &tImport):
		return &Error{Kind: KindTargetImportFailed, Msg: tImport.Error(), Err: tImport}
	case errors.As(err, &tExport):
		return &Error{Kind: KindTargetExportFailed, Msg: tExport.Error(), Err: tExport}
	}

	return err
}

// KindOf extracts the failure kind of err, or "" when it carries none.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// Exit codes, per the CLI contract.
const (
	ExitOK      = 0
	ExitUser    = 1
	ExitResolve = 2
	ExitIO      = 3
	ExitFatal   = 4
)

// ExitCode maps an action error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindResolveFailed:
		return ExitResolve
	case KindTargetRestoreFailed:
		return ExitFatal
	case KindSourceDownloadFailed, KindDependencyInvalidChecksum,
		KindLockfileWriteFailed, KindTargetImportFailed, KindTargetExportFailed,
		KindTargetCreateFailed, KindTargetIsOpen:
		return ExitIO
	default:
		return ExitUser
	}
}
