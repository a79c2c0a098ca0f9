// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build turns a resolved project into per-target import sets: it
// loads components into a build graph, stages them on disk, and applies the
// difference to target documents through the addin bridge.
package build

import (
	"bufio"
	"bytes"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// Component types, keyed by file extension.
const (
	TypeStandard = "standard"
	TypeClass    = "class"
	TypeForm     = "form"
	TypeDocument = "document"
)

var typeByExt = map[string]string{
	".bas":    TypeStandard,
	".cls":    TypeClass,
	".frm":    TypeForm,
	".doccls": TypeDocument,
}

var extByType = map[string]string{
	TypeStandard: ".bas",
	TypeClass:    ".cls",
	TypeForm:     ".frm",
	TypeDocument: ".doccls",
}

// binaryExt is the sidecar extension for form components.
const binaryExt = ".frx"

// A Reference names a type library a component set depends on.
type Reference struct {
	Name  string
	GUID  string
	Major int
	Minor int
}

// ComponentDetails records where a component came from and what it carries
// beyond its code.
type ComponentDetails struct {
	Path       string
	BinaryPath string
	References []Reference
}

// A Component is one importable text module plus an optional binary sidecar.
// Components are fully populated at construction; no field is filled in
// later by side effect.
type Component struct {
	Name     string
	Filename string
	Type     string
	Code     string
	Binary   []byte
	Details  ComponentDetails
}

var vbNamePattern = regexp.MustCompile(`^\s*Attribute\s+VB_Name\s*=\s*"([^"]*)"`)

// LoadComponent reads the component file at path, deriving its type from the
// extension and its name from the Attribute VB_Name header. References are
// the declaring package's references; they ride along on every component of
// that package so the graph merge can validate them.
func LoadComponent(path string, refs []Reference) (Component, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ctype, recognized := typeByExt[ext]
	if !recognized {
		return Component{}, &ComponentUnrecognizedError{Path: path, Ext: ext}
	}

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Component{}, errors.Wrapf(err, "reading component %s", path)
	}

	name := scanVBName(data)
	if name == "" {
		return Component{}, &ComponentNoNameError{Path: path}
	}

	c := Component{
		Name:     name,
		Filename: name + ext,
		Type:     ctype,
		Code:     string(data),
		Details: ComponentDetails{
			Path:       path,
			References: refs,
		},
	}

	if ctype == TypeForm {
		sidecar := strings.TrimSuffix(path, filepath.Ext(path)) + binaryExt
		if ok, _ := fs.IsRegular(sidecar); ok {
			bin, err := ioutil.ReadFile(sidecar)
			if err != nil {
				return Component{}, errors.Wrapf(err, "reading binary sidecar %s", sidecar)
			}
			c.Binary = bin
			c.Details.BinaryPath = sidecar
		}
	}

	return c, nil
}

// scanVBName finds the VB_Name attribute in the component header. The
// attribute block always precedes code, so scanning stops at the first
// non-attribute, non-header line.
func scanVBName(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if m := vbNamePattern.FindStringSubmatch(line); m != nil {
			return strings.TrimSpace(m[1])
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "Attribute") && !isHeaderLine(trimmed) {
			break
		}
	}
	return ""
}

// isHeaderLine recognises the non-attribute lines that legitimately precede
// VB_Name in class and form headers.
func isHeaderLine(line string) bool {
	for _, prefix := range []string{"VERSION", "BEGIN", "END", "MultiUse", "Persistable", "DataBindingBehavior", "DataSourceBehavior", "MTSTransactionMode", "ClientHeight", "ClientLeft", "ClientTop", "ClientWidth", "OleObjectBlob", "StartUpPosition", "Caption"} {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

// equal reports whether two components would import identically.
func (c Component) equal(o Component) bool {
	return c.Name == o.Name &&
		c.Type == o.Type &&
		c.Code == o.Code &&
		bytes.Equal(c.Binary, o.Binary) &&
		referencesEqual(c.Details.References, o.Details.References)
}

func referencesEqual(a, b []Reference) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]Reference, len(a))
	for _, r := range a {
		am[r.GUID] = r
	}
	for _, r := range b {
		if am[r.GUID] != r {
			return false
		}
	}
	return true
}
