// Copyright 2018 the vba-blocks Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package vba

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/build"
	"github.com/BluejacketSoftware/vba-blocks/internal/fs"
)

// A Patch is one minimal edit to the manifest file. Patches splice lines
// into or out of the original bytes; everything else, comments included, is
// left untouched.
type Patch interface {
	apply(lines []string) ([]string, error)
}

// AddSource appends a [[src]] entry.
type AddSource struct {
	Entry SrcEntry
}

func (p AddSource) apply(lines []string) ([]string, error) {
	block := []string{
		"",
		"[[src]]",
		fmt.Sprintf("name = %q", p.Entry.Name),
		fmt.Sprintf("path = %q", p.Entry.Path),
	}
	if p.Entry.Binary != "" {
		block = append(block, fmt.Sprintf("binary = %q", p.Entry.Binary))
	}
	return append(trimTrailingBlank(lines), block...), nil
}

// RemoveSource deletes the [[src]] entry with the given name.
type RemoveSource struct {
	Name string
}

func (p RemoveSource) apply(lines []string) ([]string, error) {
	start, end := findArrayEntry(lines, "src", "name", p.Name)
	if start < 0 {
		return nil, errors.Errorf("manifest has no [[src]] entry named %q", p.Name)
	}
	return append(append([]string{}, lines[:start]...), lines[end:]...), nil
}

// AddTarget appends a [[target]] entry.
type AddTarget struct {
	Target build.Target
	// Path and Filename are written only when they were given explicitly;
	// defaults stay implicit in the file.
	ExplicitPath     string
	ExplicitFilename string
}

func (p AddTarget) apply(lines []string) ([]string, error) {
	block := []string{
		"",
		"[[target]]",
		fmt.Sprintf("type = %q", p.Target.Type),
	}
	if p.Target.Name != "" {
		block = append(block, fmt.Sprintf("name = %q", p.Target.Name))
	}
	if p.ExplicitPath != "" {
		block = append(block, fmt.Sprintf("path = %q", p.ExplicitPath))
	}
	if p.ExplicitFilename != "" {
		block = append(block, fmt.Sprintf("filename = %q", p.ExplicitFilename))
	}
	if p.Target.Blank {
		block = append(block, "blank = true")
	}
	return append(trimTrailingBlank(lines), block...), nil
}

// ApplyChanges edits the manifest at path with the given patches, preserving
// the original bytes outside the edited spans. Line endings are kept as LF;
// the file is rewritten atomically.
func ApplyChanges(path string, patches []Patch) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return errKind(KindManifestNotFound, err, "could not read %s", path)
	}

	trailingNewline := bytes.HasSuffix(data, []byte("\n"))
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	for _, p := range patches {
		lines, err = p.apply(lines)
		if err != nil {
			return errKind(KindManifestInvalid, err, "could not patch %s: %s", path, err)
		}
	}

	out := strings.Join(lines, "\n")
	if trailingNewline {
		out += "\n"
	}
	return fs.WriteFileAtomic(path, []byte(out), 0666)
}

// findArrayEntry locates the span of lines holding the [[table]] entry whose
// key equals value, including any blank line directly above it. The end
// index is exclusive.
func findArrayEntry(lines []string, table, key, value string) (int, int) {
	header := "[[" + table + "]]"
	want := fmt.Sprintf("%s = %q", key, value)

	start := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if start >= 0 {
			if strings.HasPrefix(trimmed, "[") {
				if matchesEntry(lines[start:i], want) {
					return spanWithLeadingBlank(lines, start), i
				}
				start = -1
			}
		}
		if trimmed == header {
			start = i
		}
	}
	if start >= 0 && matchesEntry(lines[start:], want) {
		return spanWithLeadingBlank(lines, start), len(lines)
	}
	return -1, -1
}

func matchesEntry(entry []string, want string) bool {
	for _, line := range entry {
		if strings.TrimSpace(line) == want {
			return true
		}
	}
	return false
}

func spanWithLeadingBlank(lines []string, start int) int {
	if start > 0 && strings.TrimSpace(lines[start-1]) == "" {
		return start - 1
	}
	return start
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
