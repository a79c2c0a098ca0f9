package build

import (
	"testing"

	"github.com/BluejacketSoftware/vba-blocks/internal/test"
)

const standardModule = `Attribute VB_Name = "Calculations"
Option Explicit

Public Function Total(values As Range) As Double
End Function
`

const classModule = `VERSION 1.0 CLASS
BEGIN
  MultiUse = -1  'True
END
Attribute VB_Name = "Parser"
Attribute VB_GlobalNameSpace = False
Option Explicit
`

func TestLoadComponent(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()
	dir := h.TempDir()

	cases := []struct {
		file     string
		contents string
		name     string
		ctype    string
	}{
		{"Calculations.bas", standardModule, "Calculations", TypeStandard},
		{"Parser.cls", classModule, "Parser", TypeClass},
	}

	for _, c := range cases {
		path := h.TempFile(dir, c.file, c.contents)
		comp, err := LoadComponent(path, nil)
		if err != nil {
			t.Errorf("%s: %+v", c.file, err)
			continue
		}
		if comp.Name != c.name {
			t.Errorf("%s: name = %q, want %q", c.file, comp.Name, c.name)
		}
		if comp.Type != c.ctype {
			t.Errorf("%s: type = %q, want %q", c.file, comp.Type, c.ctype)
		}
		if comp.Code != c.contents {
			t.Errorf("%s: code does not round-trip", c.file)
		}
	}
}

func TestLoadComponentFormSidecar(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()
	dir := h.TempDir()

	form := "VERSION 5.00\nBEGIN\nEND\nAttribute VB_Name = \"InputForm\"\n"
	path := h.TempFile(dir, "InputForm.frm", form)
	h.TempFile(dir, "InputForm.frx", "\x00\x01binary")

	comp, err := LoadComponent(path, nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if comp.Type != TypeForm {
		t.Errorf("type = %q", comp.Type)
	}
	if string(comp.Binary) != "\x00\x01binary" {
		t.Errorf("sidecar not loaded: %q", comp.Binary)
	}
	if comp.Details.BinaryPath == "" {
		t.Error("binary path not recorded")
	}
}

func TestLoadComponentErrors(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()
	dir := h.TempDir()

	unknown := h.TempFile(dir, "notes.txt", "hello")
	if _, err := LoadComponent(unknown, nil); err == nil {
		t.Error("unknown extension should fail")
	} else if _, ok := err.(*ComponentUnrecognizedError); !ok {
		t.Errorf("got %T, want *ComponentUnrecognizedError", err)
	}

	nameless := h.TempFile(dir, "Orphan.bas", "Option Explicit\nPublic Sub X()\nEnd Sub\n")
	if _, err := LoadComponent(nameless, nil); err == nil {
		t.Error("missing VB_Name should fail")
	} else if _, ok := err.(*ComponentNoNameError); !ok {
		t.Errorf("got %T, want *ComponentNoNameError", err)
	}
}
