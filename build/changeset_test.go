package build

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/BluejacketSoftware/vba-blocks/internal/test"
)

func comp(name, code string) Component {
	return Component{Name: name, Filename: name + ".bas", Type: TypeStandard, Code: code}
}

func TestDiff(t *testing.T) {
	prev := []Component{comp("A", "a1"), comp("B", "b1"), comp("C", "c1")}
	next := []Component{comp("A", "a1"), comp("B", "b2"), comp("D", "d1")}

	cs := Diff(prev, next, nil)

	if len(cs.Added) != 1 || cs.Added[0].Name != "D" {
		t.Errorf("added = %+v", cs.Added)
	}
	if len(cs.Removed) != 1 || cs.Removed[0].Name != "C" {
		t.Errorf("removed = %+v", cs.Removed)
	}
	if len(cs.Changed) != 1 || cs.Changed[0].Name != "B" {
		t.Errorf("changed = %+v", cs.Changed)
	}
}

func TestDiffSymmetry(t *testing.T) {
	a := []Component{comp("A", "a"), comp("B", "b")}
	b := []Component{comp("B", "b"), comp("C", "c")}

	ab := Diff(a, b, nil)
	ba := Diff(b, a, nil)

	if len(ab.Added) != len(ba.Removed) || ab.Added[0].Name != ba.Removed[0].Name {
		t.Errorf("diff(a,b).added = %+v, diff(b,a).removed = %+v", ab.Added, ba.Removed)
	}
	if len(ab.Removed) != len(ba.Added) || ab.Removed[0].Name != ba.Added[0].Name {
		t.Errorf("diff(a,b).removed = %+v, diff(b,a).added = %+v", ab.Removed, ba.Added)
	}
}

func TestDiffIdempotence(t *testing.T) {
	set := []Component{comp("A", "a"), comp("B", "b")}
	cs := Diff(set, set, nil)
	if !cs.Empty() {
		t.Errorf("diff of identical sets should be empty: %+v", cs)
	}
}

func TestDiffDetectsBinaryAndTypeChanges(t *testing.T) {
	prev := []Component{
		{Name: "F", Type: TypeForm, Code: "x", Binary: []byte{1}},
		{Name: "T", Type: TypeStandard, Code: "y"},
	}
	next := []Component{
		{Name: "F", Type: TypeForm, Code: "x", Binary: []byte{2}},
		{Name: "T", Type: TypeClass, Code: "y"},
	}

	cs := Diff(prev, next, nil)
	if len(cs.Changed) != 2 {
		t.Errorf("changed = %+v", cs.Changed)
	}
}

// fakeBridge is an in-memory Bridge for apply tests. Failures are injected
// per call.
type fakeBridge struct {
	imported   []string
	closedSave []bool
	importErr  error
	closeErr   error
}

func (b *fakeBridge) Open(ctx context.Context, path string) (Handle, error) {
	return path, nil
}

func (b *fakeBridge) Import(ctx context.Context, h Handle, dir string) error {
	if b.importErr != nil {
		return b.importErr
	}
	b.imported = append(b.imported, dir)
	return nil
}

func (b *fakeBridge) Export(ctx context.Context, h Handle, dir string) ([]Src, error) {
	return nil, nil
}

func (b *fakeBridge) Close(ctx context.Context, h Handle, save bool) error {
	if save && b.closeErr != nil {
		return b.closeErr
	}
	b.closedSave = append(b.closedSave, save)
	return nil
}

func (b *fakeBridge) Run(ctx context.Context, path, script string, args []string) error {
	return nil
}

func applyFixture(t *testing.T, h *test.Helper) (ImportGraph, string, string) {
	t.Helper()
	dir := h.TempDir()

	targetFile := h.TempFile(dir, "out/report.xlsm", "ORIGINAL DOCUMENT BYTES")
	staged := filepath.Join(dir, "staged")
	if err := os.MkdirAll(staged, 0777); err != nil {
		t.Fatal(err)
	}

	ig := ImportGraph{
		Target: Target{
			Type:     "xlsm",
			Name:     "report",
			Path:     filepath.Join(dir, "out"),
			Filename: "report.xlsm",
		},
	}
	return ig, staged, targetFile
}

func TestApplyWritesChangesManifest(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	ig, staged, _ := applyFixture(t, h)
	bridge := &fakeBridge{}
	applier := Applier{Bridge: bridge, BackupDir: filepath.Join(h.TempDir(), "backup")}

	cs := Diff(
		[]Component{comp("Old", "o")},
		[]Component{comp("New", "n")},
		[]Reference{{Name: "Scripting", GUID: "{AAA}", Major: 1}},
	)

	if err := applier.Apply(context.Background(), ig, cs, staged); err != nil {
		t.Fatalf("%+v", err)
	}

	if len(bridge.imported) != 1 {
		t.Fatalf("imported = %v", bridge.imported)
	}
	if len(bridge.closedSave) != 1 || !bridge.closedSave[0] {
		t.Errorf("close calls = %v, want one save", bridge.closedSave)
	}

	data, err := ioutil.ReadFile(filepath.Join(staged, changesName))
	if err != nil {
		t.Fatalf("changes manifest missing: %s", err)
	}
	for _, want := range []string{`name = "New"`, `name = "Old"`, `guid = "{AAA}"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("changes manifest lacks %q:\n%s", want, data)
		}
	}
}

func TestApplyEmptyChangesetIsNoop(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	ig, staged, _ := applyFixture(t, h)
	bridge := &fakeBridge{}
	applier := Applier{Bridge: bridge, BackupDir: filepath.Join(h.TempDir(), "backup")}

	if err := applier.Apply(context.Background(), ig, Changeset{}, staged); err != nil {
		t.Fatalf("%+v", err)
	}
	if len(bridge.imported) != 0 || len(bridge.closedSave) != 0 {
		t.Errorf("empty changeset touched the bridge: %+v", bridge)
	}
}

func TestApplyRestoresOnImportFailure(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	ig, staged, targetFile := applyFixture(t, h)
	bridge := &fakeBridge{importErr: errors.New("component rejected")}
	applier := Applier{Bridge: bridge, BackupDir: filepath.Join(h.TempDir(), "backup")}

	cs := Diff(nil, []Component{comp("New", "n")}, nil)

	err := applier.Apply(context.Background(), ig, cs, staged)
	if err == nil {
		t.Fatal("expected failure")
	}
	ie, ok := err.(*TargetImportError)
	if !ok {
		t.Fatalf("got %T, want *TargetImportError", err)
	}
	if !ie.Restored {
		t.Error("restore flag not set")
	}

	// The document was closed without saving, and its bytes put back.
	if len(bridge.closedSave) != 1 || bridge.closedSave[0] {
		t.Errorf("close calls = %v, want one no-save", bridge.closedSave)
	}
	got, err := ioutil.ReadFile(targetFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ORIGINAL DOCUMENT BYTES" {
		t.Errorf("target bytes = %q after restore", got)
	}
}

func TestApplyRestoresOnSaveFailure(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	ig, staged, targetFile := applyFixture(t, h)
	bridge := &fakeBridge{closeErr: errors.New("save failed")}
	applier := Applier{Bridge: bridge, BackupDir: filepath.Join(h.TempDir(), "backup")}

	cs := Diff(nil, []Component{comp("New", "n")}, nil)

	err := applier.Apply(context.Background(), ig, cs, staged)
	if err == nil {
		t.Fatal("expected failure")
	}
	if _, ok := err.(*TargetImportError); !ok {
		t.Fatalf("got %T, want *TargetImportError", err)
	}

	got, err := ioutil.ReadFile(targetFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "ORIGINAL DOCUMENT BYTES" {
		t.Errorf("target bytes = %q after restore", got)
	}
}

func TestStageAndLoadExportDir(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()
	dir := filepath.Join(h.TempDir(), "staged")

	ig := ImportGraph{
		Target: Target{Name: "report"},
		Components: []Component{
			comp("Main", "Attribute VB_Name = \"Main\"\n"),
			{
				Name: "InputForm", Type: TypeForm,
				Code:   "VERSION 5.00\nAttribute VB_Name = \"InputForm\"\n",
				Binary: []byte{0xDE, 0xAD},
			},
		},
	}

	if err := Stage(context.Background(), ig, dir, nil); err != nil {
		t.Fatalf("%+v", err)
	}

	for _, f := range []string{"Main.bas", "InputForm.frm", "InputForm.frx"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("staged file %s missing: %s", f, err)
		}
	}

	// Staging empties the directory first.
	residue := filepath.Join(dir, "stale.bas")
	if err := ioutil.WriteFile(residue, []byte("Attribute VB_Name = \"Stale\"\n"), 0666); err != nil {
		t.Fatal(err)
	}
	if err := Stage(context.Background(), ig, dir, nil); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := os.Stat(residue); !os.IsNotExist(err) {
		t.Error("stale file survived restaging")
	}

	comps, err := LoadExportDir(dir)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(comps) != 2 {
		t.Fatalf("loaded %d components, want 2", len(comps))
	}
	if comps[0].Name != "InputForm" || comps[1].Name != "Main" {
		t.Errorf("components = %v, %v", comps[0].Name, comps[1].Name)
	}
	if string(comps[0].Binary) != "\xde\xad" {
		t.Errorf("sidecar did not round-trip: %x", comps[0].Binary)
	}
}
