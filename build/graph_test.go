package build

import (
	"context"
	"testing"

	"github.com/BluejacketSoftware/vba-blocks/internal/test"
)

func modFor(name string) string {
	return "Attribute VB_Name = \"" + name + "\"\nOption Explicit\n"
}

func TestLoadGraph(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	appDir := h.TempDir()
	depDir := h.TempDir()
	h.TempFile(appDir, "src/Main.bas", modFor("Main"))
	h.TempFile(appDir, "src/Report.cls", "VERSION 1.0 CLASS\nAttribute VB_Name = \"Report\"\n")
	h.TempFile(depDir, "src/JSON.bas", modFor("JSON"))

	pkgs := []Package{
		{
			Name: "app",
			Dir:  appDir,
			Src: []Src{
				{Name: "Main", Path: "src/Main.bas"},
				{Name: "Report", Path: "src/Report.cls"},
			},
			References: []Reference{{Name: "Scripting", GUID: "{AAA}", Major: 1, Minor: 0}},
		},
		{
			Name:       "json",
			Dir:        depDir,
			Src:        []Src{{Name: "JSON", Path: "src/JSON.bas"}},
			References: []Reference{{Name: "Scripting", GUID: "{AAA}", Major: 1, Minor: 0}},
		},
	}

	g, err := LoadGraph(context.Background(), pkgs)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	if len(g.Components) != 3 {
		t.Fatalf("components = %d, want 3", len(g.Components))
	}
	for i, want := range []string{"JSON", "Main", "Report"} {
		if g.Components[i].Name != want {
			t.Errorf("components[%d] = %q, want %q", i, g.Components[i].Name, want)
		}
	}
	// The duplicate reference declarations agree, so they merge to one.
	if len(g.References) != 1 {
		t.Errorf("references = %+v", g.References)
	}
}

func TestLoadGraphNameConflict(t *testing.T) {
	h := test.NewHelper(t)
	defer h.Cleanup()

	aDir := h.TempDir()
	bDir := h.TempDir()
	h.TempFile(aDir, "src/Util.bas", modFor("Util"))
	h.TempFile(bDir, "src/Util.bas", modFor("Util"))

	pkgs := []Package{
		{Name: "a", Dir: aDir, Src: []Src{{Name: "Util", Path: "src/Util.bas"}}},
		{Name: "b", Dir: bDir, Src: []Src{{Name: "Util", Path: "src/Util.bas"}}},
	}

	_, err := LoadGraph(context.Background(), pkgs)
	if err == nil {
		t.Fatal("expected a conflict")
	}
	if _, ok := err.(*InvalidGraphError); !ok {
		t.Fatalf("got %T, want *InvalidGraphError", err)
	}
}

func TestLoadGraphReferenceConflict(t *testing.T) {
	pkgs := []Package{
		{Name: "a", References: []Reference{{Name: "Scripting", GUID: "{AAA}", Major: 1, Minor: 0}}},
		{Name: "b", References: []Reference{{Name: "Scripting", GUID: "{AAA}", Major: 1, Minor: 1}}},
	}

	_, err := LoadGraph(context.Background(), pkgs)
	if err == nil {
		t.Fatal("expected a reference version conflict")
	}
	if _, ok := err.(*InvalidGraphError); !ok {
		t.Fatalf("got %T, want *InvalidGraphError", err)
	}
}

func TestForTarget(t *testing.T) {
	g := BuildGraph{
		Components: []Component{
			{Name: "A", Type: TypeStandard},
			{Name: "B", Type: TypeStandard},
		},
		References: []Reference{{GUID: "{AAA}"}},
	}

	all, err := ForTarget(g, Target{Name: "wide"})
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Components) != 2 {
		t.Errorf("unfiltered target should carry all components")
	}

	one, err := ForTarget(g, Target{Name: "narrow", Src: []string{"B"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(one.Components) != 1 || one.Components[0].Name != "B" {
		t.Errorf("filtered target = %+v", one.Components)
	}

	if _, err := ForTarget(g, Target{Name: "broken", Src: []string{"C"}}); err == nil {
		t.Error("naming a missing component should fail")
	}
}
