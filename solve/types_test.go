package solve

import (
	"path/filepath"
	"testing"
)

func TestSourceURIRoundTrip(t *testing.T) {
	cases := []struct {
		s    string
		want SourceURI
	}{
		{"registry+default", SourceURI{Type: "registry", Value: "default"}},
		{"path+../blocks/foo/", SourceURI{Type: "path", Value: "../blocks/foo/"}},
		{"git+https://github.com/vba-blocks/json.git#a1b2c3", SourceURI{Type: "git", Value: "https://github.com/vba-blocks/json.git", Details: "a1b2c3"}},
	}

	for _, c := range cases {
		got, err := ParseSourceURI(c.s)
		if err != nil {
			t.Errorf("ParseSourceURI(%q) errored: %s", c.s, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseSourceURI(%q) = %+v, want %+v", c.s, got, c.want)
		}
		if got.String() != c.s {
			t.Errorf("(%+v).String() = %q, want %q", got, got.String(), c.s)
		}
	}

	for _, bad := range []string{"", "registry", "+value", "svn+url"} {
		if _, err := ParseSourceURI(bad); err == nil {
			t.Errorf("ParseSourceURI(%q) should fail", bad)
		}
	}
}

func TestRegistrationID(t *testing.T) {
	r := Registration{
		Name:    "foo",
		Version: mkv(t, "1.1.0"),
		Source:  SourceURI{Type: "registry", Value: "default"},
	}
	if got, want := r.ID(), "foo 1.1.0 registry+default"; got != want {
		t.Errorf("ID() = %q, want %q", got, want)
	}
}

func TestNewDependencyDiscrimination(t *testing.T) {
	base := filepath.FromSlash("/projects/app")

	// path wins over git and version
	d, err := NewDependency("foo", DepFields{Path: "../foo", Git: "https://x", Version: "1.0.0"}, base)
	if err != nil {
		t.Fatal(err)
	}
	pd, ok := d.(PathDep)
	if !ok {
		t.Fatalf("got %T, want PathDep", d)
	}
	if want := filepath.FromSlash("/projects/foo"); pd.Path != want {
		t.Errorf("path = %q, want %q", pd.Path, want)
	}

	// git wins over version
	d, err = NewDependency("foo", DepFields{Git: "https://x", Branch: "main", Version: "1.0.0"}, base)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(GitDep); !ok {
		t.Fatalf("got %T, want GitDep", d)
	}

	// bare version expands to a registry dependency on the default registry
	d, err = NewDependency("foo", DepFields{Version: "^1.0.0"}, base)
	if err != nil {
		t.Fatal(err)
	}
	rd, ok := d.(RegistryDep)
	if !ok {
		t.Fatalf("got %T, want RegistryDep", d)
	}
	if rd.RegistryName() != DefaultRegistry {
		t.Errorf("registry = %q, want %q", rd.RegistryName(), DefaultRegistry)
	}
	if !rd.Constraint().Matches(mkv(t, "1.2.0")) {
		t.Error("^1.0.0 should match 1.2.0")
	}

	// git refspec must be exactly one of rev/tag/branch
	if _, err := NewDependency("foo", DepFields{Git: "https://x"}, base); err == nil {
		t.Error("git dependency without a ref should fail")
	}
	if _, err := NewDependency("foo", DepFields{Git: "https://x", Tag: "v1", Branch: "main"}, base); err == nil {
		t.Error("git dependency with two refs should fail")
	}

	// no discriminator at all
	if _, err := NewDependency("foo", DepFields{}, base); err == nil {
		t.Error("dependency with no fields should fail")
	}
}
