package solve

import (
	"context"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
)

// fixtureSource serves candidate registrations from an in-memory table, in
// no particular order; the solver is responsible for ordering.
type fixtureSource map[string][]Registration

func (f fixtureSource) ListRegistrations(ctx context.Context, dep Dependency) ([]Registration, error) {
	return append([]Registration(nil), f[dep.Name()]...), nil
}

// mkreg builds a default-registry registration "name version" with
// dependencies given as "name constraint" strings.
func mkreg(t *testing.T, id string, deps ...string) Registration {
	t.Helper()
	parts := strings.Fields(id)
	if len(parts) != 2 {
		t.Fatalf("bad registration id %q", id)
	}
	return Registration{
		Name:         parts[0],
		Version:      mkv(t, parts[1]),
		Source:       SourceURI{Type: SourceRegistry, Value: DefaultRegistry},
		Dependencies: mkdeps(t, deps...),
	}
}

func mkdeps(t *testing.T, specs ...string) []Dependency {
	t.Helper()
	deps := make([]Dependency, 0, len(specs))
	for _, spec := range specs {
		parts := strings.SplitN(spec, " ", 2)
		d, err := NewDependency(parts[0], DepFields{Version: parts[1]}, "")
		if err != nil {
			t.Fatalf("bad dep spec %q: %s", spec, err)
		}
		deps = append(deps, d)
	}
	return deps
}

func mkroot(t *testing.T, deps ...string) Workspace {
	t.Helper()
	return Workspace{
		Root: Snapshot{
			Name:         "root",
			Version:      mkv(t, "0.1.0"),
			Dependencies: mkdeps(t, deps...),
		},
	}
}

// result is "name version" per expected registration, in graph order.
type solveFixture struct {
	name     string
	ws       Workspace
	source   fixtureSource
	lock     []Registration
	result   []string
	fail     bool
	failName string
}

func TestSolveBasic(t *testing.T) {
	fixtures := []solveFixture{
		{
			name:   "empty manifest yields empty graph",
			ws:     mkroot(t),
			source: fixtureSource{},
			result: []string{},
		},
		{
			name: "newest admissible version wins",
			ws:   mkroot(t, "foo ^1.0.0"),
			source: fixtureSource{
				"foo": {mkreg(t, "foo 1.0.0"), mkreg(t, "foo 1.1.0"), mkreg(t, "foo 2.0.0")},
			},
			result: []string{"foo 1.1.0"},
		},
		{
			name: "transitive dependencies join the graph",
			ws:   mkroot(t, "foo ^1.0.0"),
			source: fixtureSource{
				"foo": {mkreg(t, "foo 1.0.0", "bar ^2.0.0")},
				"bar": {mkreg(t, "bar 2.0.0"), mkreg(t, "bar 2.1.0"), mkreg(t, "bar 1.0.0")},
			},
			result: []string{"bar 2.1.0", "foo 1.0.0"},
		},
		{
			name: "disjoint direct constraints fail",
			ws:   mkroot(t, "bar ^1.0.0", "bar ^2.0.0"),
			source: fixtureSource{
				"bar": {mkreg(t, "bar 1.0.0"), mkreg(t, "bar 2.0.0")},
			},
			fail:     true,
			failName: "bar",
		},
		{
			name: "backtracks to an older version to satisfy a sibling",
			ws:   mkroot(t, "a ^1.0.0", "b ^1.0.0"),
			source: fixtureSource{
				"a": {mkreg(t, "a 1.0.0", "c ^1.0.0"), mkreg(t, "a 1.1.0", "c ^2.0.0")},
				"b": {mkreg(t, "b 1.0.0", "c ^1.0.0")},
				"c": {mkreg(t, "c 1.0.0"), mkreg(t, "c 2.0.0")},
			},
			result: []string{"a 1.0.0", "b 1.0.0", "c 1.0.0"},
		},
		{
			name: "shared transitive constraint narrows the pick",
			ws:   mkroot(t, "a ^1.0.0", "c >=1.0.0, <3.0.0"),
			source: fixtureSource{
				"a": {mkreg(t, "a 1.0.0", "c ^1.0.0")},
				"c": {mkreg(t, "c 1.0.0"), mkreg(t, "c 1.5.0"), mkreg(t, "c 2.0.0")},
			},
			result: []string{"a 1.0.0", "c 1.5.0"},
		},
		{
			name: "dependency cycle is rejected",
			ws:   mkroot(t, "a ^1.0.0"),
			source: fixtureSource{
				"a": {mkreg(t, "a 1.0.0", "b ^1.0.0")},
				"b": {mkreg(t, "b 1.0.0", "a ^1.0.0")},
			},
			fail:     true,
			failName: "a",
		},
	}

	for _, fix := range fixtures {
		fix := fix
		t.Run(fix.name, func(t *testing.T) {
			s, err := Prepare(SolveParameters{Workspace: fix.ws, Lock: fix.lock}, fix.source)
			if err != nil {
				t.Fatal(err)
			}

			g, err := s.Solve(context.Background())
			if fix.fail {
				if err == nil {
					t.Fatalf("expected failure, got graph %v", names(g))
				}
				rf, ok := err.(*ResolveFailure)
				if !ok {
					t.Fatalf("expected *ResolveFailure, got %T: %s", err, err)
				}
				if fix.failName != "" && !strings.Contains(rf.Error(), fix.failName) {
					t.Errorf("failure detail %q does not mention %q", rf.Error(), fix.failName)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected failure: %s", err)
			}

			got := names(g)
			if len(got) != len(fix.result) {
				t.Fatalf("graph = %v, want %v", got, fix.result)
			}
			for i := range got {
				if got[i] != fix.result[i] {
					t.Errorf("graph[%d] = %q, want %q", i, got[i], fix.result[i])
				}
			}
		})
	}
}

func names(g Graph) []string {
	out := make([]string, 0, len(g.Registrations))
	for _, r := range g.Registrations {
		out = append(out, r.Name+" "+r.Version.String())
	}
	return out
}

func TestSolveLockPreservation(t *testing.T) {
	source := fixtureSource{
		"foo": {mkreg(t, "foo 1.0.0"), mkreg(t, "foo 1.1.0"), mkreg(t, "foo 1.2.0")},
	}
	ws := mkroot(t, "foo ^1.0.0")
	locked := []Registration{mkreg(t, "foo 1.1.0")}

	s, err := Prepare(SolveParameters{Workspace: ws, Lock: locked}, source)
	if err != nil {
		t.Fatal(err)
	}
	g, err := s.Solve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := names(g); got[0] != "foo 1.1.0" {
		t.Errorf("locked solve picked %v, want foo 1.1.0", got)
	}

	// Without the lock, the newest admissible version wins.
	s, err = Prepare(SolveParameters{Workspace: ws}, source)
	if err != nil {
		t.Fatal(err)
	}
	g, err = s.Solve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := names(g); got[0] != "foo 1.2.0" {
		t.Errorf("fresh solve picked %v, want foo 1.2.0", got)
	}
}

func TestSolveLockIgnoredWhenStale(t *testing.T) {
	// The locked version no longer satisfies the narrowed range.
	source := fixtureSource{
		"foo": {mkreg(t, "foo 1.0.0"), mkreg(t, "foo 1.5.0"), mkreg(t, "foo 2.0.0")},
	}
	ws := mkroot(t, "foo >=1.4.0, <2.0.0")
	locked := []Registration{mkreg(t, "foo 1.0.0")}

	s, err := Prepare(SolveParameters{Workspace: ws, Lock: locked}, source)
	if err != nil {
		t.Fatal(err)
	}
	g, err := s.Solve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := names(g); got[0] != "foo 1.5.0" {
		t.Errorf("solve picked %v, want foo 1.5.0", got)
	}
}

func TestSolveGraphInvariants(t *testing.T) {
	source := fixtureSource{
		"zeta":  {mkreg(t, "zeta 1.0.0", "alpha ^1.0.0")},
		"alpha": {mkreg(t, "alpha 1.0.0")},
		"mid":   {mkreg(t, "mid 3.0.0", "alpha ^1.0.0")},
	}
	ws := mkroot(t, "zeta ^1.0.0", "mid ^3.0.0")

	s, err := Prepare(SolveParameters{Workspace: ws}, source)
	if err != nil {
		t.Fatal(err)
	}
	g, err := s.Solve(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// Single version per name, alphabetical emission order, every
	// dependency satisfied within the graph.
	seen := map[string]bool{}
	var prev string
	for _, r := range g.Registrations {
		if seen[r.Name] {
			t.Errorf("name %s appears twice", r.Name)
		}
		seen[r.Name] = true
		if prev != "" && prev > r.Name {
			t.Errorf("graph not sorted: %s before %s", prev, r.Name)
		}
		prev = r.Name

		for _, d := range r.Dependencies {
			dr, exists := g.Find(d.Name())
			if !exists {
				t.Errorf("%s depends on %s, which is absent", r.Name, d.Name())
				continue
			}
			if !d.Constraint().Matches(dr.Version) {
				t.Errorf("%s %s does not satisfy %s's constraint %s", dr.Name, dr.Version, r.Name, d.Constraint())
			}
		}
	}
}

func TestSolveRejectsConflictingSources(t *testing.T) {
	// The same name offered from two different registries cannot coexist in
	// a single-version graph.
	other := mkreg(t, "foo 1.0.0")
	other.Source = SourceURI{Type: SourceRegistry, Value: "mirror"}

	source := fixtureSource{
		"a":   {mkreg(t, "a 1.0.0", "foo ^1.0.0")},
		"foo": {other},
	}
	ws := mkroot(t, "a ^1.0.0")

	s, err := Prepare(SolveParameters{Workspace: ws}, source)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Solve(context.Background()); err == nil {
		t.Fatal("expected source conflict to fail the solve")
	}
}

func TestPrepareValidation(t *testing.T) {
	if _, err := Prepare(SolveParameters{}, fixtureSource{}); err == nil {
		t.Error("Prepare should reject a workspace without a root name")
	}
	ws := Workspace{Root: Snapshot{Name: "root", Version: semver.MustParse("1.0.0")}}
	if _, err := Prepare(SolveParameters{Workspace: ws}, nil); err == nil {
		t.Error("Prepare should reject a nil CandidateSource")
	}
	if _, err := Prepare(SolveParameters{Workspace: ws, Trace: true}, fixtureSource{}); err == nil {
		t.Error("Prepare should reject trace without a logger")
	}
}
