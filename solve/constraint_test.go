package solve

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func mkv(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.StrictNewVersion(s)
	if err != nil {
		t.Fatalf("bad version %q: %s", s, err)
	}
	return v
}

func TestNewSemverConstraint(t *testing.T) {
	cases := []struct {
		body    string
		version string
		matches bool
	}{
		{"^1.0.0", "1.0.0", true},
		{"^1.0.0", "1.9.3", true},
		{"^1.0.0", "2.0.0", false},
		{"^1.0.0", "0.9.0", false},
		{"~1.2.0", "1.2.9", true},
		{"~1.2.0", "1.3.0", false},
		{">=1.0.0, <1.5.0", "1.4.9", true},
		{">=1.0.0, <1.5.0", "1.5.0", false},
		{"1.2.3", "1.2.3", true},
		{"1.2.3", "1.2.4", false},
	}

	for _, c := range cases {
		con, err := NewSemverConstraint(c.body)
		if err != nil {
			t.Errorf("NewSemverConstraint(%q) errored: %s", c.body, err)
			continue
		}
		if got := con.Matches(mkv(t, c.version)); got != c.matches {
			t.Errorf("(%q).Matches(%s) = %v, want %v", c.body, c.version, got, c.matches)
		}
	}
}

func TestBareVersionIsExact(t *testing.T) {
	con, err := NewSemverConstraint("1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := con.(exactConstraint); !ok {
		t.Errorf("bare version produced %T, want exactConstraint", con)
	}
}

func TestIntersect(t *testing.T) {
	caret1, _ := NewSemverConstraint("^1.0.0")
	caret2, _ := NewSemverConstraint("^2.0.0")
	upper, _ := NewSemverConstraint("<1.5.0")

	both := Intersect(caret1, upper)
	if !both.Matches(mkv(t, "1.4.0")) {
		t.Error("1.4.0 should satisfy ^1.0.0 ∩ <1.5.0")
	}
	if both.Matches(mkv(t, "1.6.0")) {
		t.Error("1.6.0 should not satisfy ^1.0.0 ∩ <1.5.0")
	}

	disjoint := Intersect(caret1, caret2)
	for _, v := range []string{"1.0.0", "1.9.9", "2.0.0", "2.5.0"} {
		if disjoint.Matches(mkv(t, v)) {
			t.Errorf("%s should not satisfy ^1.0.0 ∩ ^2.0.0", v)
		}
	}

	if got := Intersect(Any(), caret1); got.String() != caret1.String() {
		t.Errorf("Any ∩ ^1.0.0 = %s, want ^1.0.0", got)
	}
	if got := Intersect(caret1, nil); got.String() != caret1.String() {
		t.Errorf("^1.0.0 ∩ nil = %s, want ^1.0.0", got)
	}
}
