package solve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// A Constraint provides structured limitations on the versions that are
// admissible for a given package name.
type Constraint interface {
	fmt.Stringer
	// Matches indicates if the provided version is allowed by the Constraint.
	Matches(*semver.Version) bool
	_private()
}

func (semverConstraint) _private() {}
func (exactConstraint) _private()  {}
func (anyConstraint) _private()    {}
func (conjConstraint) _private()   {}

// NewSemverConstraint constructs a range Constraint from an expression like
// "^1.0.0". If the expression is a bare version, an exact constraint is
// returned instead.
func NewSemverConstraint(body string) (Constraint, error) {
	if v, err := semver.StrictNewVersion(strings.TrimSpace(body)); err == nil {
		return exactConstraint{v: v}, nil
	}
	c, err := semver.NewConstraint(body)
	if err != nil {
		return nil, err
	}
	return semverConstraint{c: c, body: strings.TrimSpace(body)}, nil
}

// Exact returns a Constraint admitting only the given version.
func Exact(v *semver.Version) Constraint {
	return exactConstraint{v: v}
}

// Any returns a constraint that will match any version.
func Any() Constraint {
	return anyConstraint{}
}

// IsAny indicates if the provided constraint is the wildcard constraint.
func IsAny(c Constraint) bool {
	_, ok := c.(anyConstraint)
	return ok
}

// Intersect combines two constraints into one that matches only versions
// admitted by both. There is no eager emptiness check; disjointness surfaces
// when no candidate version matches, which is where the solver reports it.
func Intersect(a, b Constraint) Constraint {
	if a == nil || IsAny(a) {
		return b
	}
	if b == nil || IsAny(b) {
		return a
	}
	var parts conjConstraint
	for _, c := range []Constraint{a, b} {
		if cc, ok := c.(conjConstraint); ok {
			parts = append(parts, cc...)
		} else {
			parts = append(parts, c)
		}
	}
	return parts
}

type semverConstraint struct {
	c    *semver.Constraints
	body string
}

func (c semverConstraint) String() string {
	return c.body
}

func (c semverConstraint) Matches(v *semver.Version) bool {
	return c.c.Check(v)
}

type exactConstraint struct {
	v *semver.Version
}

func (c exactConstraint) String() string {
	return c.v.String()
}

func (c exactConstraint) Matches(v *semver.Version) bool {
	return c.v.Equal(v)
}

type anyConstraint struct{}

func (anyConstraint) String() string {
	return "*"
}

func (anyConstraint) Matches(*semver.Version) bool {
	return true
}

// conjConstraint is the conjunction of two or more constraints, produced by
// Intersect.
type conjConstraint []Constraint

func (c conjConstraint) String() string {
	ss := make([]string, len(c))
	for i, elem := range c {
		ss[i] = elem.String()
	}
	return strings.Join(ss, ", ")
}

func (c conjConstraint) Matches(v *semver.Version) bool {
	for _, elem := range c {
		if !elem.Matches(v) {
			return false
		}
	}
	return true
}

// SortVersionsDesc orders versions newest-first, which is the candidate
// preference order everywhere a lockfile is not steering the choice.
func SortVersionsDesc(vs []*semver.Version) {
	sort.Slice(vs, func(i, j int) bool {
		return vs[i].GreaterThan(vs[j])
	})
}
