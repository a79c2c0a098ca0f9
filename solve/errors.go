package solve

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
)

type traceError interface {
	traceString() string
}

// badOptsFailure indicates bad input passed to Prepare.
type badOptsFailure string

func (e badOptsFailure) Error() string {
	return string(e)
}

type failedVersion struct {
	r Registration
	f error
}

// noVersionError is returned when a version queue is fully exhausted for a
// name without finding an admissible registration.
type noVersionError struct {
	name  string
	fails []failedVersion
}

func (e *noVersionError) Error() string {
	if len(e.fails) == 0 {
		return fmt.Sprintf("no versions found for %q", e.name)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no version of %s met constraints:", e.name)
	for _, f := range e.fails {
		fmt.Fprintf(&buf, "\n\t%s: %s", f.r.Version, f.f.Error())
	}
	return buf.String()
}

func (e *noVersionError) traceString() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "no version of %s met constraints:", e.name)
	for _, f := range e.fails {
		if te, ok := f.f.(traceError); ok {
			fmt.Fprintf(&buf, "\n  %s: %s", f.r.Version, te.traceString())
		} else {
			fmt.Fprintf(&buf, "\n  %s: %s", f.r.Version, f.f.Error())
		}
	}
	return buf.String()
}

// constraintFailure indicates a candidate was rejected because it does not
// satisfy the constraint accumulated from current selections.
type constraintFailure struct {
	deps      []dependency
	candidate Registration
}

func (e *constraintFailure) Error() string {
	if len(e.deps) == 1 {
		return fmt.Sprintf(
			"could not use %s %s: %s from %s does not allow it",
			e.candidate.Name, e.candidate.Version,
			e.deps[0].dep.Constraint(), depRef(e.deps[0].depender),
		)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "could not use %s %s, rejected by:", e.candidate.Name, e.candidate.Version)
	for _, d := range e.deps {
		fmt.Fprintf(&buf, "\n\t%s from %s", d.dep.Constraint(), depRef(d.depender))
	}
	return buf.String()
}

func (e *constraintFailure) traceString() string {
	return fmt.Sprintf("%s %s does not satisfy %q", e.candidate.Name, e.candidate.Version, accumulated(e.deps))
}

// sourceMismatchFailure indicates two dependers want the same name from
// different sources, which a single-version graph cannot satisfy.
type sourceMismatchFailure struct {
	name     string
	current  SourceURI
	mismatch SourceURI
	prob     atom
}

func (e *sourceMismatchFailure) Error() string {
	return fmt.Sprintf(
		"could not introduce %s: wants %s from %s, but the graph already carries it from %s",
		depRef(e.prob), e.name, e.mismatch, e.current,
	)
}

func (e *sourceMismatchFailure) traceString() string {
	return fmt.Sprintf("source conflict on %s: %s vs %s", e.name, e.mismatch, e.current)
}

// depCycleFailure indicates the resolved graph contains a dependency cycle.
type depCycleFailure struct {
	cycle []string
}

func (e *depCycleFailure) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.cycle, " -> "))
}

// ResolveFailure is the terminal resolve error: the search space was
// exhausted. Names carries the minimised conflict set.
type ResolveFailure struct {
	Names []string
	Cause error
}

func (e *ResolveFailure) Error() string {
	sort.Strings(e.Names)
	if e.Cause == nil {
		return fmt.Sprintf("unable to resolve dependencies (%s)", strings.Join(e.Names, ", "))
	}
	return fmt.Sprintf("unable to resolve dependencies (%s): %s", strings.Join(e.Names, ", "), e.Cause)
}

func (e *ResolveFailure) Unwrap() error {
	return e.Cause
}

func depRef(a atom) string {
	if a.root {
		return "(root)"
	}
	return fmt.Sprintf("%s@%s", a.reg.Name, a.reg.Version)
}

func accumulated(deps []dependency) string {
	ss := make([]string, len(deps))
	for i, d := range deps {
		ss[i] = d.dep.Constraint().String()
	}
	return strings.Join(ss, ", ")
}
