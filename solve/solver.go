package solve

import (
	"container/heap"
	"context"
	"log"
)

// SolveParameters hold all arguments to a solver run.
type SolveParameters struct {
	// Workspace carries the root snapshot and any member snapshots whose
	// direct dependencies seed the solve.
	Workspace Workspace

	// Lock is the set of registrations from a previous solve. If provided,
	// the solver tries each locked version first, as long as it still
	// satisfies the current constraints.
	Lock []Registration

	// Trace controls whether the solver emits informative trace output as it
	// moves through the solving process.
	Trace bool

	// TraceLogger is the logger to use for trace output. Required when Trace
	// is set.
	TraceLogger *log.Logger
}

// A CandidateSource enumerates candidate registrations for a dependency. It
// is implemented by the source manager; tests substitute fixtures.
type CandidateSource interface {
	ListRegistrations(ctx context.Context, dep Dependency) ([]Registration, error)
}

// A Solver produces a dependency Graph satisfying a workspace's constraints,
// or fails with a ResolveFailure.
type Solver interface {
	Solve(ctx context.Context) (Graph, error)
}

// solver is a backtracking constraint solver with satisfiability conditions
// hardcoded to the single-version-per-name policy of the component graph.
type solver struct {
	// The current number of attempts made over the course of this solve. This
	// number increments each time the algorithm completes a backtrack and
	// starts moving forward again.
	attempts int

	params SolveParameters

	cs CandidateSource

	// Logger used exclusively for trace output, if the trace option is set.
	tl *log.Logger

	// Context for the in-flight Solve call; held so the unselected-queue
	// comparator can list candidates without a signature change.
	ctx context.Context

	// The stack of atoms that have passed all satisfiability checks and are
	// part of the current solution.
	sel *selection

	// Names that still need a slot in the solution, ordered so that the names
	// least likely to induce backtracking come first.
	unsel *unselected

	// The stack of versionQueues for currently selected names, aligned with
	// the non-root portion of sel.
	vqs []*versionQueue

	// Registrations from the previous lock, by name.
	rlm map[string]Registration

	// Candidate cache, by name, in preference order.
	cands map[string][]Registration

	// Names implicated in failures, reported as the conflict set when the
	// search space is exhausted.
	conflicts map[string]struct{}
}

// Prepare readies a Solver for use, validating the parameters.
func Prepare(params SolveParameters, cs CandidateSource) (Solver, error) {
	if cs == nil {
		return nil, badOptsFailure("must provide a non-nil CandidateSource")
	}
	if params.Workspace.Root.Name == "" {
		return nil, badOptsFailure("workspace root snapshot must have a name")
	}
	if params.Trace && params.TraceLogger == nil {
		return nil, badOptsFailure("trace requested, but no logger provided")
	}

	s := &solver{
		params:    params,
		cs:        cs,
		tl:        params.TraceLogger,
		sel:       newSelection(),
		rlm:       make(map[string]Registration),
		cands:     make(map[string][]Registration),
		conflicts: make(map[string]struct{}),
	}
	s.unsel = &unselected{
		sl:  make([]string, 0),
		cmp: s.unselectedComparator,
	}

	for _, r := range params.Lock {
		s.rlm[r.Name] = r
	}

	return s, nil
}

// Solve attempts to find a dependency graph for the workspace the Solver was
// prepared with.
func (s *solver) Solve(ctx context.Context) (Graph, error) {
	s.ctx = ctx
	s.selectRoot()

	atoms, err := s.solve()
	if err != nil {
		fail := &ResolveFailure{Cause: err}
		for name := range s.conflicts {
			fail.Names = append(fail.Names, name)
		}
		s.traceFinish(Graph{}, fail)
		return Graph{}, fail
	}

	regs := make([]Registration, len(atoms))
	for i, a := range atoms {
		regs[i] = a.reg
	}
	sortRegistrations(regs)

	g := Graph{Registrations: regs}
	if cycle := findCycle(g); cycle != nil {
		fail := &ResolveFailure{Names: cycle, Cause: &depCycleFailure{cycle: cycle}}
		s.traceFinish(Graph{}, fail)
		return Graph{}, fail
	}

	s.traceFinish(g, nil)
	return g, nil
}

// solve is the top-level loop for the backtracking search.
func (s *solver) solve() ([]atom, error) {
	for {
		if err := s.ctx.Err(); err != nil {
			return nil, err
		}

		name, has := s.nextUnselected()
		if !has {
			// Nothing left to select; the solution is complete.
			break
		}

		if s.sel.depperCount(name) == 0 {
			// Orphaned entry: every depender that wanted this name has been
			// unselected since it was queued.
			s.unsel.remove(name)
			continue
		}

		if a, is := s.sel.selected(name); is {
			// The name already holds a slot; a later selection narrowed its
			// constraints, so re-check the standing choice against them.
			if err := s.checkSelected(a); err != nil {
				s.traceStartBacktrack(name, err)
				if s.backtrack() {
					continue
				}
				return nil, err
			}
			s.unsel.remove(name)
			continue
		}

		queue, err := s.createVersionQueue(name)
		if err != nil {
			s.traceStartBacktrack(name, err)
			if s.backtrack() {
				continue
			}
			return nil, err
		}

		cur, ok := queue.current()
		if !ok {
			panic("canary - queue is empty, but flow indicates success")
		}

		s.selectAtom(atom{reg: cur})
		s.vqs = append(s.vqs, queue)
	}

	// Skip the first atom. It's always the root, and that shouldn't be
	// included in results.
	return s.sel.atoms[1:], nil
}

// selectRoot populates the queues with the direct dependencies of the root
// and every workspace member. Shared names accumulate multiple dependency
// records, which intersects their constraints.
func (s *solver) selectRoot() {
	root := atom{
		reg: Registration{
			Name:    s.params.Workspace.Root.Name,
			Version: s.params.Workspace.Root.Version,
		},
		root: true,
	}
	s.sel.pushSelection(root)

	snaps := append([]Snapshot{s.params.Workspace.Root}, s.params.Workspace.Members...)
	for _, snap := range snaps {
		for _, dep := range snap.Dependencies {
			s.sel.pushDep(dependency{depender: root, dep: dep})
			if s.sel.depperCount(dep.Name()) == 1 {
				heap.Push(s.unsel, dep.Name())
			}
		}
	}

	s.traceSelectRoot(len(s.unsel.sl))
}

func (s *solver) nextUnselected() (string, bool) {
	if len(s.unsel.sl) > 0 {
		return s.unsel.sl[0], true
	}
	return "", false
}

// candidatesFor lists (and caches) the candidate registrations for name, in
// preference order, using the first dependency declared on it.
func (s *solver) candidatesFor(name string) ([]Registration, error) {
	if c, exists := s.cands[name]; exists {
		return c, nil
	}

	deps := s.sel.getDependenciesOn(name)
	if len(deps) == 0 {
		// Nothing currently wants the name; there is nothing to list it by.
		return nil, nil
	}

	regs, err := s.cs.ListRegistrations(s.ctx, deps[0].dep)
	if err != nil {
		return nil, err
	}

	sortCandidates(regs)
	s.cands[name] = regs
	return regs, nil
}

// sortCandidates orders candidates newest-first; ties on version are broken
// by source string so enumeration stays deterministic.
func sortCandidates(regs []Registration) {
	for i := 1; i < len(regs); i++ {
		for j := i; j > 0; j-- {
			a, b := regs[j-1], regs[j]
			if a.Version.GreaterThan(b.Version) {
				break
			}
			if a.Version.Equal(b.Version) && a.Source.String() <= b.Source.String() {
				break
			}
			regs[j-1], regs[j] = b, a
		}
	}
}

func (s *solver) createVersionQueue(name string) (*versionQueue, error) {
	candidates, err := s.candidatesFor(name)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, &noVersionError{name: name}
	}

	var locked *Registration
	if lr, exists := s.rlm[name]; exists {
		locked = &lr
	}

	q := newVersionQueue(name, locked, candidates)
	s.traceCheckQueue(q)
	return q, s.findValidVersion(q)
}

// findValidVersion walks a versionQueue until it finds a registration that
// satisfies the constraints held in the current state of the solver.
func (s *solver) findValidVersion(q *versionQueue) error {
	faillen := len(q.fails)

	for {
		cur, ok := q.current()
		if !ok {
			break
		}

		s.traceInfo("try %s@%s", q.name, cur.Version)
		err := s.check(atom{reg: cur})
		if err == nil {
			// We have a good version, can return safely.
			return nil
		}

		q.advance(err)
		if q.isExhausted() {
			break
		}
	}

	// Every depender contributed to the conflict; marking each of their
	// queues lets the backtracker advance whichever frame can actually
	// change the outcome.
	for _, d := range s.sel.getDependenciesOn(q.name) {
		s.fail(d.depender)
	}
	s.conflicts[q.name] = struct{}{}

	return &noVersionError{
		name:  q.name,
		fails: q.fails[faillen:],
	}
}

// check applies all satisfiability conditions to a candidate atom: the
// accumulated constraint on its name, source agreement with every depender,
// and consistency of its own dependencies with current selections.
func (s *solver) check(a atom) error {
	name := a.reg.Name

	deps := s.sel.getDependenciesOn(name)
	if c := s.sel.getConstraint(name); !c.Matches(a.reg.Version) {
		return &constraintFailure{deps: deps, candidate: a.reg}
	}

	for _, d := range deps {
		if ok, want := depAcceptsSource(d.dep, a.reg.Source); !ok {
			return &sourceMismatchFailure{
				name:     name,
				current:  a.reg.Source,
				mismatch: want,
				prob:     d.depender,
			}
		}
	}

	for _, dd := range a.reg.Dependencies {
		sa, is := s.sel.selected(dd.Name())
		if !is {
			continue
		}
		if !dd.Constraint().Matches(sa.reg.Version) {
			return &constraintFailure{
				deps:      []dependency{{depender: a, dep: dd}},
				candidate: sa.reg,
			}
		}
		if ok, want := depAcceptsSource(dd, sa.reg.Source); !ok {
			return &sourceMismatchFailure{
				name:     dd.Name(),
				current:  sa.reg.Source,
				mismatch: want,
				prob:     a,
			}
		}
	}

	return nil
}

// checkSelected re-verifies a standing selection after its constraints may
// have been narrowed by a later atom.
func (s *solver) checkSelected(a atom) error {
	err := s.check(a)
	if err != nil {
		s.failName(a.reg.Name)
		s.conflicts[a.reg.Name] = struct{}{}
	}
	return err
}

// depAcceptsSource reports whether a dependency is compatible with a
// registration minted from the given source, and if not, the source shape it
// wanted.
func depAcceptsSource(d Dependency, src SourceURI) (bool, SourceURI) {
	switch td := d.(type) {
	case RegistryDep:
		want := SourceURI{Type: SourceRegistry, Value: td.RegistryName()}
		return src.Type == SourceRegistry && src.Value == want.Value, want
	case PathDep:
		want := SourceURI{Type: SourcePath, Value: td.Path}
		return src.Type == SourcePath && src.Value == want.Value, want
	case GitDep:
		want := SourceURI{Type: SourceGit, Value: td.URL}
		return src.Type == SourceGit && src.Value == want.Value, want
	}
	panic("unreachable")
}

// fail marks the version queue of the atom that introduced a failed
// constraint, so backtracking jumps back to a frame that can actually change
// the outcome.
func (s *solver) fail(depender atom) {
	if depender.root {
		return
	}
	s.conflicts[depender.reg.Name] = struct{}{}
	s.failName(depender.reg.Name)
}

func (s *solver) failName(name string) {
	// Just look for the first (oldest) one; the backtracker will necessarily
	// traverse through and pop off any earlier ones.
	for _, vq := range s.vqs {
		if vq.name == name {
			vq.failed = true
			return
		}
	}
}

// selectAtom pulls an atom into the selection stack. Its dependencies are
// pushed onto the unselected queue, including names already selected, so the
// narrowed constraints get re-checked.
func (s *solver) selectAtom(a atom) {
	s.unsel.remove(a.reg.Name)
	s.sel.pushSelection(a)

	for _, dep := range a.reg.Dependencies {
		s.sel.pushDep(dependency{depender: a, dep: dep})
		heap.Push(s.unsel, dep.Name())
	}

	s.traceSelect(a)
}

func (s *solver) unselectLast() atom {
	a := s.sel.popSelection()
	heap.Push(s.unsel, a.reg.Name)

	for _, dep := range a.reg.Dependencies {
		s.sel.popDep(dep.Name())
		if s.sel.depperCount(dep.Name()) == 0 {
			s.unsel.removeAll(dep.Name())
		}
	}

	return a
}

// backtrack works backwards from the current failed solution to find the
// next solution to try.
func (s *solver) backtrack() bool {
	if len(s.vqs) == 0 {
		// Nothing to backtrack to.
		return false
	}

	for {
		for {
			if len(s.vqs) == 0 {
				// No more versions, nowhere further to backtrack.
				return false
			}
			if s.vqs[len(s.vqs)-1].failed {
				break
			}

			// GC-friendly pop of the pointer elem.
			s.vqs, s.vqs[len(s.vqs)-1] = s.vqs[:len(s.vqs)-1], nil
			a := s.unselectLast()
			s.traceBacktrack(a.reg.Name)
		}

		// Grab the last versionQueue off the stack of queues.
		q := s.vqs[len(s.vqs)-1]

		a := s.unselectLast()
		if q.name != a.reg.Name {
			panic("canary - version queue stack and selection stack are misaligned")
		}

		// Advance the queue past the current version, which we know is bad.
		q.advance(nil)
		if !q.isExhausted() {
			// Search for another acceptable version of this failed name in
			// its queue.
			s.traceCheckQueue(q)
			if s.findValidVersion(q) == nil {
				// Found one! Put it back on the selected queue and stop
				// backtracking.
				cur, _ := q.current()
				a.reg = cur
				s.selectAtom(a)
				break
			}
		}

		s.traceBacktrack(q.name)

		// No solution found; continue backtracking after popping the queue
		// we just inspected off the stack.
		s.vqs, s.vqs[len(s.vqs)-1] = s.vqs[:len(s.vqs)-1], nil
	}

	// Backtracking was successful if the loop ended before running out of
	// versions.
	if len(s.vqs) == 0 {
		return false
	}
	s.attempts++
	return true
}

// unselectedComparator orders the worklist: re-checks of already-selected
// names first (they are cheap and fail fast), then names pinned by the lock,
// then fewest candidates, with the name itself as the tie-break.
func (s *solver) unselectedComparator(i, j int) bool {
	iname, jname := s.unsel.sl[i], s.unsel.sl[j]
	if iname == jname {
		return false
	}

	_, isel := s.sel.selected(iname)
	_, jsel := s.sel.selected(jname)
	if isel != jsel {
		return isel
	}

	_, ilock := s.rlm[iname]
	_, jlock := s.rlm[jname]

	switch {
	case ilock && !jlock:
		return true
	case !ilock && jlock:
		return false
	case ilock && jlock:
		return iname < jname
	}

	// Names with fewer versions to pick from are less likely to benefit from
	// backtracking, so deal with them earlier in order to minimize the
	// amount of superfluous backtracking through them we do. An error here
	// will be noted and handled somewhere saner in the solving algorithm.
	icand, _ := s.candidatesFor(iname)
	jcand, _ := s.candidatesFor(jname)
	iv, jv := len(icand), len(jcand)

	switch {
	case iv == 0 && jv != 0:
		return true
	case iv != 0 && jv == 0:
		return false
	case iv != jv:
		return iv < jv
	}

	return iname < jname
}

// findCycle returns a name cycle in the graph, or nil when it is acyclic.
func findCycle(g Graph) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.Registrations))

	var visit func(name string, trail []string) []string
	visit = func(name string, trail []string) []string {
		reg, exists := g.Find(name)
		if !exists {
			return nil
		}
		color[name] = grey
		trail = append(trail, name)
		for _, d := range reg.Dependencies {
			switch color[d.Name()] {
			case grey:
				return append(trail, d.Name())
			case white:
				if c := visit(d.Name(), trail); c != nil {
					return c
				}
			}
		}
		color[name] = black
		return nil
	}

	for _, r := range g.Registrations {
		if color[r.Name] == white {
			if c := visit(r.Name, nil); c != nil {
				return c
			}
		}
	}
	return nil
}
