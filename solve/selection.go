package solve

import "container/heap"

// An atom is a candidate (or, for the root, virtual) registration occupying a
// slot in the current solution.
type atom struct {
	reg  Registration
	root bool
}

// A dependency links a depender atom to one of its declared requirements.
type dependency struct {
	depender atom
	dep      Dependency
}

// selection is the stack of atoms that have passed all satisfiability checks,
// together with the dependencies that introduced them. It is a dumb data
// container; the solver maintains its invariants.
type selection struct {
	atoms []atom
	deps  map[string][]dependency
}

func newSelection() *selection {
	return &selection{
		deps: make(map[string][]dependency),
	}
}

func (s *selection) getDependenciesOn(name string) []dependency {
	if deps, exists := s.deps[name]; exists {
		return deps
	}
	return nil
}

func (s *selection) pushSelection(a atom) {
	s.atoms = append(s.atoms, a)
}

func (s *selection) popSelection() atom {
	var a atom
	a, s.atoms = s.atoms[len(s.atoms)-1], s.atoms[:len(s.atoms)-1]
	return a
}

func (s *selection) pushDep(dep dependency) {
	name := dep.dep.Name()
	s.deps[name] = append(s.deps[name], dep)
}

func (s *selection) popDep(name string) (dep dependency) {
	deps := s.deps[name]
	dep, s.deps[name] = deps[len(deps)-1], deps[:len(deps)-1]
	return dep
}

func (s *selection) depperCount(name string) int {
	return len(s.deps[name])
}

func (s *selection) selected(name string) (atom, bool) {
	for _, a := range s.atoms {
		if !a.root && a.reg.Name == name {
			return a, true
		}
	}
	return atom{}, false
}

// getConstraint returns the intersection of all constraints that dependers
// currently place on name.
func (s *selection) getConstraint(name string) Constraint {
	deps, exists := s.deps[name]
	if !exists || len(deps) == 0 {
		return Any()
	}

	ret := Any()
	for _, d := range deps {
		ret = Intersect(ret, d.dep.Constraint())
	}
	return ret
}

// unselected is a priority queue of names waiting for a slot in the solution,
// ordered by a comparator owned by the solver.
type unselected struct {
	sl  []string
	cmp func(i, j int) bool
}

func (u unselected) Len() int {
	return len(u.sl)
}

func (u unselected) Less(i, j int) bool {
	return u.cmp(i, j)
}

func (u unselected) Swap(i, j int) {
	u.sl[i], u.sl[j] = u.sl[j], u.sl[i]
}

func (u *unselected) Push(x interface{}) {
	u.sl = append(u.sl, x.(string))
}

func (u *unselected) Pop() (v interface{}) {
	v, u.sl = u.sl[len(u.sl)-1], u.sl[:len(u.sl)-1]
	return v
}

// remove removes the first occurrence of name from the queue. Duplicate
// occurrences are harmless; popping a selected name is a cheap re-check.
func (u *unselected) remove(name string) {
	for k, v := range u.sl {
		if v == name {
			if k == len(u.sl)-1 {
				u.sl = u.sl[:len(u.sl)-1]
			} else {
				u.sl = append(u.sl[:k], u.sl[k+1:]...)
				heap.Init(u)
			}
			return
		}
	}
}

// removeAll removes every occurrence of name, for when the last depender on
// it has been unselected.
func (u *unselected) removeAll(name string) {
	kept := u.sl[:0]
	for _, v := range u.sl {
		if v != name {
			kept = append(kept, v)
		}
	}
	if len(kept) != len(u.sl) {
		u.sl = kept
		heap.Init(u)
	}
}
