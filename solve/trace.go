package solve

import "strings"

const traceIndent = 2

func (s *solver) traceInfo(format string, args ...interface{}) {
	if !s.params.Trace {
		return
	}
	s.tl.Printf(strings.Repeat(" ", traceIndent*len(s.vqs))+format, args...)
}

func (s *solver) traceSelectRoot(direct int) {
	if !s.params.Trace {
		return
	}
	s.tl.Printf("root %s with %d direct dependencies", s.params.Workspace.Root.Name, direct)
}

func (s *solver) traceSelect(a atom) {
	if !s.params.Trace {
		return
	}
	s.traceInfo("select %s@%s with %d deps", a.reg.Name, a.reg.Version, len(a.reg.Dependencies))
}

func (s *solver) traceCheckQueue(q *versionQueue) {
	if !s.params.Trace {
		return
	}
	s.traceInfo("queue for %s: %s", q.name, q)
}

func (s *solver) traceStartBacktrack(name string, err error) {
	if !s.params.Trace {
		return
	}
	if te, ok := err.(traceError); ok {
		s.traceInfo("backtracking from %s: %s", name, te.traceString())
	} else {
		s.traceInfo("backtracking from %s: %s", name, err)
	}
}

func (s *solver) traceBacktrack(name string) {
	if !s.params.Trace {
		return
	}
	s.traceInfo("unselect %s", name)
}

func (s *solver) traceFinish(g Graph, err error) {
	if !s.params.Trace {
		return
	}
	if err == nil {
		s.tl.Printf("found solution with %d registrations in %d attempts", len(g.Registrations), s.attempts+1)
	} else {
		s.tl.Printf("solving failed: %s", err)
	}
}
