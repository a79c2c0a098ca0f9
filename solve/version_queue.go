package solve

import (
	"fmt"
	"strings"
)

// A versionQueue walks the candidate registrations for one name in preference
// order: the locked registration first, if still admissible, then the rest
// newest-first.
type versionQueue struct {
	name   string
	pi     []Registration
	fails  []failedVersion
	failed bool
}

func newVersionQueue(name string, locked *Registration, candidates []Registration) *versionQueue {
	vq := &versionQueue{
		name: name,
	}

	// Lock goes in first, if present and still among the candidates.
	if locked != nil {
		for _, c := range candidates {
			if c.Version.Equal(locked.Version) && c.Source == locked.Source {
				vq.pi = append(vq.pi, c)
				break
			}
		}
	}

	for _, c := range candidates {
		if len(vq.pi) > 0 && c.Version.Equal(vq.pi[0].Version) && c.Source == vq.pi[0].Source {
			continue
		}
		vq.pi = append(vq.pi, c)
	}

	return vq
}

func (vq *versionQueue) current() (Registration, bool) {
	if len(vq.pi) > 0 {
		return vq.pi[0], true
	}
	return Registration{}, false
}

// advance moves the queue forward to the next candidate, recording the
// failure that eliminated the current one.
func (vq *versionQueue) advance(fail error) {
	if len(vq.pi) == 0 {
		return
	}

	vq.fails = append(vq.fails, failedVersion{
		r: vq.pi[0],
		f: fail,
	})
	vq.pi = vq.pi[1:]

	// The current version may have failed, but the next one hasn't yet.
	if len(vq.pi) > 0 {
		vq.failed = false
	}
}

func (vq *versionQueue) isExhausted() bool {
	return len(vq.pi) == 0
}

func (vq *versionQueue) String() string {
	var vs []string
	for _, r := range vq.pi {
		vs = append(vs, r.Version.String())
	}
	return fmt.Sprintf("[%s]", strings.Join(vs, ", "))
}
