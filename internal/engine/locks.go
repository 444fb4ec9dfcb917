package engine

import "sync"

// projectLocks serializes mutating operations per project id so a
// double-click submitting twice cannot advance a project twice. Entries are
// never evicted; the map grows with the number of distinct projects touched
// by one process, which is small.
type projectLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newProjectLocks() *projectLocks {
	return &projectLocks{m: map[string]*sync.Mutex{}}
}

// acquire locks the given project id and returns the release func.
func (l *projectLocks) acquire(id string) func() {
	l.mu.Lock()
	pl, ok := l.m[id]
	if !ok {
		pl = &sync.Mutex{}
		l.m[id] = pl
	}
	l.mu.Unlock()
	pl.Lock()
	return pl.Unlock
}
