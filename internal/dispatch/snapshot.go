package dispatch

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of the calls observed by one fetch.
// Nothing mutates a Snapshot after NewSnapshot returns it.
type Snapshot struct {
	byID    map[string]Call
	order   []string
	takenAt time.Time
}

// NewSnapshot builds a snapshot from calls in fetch order. Later duplicates
// of an id replace earlier ones but keep the first position.
func NewSnapshot(calls []Call, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		byID:    make(map[string]Call, len(calls)),
		order:   make([]string, 0, len(calls)),
		takenAt: takenAt,
	}
	for _, c := range calls {
		if _, seen := s.byID[c.ID]; !seen {
			s.order = append(s.order, c.ID)
		}
		s.byID[c.ID] = c
	}
	return s
}

// Get returns the call with id, if present. A nil snapshot is empty.
func (s *Snapshot) Get(id string) (Call, bool) {
	if s == nil {
		return Call{}, false
	}
	c, ok := s.byID[id]
	return c, ok
}

// Len returns the number of calls.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// TakenAt is when the underlying fetch completed.
func (s *Snapshot) TakenAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.takenAt
}

// Calls returns a fresh copy of every call in fetch order.
func (s *Snapshot) Calls() []Call {
	if s == nil {
		return nil
	}
	out := make([]Call, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Visible returns the calls an operator should see: everything not Closed.
func (s *Snapshot) Visible() []Call {
	if s == nil {
		return nil
	}
	out := make([]Call, 0, len(s.order))
	for _, id := range s.order {
		if c := s.byID[id]; !c.Status.Terminal() {
			out = append(out, c)
		}
	}
	return out
}

// SnapshotStore holds the current snapshot. Only the call poll driver
// commits; any goroutine may load.
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
}

// NewSnapshotStore returns a store holding an empty snapshot.
func NewSnapshotStore() *SnapshotStore {
	st := &SnapshotStore{}
	st.current.Store(NewSnapshot(nil, time.Time{}))
	return st
}

// Load returns the current snapshot.
func (st *SnapshotStore) Load() *Snapshot {
	return st.current.Load()
}

// Commit replaces the current snapshot wholesale and returns the previous one.
func (st *SnapshotStore) Commit(next *Snapshot) *Snapshot {
	return st.current.Swap(next)
}
