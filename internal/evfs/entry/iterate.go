package entry

// Snapshot is what Iterate hands back per entry: enough to build the
// facade's {entry_id, key, size} iterator result without holding the
// entry table lock while a caller walks it.
type Snapshot struct {
	ID   int32
	Name string
	Size int32
}

// Iterate returns a snapshot of every entry currently in Normal state,
// in table insertion order, spec.md §4.4: "A linked-list walk over the
// entry table returns the next entry in Normal state; other states
// are skipped."
func (t *Table) Iterate() []Snapshot {
	t.mu.Lock()
	ids := make([]int32, len(t.order))
	copy(ids, t.order)
	t.mu.Unlock()

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		t.mu.Lock()
		e, ok := t.byID[id]
		t.mu.Unlock()
		if !ok {
			continue
		}
		e.mu.Lock()
		state := e.state
		e.mu.Unlock()
		if state != Normal {
			continue
		}
		out = append(out, Snapshot{ID: e.ID, Name: e.Name, Size: e.Size()})
	}
	return out
}

// Count returns the number of live entries, for query_stat.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
