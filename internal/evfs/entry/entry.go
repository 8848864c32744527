// Package entry implements EVFS's logical object layer: cluster chains
// grouped into named or anonymous entries with lifecycle reference
// counting and soft/hard delete, grounded on spec.md §4.4 and on
// original_source/addons/evfs/entries.c for load-time chain
// reconstruction semantics the distilled spec only summarizes.
package entry

import (
	"fmt"
	"regexp"

	"github.com/nax-project/evfs/internal/evfs/view"
	"github.com/nax-project/evfs/internal/evfserr"
	"github.com/nax-project/evfs/internal/lockutil"
)

// NameSize is the fixed-width, zero-padded name prefix every entry
// carries in its logical payload, spec.md §3/§6.
const NameSize = 32

var keyPattern = regexp.MustCompile(`^[0-9A-Za-z_.]{1,31}$`)

// State is an entry's lifecycle state, spec.md §4.4's reference
// counting table.
type State int

const (
	Normal State = iota
	Busy
	CloseWait
)

// Mode is the acquisition mode applied to a lookup.
type Mode int

const (
	ModeNormal Mode = iota
	ModeOpen
	ModeBusy
	ModeMandatory
)

// Entry is one logical EVFS object: a head cluster plus zero or more
// element clusters, named or anonymous.
type Entry struct {
	ID       int32 // the head view's cluster ID
	Name     string
	HeadView *view.View
	Elements []*view.View

	mu               lockutil.InvariantMutex
	refcount         int
	ioRefcount       int
	state            State
	hardRemoveOnDetach bool
}

// Table owns every live entry plus the name index, spec.md §4.4.
type Table struct {
	views *view.Table

	mu      lockutil.InvariantMutex
	byID    map[int32]*Entry
	byName  map[string]*Entry
	order   []int32 // insertion order, walked by Iterate
}

// NewTable constructs an empty entry table bound to views.
func NewTable(views *view.Table) *Table {
	return &Table{
		views:  views,
		byID:   make(map[int32]*Entry),
		byName: make(map[string]*Entry),
	}
}

// ValidateKey enforces spec.md §3's `[0-9A-Za-z_.]{1,31}` charset.
func ValidateKey(key string) error {
	if key == "" {
		return nil
	}
	if !keyPattern.MatchString(key) {
		return evfserr.New(evfserr.EINVAL, "entry.ValidateKey", fmt.Errorf("key %q does not match [0-9A-Za-z_.]{1,31}", key))
	}
	return nil
}

func encodeName(key string) [NameSize]byte {
	var buf [NameSize]byte
	copy(buf[:], key)
	return buf
}

func decodeName(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

// CreateEntry allocates a fresh head view, writes the (possibly empty)
// name into its user area, and registers it in the table.
func (t *Table) CreateEntry(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	t.mu.Lock()
	if key != "" {
		if _, exists := t.byName[key]; exists {
			t.mu.Unlock()
			return nil, evfserr.New(evfserr.EEXIST, "entry.CreateEntry", fmt.Errorf("key %q already in use", key))
		}
	}
	t.mu.Unlock()

	head, err := t.views.AcquireIdle()
	if err != nil {
		return nil, err
	}

	if err := t.views.SetHead(head, head.ID); err != nil {
		return nil, err
	}
	if err := t.views.SetHeadDataSegSize(head, NameSize); err != nil {
		return nil, err
	}
	name := encodeName(key)
	if err := t.views.WriteUserdata(head, name[:], 0, NameSize); err != nil {
		return nil, err
	}

	e := &Entry{ID: head.ID, Name: key, HeadView: head, state: Normal}

	t.mu.Lock()
	if key != "" {
		if _, exists := t.byName[key]; exists {
			t.mu.Unlock()
			_ = t.views.MoveToIdle(head)
			return nil, evfserr.New(evfserr.EEXIST, "entry.CreateEntry", fmt.Errorf("key %q already in use", key))
		}
		t.byName[key] = e
	}
	t.byID[e.ID] = e
	t.order = append(t.order, e.ID)
	t.mu.Unlock()
	return e, nil
}

// lookupLocked finds an entry by ID without taking the table lock;
// callers must hold t.mu.
func (t *Table) lookupLocked(id int32) (*Entry, error) {
	e, ok := t.byID[id]
	if !ok {
		return nil, evfserr.New(evfserr.ENOENT, "entry.lookup", fmt.Errorf("entry %d not found", id))
	}
	return e, nil
}

// Acquire looks up an entry and applies mode's precondition/effect,
// spec.md §4.4's reference-counting table.
func (t *Table) Acquire(id int32, mode Mode) (*Entry, error) {
	t.mu.Lock()
	e, err := t.lookupLocked(id)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e, e.acquire(mode)
}

// AcquireByName is Acquire via the name index.
func (t *Table) AcquireByName(key string, mode Mode) (*Entry, error) {
	t.mu.Lock()
	e, ok := t.byName[key]
	t.mu.Unlock()
	if !ok {
		return nil, evfserr.New(evfserr.ENOENT, "entry.AcquireByName", fmt.Errorf("key %q not found", key))
	}
	return e, e.acquire(mode)
}

func (e *Entry) acquire(mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch mode {
	case ModeNormal:
		if e.state != Normal {
			return evfserr.New(evfserr.EBADF, "entry.acquire", fmt.Errorf("entry %d not in Normal state", e.ID))
		}
		e.refcount++
		e.ioRefcount++
	case ModeOpen:
		e.refcount++
	case ModeBusy:
		if e.state != Normal || e.ioRefcount != 0 {
			return evfserr.New(evfserr.EBUSY, "entry.acquire", fmt.Errorf("entry %d busy or has in-flight I/O", e.ID))
		}
		e.refcount++
		e.state = Busy
	case ModeMandatory:
		if e.ioRefcount == 0 {
			e.refcount = 0
		}
	}
	return nil
}

// Release reverses the increments Acquire(mode) applied, detaching the
// entry from t if its refcount reaches zero while CloseWait.
func (t *Table) Release(e *Entry, mode Mode) error {
	var detach bool

	e.mu.Lock()
	switch mode {
	case ModeNormal:
		e.refcount--
		e.ioRefcount--
	case ModeOpen:
		e.refcount--
	case ModeBusy:
		e.refcount--
		if e.state == Busy {
			e.state = Normal
		}
	case ModeMandatory:
		// no-op: Mandatory only ever zeroes refcount on acquire.
	}
	if e.refcount < 0 {
		e.refcount = 0
	}
	if e.refcount == 0 && e.state == CloseWait {
		detach = true
	}
	e.mu.Unlock()

	if detach {
		return t.detach(e)
	}
	return nil
}

// markForDelete marks e CloseWait, records whether the final detach
// hard-removes its chain, and drops e from both the ID and name
// indices; e is detached at once if nothing holds a reference.
func (t *Table) markForDelete(e *Entry, hard bool) error {
	e.mu.Lock()
	e.state = CloseWait
	e.hardRemoveOnDetach = hard
	immediate := e.refcount == 0
	e.mu.Unlock()

	t.mu.Lock()
	delete(t.byID, e.ID)
	if e.Name != "" {
		delete(t.byName, e.Name)
	}
	t.mu.Unlock()

	if immediate {
		return t.detach(e)
	}
	return nil
}

// SoftDelete marks e CloseWait. The cluster chain stays on disk and is
// recoverable on a future Load.
func (t *Table) SoftDelete(e *Entry) error {
	return t.markForDelete(e, false)
}

// HardDelete marks e CloseWait with hard_remove_on_detach set: the
// final detach zeroes every header in the chain and frees the
// clusters.
func (t *Table) HardDelete(e *Entry) error {
	return t.markForDelete(e, true)
}

// detach finishes e's removal. If hard_remove_on_detach, every view in
// the chain has its header zeroed and returns to idle (MoveToIdle does
// this); otherwise the views stay busy and the on-disk chain is left
// intact (a future Load would re-recognize it).
func (t *Table) detach(e *Entry) error {
	if e.hardRemoveOnDetach {
		for _, el := range e.Elements {
			if err := t.views.MoveToIdle(el); err != nil {
				return err
			}
		}
		if err := t.views.MoveToIdle(e.HeadView); err != nil {
			return err
		}
	}
	return nil
}
