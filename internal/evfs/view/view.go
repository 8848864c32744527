// Package view wraps every cluster of a volume in a stable in-memory
// object and owns the free-cluster pool, grounded on spec.md §4.3.
// List membership is tracked without the original's intrusive lists
// (spec.md §9's redesign note): idle views sit in a slice used as a
// stack, filled in ascending id order and popped from the end, while
// busy views and the id index are Go maps; golang.org/x/sync/semaphore bounds concurrent
// batch acquisition attempts the way gcsfuse's read-ahead pipeline
// bounds concurrent prefetch slots.
package view

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/nax-project/evfs/internal/evfs/blockcache"
	"github.com/nax-project/evfs/internal/evfs/cluster"
	"github.com/nax-project/evfs/internal/evfserr"
	"github.com/nax-project/evfs/internal/lockutil"
)

// Membership is a view's current pool membership.
type Membership int

const (
	Idle Membership = iota
	Busy
)

// View is the in-memory handle for exactly one on-disk cluster.
type View struct {
	ID         int32
	Header     cluster.Header
	Membership Membership
}

// RawRecognizeFunc is invoked once per cluster whose on-disk header
// "looks busy" during Load, the hook Entries uses to reconstruct
// chains.
type RawRecognizeFunc func(v *View)

// Table owns every view in a volume plus the idle/busy partition.
type Table struct {
	cache       *blockcache.Cache
	vol         *cluster.Volume
	maxPreUser  int32

	mu    lockutil.InvariantMutex
	views map[int32]*View
	idle  []int32
	busy  map[int32]struct{}

	acquireSem *semaphore.Weighted
}

// Create allocates one view per cluster (2..cluster_count) of a freshly
// created, empty volume — every view starts idle.
func Create(vol *cluster.Volume, cache *blockcache.Cache) *Table {
	t := newTable(vol, cache)
	for id := int32(2); id <= vol.ClusterCount(); id++ {
		t.views[id] = &View{ID: id, Membership: Idle}
		t.idle = append(t.idle, id)
	}
	return t
}

// Load mounts views for an existing volume, reading every cluster's
// header directly (bypassing the cache, which is not warm yet) and
// invoking recognize for each cluster whose header "looks busy": MSB
// of data_seg_size set, or head_cluster_id > 0.
func Load(vol *cluster.Volume, cache *blockcache.Cache, recognize RawRecognizeFunc) (*Table, error) {
	t := newTable(vol, cache)
	for id := int32(2); id <= vol.ClusterCount(); id++ {
		h, err := cache.ReadHeadDirectly(id)
		if err != nil {
			return nil, err
		}
		v := &View{ID: id, Header: h}
		t.views[id] = v

		if h.IsHead() || h.HeadCluster > 0 {
			v.Membership = Busy
			t.busy[id] = struct{}{}
			if recognize != nil {
				recognize(v)
			}
		} else {
			v.Membership = Idle
			t.idle = append(t.idle, id)
		}
	}
	return t, nil
}

func newTable(vol *cluster.Volume, cache *blockcache.Cache) *Table {
	return &Table{
		cache:      cache,
		vol:        vol,
		maxPreUser: vol.MaxPreUserseg(),
		views:      make(map[int32]*View),
		busy:       make(map[int32]struct{}),
		acquireSem: semaphore.NewWeighted(1),
	}
}

// MaxPreUserseg is cluster_size-12, the per-cluster user payload.
func (t *Table) MaxPreUserseg() int32 { return t.maxPreUser }

// Get returns the view for id, or nil if id is out of range.
func (t *Table) Get(id int32) *View {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.views[id]
}

// Stats reports the idle/busy split, spec.md §8 property 1.
type Stats struct {
	Idle, Busy int
}

func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Idle: len(t.idle), Busy: len(t.busy)}
}

// AcquireIdle pops a single view from the idle pool, expanding the
// volume first if the pool is empty.
func (t *Table) AcquireIdle() (*View, error) {
	out := make([]*View, 0, 1)
	if err := t.AcquireIdleMore(1, &out); err != nil {
		return nil, err
	}
	return out[0], nil
}

// AcquireIdleMore pops n views from the idle pool atomically: either
// all n are returned or every partial acquisition is rolled back. On
// shortage, it triggers a volume expand and retries once.
func (t *Table) AcquireIdleMore(n int, out *[]*View) error {
	if n <= 0 {
		return evfserr.New(evfserr.EINVAL, "view.AcquireIdleMore", fmt.Errorf("n must be positive"))
	}
	_ = t.acquireSem.Acquire(context.Background(), 1)
	defer t.acquireSem.Release(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.idle) < n {
		if err := t.expandLocked(); err != nil {
			return err
		}
	}
	if len(t.idle) < n {
		return evfserr.New(evfserr.ENOSPC, "view.AcquireIdleMore", fmt.Errorf("idle pool exhausted"))
	}

	acquired := make([]*View, 0, n)
	for i := 0; i < n; i++ {
		id := t.idle[len(t.idle)-1]
		t.idle = t.idle[:len(t.idle)-1]
		v := t.views[id]
		v.Membership = Busy
		t.busy[id] = struct{}{}
		acquired = append(acquired, v)
	}
	*out = append(*out, acquired...)
	return nil
}

func (t *Table) expandLocked() error {
	firstNew, err := t.vol.Expand()
	if err != nil {
		return err
	}
	for id := firstNew; id <= t.vol.ClusterCount(); id++ {
		v := &View{ID: id, Membership: Idle}
		t.views[id] = v
		t.idle = append(t.idle, id)
	}
	return nil
}

// MoveToIdle zeroes v's header, writes it through the cache, and moves
// v from busy to idle.
func (t *Table) MoveToIdle(v *View) error {
	v.Header = cluster.Header{}
	if err := t.cache.WriteHead(v.ID, v.Header); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.busy, v.ID)
	v.Membership = Idle
	t.idle = append(t.idle, v.ID)
	return nil
}

// Flush writes back v's header if it has been mutated without an
// explicit WriteHead call; EVFS always calls WriteHead as part of each
// mutator, so Flush here degrades to FlushBlock on the cache.
func (t *Table) Flush(v *View, noWait bool) error {
	return t.cache.FlushBlock(v.ID, noWait)
}

// WriteHead persists v.Header through the cache.
func (t *Table) WriteHead(v *View) error {
	return t.cache.WriteHead(v.ID, v.Header)
}

// ReadUserdata reads length bytes from v's user area at off (relative
// to the first byte past the 12-byte header).
func (t *Table) ReadUserdata(v *View, buf []byte, off, length int32) error {
	return t.cache.ReadUserdata(v.ID, buf, off, length)
}

// WriteUserdata writes length bytes into v's user area at off.
func (t *Table) WriteUserdata(v *View, buf []byte, off, length int32) error {
	return t.cache.WriteUserdata(v.ID, buf, off, length)
}

// SetNext sets v's next_cluster_id and persists the header.
func (t *Table) SetNext(v *View, next int32) error {
	v.Header.NextCluster = next
	return t.WriteHead(v)
}

// SetHead sets v's head_cluster_id and persists the header.
func (t *Table) SetHead(v *View, head int32) error {
	v.Header.HeadCluster = head
	return t.WriteHead(v)
}

// SetHeadDataSegSize applies the MSB head convention to size and
// persists the header.
func (t *Table) SetHeadDataSegSize(v *View, size int32) error {
	v.Header.DataSegSize = cluster.PackHeadSize(size)
	return t.WriteHead(v)
}

// SetElementDataSegSize sets an element view's data_seg_size without
// the head MSB. EVFS element clusters don't carry a meaningful size of
// their own on disk (the head's size is authoritative, per spec.md
// §4.4's Truncate math) so this setter records the value in memory for
// debug/hard_state purposes and is otherwise a no-op on disk — the
// Open Question spec.md leaves unresolved; see DESIGN.md.
func (t *Table) SetElementDataSegSize(v *View, size int32) {
	v.Header.DataSegSize = size &^ (int32(1) << 31)
}

// TransferSizeToClusterCount computes ceil(bytes / max_pre_userseg).
func (t *Table) TransferSizeToClusterCount(bytes int32) int32 {
	if bytes <= 0 {
		return 0
	}
	return (bytes + t.maxPreUser - 1) / t.maxPreUser
}
