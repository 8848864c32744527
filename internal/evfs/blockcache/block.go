package blockcache

// state is a cache block's membership/dirtiness, spec.md §4.2.
type state int

const (
	stateIdle state = iota
	stateClean
	stateDirty
	stateUnknown
)

// block is one fixed-size cache buffer, bound to at most one cluster ID
// at a time. Its list membership (idle/lru/dirty) is tracked externally
// by Cache via container/list elements and a lruIndex/dirty map — the
// "ordered map" replacement spec.md §9 calls for in place of the
// original's intrusive list pointers.
type block struct {
	clusterID int32
	state     state
	data      []byte
}
