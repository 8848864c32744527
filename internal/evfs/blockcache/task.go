package blockcache

import "github.com/nax-project/evfs/internal/evfs/cluster"

type opKind int

const (
	opRead opKind = iota
	opReadHead
	opReadUserdata
	opReadDirectly
	opReadHeadDirectly
	opWrite
	opWriteHead
	opWriteUserdata
	opWriteDirectly
	opFlush
	opFlushBlock
)

var opKindNames = map[opKind]string{
	opRead:             "read",
	opReadHead:         "read_head",
	opReadUserdata:     "read_userdata",
	opReadDirectly:     "read_directly",
	opReadHeadDirectly: "read_head_directly",
	opWrite:            "write",
	opWriteHead:        "write_head",
	opWriteUserdata:    "write_userdata",
	opWriteDirectly:    "write_directly",
	opFlush:            "flush",
	opFlushBlock:       "flush_block",
}

func (k opKind) String() string {
	if name, ok := opKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// task is the unit the background thread dequeues and executes,
// grounded on spec.md §4.2's "Request lifecycle": every public call
// builds one of these, pushes it onto the thread's queue, and either
// waits on done or returns immediately when noWait is set.
type task struct {
	op        opKind
	clusterID int32
	offset    int32
	length    int32
	buffer    []byte
	header    cluster.Header
	all       bool
	noWait    bool

	done   chan struct{}
	status error

	resultHeader cluster.Header
}
