package evfs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/nax-project/evfs/internal/evfs/entry"
	"github.com/nax-project/evfs/internal/evfserr"
)

// iteratorMagic tags live iterators, spec.md §4.5: "Magic constant
// 'retI' tags iterators to catch misuse". SPEC_FULL.md §2 pairs it
// with a per-iterator uuid (github.com/google/uuid, the teacher's
// handle-naming dependency) recorded at creation; Next and
// ReleaseIterator check only the magic, not the uuid.
const iteratorMagic = 0x72657449 // 'I' 't' 'e' 'r' read little-endian, i.e. "retI"

// Iterator snapshots the entry table at IterateEntries time and is
// walked with Next.
type Iterator struct {
	magic uint32
	id    uuid.UUID
	items []entry.Snapshot
	pos   int
}

func (it *Iterator) checkMagic(op string) error {
	if it == nil || it.magic != iteratorMagic {
		return evfserr.New(evfserr.EINVAL, op, fmt.Errorf("not a live iterator"))
	}
	return nil
}

// Next advances the iterator and returns the next entry snapshot, or
// ok=false once exhausted.
func (it *Iterator) Next() (entry.Snapshot, bool, error) {
	if err := it.checkMagic("evfs.Iterator.Next"); err != nil {
		return entry.Snapshot{}, false, err
	}
	if it.pos >= len(it.items) {
		return entry.Snapshot{}, false, nil
	}
	s := it.items[it.pos]
	it.pos++
	return s, true, nil
}
