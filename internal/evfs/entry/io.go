package entry

import (
	"fmt"

	"github.com/nax-project/evfs/internal/evfs/view"
	"github.com/nax-project/evfs/internal/evfserr"
)

// Size returns the entry's current user-visible payload size
// (data_seg_size - NameSize).
func (e *Entry) Size() int32 {
	return e.HeadView.Header.Size() - NameSize
}

// Truncate resizes e to size user-visible bytes, per spec.md §4.4's
// Truncate algorithm: grow by batch-acquiring and linking new element
// views, shrink by freeing trailing ones.
func (t *Table) Truncate(e *Entry, size int32) error {
	if size < 0 {
		return evfserr.New(evfserr.EINVAL, "entry.Truncate", fmt.Errorf("negative size"))
	}
	if size == e.Size() {
		return nil
	}

	need := t.views.TransferSizeToClusterCount(size + NameSize)
	elemNeed := int(need) - 1
	if elemNeed < 0 {
		elemNeed = 0
	}

	switch {
	case elemNeed == len(e.Elements):
		return t.views.SetHeadDataSegSize(e.HeadView, size+NameSize)

	case elemNeed < len(e.Elements):
		trailing := e.Elements[elemNeed:]
		e.Elements = e.Elements[:elemNeed]
		for _, el := range trailing {
			if err := t.views.MoveToIdle(el); err != nil {
				return err
			}
		}
		if elemNeed == 0 {
			if err := t.views.SetNext(e.HeadView, 0); err != nil {
				return err
			}
		} else if err := t.views.SetNext(e.Elements[elemNeed-1], 0); err != nil {
			return err
		}
		return t.views.SetHeadDataSegSize(e.HeadView, size+NameSize)

	default:
		if err := t.views.SetHeadDataSegSize(e.HeadView, size+NameSize); err != nil {
			return err
		}
		addCount := elemNeed - len(e.Elements)
		var newViews []*view.View
		if err := t.views.AcquireIdleMore(addCount, &newViews); err != nil {
			return err
		}

		prev := e.HeadView
		if len(e.Elements) > 0 {
			prev = e.Elements[len(e.Elements)-1]
		}
		for _, nv := range newViews {
			if err := t.views.SetHead(nv, e.HeadView.ID); err != nil {
				return t.rollbackAcquired(newViews, err)
			}
			if err := t.views.SetNext(nv, 0); err != nil {
				return t.rollbackAcquired(newViews, err)
			}
			if err := t.views.SetNext(prev, nv.ID); err != nil {
				return t.rollbackAcquired(newViews, err)
			}
			prev = nv
		}
		e.Elements = append(e.Elements, newViews...)
		return nil
	}
}

func (t *Table) rollbackAcquired(vs []*view.View, cause error) error {
	for _, v := range vs {
		_ = t.views.MoveToIdle(v)
	}
	return cause
}

// Reserve is SPEC_FULL.md §3's promoted lock_elements pre-step: it
// truncates e up (never down) so that offset+size fits within the
// entry's current payload, the check the descriptor layer runs before
// every write.
func (t *Table) Reserve(e *Entry, offset, size int32) error {
	need := offset + size
	if need > e.Size() {
		return t.Truncate(e, need)
	}
	return nil
}

func (e *Entry) chain() []*view.View {
	return append([]*view.View{e.HeadView}, e.Elements...)
}

// Read copies up to len(buf) bytes from e starting at offset into buf,
// returning the number of bytes actually read. Reads never exceed the
// entry's current size.
func (t *Table) Read(e *Entry, buf []byte, offset int32) (int, error) {
	if offset < 0 {
		return 0, evfserr.New(evfserr.EINVAL, "entry.Read", fmt.Errorf("negative offset"))
	}
	size := e.Size()
	if offset >= size {
		return 0, nil
	}
	if offset+int32(len(buf)) > size {
		buf = buf[:size-offset]
	}
	return t.transfer(e, buf, offset, false)
}

// Write copies len(buf) bytes from buf into e starting at offset. The
// caller (the descriptor layer) is expected to have already called
// Reserve so the chain is long enough; if it hasn't, Write returns
// ENOSPC once the chain is exhausted.
func (t *Table) Write(e *Entry, buf []byte, offset int32) (int, error) {
	if offset < 0 {
		return 0, evfserr.New(evfserr.EINVAL, "entry.Write", fmt.Errorf("negative offset"))
	}
	return t.transfer(e, buf, offset, true)
}

func (t *Table) transfer(e *Entry, buf []byte, offset int32, write bool) (int, error) {
	maxSeg := t.views.MaxPreUserseg()
	realOff := offset + NameSize
	views := e.chain()

	idx := int(realOff / maxSeg)
	inner := realOff % maxSeg

	pos := 0
	remaining := len(buf)
	for remaining > 0 {
		if idx >= len(views) {
			if write {
				return pos, evfserr.New(evfserr.ENOSPC, "entry.transfer", fmt.Errorf("write extends past the entry's cluster chain"))
			}
			return pos, nil
		}
		v := views[idx]
		chunk := int(maxSeg - inner)
		if chunk > remaining {
			chunk = remaining
		}

		var err error
		if write {
			err = t.views.WriteUserdata(v, buf[pos:pos+chunk], inner, int32(chunk))
		} else {
			err = t.views.ReadUserdata(v, buf[pos:pos+chunk], inner, int32(chunk))
		}
		if err != nil {
			return pos, err
		}

		pos += chunk
		remaining -= chunk
		idx++
		inner = 0
	}
	return pos, nil
}
