package entry

import (
	"github.com/nax-project/evfs/internal/evfs/view"
	"github.com/nax-project/evfs/internal/logger"
)

// NewRecognizer returns the view.RawRecognizeFunc Entries registers
// with view.Load: it partitions every busy cluster into heads (MSB set
// on data_seg_size) and a wild element list (everything else), per
// spec.md §4.4's "Construction at load".
func NewRecognizer() (recognize view.RawRecognizeFunc, heads *[]*view.View, wild map[int32]*view.View) {
	h := make([]*view.View, 0)
	w := make(map[int32]*view.View)
	fn := func(v *view.View) {
		if v.Header.IsHead() {
			h = append(h, v)
		} else {
			w[v.ID] = v
		}
	}
	return fn, &h, w
}

// Reconstruct walks each head's next_cluster_id chain through the wild
// element list, claiming elements in order. A missing link is treated
// as corruption local to that entry: the entry is hard-removed rather
// than failing the whole mount. Any wild elements left unclaimed after
// every head has been walked are returned to idle.
func (t *Table) Reconstruct(heads []*view.View, wild map[int32]*view.View) error {
	for _, head := range heads {
		name, err := t.readName(head)
		corrupt := err != nil

		var elements []*view.View
		if !corrupt {
			next := head.Header.NextCluster
			for next != 0 {
				el, ok := wild[next]
				if !ok {
					corrupt = true
					break
				}
				delete(wild, next)
				elements = append(elements, el)
				next = el.Header.NextCluster
			}
		}

		e := &Entry{ID: head.ID, Name: name, HeadView: head, Elements: elements, state: Normal}
		if corrupt {
			e.hardRemoveOnDetach = true
			e.state = CloseWait
		}

		t.mu.Lock()
		if corrupt {
			t.mu.Unlock()
			logger.Warnf("entry: corrupt chain at head cluster %d, removing entry", head.ID)
			if err := t.detach(e); err != nil {
				return err
			}
			continue
		}
		if e.Name != "" {
			if _, exists := t.byName[e.Name]; !exists {
				t.byName[e.Name] = e
			} else {
				e.Name = ""
			}
			// A name collision among on-disk entries is itself
			// corruption; the earlier entry wins and this one falls
			// back to anonymous rather than losing its data.
		}
		t.byID[e.ID] = e
		t.order = append(t.order, e.ID)
		t.mu.Unlock()
	}

	for id, v := range wild {
		if err := t.views.MoveToIdle(v); err != nil {
			return err
		}
		delete(wild, id)
	}
	return nil
}

func (t *Table) readName(head *view.View) (string, error) {
	buf := make([]byte, NameSize)
	if err := t.views.ReadUserdata(head, buf, 0, NameSize); err != nil {
		return "", err
	}
	return decodeName(buf), nil
}
