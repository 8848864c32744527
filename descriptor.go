package evfs

import "github.com/nax-project/evfs/internal/evfs/entry"

// Descriptor is a user-facing handle over an entry, carrying its own
// byte cursor — spec.md §3's "multiple descriptors over one entry each
// carry their own cursor."
type Descriptor struct {
	entry  *entry.Entry
	offset int32
}
