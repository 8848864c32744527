// Package evfs is the descriptor/facade layer of the embedded virtual
// file system: it multiplexes user handles onto entries, owning the
// cluster volume, block cache, view table, and entry table beneath it.
// Grounded on spec.md §4.5 and on the teacher's fs.go mount-level
// object, which played the same role of owning every subordinate
// component and exposing one POSIX-like surface over them.
package evfs

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nax-project/evfs/internal/clock"
	"github.com/nax-project/evfs/internal/evfs/blockcache"
	"github.com/nax-project/evfs/internal/evfs/cluster"
	"github.com/nax-project/evfs/internal/evfs/entry"
	"github.com/nax-project/evfs/internal/evfs/view"
	"github.com/nax-project/evfs/internal/evfserr"
	"github.com/nax-project/evfs/internal/logger"
	"github.com/nax-project/evfs/internal/metrics"
	"github.com/nax-project/evfs/internal/tracing"
)

// defaultExpandClusterCount matches cfg.DefaultConfig's Volume setting
// and is the expand count Create writes into a new volume's superblock;
// Open uses the value already stored in the superblock.
const defaultExpandClusterCount = 256

// Stat is the result of QueryStat.
type Stat struct {
	ClusterCount int32
	ClusterSize  int32
	Idle         int
	Busy         int
	Entries      int
	// CacheHitRate is SPEC_FULL.md §3.1's facade-level supplement to
	// spec.md's query_stat, surfacing blockcache.Cache.HitRate so a
	// host program can observe cache effectiveness without reaching
	// into internal packages.
	CacheHitRate float64
	// CreatedUnixSeconds and FormatRevision surface the two superblock
	// reserved words SPEC_FULL.md §3.5 assigns, read back from
	// cluster.Volume.Reserved.
	CreatedUnixSeconds int32
	FormatRevision     int32
}

// EVFS is one mounted volume: the facade over Cluster/Cache/View/Entries.
type EVFS struct {
	path   string
	tracer tracing.Tracer

	vol     *cluster.Volume
	cache   *blockcache.Cache
	views   *view.Table
	entries *entry.Table
	obs     *metrics.EVFS

	mu          sync.Mutex
	descriptors Slab[*Descriptor]
	open        bool
}

// newObservability builds a Prometheus-backed metrics.EVFS off a
// private registry and meter provider, one per mounted volume: sharing
// the global Prometheus registerer across mounts would make a second
// Create/Open in the same process fail with a duplicate-collector
// error the moment both exporters registered the same instrument names.
func newObservability() (*metrics.EVFS, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, evfserr.New(evfserr.EIO, "evfs.newObservability", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m, err := metrics.New(provider.Meter("github.com/nax-project/evfs"))
	if err != nil {
		return nil, evfserr.New(evfserr.EIO, "evfs.newObservability", err)
	}
	return m, nil
}

// Create performs full initialization of a new volume at path and
// mounts it. A file already at path is replaced; Create does not check
// whether another EVFS has path open and never returns EEXIST.
func Create(path string, clusterSize, clusterCount int32, cacheCount int) (*EVFS, error) {
	vol, err := cluster.Create(path, clusterSize, clusterCount, defaultExpandClusterCount)
	if err != nil {
		return nil, err
	}
	return mount(path, vol, cacheCount, nil)
}

// Open mounts an existing volume at path, reconstructing its entry
// table from on-disk chains.
func Open(path string, cacheCount int) (*EVFS, error) {
	vol, err := cluster.Open(path)
	if err != nil {
		return nil, err
	}
	recognize, heads, wild := entry.NewRecognizer()
	return mount(path, vol, cacheCount, &mountRecognition{recognize: recognize, heads: heads, wild: wild})
}

type mountRecognition struct {
	recognize view.RawRecognizeFunc
	heads     *[]*view.View
	wild      map[int32]*view.View
}

func mount(path string, vol *cluster.Volume, cacheCount int, rec *mountRecognition) (*EVFS, error) {
	cache, err := blockcache.Init(vol, cacheCount, clock.RealClock{})
	if err != nil {
		vol.Close()
		return nil, err
	}

	var views *view.Table
	if rec == nil {
		views = view.Create(vol, cache)
	} else {
		views, err = view.Load(vol, cache, rec.recognize)
		if err != nil {
			cache.Uninit()
			vol.Close()
			return nil, err
		}
	}

	entries := entry.NewTable(views)
	if rec != nil {
		if err := entries.Reconstruct(*rec.heads, rec.wild); err != nil {
			cache.Uninit()
			vol.Close()
			return nil, err
		}
	}

	obs, err := newObservability()
	if err != nil {
		cache.Uninit()
		vol.Close()
		return nil, err
	}
	tracer := tracing.New("github.com/nax-project/evfs")
	cache.SetObservability(obs, tracer)

	logger.Infof("evfs: mounted %s (cluster_size=%d cluster_count=%d cache=%d)", path, vol.ClusterSize(), vol.ClusterCount(), cacheCount)

	return &EVFS{
		path:    path,
		tracer:  tracer,
		vol:     vol,
		cache:   cache,
		views:   views,
		entries: entries,
		obs:     obs,
		open:    true,
	}, nil
}

// Close closes every outstanding descriptor, flushes the cache, and
// releases the volume. Idempotent.
func (f *EVFS) Close() error {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return nil
	}
	f.open = false
	f.mu.Unlock()

	f.descriptors.Each(func(d *Descriptor) {
		_ = f.entries.Release(d.entry, entry.ModeOpen)
	})

	if err := f.cache.Uninit(); err != nil {
		return err
	}
	return f.vol.Close()
}

func (f *EVFS) checkOpen(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return evfserr.New(evfserr.ENODEV, op, fmt.Errorf("evfs not open"))
	}
	return nil
}

// CreateEntry creates a new named (or, if key is "", anonymous) entry
// and returns an open handle to it.
func (f *EVFS) CreateEntry(key string) (Handle, error) {
	_, span := f.tracer.StartServerSpan(context.Background(), "evfs.CreateEntry")
	defer f.tracer.EndSpan(span)

	if err := f.checkOpen("evfs.CreateEntry"); err != nil {
		return Handle{}, err
	}
	e, err := f.entries.CreateEntry(key)
	if err != nil {
		return Handle{}, err
	}
	if _, err := f.entries.Acquire(e.ID, entry.ModeOpen); err != nil {
		return Handle{}, err
	}
	h := f.descriptors.Insert(&Descriptor{entry: e})
	if f.obs != nil {
		f.obs.OpenEntries.Add(context.Background(), 1)
		f.obs.OpenDescriptors.Add(context.Background(), 1)
	}
	return h, nil
}

// OpenEntry returns a fresh handle to the entry named by entryID, with
// its own offset initialized to 0.
func (f *EVFS) OpenEntry(entryID int32) (Handle, error) {
	if err := f.checkOpen("evfs.OpenEntry"); err != nil {
		return Handle{}, err
	}
	e, err := f.entries.Acquire(entryID, entry.ModeOpen)
	if err != nil {
		return Handle{}, err
	}
	h := f.descriptors.Insert(&Descriptor{entry: e})
	if f.obs != nil {
		f.obs.OpenDescriptors.Add(context.Background(), 1)
	}
	return h, nil
}

// OpenEntryByKey is OpenEntry via the name index.
func (f *EVFS) OpenEntryByKey(key string) (Handle, error) {
	if err := f.checkOpen("evfs.OpenEntryByKey"); err != nil {
		return Handle{}, err
	}
	e, err := f.entries.AcquireByName(key, entry.ModeOpen)
	if err != nil {
		return Handle{}, err
	}
	h := f.descriptors.Insert(&Descriptor{entry: e})
	if f.obs != nil {
		f.obs.OpenDescriptors.Add(context.Background(), 1)
	}
	return h, nil
}

// EntryID returns the entry ID (equal to its head cluster's ID)
// h refers to.
func (f *EVFS) EntryID(h Handle) (int32, error) {
	d, err := f.descriptor(h)
	if err != nil {
		return 0, err
	}
	return d.entry.ID, nil
}

func (f *EVFS) descriptor(h Handle) (*Descriptor, error) {
	d, ok := f.descriptors.Get(h)
	if !ok {
		return nil, evfserr.New(evfserr.EBADF, "evfs.descriptor", fmt.Errorf("stale or unknown handle"))
	}
	return d, nil
}

// WriteEntry writes buf at h's current offset, pre-extending the entry
// as needed, and advances the offset by the number of bytes written.
func (f *EVFS) WriteEntry(h Handle, buf []byte) (int, error) {
	_, span := f.tracer.StartSpan(context.Background(), "evfs.WriteEntry")
	defer f.tracer.EndSpan(span)

	d, err := f.descriptor(h)
	if err != nil {
		return 0, err
	}
	// spec.md §4.4's Request-mode table gates in-flight I/O through
	// ModeNormal's io_refcount bump, which ModeBusy's Truncate checks
	// before proceeding.
	if _, err := f.entries.Acquire(d.entry.ID, entry.ModeNormal); err != nil {
		return 0, err
	}
	defer f.entries.Release(d.entry, entry.ModeNormal)

	if err := f.entries.Reserve(d.entry, d.offset, int32(len(buf))); err != nil {
		return 0, err
	}
	n, err := f.entries.Write(d.entry, buf, d.offset)
	d.offset += int32(n)
	return n, err
}

// ReadEntry reads into buf at h's current offset, bounded by the
// entry's current size, and advances the offset by the number of
// bytes read.
func (f *EVFS) ReadEntry(h Handle, buf []byte) (int, error) {
	d, err := f.descriptor(h)
	if err != nil {
		return 0, err
	}
	if _, err := f.entries.Acquire(d.entry.ID, entry.ModeNormal); err != nil {
		return 0, err
	}
	defer f.entries.Release(d.entry, entry.ModeNormal)

	n, err := f.entries.Read(d.entry, buf, d.offset)
	d.offset += int32(n)
	return n, err
}

// Seek repositions h's cursor to offset.
func (f *EVFS) Seek(h Handle, offset int32) error {
	d, err := f.descriptor(h)
	if err != nil {
		return err
	}
	if offset < 0 {
		return evfserr.New(evfserr.EINVAL, "evfs.Seek", fmt.Errorf("negative offset"))
	}
	d.offset = offset
	return nil
}

// Truncate resizes h's entry to size bytes. Runs under a Busy
// reference, spec.md §4.4: "All of the above runs under a Busy
// reference," which fails with EBUSY if any ModeNormal I/O is already
// in flight on the same entry.
func (f *EVFS) Truncate(h Handle, size int32) error {
	d, err := f.descriptor(h)
	if err != nil {
		return err
	}
	if _, err := f.entries.Acquire(d.entry.ID, entry.ModeBusy); err != nil {
		return err
	}
	defer f.entries.Release(d.entry, entry.ModeBusy)

	return f.entries.Truncate(d.entry, size)
}

// Flush writes back every dirty cache block touched by h's entry (in
// practice, every dirty block: the cache is shared across entries).
func (f *EVFS) Flush(h Handle) error {
	_, span := f.tracer.StartSpan(context.Background(), "evfs.Flush")
	defer f.tracer.EndSpan(span)

	if _, err := f.descriptor(h); err != nil {
		return err
	}
	return f.cache.Flush(false)
}

// Erase hard-deletes h's entry: once the last reference is released,
// its clusters are zeroed and returned to the idle pool.
func (f *EVFS) Erase(h Handle) error {
	d, err := f.descriptor(h)
	if err != nil {
		return err
	}
	return f.entries.HardDelete(d.entry)
}

// EraseByName hard-deletes the entry named key.
func (f *EVFS) EraseByName(key string) error {
	e, err := f.entries.AcquireByName(key, entry.ModeOpen)
	if err != nil {
		return err
	}
	if err := f.entries.HardDelete(e); err != nil {
		return err
	}
	return f.entries.Release(e, entry.ModeOpen)
}

// CloseEntry releases h, closing it once its refcount reaches zero.
func (f *EVFS) CloseEntry(h Handle) error {
	d, err := f.descriptor(h)
	if err != nil {
		return err
	}
	f.descriptors.Remove(h)
	if f.obs != nil {
		f.obs.OpenDescriptors.Add(context.Background(), -1)
	}
	return f.entries.Release(d.entry, entry.ModeOpen)
}

// IterateEntries snapshots every Normal-state entry and returns an
// iterator handle to walk it.
func (f *EVFS) IterateEntries() *Iterator {
	it := &Iterator{magic: iteratorMagic, id: uuid.New(), items: f.entries.Iterate()}
	return it
}

// ReleaseIterator invalidates it, after which further Next calls fail
// with EINVAL.
func (f *EVFS) ReleaseIterator(it *Iterator) error {
	if err := it.checkMagic("evfs.ReleaseIterator"); err != nil {
		return err
	}
	it.magic = 0
	return nil
}

// CacheHardState reports the block cache's internal population, the
// "hard_state" spec.md §4.2 distinguishes from the facade-level
// QueryStat: idle/busy/dirty block counts and running hit/miss totals.
func (f *EVFS) CacheHardState() blockcache.Stats {
	return f.cache.HardState()
}

// QueryStat reports the volume's current population.
func (f *EVFS) QueryStat() Stat {
	vs := f.views.Stats()
	return Stat{
		ClusterCount:       f.vol.ClusterCount(),
		ClusterSize:        f.vol.ClusterSize(),
		Idle:               vs.Idle,
		Busy:               vs.Busy,
		Entries:            f.entries.Count(),
		CacheHitRate:       f.cache.HitRate(),
		CreatedUnixSeconds: f.vol.Reserved(cluster.ReservedCreatedUnixSeconds),
		FormatRevision:     f.vol.Reserved(cluster.ReservedFormatRevision),
	}
}
