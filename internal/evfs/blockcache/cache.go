// Package blockcache implements EVFS's write-back LRU cache over
// cluster.Volume, with a single background goroutine owning the block
// map and performing all disk I/O, grounded on spec.md §4.2 and §5's
// concurrency model and on the teacher's worker-pool pattern
// (golang.org/x/sync/errgroup managing a fixed background goroutine,
// the same shape gcsfuse's prefetch pipeline used for its single
// reader goroutine per handle) plus internal/clock.Clock for
// deterministic autoflush testing (SimulatedClock, adapted from the
// teacher's clock package).
package blockcache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nax-project/evfs/internal/clock"
	"github.com/nax-project/evfs/internal/evfs/cluster"
	"github.com/nax-project/evfs/internal/evfserr"
	"github.com/nax-project/evfs/internal/logger"
	"github.com/nax-project/evfs/internal/metrics"
	"github.com/nax-project/evfs/internal/tracing"
)

// queueCapacity is the background thread queue's bound, spec.md §4.2:
// "The background thread queue is capped at 160 pending tasks."
const queueCapacity = 160

// Autoflush thresholds, spec.md §4.2: the same three-tier schedule as
// a well-known in-memory store's snapshot policy.
const (
	autoflushWaitTimeout = 5 * time.Second

	tier1Writes = 10000
	tier1Delta  = 60 * time.Second
	tier2Writes = 10
	tier2Delta  = 300 * time.Second
	tier3Writes = 1
	tier3Delta  = 900 * time.Second
)

// Cache is a bounded write-back LRU cache over a cluster.Volume. All
// block-map mutation happens on a single background goroutine; public
// methods only enqueue tasks and wait (or not, for no-wait variants).
type Cache struct {
	vol         *cluster.Volume
	clusterSize int32
	cacheCount  int
	clk         clock.Clock

	mu    sync.Mutex
	queue taskQueue[*task]

	idle     []*block
	lru      *list.List
	lruIndex map[int32]*list.Element
	dirty    map[int32]*list.Element

	hits, misses     int64
	writesSinceFlush int
	lastFlush        time.Time

	signal chan struct{}
	stopCh chan struct{}
	grp    *errgroup.Group

	// obs and tracer are nil unless SetObservability is called; every
	// use below is guarded accordingly so a bare Init (as every existing
	// test uses) stays exactly as cheap as before.
	obs    *metrics.EVFS
	tracer tracing.Tracer
}

// Stats is a point-in-time snapshot for query_stat/hard_state.
type Stats struct {
	Idle, Busy, Dirty int
	Hits, Misses      int64
}

// Init mounts a Cache over vol with cacheCount buffers. cacheCount == 0
// disables caching: all operations bypass straight to the volume under
// Cache's own mutex, per spec.md §4.2.
func Init(vol *cluster.Volume, cacheCount int, clk clock.Clock) (*Cache, error) {
	if vol == nil {
		return nil, evfserr.New(evfserr.ENODEV, "blockcache.Init", errors.New("nil volume"))
	}
	if cacheCount < 0 {
		return nil, evfserr.New(evfserr.EINVAL, "blockcache.Init", errors.New("negative cache_cluster_count"))
	}
	if clk == nil {
		clk = clock.RealClock{}
	}

	c := &Cache{
		vol:         vol,
		clusterSize: vol.ClusterSize(),
		cacheCount:  cacheCount,
		clk:         clk,
		queue:       newTaskQueue[*task](queueCapacity),
		lru:         list.New(),
		lruIndex:    make(map[int32]*list.Element),
		dirty:       make(map[int32]*list.Element),
		signal:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		lastFlush:   clk.Now(),
	}
	if cacheCount > 0 {
		c.AddBlock(cacheCount)
	}
	// The background goroutine runs even when caching is disabled: it
	// is what actually executes the cacheCount==0 bypass-to-disk path
	// in execute(), keeping all volume access on one goroutine as
	// spec.md §4.1 requires regardless of whether blocks are cached.
	c.grp = &errgroup.Group{}
	c.grp.Go(func() error {
		c.run()
		return nil
	})
	return c, nil
}

// SetObservability wires m and t into the cache's hit/miss counters,
// dirty-block gauge, flush-latency histogram, and per-task-execution
// spans (SPEC_FULL.md's domain-stack wiring for internal/metrics and
// internal/tracing). Call once, before concurrent use begins.
func (c *Cache) SetObservability(m *metrics.EVFS, t tracing.Tracer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs = m
	c.tracer = t
}

// AddBlock grows the idle pool by n fresh buffers.
func (c *Cache) AddBlock(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.idle = append(c.idle, &block{state: stateIdle, data: make([]byte, c.clusterSize)})
	}
}

// Uninit flushes all dirty blocks and stops the background goroutine.
// Idempotent.
func (c *Cache) Uninit() error {
	select {
	case <-c.stopCh:
		// already stopped
		return nil
	default:
	}
	if c.cacheCount > 0 {
		if err := c.Flush(false); err != nil {
			return err
		}
	}
	close(c.stopCh)
	_ = c.grp.Wait()
	return nil
}

func (c *Cache) submit(t *task) error {
	if t.done == nil {
		t.done = make(chan struct{})
	}
	c.mu.Lock()
	ok := c.queue.Push(t)
	c.mu.Unlock()
	if !ok {
		return evfserr.New(evfserr.ENOMEM, "blockcache.submit", errors.New("background task queue full"))
	}
	select {
	case c.signal <- struct{}{}:
	default:
	}
	if t.noWait {
		return nil
	}
	<-t.done
	return t.status
}

func (c *Cache) popTask() (*task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.IsEmpty() {
		return nil, false
	}
	return c.queue.Pop(), true
}

func (c *Cache) run() {
	for {
		for {
			t, ok := c.popTask()
			if !ok {
				break
			}
			c.execute(t)
			c.maybeAutoflush()
		}

		select {
		case <-c.stopCh:
			for {
				t, ok := c.popTask()
				if !ok {
					return
				}
				c.execute(t)
			}
		case <-c.signal:
		case <-c.clk.After(autoflushWaitTimeout):
			c.maybeAutoflush()
		}
	}
}

// execute runs t's operation under c.mu, the same mutex submit/popTask
// use for the task queue, so HitRate/HardState's reads of c.hits,
// c.misses, c.idle, c.lru, c.dirty are always synchronized with the
// background goroutine's mutations of them, per spec.md §5's "one
// mutex guards the task queue and the background thread's counters".
func (c *Cache) execute(t *task) {
	if c.tracer != nil {
		ctx, span := c.tracer.StartSpan(context.Background(), "blockcache.execute."+t.op.String())
		defer c.tracer.EndSpan(span)
		_ = ctx
	}
	c.mu.Lock()
	switch t.op {
	case opRead:
		t.status = c.doRead(t.clusterID, t.buffer, t.offset, t.length)
	case opReadUserdata:
		t.status = c.doRead(t.clusterID, t.buffer, cluster.HeaderSize+t.offset, t.length)
	case opReadHead:
		t.resultHeader, t.status = c.doReadHead(t.clusterID)
	case opReadDirectly:
		t.status = c.vol.ReadCluster(t.clusterID, t.buffer)
	case opReadHeadDirectly:
		t.resultHeader, t.status = c.vol.ReadClusterHead(t.clusterID)
	case opWrite:
		t.status = c.doWrite(t.clusterID, t.buffer, t.offset, t.length)
	case opWriteUserdata:
		t.status = c.doWrite(t.clusterID, t.buffer, cluster.HeaderSize+t.offset, t.length)
	case opWriteHead:
		t.status = c.doWriteHead(t.clusterID, t.header)
	case opWriteDirectly:
		t.status = c.vol.WriteCluster(t.clusterID, t.buffer)
	case opFlush:
		t.status = c.doFlushAll()
	case opFlushBlock:
		t.status = c.doFlushBlock(t.clusterID)
	}
	c.mu.Unlock()
	close(t.done)
}

func (c *Cache) lookupForRead(id int32) (*block, error) {
	if el, ok := c.lruIndex[id]; ok {
		c.lru.MoveToBack(el)
		c.hits++
		if c.obs != nil {
			c.obs.CacheHits.Add(context.Background(), 1)
		}
		return el.Value.(*block), nil
	}
	c.misses++
	if c.obs != nil {
		c.obs.CacheMisses.Add(context.Background(), 1)
	}

	var b *block
	if len(c.idle) > 0 {
		b = c.idle[len(c.idle)-1]
		c.idle = c.idle[:len(c.idle)-1]
	} else {
		front := c.lru.Front()
		if front == nil {
			return nil, evfserr.New(evfserr.ENOMEM, "blockcache.lookupForRead", errors.New("no cache blocks available"))
		}
		b = front.Value.(*block)
		delete(c.lruIndex, b.clusterID)
		if b.state == stateDirty {
			if err := c.vol.WriteCluster(b.clusterID, b.data); err != nil {
				c.lru.Remove(front)
				c.idle = append(c.idle, b)
				return nil, err
			}
			delete(c.dirty, b.clusterID)
		}
		c.lru.Remove(front)
	}

	if err := c.vol.ReadCluster(id, b.data); err != nil {
		b.state = stateIdle
		c.idle = append(c.idle, b)
		return nil, err
	}
	b.clusterID = id
	b.state = stateClean
	el := c.lru.PushBack(b)
	c.lruIndex[id] = el
	return b, nil
}

func (c *Cache) markDirty(id int32, el *list.Element) {
	b := el.Value.(*block)
	wasDirty := b.state == stateDirty
	b.state = stateDirty
	c.dirty[id] = el
	c.writesSinceFlush++
	if c.obs != nil && !wasDirty {
		c.obs.DirtyBlocks.Add(context.Background(), 1)
	}
}

func (c *Cache) lookupForWrite(id int32) (*block, error) {
	if el, ok := c.lruIndex[id]; ok {
		c.lru.MoveToBack(el)
		c.hits++
		if c.obs != nil {
			c.obs.CacheHits.Add(context.Background(), 1)
		}
		c.markDirty(id, el)
		return el.Value.(*block), nil
	}
	b, err := c.lookupForRead(id)
	if err != nil {
		return nil, err
	}
	el, ok := c.lruIndex[id]
	if !ok {
		return nil, evfserr.New(evfserr.EIO, "blockcache.lookupForWrite", errors.New("block vanished after fault-in"))
	}
	c.markDirty(id, el)
	return b, nil
}

func (c *Cache) doRead(id int32, buf []byte, off, length int32) error {
	if off < 0 || length < 0 || off+length > c.clusterSize {
		return evfserr.New(evfserr.EINVAL, "blockcache.Read", errors.New("offset/length out of range"))
	}
	if c.cacheCount == 0 {
		full := make([]byte, c.clusterSize)
		if err := c.vol.ReadCluster(id, full); err != nil {
			return err
		}
		copy(buf, full[off:off+length])
		return nil
	}
	b, err := c.lookupForRead(id)
	if err != nil {
		return err
	}
	copy(buf, b.data[off:off+length])
	return nil
}

func (c *Cache) doWrite(id int32, buf []byte, off, length int32) error {
	if off < 0 || length < 0 || off+length > c.clusterSize {
		return evfserr.New(evfserr.EINVAL, "blockcache.Write", errors.New("offset/length out of range"))
	}
	if c.cacheCount == 0 {
		full := make([]byte, c.clusterSize)
		if err := c.vol.ReadCluster(id, full); err != nil {
			return err
		}
		copy(full[off:off+length], buf)
		return c.vol.WriteCluster(id, full)
	}
	b, err := c.lookupForWrite(id)
	if err != nil {
		return err
	}
	copy(b.data[off:off+length], buf)
	return nil
}

func (c *Cache) doReadHead(id int32) (cluster.Header, error) {
	var h cluster.Header
	if c.cacheCount == 0 {
		return c.vol.ReadClusterHead(id)
	}
	b, err := c.lookupForRead(id)
	if err != nil {
		return h, err
	}
	h.DataSegSize = int32FromLE(b.data[0:4])
	h.NextCluster = int32FromLE(b.data[4:8])
	h.HeadCluster = int32FromLE(b.data[8:12])
	return h, nil
}

func (c *Cache) doWriteHead(id int32, h cluster.Header) error {
	buf := make([]byte, cluster.HeaderSize)
	putInt32LE(buf[0:4], h.DataSegSize)
	putInt32LE(buf[4:8], h.NextCluster)
	putInt32LE(buf[8:12], h.HeadCluster)
	return c.doWrite(id, buf, 0, cluster.HeaderSize)
}

func (c *Cache) doFlushBlock(id int32) error {
	el, ok := c.dirty[id]
	if !ok {
		return nil
	}
	b := el.Value.(*block)
	if err := c.vol.WriteCluster(b.clusterID, b.data); err != nil {
		return err
	}
	b.state = stateClean
	delete(c.dirty, id)
	if c.obs != nil {
		c.obs.DirtyBlocks.Add(context.Background(), -1)
	}
	return nil
}

func (c *Cache) doFlushAll() error {
	start := c.clk.Now()
	for id := range c.dirty {
		if err := c.doFlushBlock(id); err != nil {
			return err
		}
	}
	c.writesSinceFlush = 0
	c.lastFlush = c.clk.Now()
	if c.obs != nil {
		c.obs.FlushLatency.Record(context.Background(), float64(c.lastFlush.Sub(start).Milliseconds()))
	}
	return nil
}

func (c *Cache) maybeAutoflush() {
	if c.cacheCount == 0 || c.writesSinceFlush == 0 {
		return
	}
	delta := c.clk.Now().Sub(c.lastFlush)
	trigger := (c.writesSinceFlush >= tier1Writes && delta >= tier1Delta) ||
		(c.writesSinceFlush >= tier2Writes && delta >= tier2Delta) ||
		(c.writesSinceFlush >= tier3Writes && delta >= tier3Delta)
	if trigger {
		if err := c.doFlushAll(); err != nil {
			logger.Errorf("blockcache: autoflush failed: %v", err)
		}
	}
}

func int32FromLE(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func putInt32LE(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
