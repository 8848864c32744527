package blockcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nax-project/evfs/internal/clock"
	"github.com/nax-project/evfs/internal/evfs/cluster"
)

func newVolume(t *testing.T, clusterSize, clusterCount int32) *cluster.Volume {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v")
	v, err := cluster.Create(path, clusterSize, clusterCount, 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestWriteThenReadHitsCache(t *testing.T) {
	v := newVolume(t, 128, 64)
	c, err := Init(v, 4, clock.RealClock{})
	require.NoError(t, err)
	defer c.Uninit()

	payload := []byte("hello")
	require.NoError(t, c.WriteUserdata(2, payload, 0, int32(len(payload))))

	buf := make([]byte, len(payload))
	require.NoError(t, c.ReadUserdata(2, buf, 0, int32(len(payload))))
	assert.Equal(t, payload, buf)
	assert.Greater(t, c.HitRate(), 0.0)
}

func TestFlushPersistsDirtyBlocks(t *testing.T) {
	v := newVolume(t, 128, 64)
	c, err := Init(v, 2, clock.RealClock{})
	require.NoError(t, err)

	payload := []byte("persisted")
	require.NoError(t, c.WriteUserdata(5, payload, 0, int32(len(payload))))
	require.NoError(t, c.Flush(false))
	require.NoError(t, c.Uninit())

	raw := make([]byte, 128)
	require.NoError(t, v.ReadCluster(5, raw))
	assert.Equal(t, payload, raw[cluster.HeaderSize:cluster.HeaderSize+len(payload)])
}

func TestEvictionFlushesDirtyBlockFirst(t *testing.T) {
	v := newVolume(t, 128, 64)
	c, err := Init(v, 1, clock.RealClock{})
	require.NoError(t, err)
	defer c.Uninit()

	payload := []byte("evictme")
	require.NoError(t, c.WriteUserdata(2, payload, 0, int32(len(payload))))

	// Touching a second cluster with only one cache block forces
	// eviction of cluster 2's dirty block.
	other := make([]byte, 4)
	require.NoError(t, c.ReadUserdata(3, other, 0, 4))

	raw := make([]byte, 128)
	require.NoError(t, v.ReadCluster(2, raw))
	assert.Equal(t, payload, raw[cluster.HeaderSize:cluster.HeaderSize+len(payload)])
}

func TestWriteHeadReadHeadRoundTrip(t *testing.T) {
	v := newVolume(t, 128, 64)
	c, err := Init(v, 4, clock.RealClock{})
	require.NoError(t, err)
	defer c.Uninit()

	h := cluster.Header{DataSegSize: cluster.PackHeadSize(40), NextCluster: 0, HeadCluster: 2}
	require.NoError(t, c.WriteHead(2, h))

	got, err := c.ReadHead(2)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDisabledCacheBypassesToDisk(t *testing.T) {
	v := newVolume(t, 128, 64)
	c, err := Init(v, 0, clock.RealClock{})
	require.NoError(t, err)
	defer c.Uninit()

	payload := []byte("bypass")
	require.NoError(t, c.WriteUserdata(2, payload, 0, int32(len(payload))))

	raw := make([]byte, 128)
	require.NoError(t, v.ReadCluster(2, raw))
	assert.Equal(t, payload, raw[cluster.HeaderSize:cluster.HeaderSize+len(payload)])
	assert.Zero(t, c.HitRate())
}

func TestAutoflushTier3TriggersAtTaskBoundary(t *testing.T) {
	v := newVolume(t, 128, 64)
	sc := clock.NewSimulatedClock(time.Unix(0, 0))
	c, err := Init(v, 4, sc)
	require.NoError(t, err)
	defer c.Uninit()

	require.NoError(t, c.WriteUserdata(2, []byte("x"), 0, 1))

	sc.AdvanceTime(tier3Delta + time.Second)

	// Any subsequent task boundary re-evaluates the autoflush policy.
	buf := make([]byte, 1)
	require.NoError(t, c.ReadUserdata(3, buf, 0, 1))

	// submit returns as soon as execute finishes, before the autoflush
	// check that follows it on the background goroutine. Tasks run one
	// at a time in FIFO order, so a second task only starts after that
	// check has completed; waiting on it makes the flush observable.
	require.NoError(t, c.ReadUserdata(3, buf, 0, 1))

	raw := make([]byte, 128)
	require.NoError(t, v.ReadCluster(2, raw))
	assert.Equal(t, byte('x'), raw[cluster.HeaderSize])
}

func TestQueuePushFailsAtCapacity(t *testing.T) {
	v := newVolume(t, 128, 64)
	c, err := Init(v, 4, clock.RealClock{})
	require.NoError(t, err)
	defer c.Uninit()

	// Fill the queue directly to exercise the capacity bound without
	// racing the background goroutine that drains it.
	c.mu.Lock()
	for i := 0; i < queueCapacity; i++ {
		c.queue.Push(&task{op: opFlush, done: make(chan struct{}), noWait: true})
	}
	full := !c.queue.Push(&task{op: opFlush, done: make(chan struct{}), noWait: true})
	c.mu.Unlock()
	assert.True(t, full)
}
