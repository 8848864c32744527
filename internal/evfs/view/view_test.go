package view

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nax-project/evfs/internal/clock"
	"github.com/nax-project/evfs/internal/evfs/blockcache"
	"github.com/nax-project/evfs/internal/evfs/cluster"
)

func newTable(t *testing.T, clusterSize, clusterCount int32) (*Table, *cluster.Volume, *blockcache.Cache) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v")
	vol, err := cluster.Create(path, clusterSize, clusterCount, 4)
	require.NoError(t, err)
	c, err := blockcache.Init(vol, 4, clock.RealClock{})
	require.NoError(t, err)
	tbl := Create(vol, c)
	t.Cleanup(func() {
		_ = c.Uninit()
		_ = vol.Close()
	})
	return tbl, vol, c
}

func TestCreateStartsAllIdle(t *testing.T) {
	tbl, vol, _ := newTable(t, 128, 16)
	stats := tbl.Stats()
	assert.EqualValues(t, vol.ClusterCount()-1, stats.Idle)
	assert.Zero(t, stats.Busy)
}

func TestAcquireIdleMovesToBusy(t *testing.T) {
	tbl, _, _ := newTable(t, 128, 16)
	v, err := tbl.AcquireIdle()
	require.NoError(t, err)
	assert.Equal(t, Busy, v.Membership)

	stats := tbl.Stats()
	assert.EqualValues(t, 1, stats.Busy)
}

func TestAcquireIdleMoreExpandsOnShortage(t *testing.T) {
	tbl, vol, _ := newTable(t, 128, 16)
	before := vol.ClusterCount()

	// 16 clusters leave 15 idle views, so 16 forces an expand.
	var out []*View
	require.NoError(t, tbl.AcquireIdleMore(16, &out))
	assert.Len(t, out, 16)
	assert.Greater(t, vol.ClusterCount(), before)
}

func TestMoveToIdleZeroesHeader(t *testing.T) {
	tbl, _, c := newTable(t, 128, 16)
	v, err := tbl.AcquireIdle()
	require.NoError(t, err)

	require.NoError(t, tbl.SetHeadDataSegSize(v, 40))
	require.NoError(t, tbl.MoveToIdle(v))

	assert.Equal(t, Idle, v.Membership)
	h, err := c.ReadHead(v.ID)
	require.NoError(t, err)
	assert.Zero(t, h.DataSegSize)
}

func TestTransferSizeToClusterCount(t *testing.T) {
	tbl, _, _ := newTable(t, 128, 16)
	// max_pre_userseg = 116.
	assert.EqualValues(t, 0, tbl.TransferSizeToClusterCount(0))
	assert.EqualValues(t, 1, tbl.TransferSizeToClusterCount(1))
	assert.EqualValues(t, 1, tbl.TransferSizeToClusterCount(116))
	assert.EqualValues(t, 2, tbl.TransferSizeToClusterCount(117))
}

func TestWriteUserdataReadUserdataRoundTrip(t *testing.T) {
	tbl, _, _ := newTable(t, 128, 16)
	v, err := tbl.AcquireIdle()
	require.NoError(t, err)

	payload := []byte("view payload")
	require.NoError(t, tbl.WriteUserdata(v, payload, 0, int32(len(payload))))

	buf := make([]byte, len(payload))
	require.NoError(t, tbl.ReadUserdata(v, buf, 0, int32(len(payload))))
	assert.Equal(t, payload, buf)
}
