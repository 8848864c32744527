package entry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nax-project/evfs/internal/clock"
	"github.com/nax-project/evfs/internal/evfs/blockcache"
	"github.com/nax-project/evfs/internal/evfs/cluster"
	"github.com/nax-project/evfs/internal/evfs/view"
	"github.com/nax-project/evfs/internal/evfserr"
)

func newEntryTable(t *testing.T, clusterSize, clusterCount int32) *Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "v")
	vol, err := cluster.Create(path, clusterSize, clusterCount, 8)
	require.NoError(t, err)
	c, err := blockcache.Init(vol, 8, clock.RealClock{})
	require.NoError(t, err)
	views := view.Create(vol, c)
	t.Cleanup(func() {
		_ = c.Uninit()
		_ = vol.Close()
	})
	return NewTable(views)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey(""))
	assert.NoError(t, ValidateKey("alpha_1.txt"))
	assert.Error(t, ValidateKey("has space"))
	assert.Error(t, ValidateKey("this_key_is_far_too_long_to_be_valid_xx"))
}

func TestCreateEntryRejectsDuplicateName(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	_, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	_, err = tbl.CreateEntry("alpha")
	require.Error(t, err)
	assert.True(t, evfserr.Is(err, evfserr.EEXIST))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	e, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	payload := []byte("hello")
	require.NoError(t, tbl.Reserve(e, 0, int32(len(payload))))
	n, err := tbl.Write(e, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	buf := make([]byte, len(payload))
	n, err = tbl.Read(e, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, payload, buf)
	assert.EqualValues(t, len(payload), e.Size())
}

func TestWriteGrowsAcrossClusters(t *testing.T) {
	// cluster_size=128, max_pre_userseg=116: head holds 116-32=84B of
	// user data; a 400-byte write needs ceil((400+32)/116) = 4 total
	// views (head + 3 elements holding 116, 116 and 84 bytes).
	tbl := newEntryTable(t, 128, 64)
	e, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	payload := make([]byte, 400)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, tbl.Reserve(e, 0, int32(len(payload))))
	n, err := tbl.Write(e, payload, 0)
	require.NoError(t, err)
	assert.Equal(t, 400, n)
	assert.Len(t, e.Elements, 3)

	buf := make([]byte, 400)
	n, err = tbl.Read(e, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 400, n)
	assert.Equal(t, payload, buf)
}

func TestTruncateShrinkFreesTrailingElements(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	e, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	require.NoError(t, tbl.Reserve(e, 0, 400))
	_, err = tbl.Write(e, make([]byte, 400), 0)
	require.NoError(t, err)
	require.Len(t, e.Elements, 3)

	require.NoError(t, tbl.Truncate(e, 10))
	assert.EqualValues(t, 10, e.Size())
	assert.Empty(t, e.Elements)
}

func TestAcquireBusyRejectsWhenNotNormal(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	e, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	_, err = tbl.Acquire(e.ID, ModeBusy)
	require.NoError(t, err)

	_, err = tbl.Acquire(e.ID, ModeBusy)
	require.Error(t, err)
	assert.True(t, evfserr.Is(err, evfserr.EBUSY))
}

func TestSoftDeleteDefersUntilRefcountZero(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	e, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	held, err := tbl.Acquire(e.ID, ModeOpen)
	require.NoError(t, err)

	require.NoError(t, tbl.SoftDelete(e))
	_, err = tbl.AcquireByName("alpha", ModeOpen)
	assert.True(t, evfserr.Is(err, evfserr.ENOENT))

	require.NoError(t, tbl.Release(held, ModeOpen))
}

func TestHardDeleteReturnsClustersToIdle(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	e, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)

	require.NoError(t, tbl.Reserve(e, 0, 200))
	_, err = tbl.Write(e, make([]byte, 200), 0)
	require.NoError(t, err)

	headID := e.HeadView.ID
	require.NoError(t, tbl.HardDelete(e))

	v, err := tbl.views.AcquireIdle()
	require.NoError(t, err)
	// The freed head should eventually be reusable; we don't assert
	// it's exactly headID since idle order isn't part of the contract.
	_ = headID
	_ = v
}

func TestIterateSkipsNonNormalEntries(t *testing.T) {
	tbl := newEntryTable(t, 128, 64)
	_, err := tbl.CreateEntry("alpha")
	require.NoError(t, err)
	e2, err := tbl.CreateEntry("beta")
	require.NoError(t, err)

	_, err = tbl.Acquire(e2.ID, ModeBusy)
	require.NoError(t, err)

	snaps := tbl.Iterate()
	require.Len(t, snaps, 1)
	assert.Equal(t, "alpha", snaps[0].Name)
}
