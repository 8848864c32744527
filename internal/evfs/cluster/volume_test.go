package cluster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nax-project/evfs/internal/evfserr"
)

func TestCreateRejectsInvalidClusterSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	_, err := Create(path, 100, 64, 8)
	require.Error(t, err)
	assert.True(t, evfserr.Is(err, evfserr.EINVAL))
}

func TestCreateRejectsOversizedVolume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	_, err := Create(path, 4096, 1<<20, 8)
	require.Error(t, err)
	assert.True(t, evfserr.Is(err, evfserr.EINVAL))
}

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	v, err := Create(path, 128, 64, 8)
	require.NoError(t, err)
	assert.EqualValues(t, 128, v.ClusterSize())
	assert.EqualValues(t, 64, v.ClusterCount())
	assert.EqualValues(t, 116, v.MaxPreUserseg())
	require.NoError(t, v.Close())

	v2, err := Open(path)
	require.NoError(t, err)
	defer v2.Close()
	assert.EqualValues(t, 128, v2.ClusterSize())
	assert.EqualValues(t, 64, v2.ClusterCount())
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	v, err := Create(path, 128, 64, 8)
	require.NoError(t, err)
	require.NoError(t, v.Close())

	require.NoError(t, os.Truncate(path, 128*63))

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, evfserr.Is(err, evfserr.EBADF))
}

func TestReadWriteClusterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	v, err := Create(path, 128, 64, 8)
	require.NoError(t, err)
	defer v.Close()

	buf := make([]byte, 128)
	copy(buf[HeaderSize:], []byte("hello world"))
	h := Header{DataSegSize: PackHeadSize(11), NextCluster: 0, HeadCluster: 2}
	h.marshal(buf)

	require.NoError(t, v.WriteCluster(2, buf))

	readBuf := make([]byte, 128)
	require.NoError(t, v.ReadCluster(2, readBuf))
	assert.Equal(t, buf, readBuf)

	head, err := v.ReadClusterHead(2)
	require.NoError(t, err)
	assert.True(t, head.IsHead())
	assert.EqualValues(t, 11, head.Size())
}

func TestReadWriteClusterRejectsOutOfRangeID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	v, err := Create(path, 128, 64, 8)
	require.NoError(t, err)
	defer v.Close()

	buf := make([]byte, 128)
	err = v.WriteCluster(0, buf)
	assert.True(t, evfserr.Is(err, evfserr.EINVAL))

	err = v.WriteCluster(65, buf)
	assert.True(t, evfserr.Is(err, evfserr.EINVAL))
}

func TestExpand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	v, err := Create(path, 128, 64, 8)
	require.NoError(t, err)
	defer v.Close()

	firstNew, err := v.Expand()
	require.NoError(t, err)
	assert.EqualValues(t, 65, firstNew)
	assert.EqualValues(t, 72, v.ClusterCount())

	buf := make([]byte, 128)
	require.NoError(t, v.WriteCluster(72, buf))
}

func TestExpandFailsWhenOverCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v")
	// cluster_count*cluster_size intentionally near 1 GiB so one more
	// expand_cluster_count worth of clusters pushes it over.
	v, err := Create(path, 4096, 262144-8, 16)
	require.NoError(t, err)
	defer v.Close()

	_, err = v.Expand()
	require.Error(t, err)
	assert.True(t, evfserr.Is(err, evfserr.ENOSPC))
}
