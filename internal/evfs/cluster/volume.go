// Package cluster implements EVFS's lowest layer: a single backing file
// divided into fixed-size, 1-based-indexed clusters with cluster 1
// reserved for the superblock. It is grounded on the teacher's storage
// primitives (os.File plus golang.org/x/sys/unix for Fallocate, and
// github.com/google/renameio/v2 for an atomically-created volume file,
// the same pattern gcsfuse's mount path used for crash-safe config and
// cache-file creation).
//
// Volume is not itself thread-safe; spec.md §4.1 makes the Cache layer
// the sole caller of ReadCluster/WriteCluster, serializing all access.
package cluster

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/sys/unix"

	"github.com/nax-project/evfs/internal/evfserr"
)

var validClusterSizes = map[int32]bool{
	32: true, 64: true, 128: true, 256: true, 512: true,
	1024: true, 2048: true, 4096: true,
}

// MaxVolumeBytes is the 1 GiB ceiling spec.md §6 places on total volume
// size.
const MaxVolumeBytes = 1 << 30

// Volume owns the backing file descriptor for a single EVFS volume.
type Volume struct {
	file         *os.File
	path         string
	clusterSize  int32
	clusterCount int32
	expandCount  int32
	reserved     [reservedWords]int32
}

// Create lays out a brand-new volume: an atomically-renamed file sized
// to cluster_size*cluster_count, with a superblock written into cluster
// 1. Clusters 2..N are left physically uninitialized (sparse) but
// logically free, per spec.md §4.1.
func Create(path string, clusterSize, clusterCount, expandClusterCount int32) (*Volume, error) {
	if !validClusterSizes[clusterSize] {
		return nil, evfserr.New(evfserr.EINVAL, "cluster.Create", fmt.Errorf("invalid cluster size %d", clusterSize))
	}
	if clusterCount <= 0 || expandClusterCount <= 0 {
		return nil, evfserr.New(evfserr.EINVAL, "cluster.Create", fmt.Errorf("cluster_count and expand_cluster_count must be positive"))
	}
	total := int64(clusterSize) * int64(clusterCount)
	if total > MaxVolumeBytes {
		return nil, evfserr.New(evfserr.EINVAL, "cluster.Create", fmt.Errorf("volume size %d exceeds %d byte maximum", total, MaxVolumeBytes))
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return nil, evfserr.New(evfserr.EIO, "cluster.Create", err)
	}
	defer t.Cleanup()

	if err := t.Chmod(0o600); err != nil {
		return nil, evfserr.New(evfserr.EIO, "cluster.Create", err)
	}
	if err := unix.Fallocate(int(t.Fd()), 0, 0, total); err != nil {
		// Fallocate is an optimization; a filesystem that refuses it
		// (e.g. tmpfs on some kernels) still works via Truncate below.
	}
	if err := t.Truncate(total); err != nil {
		return nil, evfserr.New(evfserr.EIO, "cluster.Create", err)
	}

	sb := Superblock{
		Magic:              Magic,
		ClusterSize:        clusterSize,
		ClusterCount:       clusterCount,
		ExpandClusterCount: expandClusterCount,
	}
	sb.Reserved[ReservedFormatRevision] = FormatRevision
	sb.Reserved[ReservedCreatedUnixSeconds] = int32(time.Now().Unix())

	buf := make([]byte, clusterSize)
	sb.marshal(buf)
	if _, err := t.WriteAt(buf, 0); err != nil {
		return nil, evfserr.New(evfserr.EIO, "cluster.Create", err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return nil, evfserr.New(evfserr.EIO, "cluster.Create", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, evfserr.New(evfserr.EIO, "cluster.Create", err)
	}
	return &Volume{
		file:         f,
		path:         path,
		clusterSize:  clusterSize,
		clusterCount: clusterCount,
		expandCount:  expandClusterCount,
		reserved:     sb.Reserved,
	}, nil
}

// Open mounts an existing volume file, validating its superblock magic
// and that the file length matches cluster_size*cluster_count exactly.
func Open(path string) (*Volume, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, evfserr.New(evfserr.ENOENT, "cluster.Open", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, evfserr.New(evfserr.EIO, "cluster.Open", err)
	}

	// The superblock's own cluster_size field isn't known yet, so peek
	// just the fixed fields first to learn it, then re-read the full
	// first cluster to pick up the reserved words the real cluster size
	// has room for.
	fixed := make([]byte, fixedFieldsSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, int64(len(fixed))), fixed); err != nil {
		f.Close()
		return nil, evfserr.New(evfserr.EBADF, "cluster.Open", err)
	}
	var sb Superblock
	sb.unmarshal(fixed)

	if sb.Magic != Magic || !validClusterSizes[sb.ClusterSize] {
		f.Close()
		return nil, evfserr.New(evfserr.EBADF, "cluster.Open", fmt.Errorf("bad superblock magic or cluster size"))
	}
	wantSize := int64(sb.ClusterSize) * int64(sb.ClusterCount)
	if info.Size() != wantSize {
		f.Close()
		return nil, evfserr.New(evfserr.EBADF, "cluster.Open", fmt.Errorf("volume file length %d does not match cluster_size*cluster_count %d", info.Size(), wantSize))
	}

	full := make([]byte, sb.ClusterSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, int64(len(full))), full); err != nil {
		f.Close()
		return nil, evfserr.New(evfserr.EBADF, "cluster.Open", err)
	}
	sb.unmarshal(full)

	return &Volume{
		file:         f,
		path:         path,
		clusterSize:  sb.ClusterSize,
		clusterCount: sb.ClusterCount,
		expandCount:  sb.ExpandClusterCount,
		reserved:     sb.Reserved,
	}, nil
}

// Close releases the backing file descriptor. Idempotent.
func (v *Volume) Close() error {
	if v.file == nil {
		return nil
	}
	err := v.file.Close()
	v.file = nil
	if err != nil {
		return evfserr.New(evfserr.EIO, "cluster.Close", err)
	}
	return nil
}

// ClusterSize returns the volume's fixed on-disk cluster size in bytes.
func (v *Volume) ClusterSize() int32 { return v.clusterSize }

// ClusterCount returns the current total cluster count, including
// cluster 1 (the superblock).
func (v *Volume) ClusterCount() int32 { return v.clusterCount }

// MaxPreUserseg is the user payload capacity per cluster,
// cluster_size-12, spec.md's "max_pre_userseg".
func (v *Volume) MaxPreUserseg() int32 { return v.clusterSize - HeaderSize }

// Reserved returns the superblock reserved word at the given index
// (see ReservedCreatedUnixSeconds, ReservedFormatRevision), or 0 if
// word is out of range or the cluster size left no room for it.
func (v *Volume) Reserved(word int) int32 {
	if word < 0 || word >= len(v.reserved) {
		return 0
	}
	return v.reserved[word]
}

// offset maps a 1-based cluster ID to its byte position: cluster 1 (the
// superblock) starts at byte 0 and cluster cluster_count ends at the
// end of the file.
func (v *Volume) offset(id int32) int64 {
	return int64(id-1) * int64(v.clusterSize)
}

func (v *Volume) checkID(id int32) error {
	if id < 1 || id > v.clusterCount {
		return evfserr.New(evfserr.EINVAL, "cluster.checkID", fmt.Errorf("cluster id %d out of range [1,%d]", id, v.clusterCount))
	}
	return nil
}

// ReadCluster performs a full-cluster transfer into buf, which must be
// exactly ClusterSize() bytes.
func (v *Volume) ReadCluster(id int32, buf []byte) error {
	if err := v.checkID(id); err != nil {
		return err
	}
	if int32(len(buf)) != v.clusterSize {
		return evfserr.New(evfserr.EINVAL, "cluster.ReadCluster", fmt.Errorf("buffer size %d != cluster size %d", len(buf), v.clusterSize))
	}
	n, err := v.file.ReadAt(buf, v.offset(id))
	if err != nil || n != len(buf) {
		return evfserr.New(evfserr.EIO, "cluster.ReadCluster", err)
	}
	return nil
}

// WriteCluster performs a full-cluster transfer from buf, which must be
// exactly ClusterSize() bytes.
func (v *Volume) WriteCluster(id int32, buf []byte) error {
	if err := v.checkID(id); err != nil {
		return err
	}
	if int32(len(buf)) != v.clusterSize {
		return evfserr.New(evfserr.EINVAL, "cluster.WriteCluster", fmt.Errorf("buffer size %d != cluster size %d", len(buf), v.clusterSize))
	}
	n, err := v.file.WriteAt(buf, v.offset(id))
	if err != nil || n != len(buf) {
		return evfserr.New(evfserr.EIO, "cluster.WriteCluster", err)
	}
	return nil
}

// ReadClusterHead reads only the 12-byte header of a cluster.
func (v *Volume) ReadClusterHead(id int32) (Header, error) {
	var h Header
	if err := v.checkID(id); err != nil {
		return h, err
	}
	buf := make([]byte, HeaderSize)
	n, err := v.file.ReadAt(buf, v.offset(id))
	if err != nil || n != HeaderSize {
		return h, evfserr.New(evfserr.EIO, "cluster.ReadClusterHead", err)
	}
	h.unmarshal(buf)
	return h, nil
}

// Sync flushes any OS-buffered writes to stable storage.
func (v *Volume) Sync() error {
	if err := v.file.Sync(); err != nil {
		return evfserr.New(evfserr.EIO, "cluster.Sync", err)
	}
	return nil
}

// Expand appends expand_cluster_count uninitialized clusters to the
// volume and updates the in-memory and on-disk cluster count,
// returning the first newly added cluster ID. Fails with ENOSPC if the
// resulting volume would exceed MaxVolumeBytes.
func (v *Volume) Expand() (int32, error) {
	newCount := v.clusterCount + v.expandCount
	newTotal := int64(v.clusterSize) * int64(newCount)
	if newTotal > MaxVolumeBytes {
		return 0, evfserr.New(evfserr.ENOSPC, "cluster.Expand", fmt.Errorf("expanding to %d clusters would exceed %d byte maximum", newCount, MaxVolumeBytes))
	}

	if err := unix.Fallocate(int(v.file.Fd()), 0, 0, newTotal); err != nil {
		if err := v.file.Truncate(newTotal); err != nil {
			return 0, evfserr.New(evfserr.EIO, "cluster.Expand", err)
		}
	}

	firstNew := v.clusterCount + 1
	v.clusterCount = newCount

	var sb Superblock
	sb.Magic = Magic
	sb.ClusterSize = v.clusterSize
	sb.ClusterCount = v.clusterCount
	sb.ExpandClusterCount = v.expandCount
	sb.Reserved = v.reserved
	buf := make([]byte, v.clusterSize)
	sb.marshal(buf)
	if _, err := v.file.WriteAt(buf, v.offset(1)); err != nil {
		return 0, evfserr.New(evfserr.EIO, "cluster.Expand", err)
	}
	return firstNew, nil
}
