package cluster

import "encoding/binary"

// Magic is the superblock's identifying constant, spec.md §6:
// 0x73667645, which spells "Evfs" in little-endian byte order.
const Magic = 0x73667645

// HeaderSize is the fixed 12-byte header every cluster carries, per
// spec.md §3.
const HeaderSize = 12

// reservedWords is the superblock's trailing scratch area, sized for
// the common (>=128-byte) cluster sizes. spec.md §6 allows cluster
// sizes as small as 32 bytes, which can't physically hold 16 reserved
// int32 words on top of the four fixed fields (16+64=80 > 32), so the
// superblock always occupies exactly one cluster and reservedWordsFor
// shrinks the reserved area to whatever room that cluster has left.
const reservedWords = 16

// fixedFieldsSize is the byte size of the superblock's four fixed
// int32 fields, before the reserved area.
const fixedFieldsSize = 16

// SuperblockSize is the on-disk size of the superblock record at the
// maximum reserved-word count; it is informational only — the actual
// on-disk size is always exactly one cluster, see reservedWordsFor.
const SuperblockSize = fixedFieldsSize + 4*reservedWords

// reservedWordsFor returns how many of the 16 reserved words fit in a
// cluster of the given size, after the four fixed fields.
func reservedWordsFor(clusterSize int32) int {
	n := (int(clusterSize) - fixedFieldsSize) / 4
	if n > reservedWords {
		n = reservedWords
	}
	if n < 0 {
		n = 0
	}
	return n
}

// Superblock is the layout of cluster 1, spec.md §3 and §6.
type Superblock struct {
	Magic              int32
	ClusterSize        int32
	ClusterCount       int32
	ExpandClusterCount int32
	Reserved           [reservedWords]int32
}

// Reserved word assignments (SPEC_FULL.md §3.5): the original C source
// leaves all 16 words free for future housekeeping fields and never
// assigns them. This rewrite uses the first two and leaves the rest at
// zero.
const (
	ReservedCreatedUnixSeconds = 0
	ReservedFormatRevision     = 1
)

// FormatRevision is written into Reserved[ReservedFormatRevision] by
// Create.
const FormatRevision = 1

// marshal writes s into buf, which must be at least fixedFieldsSize
// bytes; only as many reserved words as fit in buf are written.
func (s *Superblock) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(s.Magic))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.ClusterSize))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.ClusterCount))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(s.ExpandClusterCount))
	n := reservedWordsFor(int32(len(buf)))
	for i := 0; i < n; i++ {
		off := fixedFieldsSize + i*4
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(s.Reserved[i]))
	}
}

// unmarshal reads s from buf, which must be at least fixedFieldsSize
// bytes; reserved words beyond what buf holds are left zero.
func (s *Superblock) unmarshal(buf []byte) {
	s.Magic = int32(binary.LittleEndian.Uint32(buf[0:4]))
	s.ClusterSize = int32(binary.LittleEndian.Uint32(buf[4:8]))
	s.ClusterCount = int32(binary.LittleEndian.Uint32(buf[8:12]))
	s.ExpandClusterCount = int32(binary.LittleEndian.Uint32(buf[12:16]))
	n := reservedWordsFor(int32(len(buf)))
	for i := 0; i < n; i++ {
		off := fixedFieldsSize + i*4
		s.Reserved[i] = int32(binary.LittleEndian.Uint32(buf[off : off+4]))
	}
}

// Header is the 12-byte structure at the front of every cluster,
// spec.md §3/§6.
type Header struct {
	// DataSegSize is the packed field: for a head cluster, size|0x80000000;
	// for an element cluster, size&0x7fffffff.
	DataSegSize int32
	NextCluster int32
	HeadCluster int32
}

const headMSB = int32(1) << 31

// IsHead reports whether DataSegSize carries the head-of-entry flag.
func (h Header) IsHead() bool {
	return h.DataSegSize&headMSB != 0
}

// Size returns the logical size encoded in DataSegSize with the MSB
// masked off.
func (h Header) Size() int32 {
	return h.DataSegSize &^ headMSB
}

// PackHeadSize returns the MSB-tagged encoding of a head cluster's
// logical size.
func PackHeadSize(size int32) int32 {
	return size | headMSB
}

func (h *Header) marshal(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.DataSegSize))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.NextCluster))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.HeadCluster))
}

func (h *Header) unmarshal(buf []byte) {
	h.DataSegSize = int32(binary.LittleEndian.Uint32(buf[0:4]))
	h.NextCluster = int32(binary.LittleEndian.Uint32(buf[4:8]))
	h.HeadCluster = int32(binary.LittleEndian.Uint32(buf[8:12]))
}
