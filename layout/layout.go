// Package layout implements the YukiFS layout calculator (spec §4.2):
// a pure function from device size, block size, and the embedded
// driver-module length to every derived offset and size in the
// superblock's invariant set (spec §3).
package layout

import "fmt"

// Permitted block size range (spec §6). The reference original_source
// used a much larger MINIMAL_BLOCK_SIZE/MAXIMUM_BLOCK_SIZE pair tied to
// a 64KiB default; spec §6 instead pins the reference range to
// 1024..8192 with a 1024 default, which this module follows.
const (
	MinBlockSize     = 1024
	MaxBlockSize     = 8192
	DefaultBlockSize = 1024

	// InodeRecordSize is the on-disk size of one inode record (spec §3).
	InodeRecordSize = 32
	// SuperblockSize is the nominal superblock size of spec §3. The
	// superblock the format package encodes is format.Size (80) bytes;
	// either is padded up to Layout.SuperblockPaddedSize on disk.
	SuperblockSize = 52

	// fsPaddingFloor and superblockPaddingFloor are the minimums the
	// padding region and the superblock's padded slot are held to
	// regardless of block size (spec §4.2 steps 1 and 3).
	fsPaddingFloor         = 1024
	superblockPaddingFloor = 512
)

// Layout holds every offset and size derived from a (deviceSize,
// blockSize, driverModuleLen) triple. Field names mirror the superblock
// fields of spec §3 exactly so format.Superblock can be built directly
// from a Layout plus the counters (block_free, free_inodes) that change
// over the life of the filesystem.
type Layout struct {
	BlockSize  uint32
	DeviceSize int64

	FSPaddingSize        int64
	HiddenDataSize       int64
	SuperblockPaddedSize int64
	HeaderSize           int64

	BlockCount            uint32 // == TotalInodes
	TotalInodes           uint32
	InodeTableSize        uint32
	InodeTableClusters    uint32
	InodeTableStorageSize uint32
	InodeTableOffset      int64
	DataBlocksOffset      int64
	DataBlocksTotalSize   int64
	DataBlocksEndOffset   int64
	UnallocatedSpaceSize  int64
}

// Compute runs the §4.2 derivation pipeline. driverModuleLen is the
// byte length of the embedded driver-module blob (0 for a test double
// or when no driver module is embedded).
func Compute(deviceSize int64, blockSize uint32, driverModuleLen int64) (*Layout, error) {
	if blockSize < MinBlockSize || blockSize > MaxBlockSize {
		return nil, fmt.Errorf("layout: block size %d out of range [%d, %d]", blockSize, MinBlockSize, MaxBlockSize)
	}
	if blockSize%512 != 0 {
		return nil, fmt.Errorf("layout: block size %d is not a whole-block multiple", blockSize)
	}

	bs := int64(blockSize)

	l := &Layout{BlockSize: blockSize, DeviceSize: deviceSize}

	// Step 1: padding region.
	l.FSPaddingSize = maxInt64(bs, fsPaddingFloor)

	// Step 2: hidden region — one block for the header, plus whole
	// blocks for the driver-module blob.
	driverClusters := ceilDiv(driverModuleLen, bs)
	l.HiddenDataSize = bs + driverClusters*bs

	// Step 3: superblock's padded on-disk slot.
	l.SuperblockPaddedSize = maxInt64(bs, superblockPaddingFloor)

	// Step 4: total header size.
	l.HeaderSize = l.FSPaddingSize + l.HiddenDataSize + l.SuperblockPaddedSize

	if deviceSize < l.HeaderSize {
		return nil, fmt.Errorf("layout: device size %d smaller than header size %d", deviceSize, l.HeaderSize)
	}

	// Step 5: solve for x, the shared inode/block count.
	remaining := deviceSize - l.HeaderSize
	alignedRemaining := (remaining / bs) * bs
	x := alignedRemaining / (InodeRecordSize + bs)
	if x <= 0 {
		return nil, fmt.Errorf("layout: device size %d leaves no room for any data block at block size %d", deviceSize, blockSize)
	}

	l.BlockCount = uint32(x)
	l.TotalInodes = uint32(x)

	// Step 6: inode table and data region extents.
	l.InodeTableSize = uint32(InodeRecordSize) * l.TotalInodes
	l.InodeTableClusters = uint32(ceilDiv(int64(l.InodeTableSize), bs))
	l.InodeTableStorageSize = l.InodeTableClusters * blockSize

	l.InodeTableOffset = l.HeaderSize
	l.DataBlocksOffset = l.InodeTableOffset + int64(l.InodeTableStorageSize)
	l.DataBlocksTotalSize = int64(l.BlockCount) * bs
	l.DataBlocksEndOffset = l.DataBlocksOffset + l.DataBlocksTotalSize

	if l.DataBlocksEndOffset > deviceSize {
		return nil, fmt.Errorf("layout: computed data region end %d exceeds device size %d", l.DataBlocksEndOffset, deviceSize)
	}
	l.UnallocatedSpaceSize = deviceSize - l.DataBlocksEndOffset

	return l, nil
}

func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
