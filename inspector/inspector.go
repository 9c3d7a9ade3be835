// Package inspector implements the YukiFS inspector (spec §4.9):
// repeat the mount pipeline's read-only steps against a device and
// report every recorded and derived field, cross-checking the ones
// that can be independently recomputed. Grounded on src/infofs/
// infofs.c and viewfs.c, which open the image read-only and report
// metadata without installing a writable session; neither original
// tool cross-checks its readings, an omission this package fixes.
package inspector

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/yukifs/yukifs"
	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/format"
)

// Report is the full dump of one image's recorded and derived state.
type Report struct {
	Hidden        *format.HiddenRecord
	Superblock    *format.Superblock
	Discrepancies []string
	// BlockAvailableBytes is the legacy byte-denominated availability
	// figure some historical statfs paths reported in place of
	// block_free (spec §9); recomputed for reference, not as a
	// replacement for the canonical block_free counter.
	BlockAvailableBytes uint64
}

// Inspect runs mount-pipeline steps 1-4 (scan, read hidden record, read
// superblock, adopt block size) without installing a live mutable
// Session, then cross-checks the superblock's derived fields against
// values recomputed from its own recorded inputs. log may be nil.
func Inspect(dev block.Device, log *logrus.Logger) (*Report, error) {
	if log == nil {
		log = logrus.New()
	}

	window := make([]byte, format.ScanWindow)
	n, err := dev.ReadAt(window, 0)
	if n == 0 && err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindIO, err)
	}
	window = window[:n]

	bracketOffset, err := format.Scan(window)
	if err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindNoHiddenHeader, err)
	}

	hiddenBuf := make([]byte, len(window)-bracketOffset)
	if _, err := dev.ReadAt(hiddenBuf, int64(bracketOffset)); err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindIO, err)
	}
	hidden, err := format.HiddenRecordFromBytes(hiddenBuf)
	if err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindInvalidFormat, err)
	}

	sbBuf := make([]byte, format.Size)
	if _, err := dev.ReadAt(sbBuf, int64(hidden.SuperblockOffset)); err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindIO, err)
	}
	sb, err := format.SuperblockFromBytes(sbBuf)
	if err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindInvalidFormat, err)
	}
	if err := dev.SetBlockSize(int(sb.BlockSize)); err != nil {
		return nil, yukifs.NewError("inspect", yukifs.KindInvalidFormat, err)
	}

	log.WithFields(logrus.Fields{
		"block_size":         sb.BlockSize,
		"total_inodes":       sb.TotalInodes,
		"data_blocks_offset": sb.DataBlocksOffset,
	}).Info("superblock read")

	report := &Report{
		Hidden:              hidden,
		Superblock:          sb,
		Discrepancies:       crossCheck(sb),
		BlockAvailableBytes: uint64(sb.BlockFree) * uint64(sb.BlockSize),
	}
	for _, d := range report.Discrepancies {
		log.Warn(d)
	}
	log.WithField("block_available_bytes", report.BlockAvailableBytes).Info("legacy byte-denominated availability (reference only)")
	return report, nil
}

// crossCheck recomputes the derived sizes and offsets of §3's invariant
// set from the superblock's own recorded inputs, checks that the free
// counters do not exceed their totals, and reports mismatches, rather
// than trusting the stored values are internally consistent (spec
// §4.9: "Implementer may cross-check derived quantities against
// recorded ones and report discrepancies").
func crossCheck(sb *format.Superblock) []string {
	var out []string
	add := func(format_ string, args ...interface{}) {
		out = append(out, fmt.Sprintf(format_, args...))
	}

	if sb.TotalInodes != sb.BlockCount {
		add("total_inodes (%d) != block_count (%d)", sb.TotalInodes, sb.BlockCount)
	}
	wantTableSize := 32 * sb.TotalInodes
	if sb.InodeTableSize != wantTableSize {
		add("inode_table_size (%d) != 32*total_inodes (%d)", sb.InodeTableSize, wantTableSize)
	}
	wantClusters := (sb.InodeTableSize + sb.BlockSize - 1) / sb.BlockSize
	if sb.InodeTableClusters != wantClusters {
		add("inode_table_clusters (%d) != ceil(inode_table_size/block_size) (%d)", sb.InodeTableClusters, wantClusters)
	}
	wantStorage := sb.InodeTableClusters * sb.BlockSize
	if sb.InodeTableStorageSize != wantStorage {
		add("inode_table_storage_size (%d) != inode_table_clusters*block_size (%d)", sb.InodeTableStorageSize, wantStorage)
	}
	wantDataOffset := sb.InodeTableOffset + uint64(sb.InodeTableStorageSize)
	if sb.DataBlocksOffset != wantDataOffset {
		add("data_blocks_offset (%d) != inode_table_offset+inode_table_storage_size (%d)", sb.DataBlocksOffset, wantDataOffset)
	}
	wantDataTotal := uint64(sb.BlockCount) * uint64(sb.BlockSize)
	if sb.DataBlocksTotalSize != wantDataTotal {
		add("data_blocks_total_size (%d) != block_count*block_size (%d)", sb.DataBlocksTotalSize, wantDataTotal)
	}
	wantDataEnd := sb.DataBlocksOffset + sb.DataBlocksTotalSize
	if sb.DataBlocksEndOffset != wantDataEnd {
		add("data_blocks_end_offset (%d) != data_blocks_offset+data_blocks_total_size (%d)", sb.DataBlocksEndOffset, wantDataEnd)
	}
	if sb.FreeInodes > sb.TotalInodes {
		add("free_inodes (%d) exceeds total_inodes (%d)", sb.FreeInodes, sb.TotalInodes)
	}
	if sb.BlockFree > sb.BlockCount {
		add("block_free (%d) exceeds block_count (%d)", sb.BlockFree, sb.BlockCount)
	}

	return out
}
