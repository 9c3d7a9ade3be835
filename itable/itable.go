// Package itable implements the YukiFS inode-table manager (spec §4.4):
// load the packed table, allocate/free slots by linear scan, and write
// the whole table back as whole clusters.
package itable

import (
	"fmt"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/format"
)

// Table is an in-memory copy of the on-disk inode table, indexed by
// inode number. Grounded on filesystem/fat32/table.go's
// load-whole-table/mutate/write-back-whole-table shape.
type Table struct {
	dev      block.Device
	offset   int64 // InodeTableOffset, in bytes
	clusters uint32
	slots    []*format.Inode
}

// Load reads inodeTableClusters blocks starting at offset/blockSize
// (spec §4.4) and decodes them as an array of 32-byte records, one per
// slot up to totalInodes.
func Load(dev block.Device, offset int64, clusters uint32, totalInodes uint32) (*Table, error) {
	blockSize := int64(dev.BlockSize())
	if offset%blockSize != 0 {
		return nil, fmt.Errorf("itable: inode table offset %d is not block-aligned", offset)
	}
	buf := make([]byte, int64(clusters)*blockSize)
	if err := dev.ReadBlocks(offset/blockSize, int64(clusters), buf); err != nil {
		return nil, fmt.Errorf("itable: read table: %w", err)
	}

	t := &Table{dev: dev, offset: offset, clusters: clusters, slots: make([]*format.Inode, totalInodes)}
	for i := uint32(0); i < totalInodes; i++ {
		start := i * format.InodeSize
		end := start + format.InodeSize
		if int(end) > len(buf) {
			return nil, fmt.Errorf("itable: total_inodes %d exceeds decoded table capacity", totalInodes)
		}
		inode, err := format.InodeFromBytes(buf[start:end])
		if err != nil {
			return nil, fmt.Errorf("itable: decode slot %d: %w", i, err)
		}
		t.slots[i] = inode
	}
	return t, nil
}

// Len returns the number of slots (== total_inodes).
func (t *Table) Len() int { return len(t.slots) }

// Get returns the inode at index i. The returned pointer aliases the
// table's in-memory copy; mutate it in place and call Commit to persist.
func (t *Table) Get(i uint32) (*format.Inode, error) {
	if int(i) >= len(t.slots) {
		return nil, fmt.Errorf("itable: index %d out of range (%d slots)", i, len(t.slots))
	}
	return t.slots[i], nil
}

// Allocate performs the linear scan for the lowest free slot (spec
// §4.4), initializes it with the given name/descriptor, and returns its
// index. It does not write the table to disk; call Commit afterward.
func (t *Table) Allocate(name string, descriptor uint32) (uint32, error) {
	for i, inode := range t.slots {
		if inode.IsInUse() {
			continue
		}
		inode.SetName(name)
		inode.Size = 0
		inode.InUse = 1
		inode.Descriptor = descriptor
		inode.FirstBlock = uint32(i)
		return uint32(i), nil
	}
	return 0, fmt.Errorf("itable: %w", ErrNoSpace)
}

// Free zeros the whole 32-byte record at index i (spec §4.4). Slot 0
// (the root directory) must never be freed; callers enforce that at a
// higher layer since the table itself has no notion of "root".
func (t *Table) Free(i uint32) error {
	inode, err := t.Get(i)
	if err != nil {
		return err
	}
	inode.Zero()
	return nil
}

// Commit writes the full table back as whole clusters via the block
// device (spec §4.4).
func (t *Table) Commit() error {
	blockSize := int64(t.dev.BlockSize())
	buf := make([]byte, int64(t.clusters)*blockSize)
	for i, inode := range t.slots {
		start := i * format.InodeSize
		copy(buf[start:start+format.InodeSize], inode.Bytes())
	}
	if err := t.dev.WriteBlocks(t.offset/blockSize, int64(t.clusters), buf); err != nil {
		return fmt.Errorf("itable: write table: %w", err)
	}
	return nil
}

// FreeCount returns the number of slots with InUse == 0, for
// recomputing the superblock's free_inodes counter (spec §4.5, §4.6).
func (t *Table) FreeCount() uint32 {
	var n uint32
	for _, inode := range t.slots {
		if !inode.IsInUse() {
			n++
		}
	}
	return n
}

// ErrNoSpace is returned by Allocate when every slot is in use. Callers
// should translate it to a yukifs.Error of KindNoSpace.
var ErrNoSpace = fmt.Errorf("no free inode slot")
