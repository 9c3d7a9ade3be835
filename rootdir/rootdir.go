// Package rootdir implements the YukiFS directory manager (spec §4.5):
// the root's single data block treated as a fixed-width array of
// little-endian uint32 inode indices.
package rootdir

import (
	"encoding/binary"
	"fmt"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/itable"
)

// ErrPermissionDenied is returned by Create when asked to create a
// subdirectory (spec §4.5: "Subdirectory creation is rejected").
var ErrPermissionDenied = fmt.Errorf("subdirectories are not supported")

// Entry is one emitted directory entry (spec §6's iterate operation).
type Entry struct {
	InodeIndex uint32
	Name       string
}

// Root is the in-memory copy of the root directory's single data block.
// Grounded on src/ko/file.c's yukifs_lookup/yukifs_create/
// yukifs_iterate_shared, which all treat the block as a uint32 slot
// array addressed by data_blocks_offset + first_block*block_size.
type Root struct {
	dev        block.Device
	blockIndex int64 // absolute block index of the root's data block
	slots      []uint32
}

// Load reads the root directory's data block. dataBlockIndex is the
// absolute block index (i.e. data_blocks_offset/block_size + 0, since
// inode 0's first_block is always 0).
func Load(dev block.Device, dataBlockIndex int64) (*Root, error) {
	blockSize := dev.BlockSize()
	buf := make([]byte, blockSize)
	if err := dev.ReadBlocks(dataBlockIndex, 1, buf); err != nil {
		return nil, fmt.Errorf("rootdir: read root block: %w", err)
	}
	slots := make([]uint32, blockSize/4)
	for i := range slots {
		slots[i] = binary.LittleEndian.Uint32(buf[i*4 : i*4+4])
	}
	return &Root{dev: dev, blockIndex: dataBlockIndex, slots: slots}, nil
}

// commit writes the root block back to disk.
func (r *Root) commit() error {
	buf := make([]byte, len(r.slots)*4)
	for i, v := range r.slots {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
	}
	if err := r.dev.WriteBlocks(r.blockIndex, 1, buf); err != nil {
		return fmt.Errorf("rootdir: write root block: %w", err)
	}
	return nil
}

// Lookup scans for a non-empty slot whose inode's name matches name
// (spec §4.5: first match wins, exact post-truncation comparison).
func (r *Root) Lookup(table *itable.Table, name string) (inodeIndex uint32, found bool, err error) {
	for _, slot := range r.slots {
		if slot == 0 {
			continue
		}
		inode, gerr := table.Get(slot)
		if gerr != nil {
			return 0, false, fmt.Errorf("rootdir: lookup %q: %w", name, gerr)
		}
		if inode.NameString() == name {
			return slot, true, nil
		}
	}
	return 0, false, nil
}

// Create finds the first empty slot, allocates an inode for it (spec
// §4.4), writes the inode index into the slot, and commits the root
// block and the inode table. isDir must be false; YukiFS has no
// subdirectories (spec §4.5).
func (r *Root) Create(table *itable.Table, name string, descriptor uint32, isDir bool) (inodeIndex uint32, err error) {
	if isDir {
		return 0, ErrPermissionDenied
	}
	slotIdx := -1
	for i, slot := range r.slots {
		if slot == 0 {
			slotIdx = i
			break
		}
	}
	if slotIdx < 0 {
		return 0, fmt.Errorf("rootdir: %w", ErrNoSpace)
	}

	idx, err := table.Allocate(name, descriptor)
	if err != nil {
		return 0, fmt.Errorf("rootdir: create %q: %w", name, err)
	}

	r.slots[slotIdx] = idx
	if err := r.commit(); err != nil {
		return 0, err
	}
	if err := table.Commit(); err != nil {
		return 0, err
	}
	return idx, nil
}

// Unlink finds the slot referencing name, zeroes it, frees the inode,
// and commits the root block and inode table. It does not zero the
// file's data block on disk; the caller (session) does that via the
// file package before calling Unlink, since rootdir has no notion of
// the data region's base offset.
func (r *Root) Unlink(table *itable.Table, name string) (inodeIndex uint32, err error) {
	slotIdx := -1
	var idx uint32
	for i, slot := range r.slots {
		if slot == 0 {
			continue
		}
		inode, gerr := table.Get(slot)
		if gerr != nil {
			return 0, fmt.Errorf("rootdir: unlink %q: %w", name, gerr)
		}
		if inode.NameString() == name {
			slotIdx = i
			idx = slot
			break
		}
	}
	if slotIdx < 0 {
		return 0, fmt.Errorf("rootdir: %w", ErrNotFound)
	}

	if err := table.Free(idx); err != nil {
		return 0, fmt.Errorf("rootdir: unlink %q: %w", name, err)
	}
	r.slots[slotIdx] = 0

	if err := r.commit(); err != nil {
		return 0, err
	}
	if err := table.Commit(); err != nil {
		return 0, err
	}
	return idx, nil
}

// Iterate emits entries for non-empty slots starting at the byte cursor
// pos (4 bytes per slot, per spec §4.5: "Iteration cursor is measured in
// bytes into the slot array"), up to max entries (0 means no limit), and
// returns the entries plus the next cursor to resume from.
func (r *Root) Iterate(table *itable.Table, pos int64, max int) ([]Entry, int64, error) {
	start := int(pos / 4)
	if start < 0 {
		start = 0
	}
	var entries []Entry
	i := start
	for ; i < len(r.slots); i++ {
		slot := r.slots[i]
		if slot != 0 {
			inode, err := table.Get(slot)
			if err != nil {
				return nil, 0, fmt.Errorf("rootdir: iterate: %w", err)
			}
			entries = append(entries, Entry{InodeIndex: slot, Name: inode.NameString()})
			if max > 0 && len(entries) >= max {
				i++
				break
			}
		}
	}
	return entries, int64(i) * 4, nil
}

// Slots exposes the raw slot array for invariant checks and the
// inspector; callers must not mutate the returned slice's backing array
// without going through Create/Unlink.
func (r *Root) Slots() []uint32 {
	out := make([]uint32, len(r.slots))
	copy(out, r.slots)
	return out
}

// ErrNoSpace and ErrNotFound are the rootdir-local sentinels for the
// two conditions create/lookup/unlink can hit that aren't already
// covered by itable.ErrNoSpace (empty directory slot, vs. empty inode
// table — spec §4.5 distinguishes the two NoSpace sources but both map
// to the same yukifs.KindNoSpace at the session layer).
var (
	ErrNoSpace  = fmt.Errorf("no free directory slot")
	ErrNotFound = fmt.Errorf("name not found in root directory")
)
