// Package file implements the YukiFS file data path (spec §4.6):
// single-block read/write with zero-pad on short writes and the
// O_APPEND offset rule.
package file

import (
	"fmt"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/format"
)

// ErrInvalidOffset is returned by Read when the offset is past the end
// of the file (spec §4.6, §7).
var ErrInvalidOffset = fmt.Errorf("offset past end of file")

// Handle is an open file, tracking the shared read/write position the
// way a single POSIX fd does (spec §4.6: "Reads and writes share one
// file position"). Grounded on filesystem/fat32/file.go's File type,
// narrowed to YukiFS's single-block-per-file model (no cluster chain).
type Handle struct {
	dev              block.Device
	dataBlocksOffset int64 // absolute byte offset of the data region
	inodeIndex       uint32
	inode            *format.Inode // aliases the caller's in-memory inode; Size is updated in place
	position         int64
	appendMode       bool
}

// Open creates a Handle for inode at inodeIndex (== its data block
// slot, spec §4.6). If appendMode, the position starts at inode.Size
// (spec §4.6's Open: "With append mode, the file position is
// initialised to the current inode.size; otherwise to zero").
func Open(dev block.Device, dataBlocksOffset int64, inodeIndex uint32, inode *format.Inode, appendMode bool) *Handle {
	h := &Handle{
		dev:              dev,
		dataBlocksOffset: dataBlocksOffset,
		inodeIndex:       inodeIndex,
		inode:            inode,
		appendMode:       appendMode,
	}
	if appendMode {
		h.position = int64(inode.Size)
	}
	return h
}

// Position returns the handle's current file offset.
func (h *Handle) Position() int64 { return h.position }

// InodeIndex returns the inode index this handle was opened against, so
// a caller holding the handle (the session) can re-fetch the inode to
// inspect size transitions without file re-exposing format internals.
func (h *Handle) InodeIndex() uint32 { return h.inodeIndex }

// Seek repositions the handle for random-access reads (spec §4.6
// frames Read/Write in terms of an explicit offset o; Seek is how a
// caller holding one shared position advances to an arbitrary o
// between operations, the same role io.Seeker plays for
// filesystem/fat32.File in the teacher).
func (h *Handle) Seek(offset int64) { h.position = offset }

func (h *Handle) blockIndex() int64 {
	return h.dataBlocksOffset/int64(h.dev.BlockSize()) + int64(h.inodeIndex)
}

// Read copies up to len(dst) bytes starting at the handle's current
// position, clamped to the file's logical size, and advances the
// position by the number of bytes read (spec §4.6).
func (h *Handle) Read(dst []byte) (int, error) {
	size := int64(h.inode.Size)
	if h.position > size {
		return 0, ErrInvalidOffset
	}
	toRead := int64(len(dst))
	if avail := size - h.position; toRead > avail {
		toRead = avail
	}
	if toRead <= 0 {
		return 0, nil
	}

	blockSize := h.dev.BlockSize()
	scratch := make([]byte, blockSize)
	if err := h.dev.ReadBlocks(h.blockIndex(), 1, scratch); err != nil {
		return 0, fmt.Errorf("file: read block for inode %d: %w", h.inodeIndex, err)
	}

	n := copy(dst[:toRead], scratch[h.position:h.position+toRead])
	h.position += int64(n)
	return n, nil
}

// Write copies up to len(src) bytes into the file's single data block
// at the handle's current position, clamped so the write never crosses
// the block boundary (spec §4.6: "Clamp l so o + l <= block_size").
// Bytes beyond the clamp are silently dropped, not reported as an
// error, per spec. In non-append mode the scratch buffer starts
// zero-filled rather than loaded from disk (spec §4.6, §9: "the
// literal source behavior... not a bug"), so a non-append write at
// offset o > 0 zeroes bytes [0, o) of the file on disk.
func (h *Handle) Write(src []byte) (int, error) {
	blockSize := h.dev.BlockSize()
	if h.position > int64(blockSize) {
		h.position = int64(blockSize)
	}
	toWrite := int64(len(src))
	if h.position+toWrite > int64(blockSize) {
		toWrite = int64(blockSize) - h.position
	}
	if toWrite < 0 {
		toWrite = 0
	}

	scratch := make([]byte, blockSize)
	if h.appendMode {
		if err := h.dev.ReadBlocks(h.blockIndex(), 1, scratch); err != nil {
			return 0, fmt.Errorf("file: read block for inode %d: %w", h.inodeIndex, err)
		}
	}

	copy(scratch[h.position:h.position+toWrite], src[:toWrite])

	if err := h.dev.WriteBlocks(h.blockIndex(), 1, scratch); err != nil {
		return 0, fmt.Errorf("file: write block for inode %d: %w", h.inodeIndex, err)
	}

	newEnd := h.position + toWrite
	h.position = newEnd
	switch {
	case !h.appendMode:
		// A non-append write always resets logical size to the new
		// end: the scratch buffer started zero-filled, so whatever
		// the write didn't cover is zero on disk and must not be
		// reported as file content (spec §9's zero-scratch-buffer rule).
		h.inode.Size = uint32(newEnd)
	case uint32(newEnd) > h.inode.Size:
		h.inode.Size = uint32(newEnd)
	}

	return int(toWrite), nil
}

// ZeroBlock overwrites the data block referenced by inodeIndex with
// zeros, the first step of unlink (spec §4.5: "zero the file's data
// block on disk").
func ZeroBlock(dev block.Device, dataBlocksOffset int64, inodeIndex uint32) error {
	blockSize := dev.BlockSize()
	zero := make([]byte, blockSize)
	idx := dataBlocksOffset/int64(blockSize) + int64(inodeIndex)
	if err := dev.WriteBlocks(idx, 1, zero); err != nil {
		return fmt.Errorf("file: zero block for inode %d: %w", inodeIndex, err)
	}
	return nil
}
