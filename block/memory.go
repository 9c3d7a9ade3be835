package block

import (
	"fmt"
)

// memoryDevice is a Device backed by a heap buffer instead of a file,
// used by the image builder's dry-run mode (spec §4.8: "the dry-run
// mode performs the same composition against a heap buffer rather than
// the device"). Grounded on mkfs.c's try_run branch, which malloc()s
// mem_device and replays every write against it instead of the fd.
type memoryDevice struct {
	buf       []byte
	blockSize int
}

// NewMemory allocates a zero-filled in-memory Device of the given size
// and block size.
func NewMemory(size int64, blockSize int) (Device, error) {
	if size <= 0 {
		return nil, fmt.Errorf("block: invalid size %d", size)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block: invalid block size %d", blockSize)
	}
	return &memoryDevice{buf: make([]byte, size), blockSize: blockSize}, nil
}

func (d *memoryDevice) BlockSize() int       { return d.blockSize }
func (d *memoryDevice) Size() (int64, error) { return int64(len(d.buf)), nil }
func (d *memoryDevice) Sync() error          { return nil }
func (d *memoryDevice) Close() error         { return nil }

func (d *memoryDevice) SetBlockSize(blockSize int) error {
	if blockSize <= 0 {
		return fmt.Errorf("block: invalid block size %d", blockSize)
	}
	d.blockSize = blockSize
	return nil
}

func (d *memoryDevice) ReadBlocks(blockIndex, count int64, dst []byte) error {
	want := count * int64(d.blockSize)
	if int64(len(dst)) != want {
		return fmt.Errorf("block: ReadBlocks dst has %d bytes, want %d", len(dst), want)
	}
	off := blockIndex * int64(d.blockSize)
	if off < 0 || off+want > int64(len(d.buf)) {
		return fmt.Errorf("block: read %d blocks at %d out of range: %w", count, blockIndex, ErrShortTransfer)
	}
	copy(dst, d.buf[off:off+want])
	return nil
}

func (d *memoryDevice) WriteBlocks(blockIndex, count int64, src []byte) error {
	want := count * int64(d.blockSize)
	if int64(len(src)) != want {
		return fmt.Errorf("block: WriteBlocks src has %d bytes, want %d", len(src), want)
	}
	off := blockIndex * int64(d.blockSize)
	if off < 0 || off+want > int64(len(d.buf)) {
		return fmt.Errorf("block: write %d blocks at %d out of range: %w", count, blockIndex, ErrShortTransfer)
	}
	copy(d.buf[off:off+want], src)
	return nil
}

func (d *memoryDevice) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(d.buf)) {
		return 0, fmt.Errorf("block: ReadAt offset %d out of range", off)
	}
	n := copy(p, d.buf[off:])
	return n, nil
}

func (d *memoryDevice) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(d.buf)) {
		return 0, fmt.Errorf("block: WriteAt offset %d out of range", off)
	}
	n := copy(d.buf[off:], p)
	return n, nil
}

// Bytes returns the raw buffer, for inspecting or persisting a dry-run
// build without going through a file.
func (d *memoryDevice) Bytes() []byte { return d.buf }
