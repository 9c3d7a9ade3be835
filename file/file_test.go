package file_test

import (
	"testing"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/file"
	"github.com/yukifs/yukifs/format"
)

const testBlockSize = 1024

func newFixture(t *testing.T, inodeIndex uint32) (block.Device, *format.Inode) {
	t.Helper()
	dev, err := block.NewMemory(int64(inodeIndex+2)*testBlockSize, testBlockSize)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	inode := &format.Inode{FirstBlock: inodeIndex}
	return dev, inode
}

// TestWriteAndReadBack exercises spec §8 scenario 3: write an 11-byte
// payload, then read all of it back, then read with an explicit
// offset/length.
func TestWriteAndReadBack(t *testing.T) {
	dev, inode := newFixture(t, 3)
	h := file.Open(dev, 0, 3, inode, false)

	n, err := h.Write([]byte("hello\nworld"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 11 {
		t.Fatalf("Write returned %d, want 11", n)
	}
	if inode.Size != 11 {
		t.Fatalf("inode.Size = %d, want 11", inode.Size)
	}

	h.Seek(0)
	buf := make([]byte, 11)
	n, err = h.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 11 || string(buf) != "hello\nworld" {
		t.Fatalf("Read returned (%d, %q), want (11, %q)", n, buf[:n], "hello\nworld")
	}

	h.Seek(6)
	buf5 := make([]byte, 5)
	n, err = h.Read(buf5)
	if err != nil {
		t.Fatalf("Read at offset 6: %v", err)
	}
	if string(buf5[:n]) != "world" {
		t.Fatalf("Read at offset 6 = %q, want %q", buf5[:n], "world")
	}

	h.Seek(11)
	n, err = h.Read(make([]byte, 1))
	if err != nil {
		t.Fatalf("Read at offset == size: unexpected error %v", err)
	}
	if n != 0 {
		t.Fatalf("Read at offset == size returned %d bytes, want 0", n)
	}
}

// TestAppendSemantics exercises spec §8 scenario 4.
func TestAppendSemantics(t *testing.T) {
	dev, inode := newFixture(t, 5)
	h := file.Open(dev, 0, 5, inode, false)
	if _, err := h.Write([]byte("hello\nworld")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h2 := file.Open(dev, 0, 5, inode, true)
	if h2.Position() != 11 {
		t.Fatalf("append Open position = %d, want 11", h2.Position())
	}
	if _, err := h2.Write([]byte("!")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if inode.Size != 12 {
		t.Fatalf("inode.Size after append = %d, want 12", inode.Size)
	}

	h3 := file.Open(dev, 0, 5, inode, false)
	buf := make([]byte, 12)
	n, err := h3.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello\nworld!" {
		t.Fatalf("Read-all after append = %q, want %q", buf[:n], "hello\nworld!")
	}
}

// TestReadPastEndFails matches spec §4.6: o > inode.size fails with
// ErrInvalidOffset, distinct from o == inode.size which is zero bytes,
// not an error (covered above).
func TestReadPastEndFails(t *testing.T) {
	dev, inode := newFixture(t, 1)
	inode.Size = 5
	h := file.Open(dev, 0, 1, inode, false)
	h.Seek(6)
	if _, err := h.Read(make([]byte, 1)); err != file.ErrInvalidOffset {
		t.Fatalf("Read past end error = %v, want ErrInvalidOffset", err)
	}
}

// TestWriteClampsToSingleBlock matches spec §8's single-block write
// limit invariant: writing block_size+k bytes at offset 0 reports
// exactly block_size bytes written.
func TestWriteClampsToSingleBlock(t *testing.T) {
	dev, inode := newFixture(t, 2)
	h := file.Open(dev, 0, 2, inode, false)

	payload := make([]byte, testBlockSize+100)
	n, err := h.Write(payload)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != testBlockSize {
		t.Fatalf("Write returned %d, want %d", n, testBlockSize)
	}
	if inode.Size != testBlockSize {
		t.Fatalf("inode.Size = %d, want %d", inode.Size, testBlockSize)
	}
}

// TestNonAppendWriteZeroesPriorContent matches the zero-scratch-buffer
// rule of spec §4.6/§9: a non-append write at offset o > 0 zeroes bytes
// [0, o) on disk, and inode.Size is reset to the new end rather than
// retaining any larger prior size.
func TestNonAppendWriteZeroesPriorContent(t *testing.T) {
	dev, inode := newFixture(t, 4)
	h := file.Open(dev, 0, 4, inode, false)
	if _, err := h.Write([]byte("0123456789")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	h2 := file.Open(dev, 0, 4, inode, false)
	h2.Seek(3)
	if _, err := h2.Write([]byte("X")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if inode.Size != 4 {
		t.Fatalf("inode.Size after offset write = %d, want 4 (new end, not prior 10)", inode.Size)
	}

	h3 := file.Open(dev, 0, 4, inode, false)
	buf := make([]byte, 4)
	n, err := h3.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := "\x00\x00\x00X"
	if string(buf[:n]) != want {
		t.Fatalf("Read-all = %q, want %q", buf[:n], want)
	}
}

func TestZeroBlockClearsData(t *testing.T) {
	dev, inode := newFixture(t, 6)
	h := file.Open(dev, 0, 6, inode, false)
	if _, err := h.Write([]byte("secret")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := file.ZeroBlock(dev, 0, 6); err != nil {
		t.Fatalf("ZeroBlock: %v", err)
	}

	raw := make([]byte, testBlockSize)
	if err := dev.ReadBlocks(6, 1, raw); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	for i, b := range raw {
		if b != 0 {
			t.Fatalf("byte %d = %d after ZeroBlock, want 0", i, b)
		}
	}
}
