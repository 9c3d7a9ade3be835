package block_test

import (
	"path/filepath"
	"testing"

	"github.com/yukifs/yukifs/block"
)

func TestMemoryDeviceReadWriteBlocks(t *testing.T) {
	dev, err := block.NewMemory(4096, 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	src := make([]byte, 512)
	for i := range src {
		src[i] = byte(i)
	}
	if err := dev.WriteBlocks(2, 1, src); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}

	dst := make([]byte, 512)
	if err := dev.ReadBlocks(2, 1, dst); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestMemoryDeviceRejectsMismatchedBufferSize(t *testing.T) {
	dev, err := block.NewMemory(4096, 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if err := dev.WriteBlocks(0, 1, make([]byte, 100)); err == nil {
		t.Fatalf("WriteBlocks: expected error for mismatched buffer size, got nil")
	}
}

func TestMemoryDeviceRejectsOutOfRangeBlock(t *testing.T) {
	dev, err := block.NewMemory(4096, 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if err := dev.ReadBlocks(100, 1, make([]byte, 512)); err == nil {
		t.Fatalf("ReadBlocks: expected error reading past the end of the device, got nil")
	}
}

func TestFileDeviceCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.yuki")

	dev, err := block.Create(path, 4096, 512)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	src := make([]byte, 512)
	copy(src, []byte("hello world"))
	if err := dev.WriteBlocks(1, 1, src); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dev2, err := block.Open(path, 512, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev2.Close()

	dst := make([]byte, 512)
	if err := dev2.ReadBlocks(1, 1, dst); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if string(dst[:11]) != "hello world" {
		t.Errorf("read back %q, want %q", dst[:11], "hello world")
	}
}

func TestFileDeviceReadOnlyRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.yuki")
	dev, err := block.Create(path, 4096, 512)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dev2, err := block.Open(path, 512, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev2.Close()

	if err := dev2.WriteBlocks(0, 1, make([]byte, 512)); err == nil {
		t.Fatalf("WriteBlocks on a read-only device: expected error, got nil")
	}
}
