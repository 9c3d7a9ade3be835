package builder_test

import (
	"testing"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/builder"
	"github.com/yukifs/yukifs/format"
)

// TestBuildScenario1 exercises spec §8 scenario 1: a 1 MiB image,
// 1024-byte blocks, a zero-length driver module.
func TestBuildScenario1(t *testing.T) {
	dev, err := block.NewMemory(1024*1024, 1024)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}

	result, err := builder.Build(dev, builder.Options{BlockSize: 1024}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	l := result.Layout
	if l.HeaderSize != 3072 {
		t.Errorf("HeaderSize = %d, want 3072", l.HeaderSize)
	}
	if l.TotalInodes != 990 {
		t.Errorf("TotalInodes = %d, want 990", l.TotalInodes)
	}
	if l.InodeTableClusters != 31 {
		t.Errorf("InodeTableClusters = %d, want 31", l.InodeTableClusters)
	}
	if l.InodeTableStorageSize != 31744 {
		t.Errorf("InodeTableStorageSize = %d, want 31744", l.InodeTableStorageSize)
	}
	if l.DataBlocksOffset != 34816 {
		t.Errorf("DataBlocksOffset = %d, want 34816", l.DataBlocksOffset)
	}

	sb := result.Superblock
	if sb.BlockCount != 990 || sb.TotalInodes != 990 {
		t.Errorf("superblock block_count/total_inodes = %d/%d, want 990/990", sb.BlockCount, sb.TotalInodes)
	}
	if sb.FreeInodes != 989 {
		t.Errorf("superblock free_inodes = %d, want 989", sb.FreeInodes)
	}
	if sb.BlockFree != 989 {
		t.Errorf("superblock block_free = %d, want 989", sb.BlockFree)
	}
}

func TestBuildRejectsBlockSizeOutOfRange(t *testing.T) {
	dev, err := block.NewMemory(1024*1024, 512)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if _, err := builder.Build(dev, builder.Options{BlockSize: 256}, nil); err == nil {
		t.Fatalf("Build with out-of-range block size: expected error, got nil")
	}
}

func TestBuildWritesRootInode(t *testing.T) {
	dev, err := block.NewMemory(1024*1024, 1024)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	result, err := builder.Build(dev, builder.Options{BlockSize: 1024}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	rootBuf := make([]byte, format.InodeSize)
	n, err := dev.ReadAt(rootBuf, result.Layout.InodeTableOffset)
	if err != nil || n != format.InodeSize {
		t.Fatalf("ReadAt root inode record: n=%d err=%v", n, err)
	}
	root, err := format.InodeFromBytes(rootBuf)
	if err != nil {
		t.Fatalf("InodeFromBytes: %v", err)
	}
	if root.NameString() != "" {
		t.Errorf("root inode name = %q, want empty", root.NameString())
	}
	if !root.IsInUse() {
		t.Errorf("root inode in_use = false, want true")
	}
	if root.Size != result.Layout.BlockSize {
		t.Errorf("root inode size = %d, want %d", root.Size, result.Layout.BlockSize)
	}
	if root.FirstBlock != 0 {
		t.Errorf("root inode first_block = %d, want 0", root.FirstBlock)
	}
}

func TestBuildHostArchTagIsRecognised(t *testing.T) {
	dev, err := block.NewMemory(1024*1024, 1024)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	result, err := builder.Build(dev, builder.Options{BlockSize: 1024}, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	hiddenBuf := make([]byte, 512)
	if _, err := dev.ReadAt(hiddenBuf, result.Layout.FSPaddingSize); err != nil {
		t.Fatalf("ReadAt hidden record: %v", err)
	}
	hidden, err := format.HiddenRecordFromBytes(hiddenBuf)
	if err != nil {
		t.Fatalf("HiddenRecordFromBytes: %v", err)
	}
	switch hidden.Architecture {
	case format.ArchUnknown, format.ArchX86_32, format.ArchX86_64, format.ArchARM32, format.ArchARM64, format.ArchRISCV:
	default:
		t.Errorf("hidden record architecture tag = %#x, not one of the defined tags", hidden.Architecture)
	}
}
