package rootdir_test

import (
	"testing"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/format"
	"github.com/yukifs/yukifs/itable"
	"github.com/yukifs/yukifs/rootdir"
)

const testBlockSize = 64 // 16 slots of 4 bytes each
const testTotalInodes = 16

func newFixture(t *testing.T) (*rootdir.Root, *itable.Table, block.Device) {
	t.Helper()
	clusters := uint32((testTotalInodes*format.InodeSize + testBlockSize - 1) / testBlockSize)
	dev, err := block.NewMemory(int64(clusters+1)*testBlockSize, testBlockSize)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	table, err := itable.Load(dev, 0, clusters, testTotalInodes)
	if err != nil {
		t.Fatalf("itable.Load: %v", err)
	}
	// Slot 0 is the root directory's own inode, per spec §4.4.
	if _, err := table.Allocate("", uint32(format.DefaultDirMode)); err != nil {
		t.Fatalf("Allocate root inode: %v", err)
	}
	if err := table.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	root, err := rootdir.Load(dev, int64(clusters))
	if err != nil {
		t.Fatalf("rootdir.Load: %v", err)
	}
	return root, table, dev
}

func TestCreateThenLookup(t *testing.T) {
	root, table, _ := newFixture(t)

	idx, err := root.Create(table, "hello", uint32(format.DefaultFileMode), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, found, err := root.Lookup(table, "hello")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatalf("Lookup: not found after Create")
	}
	if got != idx {
		t.Errorf("Lookup returned inode %d, want %d", got, idx)
	}

	inode, err := table.Get(idx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inode.Size != 0 {
		t.Errorf("new inode size = %d, want 0", inode.Size)
	}
	if inode.FirstBlock != idx {
		t.Errorf("new inode first_block = %d, want %d (== inode index)", inode.FirstBlock, idx)
	}
}

func TestCreateRejectsSubdirectory(t *testing.T) {
	root, table, _ := newFixture(t)
	if _, err := root.Create(table, "adir", uint32(format.DefaultDirMode), true); err != rootdir.ErrPermissionDenied {
		t.Fatalf("Create(isDir=true) error = %v, want ErrPermissionDenied", err)
	}
}

func TestNameTruncation(t *testing.T) {
	root, table, _ := newFixture(t)
	if _, err := root.Create(table, "abcdefghX", uint32(format.DefaultFileMode), false); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, found, err := root.Lookup(table, "abcdefgh"); err != nil || !found {
		t.Errorf("Lookup(%q): found=%v err=%v, want found=true", "abcdefgh", found, err)
	}
	if _, found, err := root.Lookup(table, "abcdefghX"); err != nil || found {
		t.Errorf("Lookup(%q): found=%v err=%v, want found=false", "abcdefghX", found, err)
	}
}

func TestUnlinkRemovesSlotAndInode(t *testing.T) {
	root, table, _ := newFixture(t)
	idx, err := root.Create(table, "hello", uint32(format.DefaultFileMode), false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := root.Unlink(table, "hello"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}

	if _, found, err := root.Lookup(table, "hello"); err != nil || found {
		t.Errorf("Lookup after Unlink: found=%v err=%v, want found=false", found, err)
	}
	inode, err := table.Get(idx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inode.IsInUse() {
		t.Errorf("inode %d still in_use after Unlink", idx)
	}
	for _, slot := range root.Slots() {
		if slot == idx {
			t.Fatalf("slot for inode %d still set after Unlink", idx)
		}
	}
}

func TestUnlinkMissingNameFails(t *testing.T) {
	root, table, _ := newFixture(t)
	if _, err := root.Unlink(table, "missing"); err == nil {
		t.Fatalf("Unlink of a nonexistent name: expected error, got nil")
	}
}

func TestIterateResumesFromCursor(t *testing.T) {
	root, table, _ := newFixture(t)
	names := []string{"a", "b", "c"}
	for _, n := range names {
		if _, err := root.Create(table, n, uint32(format.DefaultFileMode), false); err != nil {
			t.Fatalf("Create(%q): %v", n, err)
		}
	}

	first, cursor, err := root.Iterate(table, 0, 2)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first page length = %d, want 2", len(first))
	}

	second, _, err := root.Iterate(table, cursor, 0)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second page length = %d, want 1", len(second))
	}

	seen := map[string]bool{}
	for _, e := range append(first, second...) {
		seen[e.Name] = true
	}
	for _, n := range names {
		if !seen[n] {
			t.Errorf("name %q missing from combined iteration", n)
		}
	}
}
