// Package session implements the YukiFS mount pipeline (spec §4.7) and
// the single-mount-wide-lock concurrency model (spec §5), wiring
// layout/format/itable/rootdir/file into the external operation
// interface of spec §6.
package session

import (
	"errors"
	"sync"

	"github.com/yukifs/yukifs"
	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/file"
	"github.com/yukifs/yukifs/format"
	"github.com/yukifs/yukifs/itable"
	"github.com/yukifs/yukifs/rootdir"
)

// Session is the mounted, long-lived handle a caller holds for the
// lifetime of a mount, analogous to disk.Disk in the teacher: it bundles
// the backing device with every piece of in-memory state a mutation
// needs, behind one lock. Grounded on disk/disk.go's Disk struct as the
// field-holding session object; the mutex is added per spec §5, which
// disk.Disk's single-process, single-call-site usage never needed.
type Session struct {
	mu sync.RWMutex

	dev              block.Device
	superblockOffset int64
	superblock       *format.Superblock
	table            *itable.Table
	root             *rootdir.Root
}

// Statfs is the snapshot spec §6's statfs operation returns.
type Statfs struct {
	BlockSize   uint32
	BlockCount  uint32
	BlockFree   uint32
	TotalInodes uint32
	FreeInodes  uint32
	MaxNameLen  int
}

// InodeHandle names a live inode for the caller, the result of lookup
// or create (spec §6).
type InodeHandle struct {
	Index uint32
}

// Entry is one directory entry, as returned by Iterate.
type Entry = rootdir.Entry

// Mount runs the §4.7 pipeline against dev: scan the first 16 KiB for
// the hidden record's brackets, read the superblock at its recorded
// offset, adopt the superblock's block size onto dev, and load the root
// directory via inode 0. The scan and superblock reads use ReadAt, so
// dev's block size at open time is irrelevant to them; dev.SetBlockSize
// is called before the first ReadBlocks-based load (the inode table),
// so callers never need to know an image's true block size up front.
func Mount(dev block.Device) (*Session, error) {
	const scanReadSize = format.ScanWindow
	window := make([]byte, scanReadSize)
	n, err := dev.ReadAt(window, 0)
	// A short read (n < len(window)) on a small image is expected and
	// carries its own io.EOF-shaped error from some ReadAt
	// implementations; only a read that found nothing at all is fatal.
	if n == 0 && err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindIO, err)
	}
	window = window[:n]

	bracketOffset, err := format.Scan(window)
	if err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindNoHiddenHeader, err)
	}

	hiddenBuf := make([]byte, len(window)-bracketOffset)
	if _, err := dev.ReadAt(hiddenBuf, int64(bracketOffset)); err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindIO, err)
	}
	hidden, err := format.HiddenRecordFromBytes(hiddenBuf)
	if err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindInvalidFormat, err)
	}

	sbOffset := int64(hidden.SuperblockOffset)
	sbBuf := make([]byte, format.Size)
	if _, err := dev.ReadAt(sbBuf, sbOffset); err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindIO, err)
	}
	sb, err := format.SuperblockFromBytes(sbBuf)
	if err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindInvalidFormat, err)
	}
	if err := sb.Validate(); err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindInvalidFormat, err)
	}

	// Spec §4.7 step 4: adopt the superblock's block_size as the backing
	// store's block size for every ReadBlocks/WriteBlocks call from here
	// on (itable.Load and rootdir.Load below address blocks, not bytes).
	// dev was opened at a tentative size that need not match the image's
	// actual one; without this, a valid image built at a block size other
	// than the caller's tentative open size would be mounted against the
	// wrong byte ranges with no error.
	if err := dev.SetBlockSize(int(sb.BlockSize)); err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindInvalidFormat, err)
	}

	table, err := itable.Load(dev, int64(sb.InodeTableOffset), sb.InodeTableClusters, sb.TotalInodes)
	if err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindIO, err)
	}

	rootInode, err := table.Get(0)
	if err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindInvalidFormat, err)
	}
	rootBlockIndex := int64(sb.DataBlocksOffset)/int64(sb.BlockSize) + int64(rootInode.FirstBlock)
	root, err := rootdir.Load(dev, rootBlockIndex)
	if err != nil {
		return nil, yukifs.NewError("mount", yukifs.KindIO, err)
	}

	return &Session{
		dev:              dev,
		superblockOffset: sbOffset,
		superblock:       sb,
		table:            table,
		root:             root,
	}, nil
}

// Unmount drops the in-memory superblock copy. No flush beyond what
// prior write operations already forced durable (spec §4.7).
func (s *Session) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dev = nil
	s.superblock = nil
	s.table = nil
	s.root = nil
}

func (s *Session) dataBlocksOffset() int64 {
	return int64(s.superblock.DataBlocksOffset)
}

// Statfs reports the live counters (spec §6).
func (s *Session) Statfs() Statfs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sb := s.superblock
	return Statfs{
		BlockSize:   sb.BlockSize,
		BlockCount:  sb.BlockCount,
		BlockFree:   sb.BlockFree,
		TotalInodes: sb.TotalInodes,
		FreeInodes:  sb.FreeInodes,
		MaxNameLen:  format.MaxNameLen,
	}
}

// Lookup resolves name in the root directory (spec §4.5, §6).
func (s *Session) Lookup(name string) (InodeHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, found, err := s.root.Lookup(s.table, name)
	if err != nil {
		return InodeHandle{}, yukifs.NewError("lookup", yukifs.KindIO, err)
	}
	if !found {
		return InodeHandle{}, yukifs.NewError("lookup", yukifs.KindNotFound, nil)
	}
	return InodeHandle{Index: idx}, nil
}

// Create allocates a new regular file named name with the given
// descriptor (type-and-permission word, spec §6) and commits the root
// block, inode table, and superblock counters. Subdirectory creation
// (isDir) is rejected with PermissionDenied (spec §4.5).
func (s *Session) Create(name string, descriptor uint32, isDir bool) (InodeHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.root.Create(s.table, name, descriptor, isDir)
	if err != nil {
		switch {
		case errors.Is(err, rootdir.ErrPermissionDenied):
			return InodeHandle{}, yukifs.NewError("create", yukifs.KindPermissionDenied, err)
		default:
			if isNoSpace(err) {
				return InodeHandle{}, yukifs.NewError("create", yukifs.KindNoSpace, err)
			}
			return InodeHandle{}, yukifs.NewError("create", yukifs.KindIO, err)
		}
	}

	s.superblock.FreeInodes--
	s.superblock.BlockFree--
	if err := s.commitSuperblock(); err != nil {
		return InodeHandle{}, err
	}
	return InodeHandle{Index: idx}, nil
}

// Open materialises a FileHandle over h's data block (spec §4.6, §6).
func (s *Session) Open(h InodeHandle, appendMode bool) (*file.Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inode, err := s.table.Get(h.Index)
	if err != nil {
		return nil, yukifs.NewError("open", yukifs.KindNotFound, err)
	}
	return file.Open(s.dev, s.dataBlocksOffset(), h.Index, inode, appendMode), nil
}

// Read copies into buf from fh at its current position (spec §4.6, §6).
// Read takes the session's shared lock for the duration of the block
// transfer, matching spec §5's "reads take a shared variant of the
// lock" fallback (this implementation does not assume whole-block
// atomicity from the backing Device).
func (s *Session) Read(fh *file.Handle, buf []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, err := fh.Read(buf)
	if err != nil {
		if errors.Is(err, file.ErrInvalidOffset) {
			return n, yukifs.NewError("read", yukifs.KindInvalidOffset, err)
		}
		return n, yukifs.NewError("read", yukifs.KindIO, err)
	}
	return n, nil
}

// Write copies from buf into fh's block at its current position and
// commits the resulting inode-table change (spec §4.6). Create already
// accounts for the inode/block this file consumes the moment it is
// allocated (spec §4.4's Allocate marks in_use at size == 0), so Write
// only needs to persist the updated size, not touch free_inodes or
// block_free again.
func (s *Session) Write(fh *file.Handle, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := fh.Write(buf)
	if err != nil {
		return n, yukifs.NewError("write", yukifs.KindIO, err)
	}
	if err := s.table.Commit(); err != nil {
		return n, yukifs.NewError("write", yukifs.KindIO, err)
	}
	return n, nil
}

// Unlink zeros the named file's data block, then removes its directory
// slot and inode record, then commits counters (spec §4.5).
func (s *Session) Unlink(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, found, err := s.root.Lookup(s.table, name)
	if err != nil {
		return yukifs.NewError("unlink", yukifs.KindIO, err)
	}
	if !found {
		return yukifs.NewError("unlink", yukifs.KindNotFound, nil)
	}

	if err := file.ZeroBlock(s.dev, s.dataBlocksOffset(), idx); err != nil {
		return yukifs.NewError("unlink", yukifs.KindIO, err)
	}

	if _, err := s.root.Unlink(s.table, name); err != nil {
		return yukifs.NewError("unlink", yukifs.KindIO, err)
	}

	s.superblock.FreeInodes++
	s.superblock.BlockFree++
	return s.commitSuperblock()
}

// Iterate lists directory entries starting at cursor (spec §4.5, §6).
// max == 0 means no limit.
func (s *Session) Iterate(cursor int64, max int) ([]Entry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, next, err := s.root.Iterate(s.table, cursor, max)
	if err != nil {
		return nil, 0, yukifs.NewError("iterate", yukifs.KindIO, err)
	}
	return entries, next, nil
}

func (s *Session) commitSuperblock() error {
	buf := s.superblock.Bytes()
	if _, err := s.dev.WriteAt(buf, s.superblockOffset); err != nil {
		return yukifs.NewError("commit", yukifs.KindIO, err)
	}
	return nil
}

func isNoSpace(err error) bool {
	return errors.Is(err, itable.ErrNoSpace) || errors.Is(err, rootdir.ErrNoSpace)
}
