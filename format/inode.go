package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxNameLen is the maximum file-name length YukiFS supports (spec §6).
// Names longer than this are silently truncated (spec §4.5, §7 —
// NameTooLong is explicitly not part of the error taxonomy).
const MaxNameLen = 8

// InodeSize is the fixed on-disk size of one inode record (spec §3: 32
// bytes, strictly padded).
const InodeSize = 32

// Default permission bits (spec §6).
const (
	DefaultDirMode  = 0o755
	DefaultFileMode = 0o644
)

// Inode is the 32-byte on-disk record of spec §3. Descriptor stores the
// combined type-and-permission word in the host's os.FileMode
// convention (os.ModeDir for the type bit, low 9 bits rwxrwxrwx), so
// callers can read it back with os.FileMode(inode.Descriptor).
type Inode struct {
	Name       [MaxNameLen]byte
	Size       uint32
	InUse      uint32
	Descriptor uint32
	FirstBlock uint32
}

// NameString returns the inode's name truncated at the first NUL byte
// or MaxNameLen, whichever comes first — the exact comparison basis
// spec §4.5's lookup and §8's truncation test use, grounded on the
// original yukifs_lookup's strncmp(name, ffo->name, len) == 0 &&
// len == strlen(ffo->name) pairing.
func (n *Inode) NameString() string {
	name := n.Name[:]
	if idx := bytes.IndexByte(name, 0); idx >= 0 {
		name = name[:idx]
	}
	return string(name)
}

// SetName truncates or zero-pads s to MaxNameLen bytes (spec §4.5: names
// longer than eight bytes are truncated without error; the eighth byte
// is forced to zero only when the name is exactly eight characters —
// i.e. there is no implicit terminator when the name fills all 8 bytes).
func (n *Inode) SetName(s string) {
	var buf [MaxNameLen]byte
	b := []byte(s)
	if len(b) > MaxNameLen {
		b = b[:MaxNameLen]
	}
	copy(buf[:], b)
	n.Name = buf
}

// IsInUse reports whether the slot holds a live inode.
func (n *Inode) IsInUse() bool { return n.InUse != 0 }

// Bytes encodes the inode to its packed 32-byte wire format.
func (n *Inode) Bytes() []byte {
	buf := make([]byte, InodeSize)
	copy(buf[0:MaxNameLen], n.Name[:])
	o := MaxNameLen
	binary.NativeEndian.PutUint32(buf[o:o+4], n.Size)
	o += 4
	binary.NativeEndian.PutUint32(buf[o:o+4], n.InUse)
	o += 4
	binary.NativeEndian.PutUint32(buf[o:o+4], n.Descriptor)
	o += 4
	binary.NativeEndian.PutUint32(buf[o:o+4], n.FirstBlock)
	return buf
}

// InodeFromBytes decodes one 32-byte inode record.
func InodeFromBytes(b []byte) (*Inode, error) {
	if len(b) < InodeSize {
		return nil, fmt.Errorf("format: inode buffer too short: %d < %d", len(b), InodeSize)
	}
	var n Inode
	copy(n.Name[:], b[0:MaxNameLen])
	o := MaxNameLen
	n.Size = binary.NativeEndian.Uint32(b[o : o+4])
	o += 4
	n.InUse = binary.NativeEndian.Uint32(b[o : o+4])
	o += 4
	n.Descriptor = binary.NativeEndian.Uint32(b[o : o+4])
	o += 4
	n.FirstBlock = binary.NativeEndian.Uint32(b[o : o+4])
	return &n, nil
}

// Zero clears the inode record in place, the on-disk effect of Free
// (spec §4.4: "Free. Zero the whole 32-byte record.").
func (n *Inode) Zero() {
	*n = Inode{}
}
