// Package builder implements the YukiFS image builder (spec §4.8):
// zero the device, compute the layout, fill the padding/hidden/
// superblock header, and write a fresh root-only inode table.
// Grounded on src/mkfs/mkfs.c's main() control flow (zero the device,
// build the header buffer, write header, write inode table).
package builder

import (
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/yukifs/yukifs/block"
	"github.com/yukifs/yukifs/format"
	"github.com/yukifs/yukifs/layout"
)

// Options configures a build (spec §4.8, §6's external constants).
type Options struct {
	// BlockSize must fall within [layout.MinBlockSize, layout.MaxBlockSize].
	BlockSize uint32
	// DriverModule is the embedded driver-module blob staged into the
	// hidden region's blocks after the header block (spec §4.2 step 2).
	// Nil is a valid zero-length driver module, used by tests.
	DriverModule []byte
	// Payload is the optional embedded helper-payload blob placed at the
	// start of the padding region when the target is a regular file
	// (spec §4.2 step 1). Ignored for raw block device targets.
	Payload []byte
	// IsBlockDevice selects the raw-device padding rule (all-zero
	// padding) over the regular-file rule (payload-prefixed padding),
	// mirroring mkfs.c's gen_fs_padding_data dispatch on S_ISBLK.
	IsBlockDevice bool
	// Force stands in for the "this will erase all data" confirmation
	// mkfs.c prompts for interactively. Build never prompts and does not
	// read Force; confirming before calling Build is the caller's job.
	Force bool
	// BuildToolName/BuildToolVersion/FSVersion populate the hidden
	// record's descriptive fields (spec §3). Zero values are fine; they
	// do not participate in any derived offset.
	BuildToolName    string
	BuildToolVersion [3]byte
	FSVersion        [3]byte
	DriverVersion    string
}

// Result reports what Build computed and wrote, for callers (the CLI
// front-end, tests) that want the numbers without re-deriving them.
type Result struct {
	Layout     *layout.Layout
	Superblock *format.Superblock
}

// Build creates a fresh YukiFS image on dev, which must already be
// sized to its final device_size (the caller truncates a regular file
// or opens a raw device of fixed size before calling Build). log may be
// nil, in which case a logrus.New() default is used.
func Build(dev block.Device, opts Options, log *logrus.Logger) (*Result, error) {
	if log == nil {
		log = logrus.New()
	}

	size, err := dev.Size()
	if err != nil {
		return nil, fmt.Errorf("builder: device size: %w", err)
	}

	log.WithFields(logrus.Fields{"size": size, "block_size": opts.BlockSize}).Info("zeroing device")
	if err := zeroDevice(dev, size); err != nil {
		return nil, fmt.Errorf("builder: zero device: %w", err)
	}

	l, err := layout.Compute(size, opts.BlockSize, int64(len(opts.DriverModule)))
	if err != nil {
		return nil, fmt.Errorf("builder: compute layout: %w", err)
	}
	log.WithFields(logrus.Fields{
		"header_size":        l.HeaderSize,
		"total_inodes":       l.TotalInodes,
		"inode_table_offset": l.InodeTableOffset,
		"data_blocks_offset": l.DataBlocksOffset,
	}).Info("layout computed")

	log.Info("writing padding region")
	if err := writePadding(dev, l, opts); err != nil {
		return nil, fmt.Errorf("builder: write padding: %w", err)
	}

	sbOffset := l.FSPaddingSize + l.HiddenDataSize
	log.Info("writing hidden record and driver module")
	if err := writeHidden(dev, l, opts, uint64(sbOffset)); err != nil {
		return nil, fmt.Errorf("builder: write hidden record: %w", err)
	}

	sb := format.FromLayout(l)
	log.Info("writing superblock")
	if _, err := dev.WriteAt(sb.Bytes(), sbOffset); err != nil {
		return nil, fmt.Errorf("builder: write superblock: %w", err)
	}

	log.Info("writing root-only inode table")
	if err := writeInodeTable(dev, l); err != nil {
		return nil, fmt.Errorf("builder: write inode table: %w", err)
	}

	log.WithField("total_inodes", l.TotalInodes).Info("build complete")
	return &Result{Layout: l, Superblock: sb}, nil
}

// zeroDevice overwrites every byte of dev with zero, the first step of
// mkfs.c's main() (its chunked 4 KiB zero_buffer loop; here the chunk
// is a fixed 1 MiB, written with WriteAt).
func zeroDevice(dev block.Device, size int64) error {
	const chunk = 1 << 20
	buf := make([]byte, chunk)
	for off := int64(0); off < size; off += chunk {
		n := chunk
		if off+int64(n) > size {
			n = int(size - off)
		}
		if _, err := dev.WriteAt(buf[:n], off); err != nil {
			return err
		}
	}
	return nil
}

// writePadding fills the padding region (spec §4.2 step 1): for a
// regular-file target, the helper payload followed by zeros; for a raw
// block device, all zeros (mkfs.c's gen_fs_padding_data).
func writePadding(dev block.Device, l *layout.Layout, opts Options) error {
	buf := make([]byte, l.FSPaddingSize)
	if !opts.IsBlockDevice && len(opts.Payload) > 0 {
		if int64(len(opts.Payload)) > l.FSPaddingSize {
			return fmt.Errorf("builder: payload of %d bytes exceeds padding region of %d bytes", len(opts.Payload), l.FSPaddingSize)
		}
		copy(buf, opts.Payload)
	}
	_, err := dev.WriteAt(buf, 0)
	return err
}

// writeHidden fills the first hidden block with a populated
// HiddenRecord whose SuperblockOffset points at sbOffset, then stages
// the driver-module blob in the following blocks (spec §4.2 step 2,
// §4.8 step d).
func writeHidden(dev block.Device, l *layout.Layout, opts Options, sbOffset uint64) error {
	bs := int64(l.BlockSize)
	hiddenOffset := l.FSPaddingSize
	driverOffset := hiddenOffset + bs
	driverStorageSize := l.HiddenDataSize - bs

	h := &format.HiddenRecord{
		FSVersion:          opts.FSVersion,
		BuildToolVersion:   opts.BuildToolVersion,
		PayloadOffset:      0,
		PayloadSize:        uint64(len(opts.Payload)),
		PayloadStorageSize: uint64(l.FSPaddingSize),
		RecordOffset:       uint64(hiddenOffset),
		RecordSize:         uint64(bs),
		RecordStorageSize:  uint64(bs),
		DriverOffset:       uint64(driverOffset),
		DriverSize:         uint64(len(opts.DriverModule)),
		DriverStorageSize:  uint64(driverStorageSize),
		Architecture:       hostArchTag(),
		SuperblockOffset:   sbOffset,
	}
	copy(h.BuildToolName[:], opts.BuildToolName)
	copy(h.DriverVersion[:], opts.DriverVersion)
	if opts.IsBlockDevice {
		h.PayloadSize = 0
	}

	headerBlock := make([]byte, bs)
	copy(headerBlock, h.Bytes())
	if _, err := dev.WriteAt(headerBlock, hiddenOffset); err != nil {
		return err
	}

	if len(opts.DriverModule) == 0 {
		return nil
	}
	driverBuf := make([]byte, driverStorageSize)
	copy(driverBuf, opts.DriverModule)
	_, err := dev.WriteAt(driverBuf, driverOffset)
	return err
}

// writeInodeTable writes a zeroed inode table with only the root inode
// populated at slot 0 (spec §4.8 step f).
func writeInodeTable(dev block.Device, l *layout.Layout) error {
	root := &format.Inode{
		Size:  l.BlockSize,
		InUse: 1,
		// The root is the only directory YukiFS ever has; the original
		// mkfs.c writes root_dir.descriptor = S_IFDIR | 0777, not the
		// 0755 ordinary-directory default.
		Descriptor: 0o777 | dirTypeBit,
		FirstBlock: 0,
	}

	buf := make([]byte, l.InodeTableStorageSize)
	copy(buf[0:format.InodeSize], root.Bytes())
	_, err := dev.WriteAt(buf, l.InodeTableOffset)
	return err
}

// dirTypeBit is os.ModeDir's value, recorded directly so this package
// does not need to import "os" for a single constant (spec §6: "root
// directory mode combines directory type with permission bits").
const dirTypeBit = 1 << 31

// hostArchTag infers the hidden record's architecture tag from the
// build's GOARCH (spec §6's architecture tag values), the Go-idiomatic
// equivalent of mkfs.c's #ifdef __i386__ / __x86_64__ / __arm__ /
// __aarch64__ / __riscv__ ladder.
func hostArchTag() uint8 {
	switch runtime.GOARCH {
	case "386":
		return format.ArchX86_32
	case "amd64":
		return format.ArchX86_64
	case "arm":
		return format.ArchARM32
	case "arm64":
		return format.ArchARM64
	case "riscv64":
		return format.ArchRISCV
	default:
		return format.ArchUnknown
	}
}
