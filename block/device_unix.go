//go:build aix || darwin || dragonfly || freebsd || linux || netbsd || openbsd || solaris
// +build aix darwin dragonfly freebsd linux netbsd openbsd solaris

package block

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// blkGetSize64 is BLKGETSIZE64 on Linux; other unix-like kernels expose
// an equivalent ioctl under a different number, but YukiFS images are
// primarily built against regular files, so the raw-block-device path
// is best-effort: this Linux number is used on every GOOS this file
// builds for, and an ioctl failure is returned as an error.
const blkGetSize64 = 0x80081272

// durableSync forces data (and, where available, metadata) durable
// before a write returns, per spec §4.1/§5's write-through requirement.
// Grounded on disk/disk_unix.go's use of golang.org/x/sys/unix for
// device-level operations.
func (d *fileDevice) durableSync() error {
	if err := unix.Fdatasync(int(d.f.Fd())); err != nil {
		return fmt.Errorf("block: fdatasync: %w", err)
	}
	return nil
}

// deviceSize returns the size of a regular-file image directly via
// Stat, or probes a raw block device with BLKGETSIZE64 the way
// disk/disk_unix.go and diskfs.go probe sector counts/sizes via ioctl.
func deviceSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("block: stat: %w", err)
	}
	if info.Mode().IsRegular() {
		return info.Size(), nil
	}
	size, err := unix.IoctlGetUint64(int(f.Fd()), blkGetSize64)
	if err != nil {
		return 0, fmt.Errorf("block: BLKGETSIZE64 on %s: %w", f.Name(), err)
	}
	return int64(size), nil
}
