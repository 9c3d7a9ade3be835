package format

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// StartBracket and EndBracket are the literal byte pairs that bracket
// the hidden record on disk (spec §3, §6), grounded on the original
// hidden_data_struct's hidden_magic_number/hidden_end_magic_number
// fields (0x55 0xAA ... 0xAA 0x55).
var (
	StartBracket = [2]byte{0x55, 0xAA}
	EndBracket   = [2]byte{0xAA, 0x55}
)

// ScanWindow is how much of the image the mount pipeline and inspector
// scan for the hidden record's brackets (spec §4.3: "read the first
// 16 KiB of the image and scan byte-by-byte").
const ScanWindow = 16 * 1024

// Architecture tags recorded in the hidden record (spec §6).
const (
	ArchUnknown = 0x00
	ArchX86_32  = 0x01
	ArchX86_64  = 0x02
	ArchARM32   = 0x03
	ArchARM64   = 0x04
	ArchRISCV   = 0x05
)

// buildToolNameSize and versionStringSize are the fixed widths of the
// hidden record's string fields (spec §3).
const (
	buildToolNameSize  = 10
	versionStringSize  = 64
)

// HiddenRecord is the bracketed fixed-width structure of spec §3,
// carrying build-time metadata and the canonical SuperblockOffset that
// every other layout computation is anchored to.
type HiddenRecord struct {
	// StartBracket/EndBracket are not fields: Bytes writes them around the
	// fields and HiddenRecordFromBytes checks them, so the two round-trip
	// the whole on-disk record, including its brackets.
	FSVersion        [3]byte
	BuildToolName    [buildToolNameSize]byte
	BuildToolVersion [3]byte

	PayloadOffset      uint64
	PayloadSize        uint64
	PayloadStorageSize uint64

	RecordOffset      uint64
	RecordSize        uint64
	RecordStorageSize uint64

	DriverOffset      uint64
	DriverSize        uint64
	DriverStorageSize uint64

	DriverVersion [versionStringSize]byte
	Architecture  uint8

	SuperblockOffset uint64
}

// recordBodySize is the byte length of HiddenRecord's fields between
// the two brackets (not counting the 2-byte brackets themselves).
const recordBodySize = 3 + buildToolNameSize + 3 + 8*9 + versionStringSize + 1 + 8

// Bytes encodes the bracketed hidden record: StartBracket, the fields in
// struct order, EndBracket.
func (h *HiddenRecord) Bytes() []byte {
	buf := make([]byte, 2+recordBodySize+2)
	copy(buf[0:2], StartBracket[:])
	o := 2
	copy(buf[o:o+3], h.FSVersion[:])
	o += 3
	copy(buf[o:o+buildToolNameSize], h.BuildToolName[:])
	o += buildToolNameSize
	copy(buf[o:o+3], h.BuildToolVersion[:])
	o += 3

	putU64 := func(v uint64) {
		binary.NativeEndian.PutUint64(buf[o:o+8], v)
		o += 8
	}
	putU64(h.PayloadOffset)
	putU64(h.PayloadSize)
	putU64(h.PayloadStorageSize)
	putU64(h.RecordOffset)
	putU64(h.RecordSize)
	putU64(h.RecordStorageSize)
	putU64(h.DriverOffset)
	putU64(h.DriverSize)
	putU64(h.DriverStorageSize)

	copy(buf[o:o+versionStringSize], h.DriverVersion[:])
	o += versionStringSize
	buf[o] = h.Architecture
	o++
	putU64(h.SuperblockOffset)

	copy(buf[o:o+2], EndBracket[:])
	return buf
}

// HiddenRecordFromBytes decodes a hidden record from a buffer that
// begins at its StartBracket, as located by Scan.
func HiddenRecordFromBytes(b []byte) (*HiddenRecord, error) {
	total := 2 + recordBodySize + 2
	if len(b) < total {
		return nil, fmt.Errorf("format: hidden record buffer too short: %d < %d", len(b), total)
	}
	if !bytes.Equal(b[0:2], StartBracket[:]) {
		return nil, fmt.Errorf("format: missing hidden record start bracket")
	}
	if !bytes.Equal(b[total-2:total], EndBracket[:]) {
		return nil, fmt.Errorf("format: missing hidden record end bracket")
	}

	var h HiddenRecord
	o := 2
	copy(h.FSVersion[:], b[o:o+3])
	o += 3
	copy(h.BuildToolName[:], b[o:o+buildToolNameSize])
	o += buildToolNameSize
	copy(h.BuildToolVersion[:], b[o:o+3])
	o += 3

	getU64 := func() uint64 {
		v := binary.NativeEndian.Uint64(b[o : o+8])
		o += 8
		return v
	}
	h.PayloadOffset = getU64()
	h.PayloadSize = getU64()
	h.PayloadStorageSize = getU64()
	h.RecordOffset = getU64()
	h.RecordSize = getU64()
	h.RecordStorageSize = getU64()
	h.DriverOffset = getU64()
	h.DriverSize = getU64()
	h.DriverStorageSize = getU64()

	copy(h.DriverVersion[:], b[o:o+versionStringSize])
	o += versionStringSize
	h.Architecture = b[o]
	o++
	h.SuperblockOffset = getU64()

	return &h, nil
}

// Scan finds the hidden record's brackets within window (normally the
// first ScanWindow bytes of the image, per spec §4.3) and returns the
// byte offset of the start bracket. It fails with an error wrapping
// ErrNoHiddenHeader-shaped semantics if either bracket is absent; the
// caller (session.Mount / inspector) is responsible for translating
// that into a yukifs.Error of KindNoHiddenHeader.
func Scan(window []byte) (startOffset int, err error) {
	start := bytes.Index(window, StartBracket[:])
	if start < 0 {
		return 0, fmt.Errorf("format: hidden record start bracket not found in scan window")
	}
	end := bytes.Index(window[start:], EndBracket[:])
	if end < 0 {
		return 0, fmt.Errorf("format: hidden record end bracket not found in scan window")
	}
	return start, nil
}
