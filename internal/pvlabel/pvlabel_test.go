package pvlabel

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// fakeDevice is an in-memory io.ReaderAt standing in for a block
// device, sized to whatever the test needs.
type fakeDevice struct {
	data []byte
}

func newFakeDevice(size int) *fakeDevice {
	return &fakeDevice{data: make([]byte, size)}
}

func (f *fakeDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, nil
	}
	n := copy(p, f.data[off:])
	return n, nil
}

func writeLabel(dev *fakeDevice, sector int, headerOffset uint32) {
	off := sector * SectorSize
	copy(dev.data[off:off+8], labelID[:])
	binary.LittleEndian.PutUint32(dev.data[off+20:off+24], headerOffset)
	copy(dev.data[off+24:off+32], labelType[:])
}

func TestScanLabel_Found(t *testing.T) {
	dev := newFakeDevice(LabelScanSectors * SectorSize)
	writeLabel(dev, 1, 32)

	label, err := ScanLabel(dev)
	if err != nil {
		t.Fatalf("ScanLabel: %v", err)
	}
	if label == nil {
		t.Fatal("ScanLabel returned nil, want a label")
	}
	if label.SectorOffset != SectorSize || label.HeaderOffset != 32 {
		t.Fatalf("ScanLabel = %+v", label)
	}
}

// Boundary: a device whose first four sectors contain no LVM2 label is
// skipped without error (nil, nil), not a failure.
func TestScanLabel_NotFound(t *testing.T) {
	dev := newFakeDevice(LabelScanSectors * SectorSize)
	label, err := ScanLabel(dev)
	if err != nil {
		t.Fatalf("ScanLabel: %v", err)
	}
	if label != nil {
		t.Fatalf("ScanLabel = %+v, want nil", label)
	}
}

func TestReadPVHeader(t *testing.T) {
	dev := newFakeDevice(8192)
	writeLabel(dev, 1, 32)

	base := SectorSize + 32
	uuidRaw := "012345" + "6789" + "ABCD" + "EF01" + "2345" + "6789" + "ABCDEF"
	if len(uuidRaw) != 32 {
		t.Fatalf("test setup: uuid raw is %d chars", len(uuidRaw))
	}
	copy(dev.data[base:base+32], []byte(uuidRaw))
	binary.LittleEndian.PutUint64(dev.data[base+32:base+40], 1048576)

	pos := base + 40
	// One data area.
	binary.LittleEndian.PutUint64(dev.data[pos:pos+8], 2048)
	binary.LittleEndian.PutUint64(dev.data[pos+8:pos+16], 0)
	pos += 16
	// NULL terminator for data areas.
	pos += 16
	// One metadata area.
	binary.LittleEndian.PutUint64(dev.data[pos:pos+8], uint64(base+4096))
	binary.LittleEndian.PutUint64(dev.data[pos+8:pos+16], 1<<20)
	pos += 16
	// NULL terminator for metadata areas.

	label := &Label{SectorOffset: SectorSize, HeaderOffset: 32}
	hdr, err := ReadPVHeader(dev, label)
	if err != nil {
		t.Fatalf("ReadPVHeader: %v", err)
	}
	if hdr.UUIDRaw != uuidRaw {
		t.Fatalf("UUIDRaw = %q", hdr.UUIDRaw)
	}
	if hdr.DeviceSize != 1048576 {
		t.Fatalf("DeviceSize = %d", hdr.DeviceSize)
	}
	if len(hdr.DataAreas) != 1 || hdr.DataAreas[0].Offset != 2048 {
		t.Fatalf("DataAreas = %+v", hdr.DataAreas)
	}
	if len(hdr.MetadataAreas) != 1 || hdr.MetadataAreas[0].Offset != uint64(base+4096) {
		t.Fatalf("MetadataAreas = %+v", hdr.MetadataAreas)
	}
}

// Boundary: a PV declaring more than one data area is unsupported.
func TestReadPVHeader_TwoDataAreasFails(t *testing.T) {
	dev := newFakeDevice(4096)
	pos := 40
	binary.LittleEndian.PutUint64(dev.data[pos:pos+8], 1)
	binary.LittleEndian.PutUint64(dev.data[pos+8:pos+16], 1)
	pos += 16
	binary.LittleEndian.PutUint64(dev.data[pos:pos+8], 2)
	binary.LittleEndian.PutUint64(dev.data[pos+8:pos+16], 1)
	pos += 16
	// NULL terminator.
	pos += 16
	// NULL terminator for metadata areas.

	label := &Label{SectorOffset: 0, HeaderOffset: 0}
	_, err := ReadPVHeader(dev, label)
	if errs.KindOf(err) != errs.KindDataArea {
		t.Fatalf("err kind = %v, want KindDataArea", errs.KindOf(err))
	}
}

func writeMDAHeader(dev *fakeDevice, mdaOffset uint64, mdaSize uint64, rlocnOffset, rlocnSize uint64) {
	base := int(mdaOffset)
	copy(dev.data[base+4:base+20], mdaMagic[:])
	binary.LittleEndian.PutUint32(dev.data[base+20:base+24], mdaVersion)
	binary.LittleEndian.PutUint64(dev.data[base+32:base+40], mdaSize)
	pos := base + mdaHeaderFixedBytes
	binary.LittleEndian.PutUint64(dev.data[pos:pos+8], rlocnOffset)
	binary.LittleEndian.PutUint64(dev.data[pos+8:pos+16], rlocnSize)
}

func TestReadMetadata_Simple(t *testing.T) {
	const mdaOffset = 4096
	const mdaSize = 8192
	dev := newFakeDevice(mdaOffset + mdaSize)
	writeMDAHeader(dev, mdaOffset, mdaSize, 512, 16)
	copy(dev.data[mdaOffset+512:mdaOffset+512+16], []byte("vg0 {\n id = 1}\x00"))

	text, err := ReadMetadata(dev, mdaOffset)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if !strings.HasPrefix(text, "vg0 {") {
		t.Fatalf("ReadMetadata = %q", text)
	}
}

// Boundary: bad mda_header magic fails VG_METADATA.
func TestReadMetadata_BadMagic(t *testing.T) {
	const mdaOffset = 0
	const mdaSize = 8192
	dev := newFakeDevice(mdaSize)
	// Leave the magic bytes zeroed -- wrong on purpose.
	binary.LittleEndian.PutUint32(dev.data[20:24], mdaVersion)
	binary.LittleEndian.PutUint64(dev.data[32:40], mdaSize)

	_, err := ReadMetadata(dev, mdaOffset)
	if errs.KindOf(err) != errs.KindVGMetadata {
		t.Fatalf("err kind = %v, want KindVGMetadata", errs.KindOf(err))
	}
}

// Scenario 4: ring-buffer wraparound. MDA size 8192, rlocn.offset=8000,
// rlocn.size=400: 192 bytes from mda_offset+8000, 208 bytes from
// mda_offset+512, concatenated.
func TestReadMetadata_RingBufferWrap(t *testing.T) {
	const mdaOffset = 0
	const mdaSize = 8192
	const rlocnOffset = 8000
	const rlocnSize = 400

	dev := newFakeDevice(mdaOffset + mdaSize + 1024)
	writeMDAHeader(dev, mdaOffset, mdaSize, rlocnOffset, rlocnSize)

	firstLen := mdaSize - rlocnOffset // 192
	secondLen := rlocnOffset + rlocnSize - mdaSize // 208
	if firstLen != 192 || secondLen != 208 {
		t.Fatalf("test setup: firstLen=%d secondLen=%d", firstLen, secondLen)
	}

	tail := bytes.Repeat([]byte{'A'}, int(firstLen))
	head := append(bytes.Repeat([]byte{'B'}, int(secondLen)-1), 0)

	copy(dev.data[mdaOffset+rlocnOffset:], tail)
	copy(dev.data[mdaOffset+MDAHeaderSize:], head)

	text, err := ReadMetadata(dev, mdaOffset)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	want := string(tail) + strings.Repeat("B", int(secondLen)-1)
	if text != want {
		t.Fatalf("ReadMetadata wraparound = %q (%d bytes), want %d bytes", text, len(text), len(want))
	}
}

// Boundary: a corrupt raw_locn whose offset exceeds mda_size must fail
// cleanly instead of underflowing the wrap-around length math.
func TestReadMetadata_OffsetPastMDASizeFails(t *testing.T) {
	const mdaOffset = 0
	const mdaSize = 8192

	dev := newFakeDevice(mdaOffset + mdaSize + 1024)
	writeMDAHeader(dev, mdaOffset, mdaSize, mdaSize+100, 16)

	_, err := ReadMetadata(dev, mdaOffset)
	if errs.KindOf(err) != errs.KindVGMetadata {
		t.Fatalf("err kind = %v, want KindVGMetadata", errs.KindOf(err))
	}
}

// P5: the 32-byte raw PV UUID formatted to 38 characters and stripped
// of dashes again equals the original.
func TestUUIDRoundTrip(t *testing.T) {
	raw := "01234567890123456789012345678901"
	dashed, err := FormatUUID(raw)
	if err != nil {
		t.Fatalf("FormatUUID: %v", err)
	}
	if len(dashed) != DashedUUIDLen {
		t.Fatalf("FormatUUID len = %d, want %d", len(dashed), DashedUUIDLen)
	}
	if got := StripUUIDDashes(dashed); got != raw {
		t.Fatalf("round trip = %q, want %q", got, raw)
	}
}

func TestFormatUUID_WrongLength(t *testing.T) {
	if _, err := FormatUUID("tooshort"); err == nil {
		t.Fatal("expected error for short UUID")
	}
}

func FuzzScanLabel(f *testing.F) {
	seed := make([]byte, LabelScanSectors*SectorSize)
	writeLabel(&fakeDevice{data: seed}, 0, 32)
	f.Add(seed)
	f.Add(make([]byte, SectorSize))
	f.Fuzz(func(t *testing.T, data []byte) {
		dev := &fakeDevice{data: data}
		_, _ = ScanLabel(dev)
	})
}
