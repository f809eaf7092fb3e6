// Package pvlabel locates the LVM2 label in the first sectors of a
// physical volume, decodes the PV header and reads the first metadata
// area, following the on-disk layouts from the LVM2 binary format.
package pvlabel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

const (
	SectorSize         = 512
	LabelScanSectors    = 4
	MDAHeaderSize       = 512
	labelHeaderSize     = 32
	diskLocnSize        = 16
	rawLocnSize         = 16
	mdaHeaderFixedBytes = 4 + 16 + 4 + 8 + 8
)

var (
	labelID   = [8]byte{'L', 'A', 'B', 'E', 'L', 'O', 'N', 'E'}
	labelType = [8]byte{'L', 'V', 'M', '2', ' ', '0', '0', '1'}
	// mdaMagic is the exact 16-byte sequence documented in the LVM2
	// on-disk format: " LVM2 x[5A%r0N*>".
	mdaMagic = [16]byte{0x20, 0x4C, 0x56, 0x4D, 0x32, 0x20, 0x78, 0x5B, 0x35, 0x41, 0x25, 0x72, 0x30, 0x4E, 0x2A, 0x3E}
)

const mdaVersion = 1

// diskLocn is one (offset, size) locator within a pv_header's data-area
// or metadata-area array. The array is NULL-terminated: offset == 0 &&
// size == 0 marks the end.
type diskLocn struct {
	Offset uint64
	Size   uint64
}

func (d diskLocn) isNull() bool { return d.Offset == 0 && d.Size == 0 }

// rawLocn identifies one copy of the VG text metadata within a
// metadata area's ring buffer.
type rawLocn struct {
	Offset   uint64
	Size     uint64
	Checksum uint32
	Flags    uint32
}

// Label is the decoded label_header plus the sector it was found in.
type Label struct {
	SectorOffset int64
	HeaderOffset uint32
}

// PVHeader is the decoded pv_header: the PV identity plus its data-area
// and metadata-area locators.
type PVHeader struct {
	UUIDRaw       string // 32 ASCII chars, no dashes
	DeviceSize    uint64
	DataAreas     []diskLocnPublic
	MetadataAreas []diskLocnPublic
}

// diskLocnPublic mirrors diskLocn; its fields are exported so callers
// outside the package can inspect locators through PVHeader.
type diskLocnPublic struct {
	Offset uint64
	Size   uint64
}

// ScanLabel reads up to LabelScanSectors sectors looking for a valid
// LVM2 label. It returns (nil, nil) if no label was found — callers
// must treat that as "not an LVM2 PV, skip silently", not an error.
func ScanLabel(dev io.ReaderAt) (*Label, error) {
	var sector [SectorSize]byte
	for s := 0; s < LabelScanSectors; s++ {
		off := int64(s) * SectorSize
		n, err := dev.ReadAt(sector[:], off)
		if err != nil && err != io.EOF {
			return nil, errs.Wrap(errs.KindDeviceIO, err, fmt.Sprintf("read sector %d", s))
		}
		if n < labelHeaderSize {
			continue
		}
		var id, typ [8]byte
		copy(id[:], sector[0:8])
		copy(typ[:], sector[24:32])
		if id != labelID || typ != labelType {
			continue
		}
		offsetXL := binary.LittleEndian.Uint32(sector[20:24])
		return &Label{SectorOffset: off, HeaderOffset: offsetXL}, nil
	}
	return nil, nil
}

// ReadPVHeader reads the pv_header located at label.SectorOffset +
// label.HeaderOffset.
func ReadPVHeader(dev io.ReaderAt, label *Label) (*PVHeader, error) {
	base := label.SectorOffset + int64(label.HeaderOffset)

	// UUID (32 bytes) + device_size (8 bytes) is a fixed prefix; the
	// locator arrays that follow are variable length, so pull a
	// generous window and parse with bounds checks.
	buf := make([]byte, 4096)
	n, err := dev.ReadAt(buf, base)
	if err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.KindDeviceIO, err, "read pv_header")
	}
	buf = buf[:n]
	if len(buf) < 40 {
		return nil, errs.New(errs.KindDeviceIO, "short read of pv_header")
	}

	uuidRaw := string(buf[0:32])
	deviceSize := binary.LittleEndian.Uint64(buf[32:40])

	pos := 40
	dataAreas, pos, err := readLocnArray(buf, pos)
	if err != nil {
		return nil, err
	}
	metadataAreas, _, err := readLocnArray(buf, pos)
	if err != nil {
		return nil, err
	}

	if len(dataAreas) > 1 {
		return nil, errs.New(errs.KindDataArea, "PV declares more than one data area")
	}

	out := &PVHeader{UUIDRaw: uuidRaw, DeviceSize: deviceSize}
	for _, l := range dataAreas {
		out.DataAreas = append(out.DataAreas, diskLocnPublic{Offset: l.Offset, Size: l.Size})
	}
	for _, l := range metadataAreas {
		out.MetadataAreas = append(out.MetadataAreas, diskLocnPublic{Offset: l.Offset, Size: l.Size})
	}
	return out, nil
}

func readLocnArray(buf []byte, pos int) ([]diskLocn, int, error) {
	var out []diskLocn
	for {
		if pos+diskLocnSize > len(buf) {
			return nil, 0, errs.New(errs.KindDeviceIO, "pv_header locator array runs past read window")
		}
		l := diskLocn{
			Offset: binary.LittleEndian.Uint64(buf[pos : pos+8]),
			Size:   binary.LittleEndian.Uint64(buf[pos+8 : pos+16]),
		}
		pos += diskLocnSize
		if l.isNull() {
			return out, pos, nil
		}
		out = append(out, l)
	}
}

// ReadMetadata reads the first metadata area's text blob, following
// the mda_header and the first raw_locn, including ring-buffer
// wrap-around.
func ReadMetadata(dev io.ReaderAt, mdaOffset uint64) (string, error) {
	var hdr [MDAHeaderSize]byte
	n, err := dev.ReadAt(hdr[:], int64(mdaOffset))
	if err != nil && err != io.EOF {
		return "", errs.Wrap(errs.KindDeviceIO, err, "read mda_header")
	}
	if n < mdaHeaderFixedBytes {
		return "", errs.New(errs.KindDeviceIO, "short read of mda_header")
	}

	var magic [16]byte
	copy(magic[:], hdr[4:20])
	if magic != mdaMagic {
		return "", errs.New(errs.KindVGMetadata, "bad mda_header magic")
	}
	version := binary.LittleEndian.Uint32(hdr[20:24])
	if version != mdaVersion {
		return "", errs.New(errs.KindVGMetadata, fmt.Sprintf("unsupported mda_header version %d", version))
	}
	mdaSize := binary.LittleEndian.Uint64(hdr[32:40])

	pos := mdaHeaderFixedBytes
	if pos+rawLocnSize > len(hdr) {
		return "", errs.New(errs.KindVGMetadata, "mda_header has no raw_locn")
	}
	rlocn := rawLocn{
		Offset: binary.LittleEndian.Uint64(hdr[pos : pos+8]),
		Size:   binary.LittleEndian.Uint64(hdr[pos+8 : pos+16]),
	}
	if rlocn.Offset == 0 && rlocn.Size == 0 {
		return "", errs.New(errs.KindVGMetadata, "mda_header raw_locn is empty")
	}

	if rlocn.Offset+rlocn.Size <= mdaSize {
		text := make([]byte, rlocn.Size)
		if _, err := dev.ReadAt(text, int64(mdaOffset+rlocn.Offset)); err != nil && err != io.EOF {
			return "", errs.Wrap(errs.KindDeviceIO, err, "read metadata text")
		}
		return trimMetadata(text), nil
	}
	if rlocn.Offset > mdaSize {
		return "", errs.New(errs.KindVGMetadata, "mda_header raw_locn offset past mda size")
	}

	// Ring-buffer wrap: the tail of the region before mdaSize, then the
	// head of the ring right after the fixed header.
	firstLen := mdaSize - rlocn.Offset
	secondLen := rlocn.Offset + rlocn.Size - mdaSize

	var text bytes.Buffer
	text.Grow(int(firstLen + secondLen))

	first := make([]byte, firstLen)
	if _, err := dev.ReadAt(first, int64(mdaOffset+rlocn.Offset)); err != nil && err != io.EOF {
		return "", errs.Wrap(errs.KindDeviceIO, err, "read metadata text (pre-wrap)")
	}
	text.Write(first)

	second := make([]byte, secondLen)
	if _, err := dev.ReadAt(second, int64(mdaOffset+MDAHeaderSize)); err != nil && err != io.EOF {
		return "", errs.Wrap(errs.KindDeviceIO, err, "read metadata text (post-wrap)")
	}
	text.Write(second)

	return trimMetadata(text.Bytes()), nil
}

// trimMetadata strips the NUL padding the on-disk ring buffer carries
// after the text's closing brace.
func trimMetadata(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), "\x00")
}
