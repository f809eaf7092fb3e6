package tagresolve

import (
	"fmt"
	"io"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// bcachefsMagicOffset and bcachefsUUIDOffset are fixed byte offsets
// into a bcachefs superblock; bcachefs resolution bypasses the
// generic udev cache entirely and reads the device directly.
const (
	bcachefsMagicOffset = 24
	bcachefsUUIDOffset  = 40
	bcachefsUUIDLen     = 16
)

var bcachefsMagic = [16]byte{
	0xc6, 0x85, 0x73, 0xf6, 0x4e, 0x1a, 0x45, 0xca,
	0x82, 0x65, 0xf5, 0x7f, 0x48, 0xba, 0x6d, 0x81,
}

// ResolveBcachefs reads a candidate device's superblock magic and, if
// it matches, returns the filesystem UUID in standard dashed form.
func ResolveBcachefs(dev io.ReaderAt) (uuid string, ok bool, err error) {
	var buf [bcachefsUUIDOffset + bcachefsUUIDLen]byte
	n, rerr := dev.ReadAt(buf[:], 0)
	if rerr != nil && rerr != io.EOF {
		return "", false, errs.Wrap(errs.KindDeviceIO, rerr, "read bcachefs superblock")
	}
	if n < len(buf) {
		return "", false, nil
	}

	var magic [16]byte
	copy(magic[:], buf[bcachefsMagicOffset:bcachefsUUIDOffset])
	if magic != bcachefsMagic {
		return "", false, nil
	}

	raw := buf[bcachefsUUIDOffset : bcachefsUUIDOffset+bcachefsUUIDLen]
	return formatBinaryUUID(raw), true, nil
}

// formatBinaryUUID renders a 16-byte binary UUID in the standard
// 8-4-4-4-12 hex dashed form.
func formatBinaryUUID(b []byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}
