package pvlabel

import (
	"strings"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// RawUUIDLen is the length of the on-disk PV/VG UUID, stored without
// dashes.
const RawUUIDLen = 32

// DashedUUIDLen is the length of the UUID once reformatted with dashes
// for external display (errno messages, the public API, DM uuid
// generation).
const DashedUUIDLen = 38

// uuidGroupLens are the segment lengths FormatUUID inserts dashes
// between, matching the canonical LVM2 dashed UUID grouping
// (6-4-4-4-4-4-6, 6 dashes, 38 characters total).
var uuidGroupLens = [...]int{6, 4, 4, 4, 4, 4, 6}

// FormatUUID reformats a 32-character raw PV/VG UUID into its 38-char
// dashed display form.
func FormatUUID(raw string) (string, error) {
	if len(raw) != RawUUIDLen {
		return "", errs.New(errs.KindVGMetadata, "PV UUID is not 32 characters")
	}
	var b strings.Builder
	b.Grow(DashedUUIDLen)
	pos := 0
	for i, n := range uuidGroupLens {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(raw[pos : pos+n])
		pos += n
	}
	return b.String(), nil
}

// StripUUIDDashes is the inverse of FormatUUID: it removes every dash,
// returning the raw 32-character form.
func StripUUIDDashes(dashed string) string {
	return strings.ReplaceAll(dashed, "-", "")
}
