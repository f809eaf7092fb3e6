// Package lvmmodel builds the in-memory VG/PV/LV/segment/area tree from
// parsed LVM2 text metadata, cross-resolving segment-area references to
// PVs by name within the owning VG.
package lvmmodel

import (
	"fmt"
	"strings"

	"github.com/s0up4200/lvm-activate/internal/errs"
	"github.com/s0up4200/lvm-activate/internal/metatext"
	"github.com/s0up4200/lvm-activate/internal/pvlabel"
)

// AreaKind distinguishes the two segment-area reference targets. The
// C union this replaces only ever populates one side; here that is a
// compile-time distinction instead of a runtime one.
type AreaKind int

const (
	AreaMapToPV AreaKind = iota
	AreaMapToLV
)

// Area is one mapping slot of a segment: either a direct PV extent
// range or (for segment types this engine does not activate) another
// LV's extent range. References are resolved once, at build time, and
// held as plain pointers into the owning VG's tree — never owning.
type Area struct {
	Kind        AreaKind
	StartExtent uint64
	PV          *PV
	LV          *LV
}

// SegmentKind is the LVM2 segment type string, kept verbatim so error
// messages can name the exact unsupported type a scan encountered.
type SegmentKind string

const (
	SegmentStriped SegmentKind = "striped"
	SegmentMirror  SegmentKind = "mirror"
)

// Segment is one contiguous extent range of an LV, mapped onto one or
// more areas.
type Segment struct {
	StartExtent uint64
	ExtentCount uint64
	Kind        SegmentKind
	StripeSize  uint64
	Areas       []Area
}

// LV is a logical volume: a named, ordered sequence of segments.
type LV struct {
	Name         string
	UUID         string
	Visible      bool
	IsPVMove     bool
	SegmentCount uint64
	Segments     []*Segment
	VG           *VG
}

// Size returns Σ segment.ExtentCount × VG.ExtentSize (invariant P2).
func (lv *LV) Size() uint64 {
	var total uint64
	for _, s := range lv.Segments {
		total += s.ExtentCount * lv.VG.ExtentSize
	}
	return total
}

// PV is a physical volume as declared in a VG's metadata. Major/Minor
// and Bound are filled in later, by the registry, once a scanned
// device is matched to this PV by UUID.
type PV struct {
	Name        string
	UUID        string
	StartSector uint64 // pe_start from metadata; unit is bytes, see design notes
	Major       uint32
	Minor       uint32
	Bound       bool
	VG          *VG
}

// VG is a volume group: the sole owner of its PVs and LVs.
type VG struct {
	UUID        string
	Name        string
	ExtentSize  uint64
	PVs         []*PV
	LVs         []*LV
	RawMetadata string
}

func (vg *VG) FindPVByName(name string) *PV {
	for _, pv := range vg.PVs {
		if pv.Name == name {
			return pv
		}
	}
	return nil
}

func (vg *VG) FindPVByUUID(uuid string) *PV {
	for _, pv := range vg.PVs {
		if pv.UUID == uuid {
			return pv
		}
	}
	return nil
}

func (vg *VG) FindLVByName(name string) *LV {
	for _, lv := range vg.LVs {
		if lv.Name == name {
			return lv
		}
	}
	return nil
}

// Build parses raw LVM2 text metadata into a VG tree. raw is retained
// on the returned VG as RawMetadata for the registry's duplicate-PV
// byte-equality check (invariant 4 / property P4).
func Build(raw string) (*VG, error) {
	clean := metatext.StripComments(raw)

	nameEnd := strings.IndexAny(clean, " \t\n")
	if nameEnd <= 0 {
		return nil, errs.New(errs.KindVGMetadata, "could not read VG name")
	}
	vgName := clean[:nameEnd]

	uuid, _, err := metatext.GetStr(clean, "id")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "VG "+vgName)
	}
	if len(uuid) != pvlabel.DashedUUIDLen {
		return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("VG %s: id is not %d characters", vgName, pvlabel.DashedUUIDLen))
	}

	extentSize, _, err := metatext.GetNum(clean, "extent_size")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "VG "+vgName)
	}

	vg := &VG{UUID: uuid, Name: vgName, ExtentSize: extentSize, RawMetadata: raw}

	if err := buildPVs(vg, clean); err != nil {
		return nil, err
	}
	if err := buildLVs(vg, clean); err != nil {
		return nil, err
	}
	return vg, nil
}

func buildPVs(vg *VG, clean string) error {
	content, _, err := metatext.GetBlock(clean, "physical_volumes")
	if err != nil {
		return errs.Wrap(errs.KindVGMetadata, err, "VG "+vg.Name)
	}
	blocks, err := metatext.GetBlocks(content)
	if err != nil {
		return errs.Wrap(errs.KindVGMetadata, err, "VG "+vg.Name+" physical_volumes")
	}
	for _, b := range blocks {
		id, _, err := metatext.GetStr(b.Content, "id")
		if err != nil {
			return errs.Wrap(errs.KindVGMetadata, err, "PV "+b.Name)
		}
		peStart, _, err := metatext.GetNum(b.Content, "pe_start")
		if err != nil {
			return errs.Wrap(errs.KindVGMetadata, err, "PV "+b.Name)
		}
		vg.PVs = append(vg.PVs, &PV{Name: b.Name, UUID: id, StartSector: peStart, VG: vg})
	}
	return nil
}

func buildLVs(vg *VG, clean string) error {
	content, _, err := metatext.GetBlock(clean, "logical_volumes")
	if err != nil {
		return errs.Wrap(errs.KindVGMetadata, err, "VG "+vg.Name)
	}
	blocks, err := metatext.GetBlocks(content)
	if err != nil {
		return errs.Wrap(errs.KindVGMetadata, err, "VG "+vg.Name+" logical_volumes")
	}
	for _, b := range blocks {
		lv, err := buildLV(vg, b.Name, b.Content)
		if err != nil {
			return err
		}
		vg.LVs = append(vg.LVs, lv)
	}
	return nil
}

func buildLV(vg *VG, name, content string) (*LV, error) {
	id, _, err := metatext.GetStr(content, "id")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+name)
	}
	segCount, _, err := metatext.GetNum(content, "segment_count")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+name)
	}

	lv := &LV{
		Name:         name,
		UUID:         id,
		Visible:      metatext.CheckFlag(content, "status", "VISIBLE"),
		IsPVMove:     metatext.CheckFlag(content, "status", "PVMOVE"),
		SegmentCount: segCount,
		VG:           vg,
	}

	for i := uint64(1); i <= segCount; i++ {
		key := fmt.Sprintf("segment%d", i)
		segContent, _, err := metatext.GetBlock(content, key)
		if err != nil {
			return nil, errs.Wrap(errs.KindVGMetadata, err, fmt.Sprintf("LV %s %s", name, key))
		}
		seg, err := buildSegment(vg, name, segContent, lv.IsPVMove)
		if err != nil {
			return nil, err
		}
		lv.Segments = append(lv.Segments, seg)
	}
	return lv, nil
}

func buildSegment(vg *VG, lvName, content string, isPVMove bool) (*Segment, error) {
	startExtent, _, err := metatext.GetNum(content, "start_extent")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
	}
	extentCount, _, err := metatext.GetNum(content, "extent_count")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
	}
	segType, _, err := metatext.GetStr(content, "type")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
	}

	switch segType {
	case string(SegmentStriped):
		return buildStripedSegment(vg, lvName, content, startExtent, extentCount)
	case string(SegmentMirror):
		// Read mirror_count to stay faithful to the on-disk grammar
		// before reporting the type as unsupported; mirror/raid
		// activation is out of scope (see Non-goals).
		if _, _, err := metatext.GetNum(content, "mirror_count"); err != nil {
			return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
		}
		return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: unsupported segment type %q", lvName, segType))
	default:
		return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: unsupported segment type %q", lvName, segType))
	}
}

func buildStripedSegment(vg *VG, lvName, content string, startExtent, extentCount uint64) (*Segment, error) {
	stripeCount, _, err := metatext.GetNum(content, "stripe_count")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
	}
	areaCount := stripeCount

	var stripeSize uint64
	if areaCount > 1 {
		stripeSize, _, err = metatext.GetNum(content, "stripe_size")
		if err != nil {
			return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
		}
	}

	arr, _, err := metatext.GetKVArray(content, "stripes")
	if err != nil {
		return nil, errs.Wrap(errs.KindVGMetadata, err, "LV "+lvName)
	}
	if uint64(len(arr.Elements)) != 2*areaCount {
		return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: stripes array length %d does not match 2*stripe_count=%d", lvName, len(arr.Elements), 2*areaCount))
	}

	areas := make([]Area, areaCount)
	for k := uint64(0); k < areaCount; k++ {
		nameElem := arr.Elements[2*k]
		extElem := arr.Elements[2*k+1]
		if !nameElem.IsString || extElem.IsString {
			return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: malformed stripes entry %d", lvName, k))
		}
		pv := vg.FindPVByName(nameElem.Str)
		if pv == nil {
			return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: stripes references unknown PV %q", lvName, nameElem.Str))
		}
		areas[k] = Area{Kind: AreaMapToPV, StartExtent: extElem.Num, PV: pv}
	}

	return &Segment{
		StartExtent: startExtent,
		ExtentCount: extentCount,
		Kind:        SegmentStriped,
		StripeSize:  stripeSize,
		Areas:       areas,
	}, nil
}
