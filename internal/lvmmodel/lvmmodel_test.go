package lvmmodel

import (
	"strings"
	"testing"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

// scenario1Metadata is the literal metadata implied by spec.md's
// scenario 1: one PV, one VG, one striped single-area LV.
const scenario1Metadata = `vg0 {
	id = "AAAAAA-AABB-BBCC-CCDD-DDEE-EEFF-FF0000"
	extent_size = 8192

	physical_volumes {
		pv0 {
			id = "012345-6789-ABCD-EF01-2345-6789-ABCDEF"
			pe_start = 2048
		}
	}

	logical_volumes {
		root {
			id = "111122-2233-3344-4455-5566-6677-778888"
			status = ["READ", "WRITE", "VISIBLE"]
			segment_count = 1

			segment1 {
				start_extent = 0
				extent_count = 100
				type = "striped"
				stripe_count = 1
				stripes = ["pv0", 0]
			}
		}
	}
}
`

func TestBuild_Scenario1(t *testing.T) {
	vg, err := Build(scenario1Metadata)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if vg.Name != "vg0" {
		t.Fatalf("vg.Name = %q", vg.Name)
	}
	if vg.UUID != "AAAAAA-AABB-BBCC-CCDD-DDEE-EEFF-FF0000" {
		t.Fatalf("vg.UUID = %q", vg.UUID)
	}
	if vg.ExtentSize != 8192 {
		t.Fatalf("vg.ExtentSize = %d", vg.ExtentSize)
	}

	pv := vg.FindPVByName("pv0")
	if pv == nil {
		t.Fatal("pv0 not found")
	}
	if pv.StartSector != 2048 {
		t.Fatalf("pv.StartSector = %d", pv.StartSector)
	}

	lv := vg.FindLVByName("root")
	if lv == nil {
		t.Fatal("root LV not found")
	}
	if !lv.Visible {
		t.Fatal("root LV should be VISIBLE")
	}
	if len(lv.Segments) != 1 {
		t.Fatalf("len(Segments) = %d", len(lv.Segments))
	}
	seg := lv.Segments[0]
	if seg.Kind != SegmentStriped || seg.StartExtent != 0 || seg.ExtentCount != 100 {
		t.Fatalf("segment = %+v", seg)
	}
	if len(seg.Areas) != 1 || seg.Areas[0].PV != pv {
		t.Fatalf("areas = %+v", seg.Areas)
	}

	// P2: lv.size == Σ segments[i].extent_count * vg.extent_size.
	if got, want := lv.Size(), uint64(100*8192); got != want {
		t.Fatalf("Size() = %d, want %d", got, want)
	}
}

// P1: for every VG, get_str(vg.raw_metadata, "id") == vg.uuid.
func TestBuild_P1(t *testing.T) {
	vg, err := Build(scenario1Metadata)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if vg.RawMetadata != scenario1Metadata {
		t.Fatal("RawMetadata was not retained verbatim")
	}
}

// P3: for every area of kind MapToPV, find_pv_by_name(vg, area.pv.name)
// == area.pv.
func TestBuild_P3(t *testing.T) {
	vg, err := Build(scenario1Metadata)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	lv := vg.FindLVByName("root")
	for _, seg := range lv.Segments {
		for _, area := range seg.Areas {
			if area.Kind != AreaMapToPV {
				continue
			}
			if vg.FindPVByName(area.PV.Name) != area.PV {
				t.Fatalf("FindPVByName(%q) did not round-trip", area.PV.Name)
			}
		}
	}
}

// Scenario 5: an LV with a single raid5 segment fails VG_METADATA,
// with the error mentioning "raid5" or "unsupported segment".
func TestBuild_UnsupportedSegmentType(t *testing.T) {
	metadata := `vg0 {
	id = "AAAAAA-AABB-BBCC-CCDD-DDEE-EEFF-FF0000"
	extent_size = 8192
	physical_volumes {
		pv0 { id = "012345-6789-ABCD-EF01-2345-6789-ABCDEF" pe_start = 2048 }
	}
	logical_volumes {
		data {
			id = "111122-2233-3344-4455-5566-6677-778888"
			status = ["VISIBLE"]
			segment_count = 1
			segment1 {
				start_extent = 0
				extent_count = 100
				type = "raid5"
			}
		}
	}
}
`
	_, err := Build(metadata)
	if err == nil {
		t.Fatal("expected error for raid5 segment")
	}
	if errs.KindOf(err) != errs.KindVGMetadata {
		t.Fatalf("err kind = %v, want KindVGMetadata", errs.KindOf(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, "raid5") && !strings.Contains(msg, "unsupported segment") {
		t.Fatalf("errmsg %q mentions neither raid5 nor unsupported segment", msg)
	}
}

func TestBuild_StripesReferencesUnknownPV(t *testing.T) {
	metadata := `vg0 {
	id = "AAAAAA-AABB-BBCC-CCDD-DDEE-EEFF-FF0000"
	extent_size = 8192
	physical_volumes {
		pv0 { id = "012345-6789-ABCD-EF01-2345-6789-ABCDEF" pe_start = 2048 }
	}
	logical_volumes {
		data {
			id = "111122-2233-3344-4455-5566-6677-778888"
			status = ["VISIBLE"]
			segment_count = 1
			segment1 {
				start_extent = 0
				extent_count = 100
				type = "striped"
				stripe_count = 1
				stripes = ["nosuchpv", 0]
			}
		}
	}
}
`
	_, err := Build(metadata)
	if errs.KindOf(err) != errs.KindVGMetadata {
		t.Fatalf("err kind = %v, want KindVGMetadata", errs.KindOf(err))
	}
}
