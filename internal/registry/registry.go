// Package registry deduplicates VGs and PVs discovered across
// multiple scanned devices and binds each PV's (major, minor) once its
// backing device is identified.
package registry

import (
	"fmt"

	"github.com/s0up4200/lvm-activate/internal/errs"
	"github.com/s0up4200/lvm-activate/internal/lvmmodel"
	"github.com/s0up4200/lvm-activate/internal/metatext"
	"github.com/s0up4200/lvm-activate/internal/pvlabel"
)

// Registry is the Context's VG set, keyed implicitly by VG UUID.
type Registry struct {
	VGs []*lvmmodel.VG
}

func New() *Registry {
	return &Registry{}
}

func (r *Registry) FindVGByUUID(uuid string) *lvmmodel.VG {
	for _, vg := range r.VGs {
		if vg.UUID == uuid {
			return vg
		}
	}
	return nil
}

func (r *Registry) FindVGByName(name string) *lvmmodel.VG {
	for _, vg := range r.VGs {
		if vg.Name == name {
			return vg
		}
	}
	return nil
}

// Observe records one scanned device's (pvUUID, metadata) pair:
// dedup/build the owning VG, then bind the PV's (major, minor).
func (r *Registry) Observe(pvUUID, metadata string, major, minor uint32) error {
	vgUUID, _, err := metatext.GetStr(metatext.StripComments(metadata), "id")
	if err != nil {
		return errs.Wrap(errs.KindVGMetadata, err, "decode VG uuid from metadata")
	}
	if len(vgUUID) != pvlabel.DashedUUIDLen {
		return errs.New(errs.KindVGMetadata, "VG id is not 38 characters")
	}

	vg := r.FindVGByUUID(vgUUID)
	if vg != nil {
		if vg.RawMetadata != metadata {
			return errs.New(errs.KindVGMetadata, fmt.Sprintf("VG %s: conflicting metadata reported by multiple PVs", vg.Name))
		}
	} else {
		vg, err = lvmmodel.Build(metadata)
		if err != nil {
			return err
		}
		r.VGs = append(r.VGs, vg)
	}

	pv := vg.FindPVByUUID(pvUUID)
	if pv == nil {
		return errs.New(errs.KindVGMetadata, fmt.Sprintf("VG %s: PV %s is not declared in its own metadata", vg.Name, pvUUID))
	}
	if pv.Bound {
		return errs.New(errs.KindPV, fmt.Sprintf("PV %s is already bound to %d:%d", pvUUID, pv.Major, pv.Minor))
	}
	pv.Major = major
	pv.Minor = minor
	pv.Bound = true
	return nil
}
