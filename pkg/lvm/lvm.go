// Package lvm is the public API surface of the LVM2 discovery and
// activation engine: init, scan, open a VG, look up an LV within it,
// and activate that LV as a device-mapper device. It wraps the
// internal scanning/parsing/model/devmapper packages behind the
// narrow, stateful surface the init-script interpreter expects.
package lvm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/s0up4200/lvm-activate/internal/blockdev"
	"github.com/s0up4200/lvm-activate/internal/devmapper"
	"github.com/s0up4200/lvm-activate/internal/enginelog"
	"github.com/s0up4200/lvm-activate/internal/engineconfig"
	"github.com/s0up4200/lvm-activate/internal/errs"
	"github.com/s0up4200/lvm-activate/internal/lvmmodel"
	"github.com/s0up4200/lvm-activate/internal/pvlabel"
	"github.com/s0up4200/lvm-activate/internal/registry"
)

// Errno values mirror the original liblvm2 ABI (see internal/errs).
const (
	ErrOutOfMemory = int(errs.KindOutOfMemory)
	ErrSystem      = int(errs.KindSystem)
	ErrDeviceOpen  = int(errs.KindDeviceOpen)
	ErrDeviceIO    = int(errs.KindDeviceIO)
	ErrDataArea    = int(errs.KindDataArea)
	ErrVGMetadata  = int(errs.KindVGMetadata)
	ErrPV          = int(errs.KindPV)
	ErrDynbuf      = int(errs.KindDynbuf)
)

// Context is the per-invocation root object: it owns the VG registry,
// the lazily-opened device-mapper control handle, and the last-error
// slot external collaborators read via Errno/Errmsg.
type Context struct {
	cfg      engineconfig.Config
	log      *logrus.Logger
	registry *registry.Registry
	dm       *devmapper.Client
	lastErr  *errs.Error
}

// Init builds a Context. An empty Config uses engineconfig.Default().
// Per the original API this cannot fail except on host
// out-of-memory, which Go reports by panicking rather than returning
// an error.
func Init(cfg engineconfig.Config) *Context {
	if cfg == (engineconfig.Config{}) {
		cfg = engineconfig.Default()
	}
	return &Context{
		cfg:      cfg,
		log:      enginelog.New(cfg.LogLevel),
		registry: registry.New(),
		dm:       devmapper.NewClient(cfg.DMControlPath),
	}
}

// Quit releases the context. Idempotent.
func (c *Context) Quit() error {
	if c.registry == nil {
		return nil
	}
	err := c.dm.Close()
	c.registry = nil
	return err
}

// Errno returns the last error's kind, or 0 if no call has failed yet.
func (c *Context) Errno() int {
	if c.lastErr == nil {
		return 0
	}
	return int(c.lastErr.Kind)
}

// Errmsg returns the last error's message, or "" if no call has
// failed yet.
func (c *Context) Errmsg() string {
	if c.lastErr == nil {
		return ""
	}
	return c.lastErr.Error()
}

func (c *Context) setErr(err error) int {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.Wrap(errs.KindSystem, err, "unexpected error")
	}
	c.lastErr = e
	c.log.WithError(err).Error("lvm: operation failed")
	return -1
}

// Scan walks every block device visible through sysfs, reads any PV
// label and metadata area found, and folds the result into the VG
// registry. Returns 0 on success, -1 on failure (see Errno/Errmsg).
func (c *Context) Scan() int {
	enum := blockdev.NewEnumerator(c.cfg.SysBlockDir)
	ids, err := enum.Devices()
	if err != nil {
		return c.setErr(err)
	}

	for _, id := range ids {
		if err := c.scanOne(id); err != nil {
			if errs.KindOf(err) == errs.KindDeviceOpen {
				c.log.WithField("device", id.String()).Debug("lvm: could not open device, skipping")
				continue
			}
			return c.setErr(err)
		}
	}
	return 0
}

func (c *Context) scanOne(id blockdev.ID) error {
	f, err := blockdev.OpenDevice(id, c.cfg.DevDir)
	if err != nil {
		return err
	}
	defer f.Close()

	label, err := pvlabel.ScanLabel(f)
	if err != nil {
		return err
	}
	if label == nil {
		return nil
	}

	hdr, err := pvlabel.ReadPVHeader(f, label)
	if err != nil {
		return err
	}
	if len(hdr.MetadataAreas) == 0 {
		return errs.New(errs.KindVGMetadata, fmt.Sprintf("device %s: PV has no metadata areas", id))
	}

	pvUUID, err := pvlabel.FormatUUID(hdr.UUIDRaw)
	if err != nil {
		return err
	}

	text, err := pvlabel.ReadMetadata(f, hdr.MetadataAreas[0].Offset)
	if err != nil {
		return err
	}

	if err := c.registry.Observe(pvUUID, text, id.Major, id.Minor); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"device": id.String(), "pv_uuid": pvUUID}).Info("lvm: bound PV")
	return nil
}

// VG is an opened handle onto one volume group in the registry.
type VG struct {
	ctx *Context
	vg  *lvmmodel.VG
}

// OpenVG returns a handle to the named VG, or nil if it is not in the
// registry.
func (c *Context) OpenVG(name string) *VG {
	vg := c.registry.FindVGByName(name)
	if vg == nil {
		c.setErr(errs.New(errs.KindVGMetadata, "VG not found: "+name))
		return nil
	}
	return &VG{ctx: c, vg: vg}
}

// Close releases the VG handle. VGs are owned by the Context and
// never mutated after scan, so this is a no-op; the handle stays
// usable afterwards.
func (v *VG) Close() {}

// Name returns the VG's name.
func (v *VG) Name() string { return v.vg.Name }

// LVNames returns the names of every LV in the VG, in the order the
// VG metadata declares them.
// Diagnostic helper, not part of the core §4.G surface.
func (v *VG) LVNames() []string {
	names := make([]string, 0, len(v.vg.LVs))
	for _, lv := range v.vg.LVs {
		names = append(names, lv.Name)
	}
	return names
}

// PVNames returns the names of every PV declared in the VG's
// metadata, in declaration order. Diagnostic helper, not part of the core
// §4.G surface.
func (v *VG) PVNames() []string {
	names := make([]string, 0, len(v.vg.PVs))
	for _, pv := range v.vg.PVs {
		names = append(names, pv.Name)
	}
	return names
}

// VGNames returns the names of every VG discovered by the last Scan,
// in first-seen order. Diagnostic helper, not part of the core §4.G
// surface.
func (c *Context) VGNames() []string {
	names := make([]string, 0, len(c.registry.VGs))
	for _, vg := range c.registry.VGs {
		names = append(names, vg.Name)
	}
	return names
}

// LV is an opened handle onto one logical volume within a VG.
type LV struct {
	ctx *Context
	lv  *lvmmodel.LV
}

// LookupLV returns a handle to the named LV within this VG, or nil if
// it does not exist.
func (v *VG) LookupLV(name string) *LV {
	lv := v.vg.FindLVByName(name)
	if lv == nil {
		v.ctx.setErr(errs.New(errs.KindVGMetadata, fmt.Sprintf("VG %s: LV not found: %s", v.vg.Name, name)))
		return nil
	}
	return &LV{ctx: v.ctx, lv: lv}
}

// Name returns the LV's name.
func (l *LV) Name() string { return l.lv.Name }

// Size returns the LV's size in bytes (segment extent counts times
// the VG's extent size).
func (l *LV) Size() uint64 { return l.lv.Size() }

// Activate builds device-mapper targets for the LV and creates,
// loads and resumes the resulting DM device, finally symlinking
// /dev/mapper/<vg>.<lv> to it. Returns 0 on success, -1 on failure.
func (l *LV) Activate() int {
	targets, err := l.buildTargets()
	if err != nil {
		return l.ctx.setErr(err)
	}

	name := devmapper.DMName(l.lv.VG.Name, l.lv.Name)
	uuid := devmapper.DMUUID(l.lv.VG.UUID, l.lv.UUID)

	link, err := l.ctx.dm.Activate(name, uuid, targets)
	if err != nil {
		return l.ctx.setErr(err)
	}
	l.ctx.log.WithField("path", link).Info("lvm: activated LV")
	return 0
}

func (l *LV) buildTargets() ([]devmapper.Target, error) {
	vg := l.lv.VG
	targets := make([]devmapper.Target, 0, len(l.lv.Segments))

	for _, seg := range l.lv.Segments {
		if seg.Kind != lvmmodel.SegmentStriped {
			return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: cannot activate segment kind %q", l.lv.Name, seg.Kind))
		}

		start := seg.StartExtent * vg.ExtentSize
		length := seg.ExtentCount * vg.ExtentSize

		if len(seg.Areas) == 1 {
			area := seg.Areas[0]
			pv, err := boundPV(l.lv.Name, area)
			if err != nil {
				return nil, err
			}
			sector := pv.StartSector + area.StartExtent*vg.ExtentSize
			targets = append(targets, devmapper.Target{
				Start:      start,
				Length:     length,
				TargetType: "linear",
				Params:     fmt.Sprintf("%d:%d %d", pv.Major, pv.Minor, sector),
			})
			continue
		}

		parts := make([]string, 0, len(seg.Areas)+1)
		parts = append(parts, fmt.Sprintf("%d %d", len(seg.Areas), seg.StripeSize))
		for _, area := range seg.Areas {
			pv, err := boundPV(l.lv.Name, area)
			if err != nil {
				return nil, err
			}
			sector := pv.StartSector + area.StartExtent*vg.ExtentSize
			parts = append(parts, fmt.Sprintf("%d:%d %d", pv.Major, pv.Minor, sector))
		}
		targets = append(targets, devmapper.Target{
			Start:      start,
			Length:     length,
			TargetType: "striped",
			Params:     strings.Join(parts, " "),
		})
	}
	return targets, nil
}

func boundPV(lvName string, area lvmmodel.Area) (*lvmmodel.PV, error) {
	if area.Kind != lvmmodel.AreaMapToPV || area.PV == nil {
		return nil, errs.New(errs.KindVGMetadata, fmt.Sprintf("LV %s: segment area does not map to a PV", lvName))
	}
	if !area.PV.Bound {
		return nil, errs.New(errs.KindPV, fmt.Sprintf("LV %s: references PV %s which was never bound to a device", lvName, area.PV.Name))
	}
	return area.PV, nil
}
