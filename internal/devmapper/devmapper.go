// Package devmapper builds device-mapper target specifications for an
// activated LV and drives the kernel control interface
// (/dev/mapper/control) to create, load and resume the resulting
// device, following the wire format documented in the kernel's
// dm-ioctl.h.
package devmapper

import (
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/s0up4200/lvm-activate/internal/errs"
	"github.com/s0up4200/lvm-activate/internal/pvlabel"
)

const (
	controlPath = "/dev/mapper/control"
	mapperDir   = "/dev/mapper"

	dmIoctlType = 0xfd

	cmdDevCreate  = 3
	cmdDevSuspend = 6
	cmdTableLoad  = 9

	dmNameLen = 128
	dmUUIDLen = 129
	// dmIoctlHeaderSize is sizeof(struct dm_ioctl): three u32 version
	// words, seven more u32 header fields, a u64 dev, name[128],
	// uuid[129] and a 7-byte pad bringing the struct to a multiple of
	// 8 bytes (128+129+7 == 264, header words above it are 48 bytes).
	dmIoctlHeaderSize = 12 + 28 + 8 + dmNameLen + dmUUIDLen + 7 // 312

	// dmTargetSpecSize is sizeof(struct dm_target_spec): two u64
	// fields, two u32 fields and a 16-byte type name.
	dmTargetSpecSize = 8 + 8 + 4 + 4 + 16
)

func ioctlCmd(nr uint32) uintptr {
	return uintptr(dmIoctlType<<8) | uintptr(nr)
}

// Target is one device-mapper mapping-table row.
type Target struct {
	Start      uint64
	Length     uint64
	TargetType string
	Params     string
}

// Client owns the lazily-opened /dev/mapper/control handle for a
// Context's lifetime.
type Client struct {
	controlPath string
	f           *os.File
}

// NewClient builds a Client. An empty path defaults to controlPath
// ("/dev/mapper/control").
func NewClient(path string) *Client {
	if path == "" {
		path = controlPath
	}
	return &Client{controlPath: path}
}

func (c *Client) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

func (c *Client) ensureOpen() error {
	if c.f != nil {
		return nil
	}
	f, err := os.OpenFile(c.controlPath, os.O_RDWR, 0)
	if err != nil {
		return errs.Wrap(errs.KindSystem, err, "open "+c.controlPath)
	}
	c.f = f
	return nil
}

// DMName is "<vg.name>.<lv.name>".
func DMName(vgName, lvName string) string {
	return vgName + "." + lvName
}

// DMUUID is "LVM-" + the VG and LV UUIDs with dashes stripped,
// concatenated with no separator: exactly 4 + 32 + 32 = 68 characters.
func DMUUID(vgUUID, lvUUID string) string {
	return "LVM-" + pvlabel.StripUUIDDashes(vgUUID) + pvlabel.StripUUIDDashes(lvUUID)
}

// Activate runs the full create/load/resume/symlink protocol for one
// LV and returns the /dev/mapper symlink path it created.
func (c *Client) Activate(name, uuid string, targets []Target) (string, error) {
	if len(name) >= dmNameLen {
		return "", errs.New(errs.KindSystem, "dm name too long")
	}
	if len(uuid) >= dmUUIDLen {
		return "", errs.New(errs.KindSystem, "dm uuid too long")
	}
	if err := c.ensureOpen(); err != nil {
		return "", err
	}

	minor, err := c.devCreate(name, uuid)
	if err != nil {
		return "", err
	}
	if err := c.tableLoad(uuid, targets); err != nil {
		return "", err
	}
	if err := c.resume(uuid); err != nil {
		return "", err
	}

	nodeName := fmt.Sprintf("dm-%d", minor)
	linkPath := mapperDir + "/" + name
	target := "../" + nodeName
	_ = os.Remove(linkPath)
	if err := os.Symlink(target, linkPath); err != nil {
		return "", errs.Wrap(errs.KindSystem, err, "symlink "+linkPath)
	}
	return linkPath, nil
}

func (c *Client) devCreate(name, uuid string) (minor uint32, err error) {
	buf := newHeader(dmIoctlHeaderSize, dmIoctlHeaderSize, 0, name, uuid)
	if err := c.call(cmdDevCreate, buf); err != nil {
		return 0, err
	}
	dev := binary.LittleEndian.Uint64(buf[40:48])
	return uint32(unix.Minor(dev)), nil
}

func (c *Client) tableLoad(uuid string, targets []Target) error {
	buf := []byte(nil)
	body := make([]byte, 0, 256)
	for _, t := range targets {
		spec, err := buildTargetSpec(t)
		if err != nil {
			return err
		}
		body = append(body, spec...)
	}

	total := dmIoctlHeaderSize + len(body)
	buf = newHeader(uint32(total), dmIoctlHeaderSize, uint32(len(targets)), "", uuid)
	buf = append(buf, body...)

	return c.call(cmdTableLoad, buf)
}

func (c *Client) resume(uuid string) error {
	buf := newHeader(dmIoctlHeaderSize, dmIoctlHeaderSize, 0, "", uuid)
	return c.call(cmdDevSuspend, buf)
}

func (c *Client) call(cmd uint32, buf []byte) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, c.f.Fd(), ioctlCmd(cmd), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return errs.Wrap(errs.KindSystem, errno, fmt.Sprintf("dm ioctl %d", cmd))
	}
	return nil
}

// newHeader builds a zeroed dm_ioctl header with the numeric fields
// and the name/uuid strings filled in.
func newHeader(dataSize, dataStart, targetCount uint32, name, uuid string) []byte {
	buf := make([]byte, dmIoctlHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], 4)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint32(buf[8:12], 0)
	binary.LittleEndian.PutUint32(buf[12:16], dataSize)
	binary.LittleEndian.PutUint32(buf[16:20], dataStart)
	binary.LittleEndian.PutUint32(buf[20:24], targetCount)
	// open_count, flags, event_nr, padding, dev all stay zero.
	copy(buf[48:48+dmNameLen-1], name)
	copy(buf[48+dmNameLen:48+dmNameLen+dmUUIDLen-1], uuid)
	return buf
}

// buildTargetSpec lays out one dm_target_spec followed by its NUL
// terminated, 8-byte-aligned parameter string. Backslashes in the
// parameter string are doubled, since the DM interface treats '\' as
// an escape character.
func buildTargetSpec(t Target) ([]byte, error) {
	if len(t.TargetType) >= 16 {
		return nil, errs.New(errs.KindSystem, "dm target type too long")
	}
	param := strings.ReplaceAll(t.Params, `\`, `\\`)
	paramBytes := append([]byte(param), 0)
	total := dmTargetSpecSize + len(paramBytes)
	if pad := total % 8; pad != 0 {
		paramBytes = append(paramBytes, make([]byte, 8-pad)...)
	}

	spec := make([]byte, dmTargetSpecSize+len(paramBytes))
	binary.LittleEndian.PutUint64(spec[0:8], t.Start)
	binary.LittleEndian.PutUint64(spec[8:16], t.Length)
	binary.LittleEndian.PutUint32(spec[16:20], 0) // status
	binary.LittleEndian.PutUint32(spec[20:24], uint32(len(spec)))
	copy(spec[24:24+15], t.TargetType)
	copy(spec[dmTargetSpecSize:], paramBytes)
	return spec, nil
}
