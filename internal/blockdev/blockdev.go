// Package blockdev enumerates kernel block devices through sysfs and
// resolves a (major, minor) pair to an openable /dev node.
package blockdev

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/s0up4200/lvm-activate/internal/errs"
)

const (
	// DefaultSysBlockDir is where the kernel publishes one entry per
	// registered block device, named "<major>:<minor>".
	DefaultSysBlockDir = "/sys/dev/block"
	// DefaultDevDir is scanned for the node matching a given (major, minor).
	DefaultDevDir = "/dev"
)

// ID is an unordered block-device identity: a kernel (major, minor) pair.
type ID struct {
	Major uint32
	Minor uint32
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%d", id.Major, id.Minor)
}

// Enumerator walks /sys/dev/block and produces device identities in
// directory-iteration order. It is restartable: calling Devices again
// re-reads the directory from scratch.
type Enumerator struct {
	sysBlockDir string
}

// NewEnumerator builds an Enumerator rooted at sysBlockDir. An empty
// sysBlockDir defaults to DefaultSysBlockDir.
func NewEnumerator(sysBlockDir string) *Enumerator {
	if sysBlockDir == "" {
		sysBlockDir = DefaultSysBlockDir
	}
	return &Enumerator{sysBlockDir: sysBlockDir}
}

// Devices returns every (major, minor) pair currently visible under the
// enumerator's sysfs root, in directory order.
func (e *Enumerator) Devices() ([]ID, error) {
	dir, err := os.Open(e.sysBlockDir)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystem, err, "read "+e.sysBlockDir)
	}
	// (*os.File).ReadDir keeps directory order; os.ReadDir would sort.
	entries, err := dir.ReadDir(-1)
	dir.Close()
	if err != nil {
		return nil, errs.Wrap(errs.KindSystem, err, "read "+e.sysBlockDir)
	}

	ids := make([]ID, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if name == "." || name == ".." {
			continue
		}
		id, err := parseID(name)
		if err != nil {
			return nil, errs.Wrap(errs.KindSystem, err, "malformed sysfs block entry "+name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(name string) (ID, error) {
	major, minor, ok := strings.Cut(name, ":")
	if !ok {
		return ID{}, fmt.Errorf("expected \"<major>:<minor>\", got %q", name)
	}
	maj, err := strconv.ParseUint(major, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("major %q: %w", major, err)
	}
	min, err := strconv.ParseUint(minor, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("minor %q: %w", minor, err)
	}
	return ID{Major: uint32(maj), Minor: uint32(min)}, nil
}

// OpenDevice scans devDir for the block-special node whose st_rdev
// matches id and opens it read-only. An empty devDir defaults to
// DefaultDevDir.
func OpenDevice(id ID, devDir string) (*os.File, error) {
	if devDir == "" {
		devDir = DefaultDevDir
	}
	path, err := findNode(id, devDir)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errs.Wrap(errs.KindDeviceOpen, err, "open "+path)
	}
	return f, nil
}

func findNode(id ID, devDir string) (string, error) {
	want := unix.Mkdev(id.Major, id.Minor)

	var names []string
	err := filepath.WalkDir(devDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != devDir && d.IsDir() {
			return filepath.SkipDir
		}
		names = append(names, path)
		return nil
	})
	if err != nil {
		return "", errs.Wrap(errs.KindSystem, err, "walk "+devDir)
	}
	sort.Strings(names)

	for _, path := range names {
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			continue
		}
		if st.Mode&unix.S_IFMT != unix.S_IFBLK {
			continue
		}
		if uint64(st.Rdev) == want {
			return path, nil
		}
	}
	return "", errs.New(errs.KindSystem, fmt.Sprintf("no block device node for %s in %s", id, devDir))
}
