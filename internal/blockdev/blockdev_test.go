package blockdev

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestID_String(t *testing.T) {
	if got := (ID{Major: 8, Minor: 1}).String(); got != "8:1" {
		t.Fatalf("String() = %q", got)
	}
}

func TestEnumerator_Devices(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"8:0", "8:1", "253:0"} {
		if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("Mkdir: %v", err)
		}
	}

	ids, err := NewEnumerator(dir).Devices()
	if err != nil {
		t.Fatalf("Devices: %v", err)
	}
	want := map[ID]bool{{8, 0}: true, {8, 1}: true, {253, 0}: true}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %v", id)
		}
	}
}

func TestEnumerator_Devices_MalformedEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "not-a-device-id"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := NewEnumerator(dir).Devices(); err == nil {
		t.Fatal("expected error for malformed sysfs entry name")
	}
}

func TestOpenDevice_NotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := OpenDevice(ID{Major: 253, Minor: 99}, dir); err == nil {
		t.Fatal("expected error when no matching device node exists")
	}
}

// OpenDevice's matching logic needs a real block-special node, which
// requires CAP_MKNOD; skip under restricted test sandboxes.
func TestOpenDevice_Matches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake0")
	dev := unix.Mkdev(253, 7)
	if err := unix.Mknod(path, unix.S_IFBLK|0o600, int(dev)); err != nil {
		t.Skipf("mknod not permitted in this environment: %v", err)
	}

	f, err := OpenDevice(ID{Major: 253, Minor: 7}, dir)
	if err != nil {
		t.Fatalf("OpenDevice: %v", err)
	}
	f.Close()
}
