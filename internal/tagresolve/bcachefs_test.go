package tagresolve

import "testing"

type byteDevice []byte

func (b byteDevice) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, nil
	}
	return copy(p, b[off:]), nil
}

// Scenario 6: a device whose bytes 24..40 equal the bcachefs magic is
// recognized, and its filesystem UUID (bytes 40..56) is returned.
func TestResolveBcachefs_Match(t *testing.T) {
	data := make([]byte, 64)
	copy(data[24:40], bcachefsMagic[:])
	copy(data[40:56], []byte{
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
	})

	uuid, ok, err := ResolveBcachefs(byteDevice(data))
	if err != nil {
		t.Fatalf("ResolveBcachefs: %v", err)
	}
	if !ok {
		t.Fatal("expected magic to be recognized")
	}
	want := "01020304-0506-0708-090a-0b0c0d0e0f10"
	if uuid != want {
		t.Fatalf("uuid = %q, want %q", uuid, want)
	}
}

// A device whose bytes 24..40 differ from the bcachefs magic by even
// one byte is not recognized.
func TestResolveBcachefs_NoMatch(t *testing.T) {
	data := make([]byte, 64)
	copy(data[24:40], bcachefsMagic[:])
	data[39] ^= 0xff // flip one byte of the magic

	_, ok, err := ResolveBcachefs(byteDevice(data))
	if err != nil {
		t.Fatalf("ResolveBcachefs: %v", err)
	}
	if ok {
		t.Fatal("expected mismatched magic to not be recognized")
	}
}

func TestResolveBcachefs_ShortRead(t *testing.T) {
	data := make([]byte, 10)
	_, ok, err := ResolveBcachefs(byteDevice(data))
	if err != nil {
		t.Fatalf("ResolveBcachefs: %v", err)
	}
	if ok {
		t.Fatal("expected short read to not be recognized")
	}
}
