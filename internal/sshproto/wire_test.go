package sshproto

import (
	"bytes"
	"testing"
)

func TestUint32RoundTrip(t *testing.T) {
	buf := PutUint32(nil, 0xdeadbeef)
	got, rest, err := ReadUint32(buf)
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if got != 0xdeadbeef {
		t.Fatalf("got %x, want %x", got, 0xdeadbeef)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d bytes", len(rest))
	}
}

func TestStringRoundTrip(t *testing.T) {
	buf := PutString(nil, []byte("hello"))
	got, rest, err := ReadString(buf)
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("got %q, want %q", got, "hello")
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d bytes", len(rest))
	}
}

func TestNameListRoundTrip(t *testing.T) {
	names := []string{"a", "bb", "ccc"}
	buf := PutNameList(nil, names)
	got, _, err := ReadNameList(buf)
	if err != nil {
		t.Fatalf("ReadNameList: %v", err)
	}
	if len(got) != len(names) {
		t.Fatalf("got %v, want %v", got, names)
	}
	for i := range names {
		if got[i] != names[i] {
			t.Fatalf("got %v, want %v", got, names)
		}
	}
}

func TestEmptyNameList(t *testing.T) {
	buf := PutNameList(nil, nil)
	got, _, err := ReadNameList(buf)
	if err != nil {
		t.Fatalf("ReadNameList: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestShortInputDoesNotMutateCursor(t *testing.T) {
	buf := []byte{0x00, 0x01}
	_, rest, err := ReadUint32(buf)
	if err == nil {
		t.Fatal("expected error")
	}
	if !bytes.Equal(rest, buf) {
		t.Fatalf("cursor mutated on error: got %v, want %v", rest, buf)
	}
}

func TestMpintHighBitGetsZeroPad(t *testing.T) {
	// A magnitude whose first byte has the high bit set must be encoded
	// with a leading zero byte so it round-trips as a positive mpint.
	magnitude := []byte{0xff, 0x01}
	buf := PutMpint(nil, magnitude)
	got, _, err := ReadMpint(buf)
	if err != nil {
		t.Fatalf("ReadMpint: %v", err)
	}
	if !bytes.Equal(got, magnitude) {
		t.Fatalf("got %x, want %x", got, magnitude)
	}
}

func TestMpintLeadingZerosStripped(t *testing.T) {
	buf := PutMpint(nil, []byte{0x00, 0x00, 0x7f})
	got, _, err := ReadMpint(buf)
	if err != nil {
		t.Fatalf("ReadMpint: %v", err)
	}
	if !bytes.Equal(got, []byte{0x7f}) {
		t.Fatalf("got %x, want %x", got, []byte{0x7f})
	}
}

func TestInvalidUTF8String(t *testing.T) {
	buf := PutString(nil, []byte{0xff, 0xfe})
	_, _, err := ReadUTF8String(buf)
	if err == nil {
		t.Fatal("expected error decoding invalid utf8")
	}
}
