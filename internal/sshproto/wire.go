package sshproto

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// Reader decodes wire primitives from a byte slice without mutating its
// cursor on error: every method takes and returns a slice, and on failure
// returns the original slice unchanged alongside a non-nil error.

// ReadUint32 decodes a 4-byte big-endian unsigned integer.
func ReadUint32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, buf, NewError(KindShortInput, "uint32")
	}
	return binary.BigEndian.Uint32(buf), buf[4:], nil
}

// ReadUint64 decodes an 8-byte big-endian unsigned integer.
func ReadUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, buf, NewError(KindShortInput, "uint64")
	}
	return binary.BigEndian.Uint64(buf), buf[8:], nil
}

// ReadByte decodes a single byte.
func ReadByte(buf []byte) (byte, []byte, error) {
	if len(buf) < 1 {
		return 0, buf, NewError(KindShortInput, "byte")
	}
	return buf[0], buf[1:], nil
}

// ReadBool decodes a one-byte boolean (zero is false, anything else true).
func ReadBool(buf []byte) (bool, []byte, error) {
	b, rest, err := ReadByte(buf)
	if err != nil {
		return false, buf, err
	}
	return b != 0, rest, nil
}

// ReadString decodes a uint32-length-prefixed byte string.
func ReadString(buf []byte) ([]byte, []byte, error) {
	n, rest, err := ReadUint32(buf)
	if err != nil {
		return nil, buf, err
	}
	if uint64(len(rest)) < uint64(n) {
		return nil, buf, NewError(KindShortInput, "string")
	}
	return rest[:n], rest[n:], nil
}

// ReadUTF8String decodes a length-prefixed string and validates it is
// well-formed UTF-8.
func ReadUTF8String(buf []byte) (string, []byte, error) {
	raw, rest, err := ReadString(buf)
	if err != nil {
		return "", buf, err
	}
	if !utf8.Valid(raw) {
		return "", buf, NewError(KindMalformedField, "invalid utf8 string")
	}
	return string(raw), rest, nil
}

// ReadNameList decodes a length-prefixed comma-separated ASCII name-list.
func ReadNameList(buf []byte) ([]string, []byte, error) {
	raw, rest, err := ReadString(buf)
	if err != nil {
		return nil, buf, err
	}
	if len(raw) == 0 {
		return nil, rest, nil
	}
	for _, b := range raw {
		if b >= 0x80 {
			return nil, buf, NewError(KindMalformedField, "non-ascii name-list")
		}
	}
	return strings.Split(string(raw), ","), rest, nil
}

// ReadMpint decodes a two's-complement big-endian multi-precision integer
// as an unsigned magnitude, stripping a single leading zero pad byte if
// present. Negative mpints (top bit set without a zero pad) are rejected:
// this implementation never needs to represent negative shared secrets.
func ReadMpint(buf []byte) ([]byte, []byte, error) {
	raw, rest, err := ReadString(buf)
	if err != nil {
		return nil, buf, err
	}
	if len(raw) == 0 {
		return raw, rest, nil
	}
	if raw[0]&0x80 != 0 {
		return nil, buf, NewError(KindMalformedField, "negative mpint")
	}
	if len(raw) > 1 && raw[0] == 0 && raw[1]&0x80 == 0 {
		return nil, buf, NewError(KindMalformedField, "mpint has non-minimal padding")
	}
	if raw[0] == 0 {
		raw = raw[1:]
	}
	return raw, rest, nil
}

// PutUint32 appends a 4-byte big-endian unsigned integer.
func PutUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutUint64 appends an 8-byte big-endian unsigned integer.
func PutUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// PutByte appends a single byte.
func PutByte(buf []byte, b byte) []byte {
	return append(buf, b)
}

// PutBool appends a one-byte boolean.
func PutBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// PutString appends a length-prefixed byte string.
func PutString(buf []byte, s []byte) []byte {
	buf = PutUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// PutUTF8String appends a length-prefixed UTF-8 string.
func PutUTF8String(buf []byte, s string) []byte {
	return PutString(buf, []byte(s))
}

// PutNameList appends a length-prefixed comma-separated name-list.
func PutNameList(buf []byte, names []string) []byte {
	return PutUTF8String(buf, strings.Join(names, ","))
}

// PutMpint appends an unsigned magnitude as a two's-complement mpint,
// adding a leading zero byte if the magnitude's high bit is set, and
// stripping any leading zero bytes from the input first.
func PutMpint(buf []byte, magnitude []byte) []byte {
	m := magnitude
	for len(m) > 0 && m[0] == 0 {
		m = m[1:]
	}
	if len(m) > 0 && m[0]&0x80 != 0 {
		padded := make([]byte, len(m)+1)
		copy(padded[1:], m)
		return PutString(buf, padded)
	}
	return PutString(buf, m)
}
