package sshproto

import (
	"bytes"
	"testing"
)

// Plaintext is a pass-through Cipher for the framing tests, equivalent to
// the pre-handshake sentinel in package sshcipher (which imports sshproto
// and so cannot be imported here).
type Plaintext struct{}

func (Plaintext) BlockSize() int { return 8 }
func (Plaintext) Overhead() int  { return 0 }

func (Plaintext) DecryptLength(seq uint64, lengthField [4]byte) [4]byte { return lengthField }

func (Plaintext) Open(seq uint64, lengthField [4]byte, body []byte) ([]byte, error) { return body, nil }

func (Plaintext) Seal(seq uint64, body []byte) []byte {
	return append(PutUint32(nil, uint32(len(body))), body...)
}

func TestFramingRoundTripPlaintext(t *testing.T) {
	framer := NewFramer(Plaintext{})
	payload := bytes.Repeat([]byte("x"), 100)
	p := NewPacket(MsgIgnore, payload)

	wire := framer.Send(p)
	if len(wire)%8 != 0 {
		t.Fatalf("framed length %d not a multiple of 8", len(wire))
	}

	recvFramer := NewFramer(Plaintext{})
	packets, rest, err := recvFramer.Feed(wire)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no remainder, got %d bytes", len(rest))
	}
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if packets[0].Type != MsgIgnore || !bytes.Equal(packets[0].Payload, payload) {
		t.Fatalf("round trip mismatch: got %+v", packets[0])
	}
}

func TestFramingByteAtATime(t *testing.T) {
	sendFramer := NewFramer(Plaintext{})
	wire := sendFramer.Send(NewPacket(MsgDebug, []byte("hi")))

	recvFramer := NewFramer(Plaintext{})
	var got []Packet
	for i := 0; i < len(wire); i++ {
		packets, _, err := recvFramer.Feed(wire[i : i+1])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		got = append(got, packets...)
	}
	if len(got) != 1 || got[0].Type != MsgDebug {
		t.Fatalf("expected one MsgDebug packet fed byte-at-a-time, got %+v", got)
	}
}

func TestSendSequenceMonotonicity(t *testing.T) {
	framer := NewFramer(Plaintext{})
	for i := uint64(0); i < 5; i++ {
		if framer.SendSeq() != i {
			t.Fatalf("send seq = %d, want %d", framer.SendSeq(), i)
		}
		framer.Send(NewPacket(MsgIgnore, nil))
	}
}

func TestRecvSequenceMonotonicity(t *testing.T) {
	recv := NewFramer(Plaintext{})
	for i := uint64(0); i < 3; i++ {
		if recv.RecvSeq() != i {
			t.Fatalf("recv seq = %d, want %d", recv.RecvSeq(), i)
		}
		sent := NewFramer(Plaintext{}).Send(NewPacket(MsgIgnore, nil))
		if _, _, err := recv.Feed(sent); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
}

func TestTruncatedLengthRejected(t *testing.T) {
	framer := NewFramer(Plaintext{})
	// A length field claiming zero payload bytes (below the 1-byte padlen
	// + payload minimum) must be rejected.
	bogus := []byte{0, 0, 0, 0}
	if _, _, err := framer.Feed(bogus); err == nil {
		t.Fatal("expected error for zero-length packet")
	}
}

func TestOversizedLengthRejected(t *testing.T) {
	framer := NewFramer(Plaintext{})
	bogus := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if _, _, err := framer.Feed(bogus); err == nil {
		t.Fatal("expected error for oversized packet length")
	}
}

func TestPaddingWithinBounds(t *testing.T) {
	framer := NewFramer(Plaintext{})
	for _, n := range []int{0, 1, 7, 8, 100, 1000} {
		wire := framer.Send(NewPacket(MsgIgnore, make([]byte, n)))
		// body starts after the 4-byte length field; first byte is padlen.
		padLen := int(wire[4])
		if padLen < MinPaddingLength || padLen > 255 {
			t.Fatalf("payload len %d: padLen %d out of [4,255]", n, padLen)
		}
		if len(wire)%8 != 0 {
			t.Fatalf("payload len %d: framed length %d not multiple of 8", n, len(wire))
		}
	}
}
