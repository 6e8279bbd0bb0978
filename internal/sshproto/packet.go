package sshproto

// MaxPacketLength is the maximum accepted SSH_MSG packet length, following
// the reference implementation's conservative ceiling (RFC 4253 recommends
// 32768 as a safe minimum to support; this implementation additionally caps
// reads at 35000 to tolerate a little padding/MAC overhead while still
// rejecting runaway length fields).
const MaxPacketLength = 35000

// MinPaddingLength is the minimum random padding RFC 4253 §6 requires.
const MinPaddingLength = 4

// Packet is a single decoded SSH binary packet: a one-byte type code
// followed by a type-specific payload.
type Packet struct {
	Type    uint8
	Payload []byte
}

// RawPayload returns the full wire payload (type byte prepended).
func (p Packet) RawPayload() []byte {
	buf := make([]byte, 1+len(p.Payload))
	buf[0] = p.Type
	copy(buf[1:], p.Payload)
	return buf
}

// NewPacket builds a Packet from a message type and a payload that excludes
// the type byte.
func NewPacket(msgType uint8, payload []byte) Packet {
	return Packet{Type: msgType, Payload: payload}
}

// Cipher is the "current keys" capability the packet framer dispatches
// packet encryption/decryption through. Implementations are the tagged
// Plaintext/ChaChaPoly/AesGcm variants in package sshcipher; sshproto only
// depends on this narrow interface to avoid an import cycle.
type Cipher interface {
	// BlockSize is the size framed packets (length field included) must be
	// a multiple of.
	BlockSize() int
	// Overhead is the number of authentication-tag bytes appended after
	// the packet body.
	Overhead() int
	// DecryptLength returns the plaintext form of a 4-byte ciphertext
	// length field. For AEADs where the length travels as associated
	// data (aes256-gcm@openssh.com) this is the identity function.
	DecryptLength(seq uint64, lengthField [4]byte) [4]byte
	// Open authenticates and decrypts a packet body (the bytes following
	// the length field, including any MAC/tag) given the already-decrypted
	// length field, returning the plaintext body (padding_length byte,
	// payload, and random padding, MAC/tag stripped).
	Open(seq uint64, lengthField [4]byte, ciphertextBody []byte) ([]byte, error)
	// Seal encrypts and authenticates a plaintext body (padding_length
	// byte, payload, padding) and returns the full wire bytes to send,
	// length field included.
	Seal(seq uint64, plaintextBody []byte) []byte
}

// parserPhase tracks where the inbound byte-stream parser is within one
// packet's framing.
type parserPhase uint8

const (
	phaseAwaitingLength parserPhase = iota
	phaseAwaitingBody
)

// Framer turns a byte stream into Packet values and Packet values into byte
// stream writes, maintaining one in-flight inbound parser and independent
// send/receive sequence counters. It holds no socket reference: bytes are
// fed in and drained out by the caller (the session driver), matching the
// "no I/O inside the core" design.
type Framer struct {
	recvCipher Cipher
	sendCipher Cipher

	recvSeq uint64
	sendSeq uint64

	phase        parserPhase
	lenBuf       [4]byte
	lenBufFilled int
	bodyLen      uint32
	bodyBuf      []byte
	bodyFilled   int
}

// NewFramer creates a Framer starting in the pre-handshake plaintext state.
// SetCiphers installs real AEAD ciphers once NEWKEYS has been processed.
func NewFramer(initial Cipher) *Framer {
	return &Framer{recvCipher: initial, sendCipher: initial, phase: phaseAwaitingLength}
}

// SetSendCipher installs new send-direction keys, taking effect on the next
// call to Seal (i.e. immediately, since there is no buffering across Seal
// calls). The sequence counter is not reset.
func (f *Framer) SetSendCipher(c Cipher) { f.sendCipher = c }

// SetRecvCipher installs new receive-direction keys, taking effect on the
// next packet parsed. The sequence counter is not reset.
func (f *Framer) SetRecvCipher(c Cipher) { f.recvCipher = c }

// RecvSeq returns the next inbound sequence number to be consumed.
func (f *Framer) RecvSeq() uint64 { return f.recvSeq }

// SendSeq returns the next outbound sequence number to be consumed.
func (f *Framer) SendSeq() uint64 { return f.sendSeq }

// Feed consumes newly-arrived bytes and returns as many fully-parsed
// packets as they complete. A partial length field or body is buffered in
// the Framer until later calls supply the rest, so callers pass only bytes
// not fed before. The returned remainder is empty unless an error stopped
// parsing, in which case it holds the bytes not yet examined.
//
// Feed never mutates the caller's slice; it copies bytes it needs to keep.
func (f *Framer) Feed(data []byte) ([]Packet, []byte, error) {
	var packets []Packet
	for {
		switch f.phase {
		case phaseAwaitingLength:
			need := 4 - f.lenBufFilled
			if len(data) < need {
				copy(f.lenBuf[f.lenBufFilled:], data)
				f.lenBufFilled += len(data)
				data = data[len(data):]
				return packets, data, nil
			}
			copy(f.lenBuf[f.lenBufFilled:], data[:need])
			data = data[need:]
			f.lenBufFilled = 4

			plainLen := f.recvCipher.DecryptLength(f.recvSeq, f.lenBuf)
			n := uint32(plainLen[0])<<24 | uint32(plainLen[1])<<16 | uint32(plainLen[2])<<8 | uint32(plainLen[3])
			if n == 0 || n > MaxPacketLength {
				return packets, data, NewError(KindTruncated, "packet length out of range")
			}
			f.bodyLen = n
			f.bodyBuf = make([]byte, int(n)+f.recvCipher.Overhead())
			f.bodyFilled = 0
			f.phase = phaseAwaitingBody

		case phaseAwaitingBody:
			need := len(f.bodyBuf) - f.bodyFilled
			if len(data) < need {
				copy(f.bodyBuf[f.bodyFilled:], data)
				f.bodyFilled += len(data)
				data = data[len(data):]
				return packets, data, nil
			}
			copy(f.bodyBuf[f.bodyFilled:], data[:need])
			data = data[need:]

			plain, err := f.recvCipher.Open(f.recvSeq, f.lenBuf, f.bodyBuf)
			if err != nil {
				return packets, data, WrapError(KindMacFailure, "packet authentication failed", err)
			}
			if len(plain) < 1 {
				return packets, data, NewError(KindBadPadding, "empty packet body")
			}
			padLen := int(plain[0])
			if padLen < MinPaddingLength || padLen > len(plain)-1 {
				return packets, data, NewError(KindBadPadding, "invalid padding length")
			}
			payload := plain[1 : len(plain)-padLen]
			if len(payload) < 1 {
				return packets, data, NewError(KindTruncated, "packet has no type byte")
			}

			f.recvSeq++
			f.phase = phaseAwaitingLength
			f.lenBufFilled = 0
			f.bodyBuf = nil
			f.bodyFilled = 0

			packets = append(packets, Packet{Type: payload[0], Payload: append([]byte(nil), payload[1:]...)})
		}
	}
}

// Send encodes a packet under the current send cipher and returns the bytes
// to write to the socket, advancing the send sequence counter.
func (f *Framer) Send(p Packet) []byte {
	payload := p.RawPayload()
	blockSize := f.sendCipher.BlockSize()
	if blockSize < 8 {
		blockSize = 8
	}

	// total = 4 (length) + 1 (padlen) + len(payload) + padLen, must be a
	// multiple of blockSize; padLen in [4,255].
	padLen := blockSize - (5+len(payload))%blockSize
	for padLen < MinPaddingLength {
		padLen += blockSize
	}
	if padLen > 255 {
		padLen -= blockSize * ((padLen - 255 + blockSize - 1) / blockSize)
	}

	body := make([]byte, 1+len(payload)+padLen)
	body[0] = byte(padLen)
	copy(body[1:], payload)
	// padding bytes left zeroed; RFC permits arbitrary padding content.

	out := f.sendCipher.Seal(f.sendSeq, body)
	f.sendSeq++
	return out
}
