package sshcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/poly1305"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// Keys is an alias of sshproto.Cipher: the tagged-variant capability the
// packet framer dispatches through. Kept as a distinct name in this package
// for readability at call sites that construct variants.
type Keys = sshproto.Cipher

// Plaintext is the sentinel pre-handshake Keys implementation: no
// encryption, no authentication, one-to-one length field.
type Plaintext struct{}

func (Plaintext) BlockSize() int { return 8 }
func (Plaintext) Overhead() int  { return 0 }

func (Plaintext) DecryptLength(seq uint64, lengthField [4]byte) [4]byte { return lengthField }

func (Plaintext) Open(seq uint64, lengthField [4]byte, ciphertextBody []byte) ([]byte, error) {
	return ciphertextBody, nil
}

func (Plaintext) Seal(seq uint64, plaintextBody []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(plaintextBody)))
	out := make([]byte, 4+len(plaintextBody))
	copy(out, lenBuf[:])
	copy(out[4:], plaintextBody)
	return out
}

// ChaChaPoly implements chacha20-poly1305@openssh.com: two independent
// 32-byte ChaCha20 keys, K1 for the length field and K2 for the payload,
// both derived from the same 64-byte KDF output (K1 = bytes[32:64], K2 =
// bytes[0:32], matching OpenSSH's convention).
type ChaChaPoly struct {
	k1 [32]byte // length-field key
	k2 [32]byte // payload key
}

// NewChaChaPoly builds a ChaChaPoly cipher from a 64-byte derived key.
func NewChaChaPoly(key64 []byte) *ChaChaPoly {
	c := &ChaChaPoly{}
	copy(c.k2[:], key64[0:32])
	copy(c.k1[:], key64[32:64])
	return c
}

func (*ChaChaPoly) BlockSize() int { return 8 }
func (*ChaChaPoly) Overhead() int  { return poly1305.TagSize }

func nonceFromSeq(seq uint64) [12]byte {
	var n [12]byte
	binary.BigEndian.PutUint64(n[4:], seq)
	return n
}

func (c *ChaChaPoly) DecryptLength(seq uint64, lengthField [4]byte) [4]byte {
	nonce := nonceFromSeq(seq)
	s, err := chacha20.NewUnauthenticatedCipher(c.k1[:], nonce[:])
	if err != nil {
		return lengthField
	}
	var out [4]byte
	s.XORKeyStream(out[:], lengthField[:])
	return out
}

func (c *ChaChaPoly) polyKey(seq uint64) [32]byte {
	nonce := nonceFromSeq(seq)
	s, err := chacha20.NewUnauthenticatedCipher(c.k2[:], nonce[:])
	if err != nil {
		panic(err)
	}
	var polyKey [32]byte
	s.XORKeyStream(polyKey[:], polyKey[:])
	// Advance past the first 64-byte block reserved for the Poly1305 key,
	// matching the construction used by chacha20-poly1305@openssh.com.
	var discard [32]byte
	s.XORKeyStream(discard[:], discard[:])
	return polyKey
}

func (c *ChaChaPoly) Open(seq uint64, lengthField [4]byte, ciphertextBody []byte) ([]byte, error) {
	if len(ciphertextBody) < poly1305.TagSize {
		return nil, sshproto.NewError(sshproto.KindMacFailure, "body shorter than tag")
	}
	ct := ciphertextBody[:len(ciphertextBody)-poly1305.TagSize]
	tag := ciphertextBody[len(ciphertextBody)-poly1305.TagSize:]

	polyKey := c.polyKey(seq)
	authInput := make([]byte, 4+len(ct))
	copy(authInput, lengthField[:])
	copy(authInput[4:], ct)
	var computed [poly1305.TagSize]byte
	poly1305.Sum(&computed, authInput, &polyKey)
	if subtle.ConstantTimeCompare(computed[:], tag) != 1 {
		return nil, sshproto.NewError(sshproto.KindMacFailure, "poly1305 tag mismatch")
	}

	nonce := nonceFromSeq(seq)
	s, err := chacha20.NewUnauthenticatedCipher(c.k2[:], nonce[:])
	if err != nil {
		return nil, err
	}
	s.SetCounter(1)
	plain := make([]byte, len(ct))
	s.XORKeyStream(plain, ct)
	return plain, nil
}

func (c *ChaChaPoly) Seal(seq uint64, plaintextBody []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(plaintextBody)))

	encLen := c.DecryptLength(seq, lenBuf) // ChaCha20 is an involution under XOR

	nonce := nonceFromSeq(seq)
	s, _ := chacha20.NewUnauthenticatedCipher(c.k2[:], nonce[:])
	s.SetCounter(1)
	ct := make([]byte, len(plaintextBody))
	s.XORKeyStream(ct, plaintextBody)

	polyKey := c.polyKey(seq)
	authInput := make([]byte, 4+len(ct))
	copy(authInput, encLen[:])
	copy(authInput[4:], ct)
	var tag [poly1305.TagSize]byte
	poly1305.Sum(&tag, authInput, &polyKey)

	out := make([]byte, 4+len(ct)+poly1305.TagSize)
	copy(out, encLen[:])
	copy(out[4:], ct)
	copy(out[4+len(ct):], tag[:])
	return out
}

// AesGcm implements aes256-gcm@openssh.com: the length field is AAD (sent
// in the clear), the payload is AES-256-GCM encrypted, and the 12-byte IV's
// low 8 bytes increment as a big-endian counter per packet.
type AesGcm struct {
	aead    cipher.AEAD
	fixed   [4]byte // high 4 bytes of the IV, fixed for the life of this key
	counter uint64  // low 8 bytes, increments per packet
}

// NewAesGcm builds an AesGcm cipher from a 32-byte key and 12-byte initial IV.
func NewAesGcm(key, iv []byte) (*AesGcm, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	g := &AesGcm{aead: aead}
	copy(g.fixed[:], iv[0:4])
	g.counter = binary.BigEndian.Uint64(iv[4:12])
	return g, nil
}

func (*AesGcm) BlockSize() int { return 16 }
func (g *AesGcm) Overhead() int { return g.aead.Overhead() }

func (*AesGcm) DecryptLength(seq uint64, lengthField [4]byte) [4]byte { return lengthField }

func (g *AesGcm) nonce(counter uint64) [12]byte {
	var n [12]byte
	copy(n[0:4], g.fixed[:])
	binary.BigEndian.PutUint64(n[4:12], counter)
	return n
}

func (g *AesGcm) Open(seq uint64, lengthField [4]byte, ciphertextBody []byte) ([]byte, error) {
	nonce := g.nonce(g.counter)
	g.counter++
	plain, err := g.aead.Open(nil, nonce[:], ciphertextBody, lengthField[:])
	if err != nil {
		return nil, sshproto.WrapError(sshproto.KindMacFailure, "gcm tag mismatch", err)
	}
	return plain, nil
}

func (g *AesGcm) Seal(seq uint64, plaintextBody []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(plaintextBody)))

	nonce := g.nonce(g.counter)
	g.counter++
	ct := g.aead.Seal(nil, nonce[:], plaintextBody, lenBuf[:])

	out := make([]byte, 4+len(ct))
	copy(out, lenBuf[:])
	copy(out[4:], ct)
	return out
}
