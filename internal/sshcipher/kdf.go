// Package sshcipher implements the SSH transport's AEAD cipher suite and
// the RFC 4253 §7.2 key derivation function.
package sshcipher

import (
	"crypto/sha256"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// Derive produces n bytes of key material from the shared secret K, the
// exchange hash H, a single-letter label ('A' through 'F'), and the
// connection's session id, per RFC 4253 §7.2:
//
//	HASH(K || H || letter || session_id)
//
// extended as needed by
//
//	HASH(K || H || K1 || K2 || ... || K(i-1))
//
// K is encoded as a signed mpint (leading zero byte if its high bit is
// set) exactly as it appears in the exchange hash itself.
func Derive(k, h []byte, letter byte, sessionID []byte, n int) []byte {
	mK := encodeMpint(k)

	derived := firstBlock(mK, h, letter, sessionID)
	for len(derived) < n {
		derived = append(derived, nextBlock(mK, h, derived)...)
	}
	return derived[:n]
}

func firstBlock(mK, h []byte, letter byte, sessionID []byte) []byte {
	sum := sha256.New()
	sum.Write(mK)
	sum.Write(h)
	sum.Write([]byte{letter})
	sum.Write(sessionID)
	return sum.Sum(nil)
}

func nextBlock(mK, h, accumulated []byte) []byte {
	sum := sha256.New()
	sum.Write(mK)
	sum.Write(h)
	sum.Write(accumulated)
	return sum.Sum(nil)
}

func encodeMpint(magnitude []byte) []byte {
	return sshproto.PutMpint(nil, magnitude)
}

// Key derivation letters, RFC 4253 §7.2.
const (
	LetterInitialIVClientToServer byte = 'A'
	LetterInitialIVServerToClient byte = 'B'
	LetterEncryptionKeyClientToServer byte = 'C'
	LetterEncryptionKeyServerToClient byte = 'D'
	LetterIntegrityKeyClientToServer byte = 'E'
	LetterIntegrityKeyServerToClient byte = 'F'
)

// SessionKeys holds every derived key/IV needed to install both directions'
// ciphers after a (re)key exchange.
type SessionKeys struct {
	IVClientToServer        []byte
	IVServerToClient        []byte
	EncryptionClientToServer []byte
	EncryptionServerToClient []byte
	IntegrityClientToServer []byte
	IntegrityServerToClient []byte
}

// DeriveSessionKeys computes all six labelled outputs for the given cipher
// algorithm, which determines each output's required length.
func DeriveSessionKeys(algo string, k, h, sessionID []byte) SessionKeys {
	ivLen, keyLen := keyLengths(algo)
	return SessionKeys{
		IVClientToServer:         Derive(k, h, LetterInitialIVClientToServer, sessionID, ivLen),
		IVServerToClient:         Derive(k, h, LetterInitialIVServerToClient, sessionID, ivLen),
		EncryptionClientToServer: Derive(k, h, LetterEncryptionKeyClientToServer, sessionID, keyLen),
		EncryptionServerToClient: Derive(k, h, LetterEncryptionKeyServerToClient, sessionID, keyLen),
		IntegrityClientToServer:  Derive(k, h, LetterIntegrityKeyClientToServer, sessionID, 0),
		IntegrityServerToClient:  Derive(k, h, LetterIntegrityKeyServerToClient, sessionID, 0),
	}
}

// keyLengths returns (iv length, key length) in bytes for a cipher
// algorithm. Both supported AEADs have no separate integrity key (MAC is
// implicit), so the integrity outputs above are computed with length 0.
func keyLengths(algo string) (ivLen, keyLen int) {
	switch algo {
	case sshproto.CipherChaCha20Poly1305:
		// No conventional IV; the nonce is the packet sequence number.
		// The "key" output is 64 bytes: two concatenated 32-byte ChaCha20
		// keys (K2 for payload derived from letter C/D, K1 for length
		// derived as the second half of the same 64-byte block per the
		// openssh.com convention).
		return 0, 64
	case sshproto.CipherAES256GCM:
		return 12, 32
	default:
		return 0, 0
	}
}

// Zero overwrites a key-material slice with zeroes. Call via defer on every
// exit path that holds a secret, per the design's zeroizing-secret-value
// requirement.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
