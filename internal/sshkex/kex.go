// Package sshkex implements the supported key-exchange methods
// (curve25519-sha256, ecdh-sha2-nistp256) and the RFC 4253 exchange hash.
package sshkex

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// Method is one supported ECDH key-exchange algorithm.
type Method interface {
	// Name is the IANA kex algorithm name, e.g. "curve25519-sha256".
	Name() string
	// Generate produces a fresh ephemeral keypair from rnd.
	Generate(rnd io.Reader) (EphemeralKeypair, error)
}

// EphemeralKeypair is a one-shot key-exchange keypair: Exchange consumes
// the peer's public point and yields the shared secret, then the private
// scalar should be discarded (zeroed where representable).
type EphemeralKeypair interface {
	// PublicKey is the wire-encoded ephemeral public value Q.
	PublicKey() []byte
	// Exchange computes the shared secret from the peer's public value.
	Exchange(peerPublic []byte) (secret []byte, err error)
	// Zero destroys the private scalar.
	Zero()
}

// Curve25519SHA256 is the curve25519-sha256 key-exchange method (RFC 8731).
type Curve25519SHA256 struct{}

func (Curve25519SHA256) Name() string { return sshproto.KexCurve25519SHA256 }

func (Curve25519SHA256) Generate(rnd io.Reader) (EphemeralKeypair, error) {
	var priv [32]byte
	if _, err := io.ReadFull(rnd, priv[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	return &curve25519Keypair{priv: priv, pub: pub}, nil
}

type curve25519Keypair struct {
	priv [32]byte
	pub  []byte
}

func (k *curve25519Keypair) PublicKey() []byte { return k.pub }

func (k *curve25519Keypair) Exchange(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != 32 {
		return nil, fmt.Errorf("curve25519: peer public key must be 32 bytes, got %d", len(peerPublic))
	}
	secret, err := curve25519.X25519(k.priv[:], peerPublic)
	if err != nil {
		return nil, err
	}
	return secret, nil
}

func (k *curve25519Keypair) Zero() {
	for i := range k.priv {
		k.priv[i] = 0
	}
}

// EcdhNistP256 is the ecdh-sha2-nistp256 key-exchange method (RFC 5656).
type EcdhNistP256 struct{}

func (EcdhNistP256) Name() string { return sshproto.KexEcdhSHA2NistP256 }

func (EcdhNistP256) Generate(rnd io.Reader) (EphemeralKeypair, error) {
	curve := ecdh.P256()
	priv, err := curve.GenerateKey(rnd)
	if err != nil {
		return nil, err
	}
	return &nistp256Keypair{priv: priv}, nil
}

type nistp256Keypair struct {
	priv *ecdh.PrivateKey
}

func (k *nistp256Keypair) PublicKey() []byte { return k.priv.PublicKey().Bytes() }

func (k *nistp256Keypair) Exchange(peerPublic []byte) ([]byte, error) {
	peer, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("nistp256: invalid peer public key: %w", err)
	}
	return k.priv.ECDH(peer)
}

func (k *nistp256Keypair) Zero() {
	// crypto/ecdh does not expose the raw scalar for in-place zeroing;
	// dropping the only reference is the best available release here.
	k.priv = nil
}

// Methods returns the set of supported kex methods in server preference
// order (also used as the offered KEXINIT algorithm list).
func Methods() []Method {
	return []Method{Curve25519SHA256{}, EcdhNistP256{}}
}

// ByName looks up a supported Method by its IANA name.
func ByName(name string) (Method, bool) {
	for _, m := range Methods() {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// ExchangeHashInputs carries every field that goes into the RFC 4253
// exchange hash, in order.
type ExchangeHashInputs struct {
	ClientIdent     string // V_C, CRLF stripped
	ServerIdent     string // V_S, CRLF stripped
	ClientKexInit   []byte // I_C, raw KEXINIT payload including message byte
	ServerKexInit   []byte // I_S, raw KEXINIT payload including message byte
	HostKeyBlob     []byte // K_S
	ClientEphemeral []byte // Q_C
	ServerEphemeral []byte // Q_S
	SharedSecret    []byte // K, encoded as mpint
}

// ComputeExchangeHash computes H = SHA-256(V_C||V_S||I_C||I_S||K_S||Q_C||Q_S||K).
func ComputeExchangeHash(in ExchangeHashInputs) []byte {
	var buf []byte
	buf = sshproto.PutUTF8String(buf, in.ClientIdent)
	buf = sshproto.PutUTF8String(buf, in.ServerIdent)
	buf = sshproto.PutString(buf, in.ClientKexInit)
	buf = sshproto.PutString(buf, in.ServerKexInit)
	buf = sshproto.PutString(buf, in.HostKeyBlob)
	buf = sshproto.PutString(buf, in.ClientEphemeral)
	buf = sshproto.PutString(buf, in.ServerEphemeral)
	buf = sshproto.PutMpint(buf, in.SharedSecret)

	sum := sha256.Sum256(buf)
	return sum[:]
}

// RandReader is the default cryptographic RNG source, exposed so callers
// (the transport state machine) can inject a deterministic reader in tests.
var RandReader io.Reader = rand.Reader
