// Package sshhostkey implements sign/verify for the two supported host key
// algorithms (ssh-ed25519, ecdsa-sha2-nistp256) and their SSH wire public
// key / signature blob encodings.
package sshhostkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// Algorithm identifies a supported host key algorithm.
type Algorithm string

const (
	AlgorithmEd25519 Algorithm = sshproto.HostKeyEd25519
	AlgorithmEcdsaP256 Algorithm = sshproto.HostKeyEcdsaSHA2NistP256
)

// HostKey is a server host key identity: its public wire blob for
// negotiation/KEXINIT and its private signing operation. The private key
// never leaves this type; Sign performs the signature internally.
type HostKey interface {
	Algorithm() Algorithm
	// PublicKeyBlob is the "string format_id | string key material" wire
	// encoding sent in SSH_MSG_KEX_ECDH_REPLY / SSH_MSG_USERAUTH_PK_OK.
	PublicKeyBlob() []byte
	// Sign signs the exchange hash (or, for user authentication, the
	// canonical userauth signing blob) and returns the wire-encoded
	// signature blob ("string format_id | string signature material").
	Sign(digest []byte) ([]byte, error)
}

// Ed25519HostKey wraps an Ed25519 keypair.
type Ed25519HostKey struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateEd25519HostKey creates a fresh Ed25519 host key.
func GenerateEd25519HostKey() (*Ed25519HostKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Ed25519HostKey{Public: pub, Private: priv}, nil
}

func (k *Ed25519HostKey) Algorithm() Algorithm { return AlgorithmEd25519 }

func (k *Ed25519HostKey) PublicKeyBlob() []byte {
	var buf []byte
	buf = sshproto.PutUTF8String(buf, string(AlgorithmEd25519))
	buf = sshproto.PutString(buf, k.Public)
	return buf
}

func (k *Ed25519HostKey) Sign(digest []byte) ([]byte, error) {
	sig := ed25519.Sign(k.Private, digest)
	var buf []byte
	buf = sshproto.PutUTF8String(buf, string(AlgorithmEd25519))
	buf = sshproto.PutString(buf, sig)
	return buf, nil
}

// EcdsaP256HostKey wraps an ECDSA P-256 keypair.
type EcdsaP256HostKey struct {
	Private *ecdsa.PrivateKey
}

// GenerateEcdsaP256HostKey creates a fresh ECDSA P-256 host key.
func GenerateEcdsaP256HostKey() (*EcdsaP256HostKey, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &EcdsaP256HostKey{Private: priv}, nil
}

func (k *EcdsaP256HostKey) Algorithm() Algorithm { return AlgorithmEcdsaP256 }

func (k *EcdsaP256HostKey) PublicKeyBlob() []byte {
	pointBytes := elliptic.Marshal(elliptic.P256(), k.Private.PublicKey.X, k.Private.PublicKey.Y)
	var buf []byte
	buf = sshproto.PutUTF8String(buf, string(AlgorithmEcdsaP256))
	buf = sshproto.PutUTF8String(buf, "nistp256")
	buf = sshproto.PutString(buf, pointBytes)
	return buf
}

func (k *EcdsaP256HostKey) Sign(digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, k.Private, digest)
	if err != nil {
		return nil, err
	}
	var sigBody []byte
	sigBody = sshproto.PutMpint(sigBody, r.Bytes())
	sigBody = sshproto.PutMpint(sigBody, s.Bytes())

	var buf []byte
	buf = sshproto.PutUTF8String(buf, string(AlgorithmEcdsaP256))
	buf = sshproto.PutString(buf, sigBody)
	return buf, nil
}

// VerifySignature checks a wire-encoded signature blob against a wire
// public-key blob and a digest, used on both the host-key identity (not
// normally needed server-side, but exercised by tests) and client
// publickey authentication (internal/sshauth).
func VerifySignature(pubKeyBlob, sigBlob, digest []byte) (bool, error) {
	algo, pubRest, err := sshproto.ReadUTF8String(pubKeyBlob)
	if err != nil {
		return false, err
	}
	sigAlgo, sigRest, err := sshproto.ReadUTF8String(sigBlob)
	if err != nil {
		return false, err
	}
	if algo != sigAlgo {
		return false, fmt.Errorf("sshhostkey: key algorithm %q does not match signature algorithm %q", algo, sigAlgo)
	}

	switch Algorithm(algo) {
	case AlgorithmEd25519:
		pub, _, err := sshproto.ReadString(pubRest)
		if err != nil {
			return false, err
		}
		sig, _, err := sshproto.ReadString(sigRest)
		if err != nil {
			return false, err
		}
		if len(pub) != ed25519.PublicKeySize {
			return false, fmt.Errorf("sshhostkey: bad ed25519 public key length %d", len(pub))
		}
		return ed25519.Verify(ed25519.PublicKey(pub), digest, sig), nil

	case AlgorithmEcdsaP256:
		curveName, rest, err := sshproto.ReadUTF8String(pubRest)
		if err != nil {
			return false, err
		}
		if curveName != "nistp256" {
			return false, fmt.Errorf("sshhostkey: unexpected ecdsa curve %q", curveName)
		}
		pointBytes, _, err := sshproto.ReadString(rest)
		if err != nil {
			return false, err
		}
		x, y := elliptic.Unmarshal(elliptic.P256(), pointBytes)
		if x == nil {
			return false, fmt.Errorf("sshhostkey: invalid ecdsa public point")
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}

		sigBody, _, err := sshproto.ReadString(sigRest)
		if err != nil {
			return false, err
		}
		r, rRest, err := sshproto.ReadMpint(sigBody)
		if err != nil {
			return false, err
		}
		s, _, err := sshproto.ReadMpint(rRest)
		if err != nil {
			return false, err
		}
		return ecdsa.Verify(pub, digest, new(big.Int).SetBytes(r), new(big.Int).SetBytes(s)), nil

	default:
		return false, fmt.Errorf("sshhostkey: unsupported algorithm %q", algo)
	}
}
