package sshhostkey

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// MarshalPEM encodes a host key's private material as a PKCS#8 "PRIVATE KEY"
// PEM block, mirroring certutil's pem.Encode usage for TLS keys.
func MarshalPEM(k HostKey) ([]byte, error) {
	var der []byte
	var err error

	switch key := k.(type) {
	case *Ed25519HostKey:
		der, err = x509.MarshalPKCS8PrivateKey(key.Private)
	case *EcdsaP256HostKey:
		der, err = x509.MarshalPKCS8PrivateKey(key.Private)
	default:
		return nil, fmt.Errorf("sshhostkey: unsupported host key type %T", k)
	}
	if err != nil {
		return nil, fmt.Errorf("sshhostkey: marshal private key: %w", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePEM decodes a PKCS#8 "PRIVATE KEY" PEM block into the matching
// HostKey implementation.
func ParsePEM(data []byte) (HostKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("sshhostkey: failed to decode PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("sshhostkey: parse private key: %w", err)
	}

	switch priv := key.(type) {
	case ed25519.PrivateKey:
		return &Ed25519HostKey{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
	case *ecdsa.PrivateKey:
		return &EcdsaP256HostKey{Private: priv}, nil
	default:
		return nil, fmt.Errorf("sshhostkey: unsupported private key type %T", key)
	}
}
