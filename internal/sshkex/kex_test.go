package sshkex

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestCurve25519Agreement(t *testing.T) {
	method := Curve25519SHA256{}
	a, err := method.Generate(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := method.Generate(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	secretA, err := a.Exchange(b.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	secretB, err := b.Exchange(a.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(secretA, secretB) {
		t.Fatalf("shared secrets disagree: %x vs %x", secretA, secretB)
	}
}

func TestEcdhNistP256Agreement(t *testing.T) {
	method := EcdhNistP256{}
	a, err := method.Generate(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	b, err := method.Generate(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	secretA, err := a.Exchange(b.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	secretB, err := b.Exchange(a.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(secretA, secretB) {
		t.Fatalf("shared secrets disagree: %x vs %x", secretA, secretB)
	}
}

func TestByName(t *testing.T) {
	if _, ok := ByName("curve25519-sha256"); !ok {
		t.Fatal("expected curve25519-sha256 to be supported")
	}
	if _, ok := ByName("diffie-hellman-group14-sha256"); ok {
		t.Fatal("legacy DH-group kex must not be supported")
	}
}

func TestExchangeHashDeterministic(t *testing.T) {
	in := ExchangeHashInputs{
		ClientIdent:     "SSH-2.0-client",
		ServerIdent:     "SSH-2.0-server",
		ClientKexInit:   []byte{20, 1, 2, 3},
		ServerKexInit:   []byte{20, 4, 5, 6},
		HostKeyBlob:     []byte("hostkey"),
		ClientEphemeral: []byte("qc"),
		ServerEphemeral: []byte("qs"),
		SharedSecret:    []byte{0x7f, 0x01},
	}
	h1 := ComputeExchangeHash(in)
	h2 := ComputeExchangeHash(in)
	if !bytes.Equal(h1, h2) {
		t.Fatal("exchange hash not deterministic for identical inputs")
	}

	in2 := in
	in2.SharedSecret = []byte{0x7f, 0x02}
	h3 := ComputeExchangeHash(in2)
	if bytes.Equal(h1, h3) {
		t.Fatal("exchange hash must depend on shared secret")
	}
}
