package sshcipher

import (
	"bytes"
	"testing"
)

func TestDeriveDeterministic(t *testing.T) {
	k := []byte{0x01, 0x02, 0x03}
	h := []byte{0xaa, 0xbb, 0xcc}
	sessionID := []byte{0x10, 0x20}

	for n := 1; n <= 128; n++ {
		a := Derive(k, h, LetterEncryptionKeyClientToServer, sessionID, n)
		b := Derive(k, h, LetterEncryptionKeyClientToServer, sessionID, n)
		if !bytes.Equal(a, b) {
			t.Fatalf("n=%d: derive not deterministic", n)
		}
		if len(a) != n {
			t.Fatalf("n=%d: got %d bytes", n, len(a))
		}
	}
}

func TestDeriveDiffersByLetter(t *testing.T) {
	k := []byte{0x01, 0x02, 0x03}
	h := []byte{0xaa, 0xbb, 0xcc}
	sessionID := []byte{0x10, 0x20}

	a := Derive(k, h, LetterEncryptionKeyClientToServer, sessionID, 32)
	b := Derive(k, h, LetterEncryptionKeyServerToClient, sessionID, 32)
	if bytes.Equal(a, b) {
		t.Fatal("derived keys for different labels must differ")
	}
}

func TestDeriveSessionKeysLengths(t *testing.T) {
	k := bytes.Repeat([]byte{0x7f}, 32)
	h := bytes.Repeat([]byte{0x42}, 32)
	sessionID := h

	chacha := DeriveSessionKeys("chacha20-poly1305@openssh.com", k, h, sessionID)
	if len(chacha.EncryptionClientToServer) != 64 {
		t.Fatalf("chacha key length = %d, want 64", len(chacha.EncryptionClientToServer))
	}
	if len(chacha.IVClientToServer) != 0 {
		t.Fatalf("chacha has no conventional IV, got %d bytes", len(chacha.IVClientToServer))
	}

	aesgcm := DeriveSessionKeys("aes256-gcm@openssh.com", k, h, sessionID)
	if len(aesgcm.EncryptionClientToServer) != 32 {
		t.Fatalf("aes key length = %d, want 32", len(aesgcm.EncryptionClientToServer))
	}
	if len(aesgcm.IVClientToServer) != 12 {
		t.Fatalf("aes iv length = %d, want 12", len(aesgcm.IVClientToServer))
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3, 4}
	Zero(b)
	for _, v := range b {
		if v != 0 {
			t.Fatalf("Zero left nonzero byte: %v", b)
		}
	}
}
