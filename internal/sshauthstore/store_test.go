package sshauthstore

import (
	"encoding/base64"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
)

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func TestValidPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}

	s := NewStore()
	s.SetPasswordHash("alice", string(hash))

	if !s.ValidPassword("alice", "correct horse") {
		t.Error("expected correct password to validate")
	}
	if s.ValidPassword("alice", "wrong") {
		t.Error("expected wrong password to fail")
	}
	if s.ValidPassword("bob", "anything") {
		t.Error("expected unknown user to fail")
	}
}

func TestAuthorizedKeysAndVerifySignature(t *testing.T) {
	key, err := sshhostkey.GenerateEd25519HostKey()
	if err != nil {
		t.Fatalf("GenerateEd25519HostKey: %v", err)
	}
	blob := key.PublicKeyBlob()

	s := NewStore()
	line := "ssh-ed25519 " + b64(blob) + " alice@example.com"
	if err := s.AddAuthorizedKeyLine("alice", line); err != nil {
		t.Fatalf("AddAuthorizedKeyLine: %v", err)
	}

	if !s.HasAuthorizedKey("alice", blob) {
		t.Error("expected key to be authorized")
	}
	if s.HasAuthorizedKey("bob", blob) {
		t.Error("expected key to not be authorized for a different user")
	}

	signedData := []byte("session-id || userauth request blob")
	sig, err := key.Sign(signedData)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ok, err := s.VerifySignature("alice", blob, sig, signedData)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Error("expected signature to verify")
	}

	ok, err = s.VerifySignature("alice", blob, sig, []byte("tampered"))
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("expected signature over different data to fail")
	}

	ok, err = s.VerifySignature("bob", blob, sig, signedData)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if ok {
		t.Error("expected unauthorized user to fail regardless of signature validity")
	}
}

func TestAddAuthorizedKeyLineIgnoresBlankAndComments(t *testing.T) {
	s := NewStore()
	if err := s.AddAuthorizedKeyLine("alice", ""); err != nil {
		t.Errorf("blank line: %v", err)
	}
	if err := s.AddAuthorizedKeyLine("alice", "# a comment"); err != nil {
		t.Errorf("comment line: %v", err)
	}
	if err := s.AddAuthorizedKeyLine("alice", "not-enough-fields"); err == nil {
		t.Error("expected malformed line to error")
	}
}

func TestLoadAuthorizedKeys(t *testing.T) {
	key, err := sshhostkey.GenerateEd25519HostKey()
	if err != nil {
		t.Fatalf("GenerateEd25519HostKey: %v", err)
	}
	blob := key.PublicKeyBlob()

	data := []byte("# comment\n\nssh-ed25519 " + b64(blob) + " alice@example.com\n")

	s := NewStore()
	if err := s.LoadAuthorizedKeys("alice", data); err != nil {
		t.Fatalf("LoadAuthorizedKeys: %v", err)
	}
	if !s.HasAuthorizedKey("alice", blob) {
		t.Error("expected key loaded from file body to be authorized")
	}
}
