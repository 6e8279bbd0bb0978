package sshauth

import (
	"bytes"
	"testing"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

func userauthRequest(user, service, method string, rest []byte) sshproto.Packet {
	var buf []byte
	buf = sshproto.PutUTF8String(buf, user)
	buf = sshproto.PutUTF8String(buf, service)
	buf = sshproto.PutUTF8String(buf, method)
	buf = append(buf, rest...)
	return sshproto.NewPacket(sshproto.MsgUserauthRequest, buf)
}

func TestNoneMethodAlwaysFails(t *testing.T) {
	s := NewState(Policy{}, []byte("session"))
	outcome, err := s.HandlePacket(userauthRequest("alice", "ssh-connection", "none", nil))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeNone {
		t.Fatalf("outcome = %v, want OutcomeNone", outcome.Kind)
	}
	p, ok := s.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgUserauthFailure {
		t.Fatalf("expected USERAUTH_FAILURE, got %+v ok=%v", p, ok)
	}
}

func TestPasswordSurfacesRequestAndSucceeds(t *testing.T) {
	s := NewState(Policy{}, []byte("session"))
	var rest []byte
	rest = sshproto.PutBool(rest, false)
	rest = sshproto.PutUTF8String(rest, "hunter2")

	outcome, err := s.HandlePacket(userauthRequest("bob", "ssh-connection", "password", rest))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeRequest || outcome.Request.Kind != RequestVerifyPassword {
		t.Fatalf("expected RequestVerifyPassword, got %+v", outcome)
	}
	if outcome.Request.Password != "hunter2" {
		t.Fatalf("password = %q", outcome.Request.Password)
	}

	final := s.ResolveVerifyPassword("bob", true)
	if final.Kind != OutcomeSuccess {
		t.Fatalf("expected OutcomeSuccess, got %v", final.Kind)
	}
	if s.AuthenticatedUser() != "bob" {
		t.Fatalf("authenticated user = %q", s.AuthenticatedUser())
	}
	p, ok := s.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgUserauthSuccess {
		t.Fatalf("expected USERAUTH_SUCCESS, got %+v ok=%v", p, ok)
	}
}

func TestPublicKeyProbeThenSignedAttempt(t *testing.T) {
	s := NewState(Policy{}, []byte("session-id"))
	pubKeyBlob := []byte("ed25519-blob")

	var probe []byte
	probe = sshproto.PutBool(probe, false)
	probe = sshproto.PutUTF8String(probe, "ssh-ed25519")
	probe = sshproto.PutString(probe, pubKeyBlob)

	outcome, err := s.HandlePacket(userauthRequest("carol", "ssh-connection", "publickey", probe))
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != OutcomeRequest || outcome.Request.Kind != RequestCheckPublicKey {
		t.Fatalf("expected RequestCheckPublicKey, got %+v", outcome)
	}

	pkOK := s.ResolveCheckPublicKey("ssh-ed25519", pubKeyBlob, true)
	if pkOK.Kind != OutcomeNone {
		t.Fatalf("expected OutcomeNone after PK_OK, got %v", pkOK.Kind)
	}
	p, ok := s.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgUserauthPkOk {
		t.Fatalf("expected USERAUTH_PK_OK, got %+v ok=%v", p, ok)
	}

	var signed []byte
	signed = sshproto.PutBool(signed, true)
	signed = sshproto.PutUTF8String(signed, "ssh-ed25519")
	signed = sshproto.PutString(signed, pubKeyBlob)
	signed = sshproto.PutString(signed, []byte("sig-bytes"))

	outcome2, err := s.HandlePacket(userauthRequest("carol", "ssh-connection", "publickey", signed))
	if err != nil {
		t.Fatal(err)
	}
	if outcome2.Kind != OutcomeRequest || outcome2.Request.Kind != RequestVerifySignature {
		t.Fatalf("expected RequestVerifySignature, got %+v", outcome2)
	}

	wantBlob := canonicalSigningBlob([]byte("session-id"), "carol", "ssh-connection", "ssh-ed25519", pubKeyBlob)
	if !bytes.Equal(outcome2.Request.SignedData, wantBlob) {
		t.Fatalf("canonical signing blob mismatch")
	}

	final := s.ResolveVerifySignature("carol", true)
	if final.Kind != OutcomeSuccess {
		t.Fatalf("expected OutcomeSuccess, got %v", final.Kind)
	}
}

func TestAttemptCapDisconnects(t *testing.T) {
	s := NewState(Policy{MaxAttempts: 2}, []byte("session"))
	for i := 0; i < 2; i++ {
		outcome, err := s.HandlePacket(userauthRequest("mallory", "ssh-connection", "none", nil))
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 && outcome.Kind != OutcomeNone {
			t.Fatalf("attempt %d: expected OutcomeNone, got %v", i, outcome.Kind)
		}
		if i == 1 && outcome.Kind != OutcomeDisconnect {
			t.Fatalf("attempt %d: expected OutcomeDisconnect, got %v", i, outcome.Kind)
		}
	}
}

func TestBannerSentOnlyOnce(t *testing.T) {
	s := NewState(Policy{Banner: "welcome"}, []byte("session"))
	s.SendBannerIfConfigured()
	s.SendBannerIfConfigured()

	var count int
	for {
		p, ok := s.NextPacketToSend()
		if !ok {
			break
		}
		if p.Type == sshproto.MsgUserauthBanner {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("banner sent %d times, want 1", count)
	}
}
