package sshtransport

import (
	"testing"

	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	hk, err := sshhostkey.GenerateEd25519HostKey()
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(NewHostKeys([]sshhostkey.HostKey{hk}), Policy{})
}

// TestSlowClientIdentExchange feeds the client's identification line one
// byte at a time, confirming the server still recognizes the CRLF
// terminator and transitions out of ProtoExchange regardless of how the
// bytes were chunked by the network.
func TestSlowClientIdentExchange(t *testing.T) {
	s := newTestServer(t)

	line, ok := s.IdentLineToSend()
	if !ok || len(line) == 0 {
		t.Fatal("expected server identification line queued immediately")
	}

	ident := []byte("SSH-2.0-testclient\r\n")
	for i := 0; i < len(ident); i++ {
		consumed, err := s.FeedIdentBytes(ident[i : i+1])
		if err != nil {
			t.Fatalf("byte %d: %v", i, err)
		}
		if i < len(ident)-1 && consumed != 1 {
			t.Fatalf("byte %d: consumed %d, want 1 before CRLF completes", i, consumed)
		}
	}
	if s.State() != StateKeyExchangeInit {
		t.Fatalf("state = %v, want KeyExchangeInit", s.State())
	}
	if s.clientIdent != "SSH-2.0-testclient" {
		t.Fatalf("clientIdent = %q", s.clientIdent)
	}

	if _, ok := s.NextPacketToSend(); !ok {
		t.Fatal("expected server KEXINIT queued after ident exchange")
	}
}

func kexInitPayload(kexAlgos, hostKeyAlgos, ciphers []string) []byte {
	var buf []byte
	var cookie [16]byte
	buf = append(buf, cookie[:]...)
	buf = sshproto.PutNameList(buf, kexAlgos)
	buf = sshproto.PutNameList(buf, hostKeyAlgos)
	buf = sshproto.PutNameList(buf, ciphers)
	buf = sshproto.PutNameList(buf, ciphers)
	buf = sshproto.PutNameList(buf, []string{sshproto.MACImplicitAEAD})
	buf = sshproto.PutNameList(buf, []string{sshproto.MACImplicitAEAD})
	buf = sshproto.PutNameList(buf, []string{sshproto.CompressionNone})
	buf = sshproto.PutNameList(buf, []string{sshproto.CompressionNone})
	buf = sshproto.PutNameList(buf, nil)
	buf = sshproto.PutNameList(buf, nil)
	buf = sshproto.PutBool(buf, false)
	buf = sshproto.PutUint32(buf, 0)
	return buf
}

// TestAlgorithmNegotiationEndToEnd drives a client KEXINIT advertising a
// subset of algorithms through the server's handleKexInit, confirming the
// client-preference-first rule picks ssh-ed25519, the client's first host
// key preference and the only host key the server holds (mirrors the
// negotiation scenario named alongside the client-preference-first rule).
func TestAlgorithmNegotiationEndToEnd(t *testing.T) {
	s := newTestServer(t)
	s.FeedIdentBytes([]byte("SSH-2.0-testclient\r\n"))
	s.NextPacketToSend() // drain our own KEXINIT

	client := kexInitPayload(
		[]string{"curve25519-sha256"},
		[]string{"ssh-ed25519", "ecdsa-sha2-nistp256"},
		[]string{"chacha20-poly1305@openssh.com"},
	)
	if err := s.HandlePacket(sshproto.NewPacket(sshproto.MsgKexInit, client)); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateEcdhInit {
		t.Fatalf("state = %v, want EcdhInit", s.State())
	}
	if s.negotiatedKex.Kex != "curve25519-sha256" {
		t.Fatalf("negotiated kex = %q", s.negotiatedKex.Kex)
	}
	if s.negotiatedKex.HostKey != "ssh-ed25519" {
		t.Fatalf("negotiated host key = %q, want ssh-ed25519", s.negotiatedKex.HostKey)
	}
}

// TestFullKeyExchangeThroughNewKeys drives the server from protocol
// identification through NEWKEYS into ServiceRequest, confirming the
// session id freezes on the first key exchange and the negotiated cipher
// gets installed on both directions.
func TestFullKeyExchangeThroughNewKeys(t *testing.T) {
	s := newTestServer(t)
	s.FeedIdentBytes([]byte("SSH-2.0-testclient\r\n"))
	s.NextPacketToSend()

	client := kexInitPayload(
		[]string{"curve25519-sha256"},
		[]string{"ssh-ed25519"},
		[]string{"chacha20-poly1305@openssh.com"},
	)
	if err := s.HandlePacket(sshproto.NewPacket(sshproto.MsgKexInit, client)); err != nil {
		t.Fatal(err)
	}

	ecdhInit := sshproto.PutString(nil, []byte("fake-client-ephemeral-32-bytes!!"))
	if err := s.HandlePacket(sshproto.NewPacket(sshproto.MsgKexEcdhInit, ecdhInit)); err != nil {
		t.Fatal(err)
	}
	params, waiting := s.IsWaitingOnKeyExchange()
	if !waiting {
		t.Fatal("expected IsWaitingOnKeyExchange after ECDH_INIT")
	}

	resp, err := s.BuildKexResponse(*params)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.DoKeyExchange(resp, nil); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateNewKeys {
		t.Fatalf("state = %v, want NewKeys", s.State())
	}
	firstSessionID := append([]byte(nil), s.sessionID...)
	if len(firstSessionID) == 0 {
		t.Fatal("expected session id to be set")
	}

	if err := s.HandlePacket(sshproto.NewPacket(sshproto.MsgNewKeys, nil)); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateServiceRequest {
		t.Fatalf("state = %v, want ServiceRequest", s.State())
	}
	if string(s.sessionID) != string(firstSessionID) {
		t.Fatal("session id must not change after the first key exchange")
	}
}
