package sshnegotiate

import "testing"

func TestNegotiateClientPreferenceFirst(t *testing.T) {
	client := KexInit{
		KexAlgorithms:             []string{"curve25519-sha256", "ecdh-sha2-nistp256"},
		ServerHostKeyAlgorithms:   []string{"ssh-ed25519", "ecdsa-sha2-nistp256"},
		EncryptionClientToServer:  []string{"chacha20-poly1305@openssh.com"},
		EncryptionServerToClient:  []string{"chacha20-poly1305@openssh.com"},
		MacClientToServer:         []string{"hmac-sha2-256"},
		MacServerToClient:         []string{"hmac-sha2-256"},
		CompressionClientToServer: []string{"none"},
		CompressionServerToClient: []string{"none"},
	}
	server := KexInit{
		KexAlgorithms:             []string{"ecdh-sha2-nistp256", "curve25519-sha256"},
		ServerHostKeyAlgorithms:   []string{"ssh-ed25519", "ecdsa-sha2-nistp256", "rsa-sha2-512"},
		EncryptionClientToServer:  []string{"chacha20-poly1305@openssh.com", "aes256-gcm@openssh.com"},
		EncryptionServerToClient:  []string{"chacha20-poly1305@openssh.com", "aes256-gcm@openssh.com"},
		MacClientToServer:         []string{"hmac-sha2-256"},
		MacServerToClient:         []string{"hmac-sha2-256"},
		CompressionClientToServer: []string{"none"},
		CompressionServerToClient: []string{"none"},
	}

	chosen, err := Negotiate(client, server)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.Kex != "curve25519-sha256" {
		t.Fatalf("kex = %q, want curve25519-sha256 (client's first preference present on both sides)", chosen.Kex)
	}
	if chosen.HostKey != "ssh-ed25519" {
		t.Fatalf("host key = %q, want ssh-ed25519", chosen.HostKey)
	}
}

func TestNegotiateNoCommonAlgorithm(t *testing.T) {
	client := KexInit{KexAlgorithms: []string{"diffie-hellman-group14-sha256"}}
	server := KexInit{KexAlgorithms: []string{"curve25519-sha256"}}
	if _, err := Negotiate(client, server); err == nil {
		t.Fatal("expected negotiation failure for disjoint algorithm lists")
	}
}

func TestExtInfoStrippedFromNegotiation(t *testing.T) {
	client := KexInit{
		KexAlgorithms:             []string{"curve25519-sha256", "ext-info-c"},
		ServerHostKeyAlgorithms:   []string{"ssh-ed25519"},
		EncryptionClientToServer:  []string{"chacha20-poly1305@openssh.com"},
		EncryptionServerToClient:  []string{"chacha20-poly1305@openssh.com"},
		MacClientToServer:         []string{"hmac-sha2-256"},
		MacServerToClient:         []string{"hmac-sha2-256"},
		CompressionClientToServer: []string{"none"},
		CompressionServerToClient: []string{"none"},
	}
	server := KexInit{
		KexAlgorithms:             ServerKexAlgorithms([]string{"curve25519-sha256"}),
		ServerHostKeyAlgorithms:   []string{"ssh-ed25519"},
		EncryptionClientToServer:  []string{"chacha20-poly1305@openssh.com"},
		EncryptionServerToClient:  []string{"chacha20-poly1305@openssh.com"},
		MacClientToServer:         []string{"hmac-sha2-256"},
		MacServerToClient:         []string{"hmac-sha2-256"},
		CompressionClientToServer: []string{"none"},
		CompressionServerToClient: []string{"none"},
	}

	chosen, err := Negotiate(client, server)
	if err != nil {
		t.Fatal(err)
	}
	if chosen.Kex != "curve25519-sha256" {
		t.Fatalf("kex = %q, want curve25519-sha256", chosen.Kex)
	}
	if !chosen.ClientWantsExtInfo {
		t.Fatal("expected ClientWantsExtInfo to be true")
	}
}
