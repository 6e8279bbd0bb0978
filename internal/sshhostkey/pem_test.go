package sshhostkey

import "testing"

func TestMarshalParsePEMEd25519RoundTrips(t *testing.T) {
	k, err := GenerateEd25519HostKey()
	if err != nil {
		t.Fatalf("GenerateEd25519HostKey: %v", err)
	}

	pemBytes, err := MarshalPEM(k)
	if err != nil {
		t.Fatalf("MarshalPEM: %v", err)
	}

	parsed, err := ParsePEM(pemBytes)
	if err != nil {
		t.Fatalf("ParsePEM: %v", err)
	}
	if parsed.Algorithm() != AlgorithmEd25519 {
		t.Fatalf("Algorithm = %q, want %q", parsed.Algorithm(), AlgorithmEd25519)
	}

	digest := []byte("exchange hash goes here")
	sig, err := k.Sign(digest)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := VerifySignature(parsed.PublicKeyBlob(), sig, digest)
	if err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if !ok {
		t.Fatal("signature from original key did not verify against the round-tripped public key")
	}
}

func TestMarshalParsePEMEcdsaP256RoundTrips(t *testing.T) {
	k, err := GenerateEcdsaP256HostKey()
	if err != nil {
		t.Fatalf("GenerateEcdsaP256HostKey: %v", err)
	}

	pemBytes, err := MarshalPEM(k)
	if err != nil {
		t.Fatalf("MarshalPEM: %v", err)
	}

	parsed, err := ParsePEM(pemBytes)
	if err != nil {
		t.Fatalf("ParsePEM: %v", err)
	}
	if parsed.Algorithm() != AlgorithmEcdsaP256 {
		t.Fatalf("Algorithm = %q, want %q", parsed.Algorithm(), AlgorithmEcdsaP256)
	}
}

func TestParsePEMRejectsGarbage(t *testing.T) {
	if _, err := ParsePEM([]byte("not a pem block")); err == nil {
		t.Fatal("expected an error decoding a non-PEM payload")
	}
}
