package sshauth

import "github.com/coinstash/sshgatewayd/internal/sshproto"

// HandlePacket processes one inbound packet while authenticating. It
// returns Outcome{Kind: OutcomeRequest} when a host callback is needed —
// the caller must eventually call the matching Resolve* method with the
// callback's result before feeding further packets.
func (s *State) HandlePacket(p sshproto.Packet) (Outcome, error) {
	if p.Type != sshproto.MsgUserauthRequest {
		return Outcome{}, sshproto.NewError(sshproto.KindPeerProtocolViolation, "expected USERAUTH_REQUEST")
	}

	user, rest, err := sshproto.ReadUTF8String(p.Payload)
	if err != nil {
		return Outcome{}, err
	}
	service, rest, err := sshproto.ReadUTF8String(rest)
	if err != nil {
		return Outcome{}, err
	}
	method, rest, err := sshproto.ReadUTF8String(rest)
	if err != nil {
		return Outcome{}, err
	}

	switch method {
	case "none":
		s.fail()
		return s.maybeDisconnect(), nil

	case "password":
		_, rest, err := sshproto.ReadBool(rest) // change-password flag, unsupported
		if err != nil {
			return Outcome{}, err
		}
		password, _, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Kind: OutcomeRequest, Request: &Request{
			Kind: RequestVerifyPassword, User: user, Service: service, Password: password,
		}}, nil

	case "publickey":
		hasSignature, rest, err := sshproto.ReadBool(rest)
		if err != nil {
			return Outcome{}, err
		}
		algo, rest, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return Outcome{}, err
		}
		pubKeyBlob, rest, err := sshproto.ReadString(rest)
		if err != nil {
			return Outcome{}, err
		}

		if !hasSignature {
			return Outcome{Kind: OutcomeRequest, Request: &Request{
				Kind: RequestCheckPublicKey, User: user, Service: service,
				Algorithm: algo, PubKeyBlob: pubKeyBlob,
			}}, nil
		}

		signature, _, err := sshproto.ReadString(rest)
		if err != nil {
			return Outcome{}, err
		}
		signed := canonicalSigningBlob(s.sessionID, user, service, algo, pubKeyBlob)
		return Outcome{Kind: OutcomeRequest, Request: &Request{
			Kind: RequestVerifySignature, User: user, Service: service,
			Algorithm: algo, PubKeyBlob: pubKeyBlob, Signature: signature, SignedData: signed,
		}}, nil

	default:
		s.fail()
		return s.maybeDisconnect(), nil
	}
}

// canonicalSigningBlob builds the exact bytes a publickey client signs:
// string(session_id) || byte(SSH_MSG_USERAUTH_REQUEST) || string(user) ||
// string(service) || string("publickey") || bool(TRUE) || string(algo) ||
// string(pubkey_blob).
func canonicalSigningBlob(sessionID []byte, user, service, algo string, pubKeyBlob []byte) []byte {
	var buf []byte
	buf = sshproto.PutString(buf, sessionID)
	buf = sshproto.PutByte(buf, sshproto.MsgUserauthRequest)
	buf = sshproto.PutUTF8String(buf, user)
	buf = sshproto.PutUTF8String(buf, service)
	buf = sshproto.PutUTF8String(buf, "publickey")
	buf = sshproto.PutBool(buf, true)
	buf = sshproto.PutUTF8String(buf, algo)
	buf = sshproto.PutString(buf, pubKeyBlob)
	return buf
}

// ResolveVerifyPassword feeds back the host's password-verification
// result for the most recently surfaced RequestVerifyPassword.
func (s *State) ResolveVerifyPassword(user string, ok bool) Outcome {
	if ok {
		return s.succeed(user)
	}
	s.fail()
	return s.maybeDisconnect()
}

// ResolveCheckPublicKey feeds back whether the probed key is acceptable.
// On success, the server replies PK_OK (not a full authentication
// success); the client is expected to follow up with a signed request.
func (s *State) ResolveCheckPublicKey(algo string, pubKeyBlob []byte, ok bool) Outcome {
	if !ok {
		s.fail()
		return s.maybeDisconnect()
	}
	var out []byte
	out = sshproto.PutUTF8String(out, algo)
	out = sshproto.PutString(out, pubKeyBlob)
	s.send(sshproto.NewPacket(sshproto.MsgUserauthPkOk, out))
	return Outcome{Kind: OutcomeNone}
}

// ResolveVerifySignature feeds back the host's signature-verification
// result for the most recently surfaced RequestVerifySignature.
func (s *State) ResolveVerifySignature(user string, ok bool) Outcome {
	if ok {
		return s.succeed(user)
	}
	s.fail()
	return s.maybeDisconnect()
}

func (s *State) succeed(user string) Outcome {
	s.authenticatedUser = user
	s.send(sshproto.NewPacket(sshproto.MsgUserauthSuccess, nil))
	return Outcome{Kind: OutcomeSuccess}
}

func (s *State) fail() {
	s.attempts++
	var out []byte
	out = sshproto.PutNameList(out, s.policy.Methods)
	out = sshproto.PutBool(out, false)
	s.send(sshproto.NewPacket(sshproto.MsgUserauthFailure, out))
}

func (s *State) maybeDisconnect() Outcome {
	if s.attempts >= s.policy.MaxAttempts {
		return Outcome{Kind: OutcomeDisconnect}
	}
	return Outcome{Kind: OutcomeNone}
}
