package sshtransport

import (
	"github.com/coinstash/sshgatewayd/internal/sshcipher"
	"github.com/coinstash/sshgatewayd/internal/sshkex"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

func (s *Server) handleEcdhInit(p sshproto.Packet) error {
	if p.Type != sshproto.MsgKexEcdhInit {
		return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "expected KEX_ECDH_INIT"))
	}
	qc, _, err := sshproto.ReadString(p.Payload)
	if err != nil {
		return s.disconnect(asErr(err, sshproto.KindPeerProtocolViolation))
	}

	clientIdent := s.clientIdent
	serverIdent := s.serverIdent

	s.pendingKex = &KexParams{
		KexAlgorithm:     s.negotiatedKex.Kex,
		HostKeyAlgorithm: s.negotiatedKex.HostKey,
		ClientIdent:      clientIdent,
		ServerIdent:      serverIdent,
		ClientKexInit:    s.clientKexInitRaw,
		ServerKexInit:    s.serverKexInitRaw,
		ClientEphemeral:  qc,
	}
	s.state = StateAwaitingKexSignature
	return nil
}

// DoKeyExchange completes a key exchange with the host's KexResponse (or
// the error the host returned): it queues KEX_ECDH_REPLY, fixes the session
// id on the first exchange, derives the session keys and moves to NewKeys.
// The driver calls it once it has a KexResponse, whether computed locally
// by SignKex/BuildKexResponse or fetched from a remote signer.
func (s *Server) DoKeyExchange(resp KexResponse, err error) error {
	if s.state != StateAwaitingKexSignature {
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "not awaiting key exchange completion")
	}
	if err != nil {
		return s.disconnect(sshproto.WrapError(sshproto.KindHostKeyFailure, "key exchange signing failed", err))
	}

	var out []byte
	out = sshproto.PutString(out, resp.HostKeyBlob)
	out = sshproto.PutString(out, resp.ServerEphemeral)
	out = sshproto.PutString(out, resp.Signature)
	s.send(sshproto.Packet{Type: sshproto.MsgKexEcdhReply, Payload: out})

	if s.sessionID == nil {
		s.sessionID = append([]byte(nil), resp.ExchangeHash...)
	}

	keys := sshcipher.DeriveSessionKeys(s.negotiatedKex.EncServerToClient, resp.SharedSecret, resp.ExchangeHash, s.sessionID)
	s.pendingRekey = &keys
	s.pendingKex = nil
	s.state = StateNewKeys
	s.mayReceiveExtInfo = true
	return nil
}

// BuildKexResponse computes the server half of ECDH and signs the
// resulting exchange hash with the negotiated host key. Split out from
// DoKeyExchange so the driver can run it on a worker goroutine (the
// "awaiting host-key sign callback" suspension point) and feed the result
// back via DoKeyExchange.
func (s *Server) BuildKexResponse(params KexParams) (KexResponse, error) {
	return SignKex(s.hostKeys, params)
}

// SignKex computes the server half of ECDH and signs the resulting
// exchange hash with the host key named in params.HostKeyAlgorithm. It
// depends only on the configured HostKeys set, not on any other
// connection state, so a HostCallbacks implementation backing a real
// Driver can call it directly instead of reaching into a specific
// connection's Server.
func SignKex(hostKeys *HostKeys, params KexParams) (KexResponse, error) {
	hostKey, ok := hostKeys.get(params.HostKeyAlgorithm)
	if !ok {
		return KexResponse{}, sshproto.NewError(sshproto.KindHostKeyFailure, "negotiated host key algorithm not configured")
	}
	method, ok := sshkex.ByName(params.KexAlgorithm)
	if !ok {
		return KexResponse{}, sshproto.NewError(sshproto.KindAlgorithmNegotiationFailure, "negotiated kex method not implemented")
	}

	ephemeral, err := method.Generate(sshkex.RandReader)
	if err != nil {
		return KexResponse{}, err
	}
	defer ephemeral.Zero()

	secret, err := ephemeral.Exchange(params.ClientEphemeral)
	if err != nil {
		return KexResponse{}, sshproto.WrapError(sshproto.KindAlgorithmNegotiationFailure, "ecdh exchange failed", err)
	}

	h := sshkex.ComputeExchangeHash(sshkex.ExchangeHashInputs{
		ClientIdent:     params.ClientIdent,
		ServerIdent:     params.ServerIdent,
		ClientKexInit:   params.ClientKexInit,
		ServerKexInit:   params.ServerKexInit,
		HostKeyBlob:     hostKey.PublicKeyBlob(),
		ClientEphemeral: params.ClientEphemeral,
		ServerEphemeral: ephemeral.PublicKey(),
		SharedSecret:    secret,
	})

	sig, err := hostKey.Sign(h)
	if err != nil {
		return KexResponse{}, sshproto.WrapError(sshproto.KindHostKeyFailure, "host key signing failed", err)
	}

	return KexResponse{
		ServerEphemeral: ephemeral.PublicKey(),
		ExchangeHash:    h,
		SharedSecret:    secret,
		Signature:       sig,
		HostKeyBlob:     hostKey.PublicKeyBlob(),
	}, nil
}

func (s *Server) handleNewKeys(p sshproto.Packet) error {
	if p.Type != sshproto.MsgNewKeys || len(p.Payload) != 0 {
		return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "expected bare NEWKEYS"))
	}
	if s.pendingRekey == nil {
		return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "NEWKEYS received before key exchange completed"))
	}

	// Queue our own NEWKEYS and install send-side keys immediately, before
	// processing the inbound one, so send-side and receive-side install
	// independently as required by the resolved Open Question.
	if !s.sentNewKeys {
		s.send(sshproto.Packet{Type: sshproto.MsgNewKeys})
		sendCipher, err := buildCipher(s.negotiatedKex.EncServerToClient, s.pendingRekey.EncryptionServerToClient, s.pendingRekey.IVServerToClient)
		if err != nil {
			return s.disconnect(asErr(err, sshproto.KindHostKeyFailure))
		}
		s.framer.SetSendCipher(sendCipher)
		s.sentNewKeys = true
	}

	recvCipher, err := buildCipher(s.negotiatedKex.EncClientToServer, s.pendingRekey.EncryptionClientToServer, s.pendingRekey.IVClientToServer)
	if err != nil {
		return s.disconnect(asErr(err, sshproto.KindHostKeyFailure))
	}
	s.framer.SetRecvCipher(recvCipher)

	s.pendingRekey = nil
	s.sentNewKeys = false
	if s.rekeying {
		s.rekeying = false
		s.state = StateOpen
		return nil
	}

	s.state = StateServiceRequest
	return nil
}

func buildCipher(algo string, key, iv []byte) (sshproto.Cipher, error) {
	switch algo {
	case sshproto.CipherChaCha20Poly1305:
		return sshcipher.NewChaChaPoly(key), nil
	case sshproto.CipherAES256GCM:
		return sshcipher.NewAesGcm(key, iv)
	default:
		return nil, sshproto.NewError(sshproto.KindAlgorithmNegotiationFailure, "unsupported cipher for installation")
	}
}
