package sshtransport

import (
	"github.com/coinstash/sshgatewayd/internal/sshauth"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

func (s *Server) handleServiceRequestState(p sshproto.Packet) error {
	if p.Type == sshproto.MsgExtInfo {
		// Accepted once, per the resolved Open Question: after this the
		// server must not receive another EXT_INFO for the life of the
		// connection.
		if !s.mayReceiveExtInfo {
			return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "unexpected EXT_INFO"))
		}
		s.mayReceiveExtInfo = false
		return nil
	}

	if p.Type != sshproto.MsgServiceRequest {
		return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "expected SERVICE_REQUEST"))
	}
	name, _, err := sshproto.ReadUTF8String(p.Payload)
	if err != nil {
		return s.disconnect(asErr(err, sshproto.KindPeerProtocolViolation))
	}
	if name != "ssh-userauth" {
		return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "unsupported service: "+name))
	}

	var out []byte
	out = sshproto.PutUTF8String(out, name)
	s.send(sshproto.NewPacket(sshproto.MsgServiceAccept, out))

	s.auth = sshauth.NewState(sshauth.Policy{
		MaxAttempts: s.policy.MaxAuthAttempts,
		Banner:      s.policy.AuthBanner,
	}, s.sessionID)
	s.auth.SendBannerIfConfigured()

	s.state = StateAuthenticating
	return nil
}

func (s *Server) handleAuthPacket(p sshproto.Packet) error {
	outcome, err := s.auth.HandlePacket(p)
	if err != nil {
		return s.disconnect(asErr(err, sshproto.KindPeerProtocolViolation))
	}
	return s.applyAuthOutcome(outcome)
}

func (s *Server) applyAuthOutcome(outcome sshauth.Outcome) error {
	switch outcome.Kind {
	case sshauth.OutcomeRequest:
		s.pendingAuth = outcome.Request
	case sshauth.OutcomeSuccess:
		s.pendingAuth = nil
		s.state = StateOpen
	case sshauth.OutcomeDisconnect:
		s.pendingAuth = nil
		return s.disconnect(sshproto.NewError(sshproto.KindAuthMethodFailure, "too many authentication failures"))
	default:
		s.pendingAuth = nil
	}
	return nil
}

// PendingAuthRequest returns the host-callback request the most recent
// inbound userauth packet surfaced, if any. Sign-the-exchange-hash
// requests go through IsWaitingOnKeyExchange instead; this covers
// verify-password, check-publickey, and verify-signature.
func (s *Server) PendingAuthRequest() (*sshauth.Request, bool) {
	if s.pendingAuth == nil {
		return nil, false
	}
	return s.pendingAuth, true
}

// ResolveAuthRequest applies the host's answer to the pending auth request
// and folds the resulting Outcome back into transport state (success opens
// the connection, exceeding the attempt cap disconnects).
func (s *Server) ResolveAuthRequest(resolve func(a *sshauth.State) sshauth.Outcome) error {
	if s.auth == nil || s.pendingAuth == nil {
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "no authentication request pending")
	}
	return s.applyAuthOutcome(resolve(s.auth))
}
