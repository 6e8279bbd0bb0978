package sshtransport

import (
	"bytes"
	"crypto/rand"
	"fmt"

	"github.com/coinstash/sshgatewayd/internal/sshkex"
	"github.com/coinstash/sshgatewayd/internal/sshnegotiate"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// FeedIdentBytes accumulates the client's identification line, which is
// terminated by CRLF and is not itself length-prefixed or packet-framed.
// It is valid to call this with as few as one byte at a time (the slow
// client scenario): FeedIdentBytes only transitions out of ProtoExchange
// once a full CRLF-terminated "SSH-" line has been seen. The server's own
// identification line is queued by NewServer, ahead of any client bytes.
func (s *Server) FeedIdentBytes(data []byte) (consumed int, err error) {
	if s.state != StateProtoExchange {
		return 0, sshproto.NewError(sshproto.KindPeerProtocolViolation, "not awaiting protocol identification")
	}
	if !s.identLineSent {
		s.queueIdentLine()
	}

	for i, b := range data {
		s.identBuf = append(s.identBuf, b)
		if bytes.HasSuffix(s.identBuf, []byte("\r\n")) {
			line := s.identBuf[:len(s.identBuf)-2]
			if !bytes.HasPrefix(line, []byte("SSH-")) {
				// Informational line from the peer preceding its real
				// identification; RFC 4253 §4.2 allows this. Reset and
				// keep waiting.
				s.identBuf = s.identBuf[:0]
				continue
			}
			s.clientIdent = string(line)
			s.state = StateKeyExchangeInit
			s.queueServerKexInit()
			return i + 1, nil
		}
	}
	return len(data), nil
}

func (s *Server) queueIdentLine() {
	s.identLineQueued = []byte(s.serverIdent + "\r\n")
	s.identLineSent = true
}

// IdentLineToSend returns the server's raw identification line once, for
// the driver to write directly to the socket ahead of any framed packet
// (the identification exchange happens before the packet protocol is
// active).
func (s *Server) IdentLineToSend() ([]byte, bool) {
	if len(s.identLineQueued) == 0 {
		return nil, false
	}
	line := s.identLineQueued
	s.identLineQueued = nil
	return line, true
}

// HandlePacket processes one inbound framed packet, dispatching by the
// current state after first handling DISCONNECT/IGNORE/DEBUG, which are
// valid (and for IGNORE/DEBUG, non-fatal) at every state.
func (s *Server) HandlePacket(p sshproto.Packet) error {
	switch p.Type {
	case sshproto.MsgDisconnect:
		reason, rest, _ := sshproto.ReadUint32(p.Payload)
		msg, _, _ := sshproto.ReadUTF8String(rest)
		s.disconnected = true
		s.disconnectReason = reason
		s.disconnectMessage = fmt.Sprintf("peer disconnected: %s", msg)
		return nil
	case sshproto.MsgIgnore:
		return nil
	case sshproto.MsgDebug:
		return nil
	}

	switch s.state {
	case StateKeyExchangeInit:
		return s.handleKexInit(p)
	case StateEcdhInit:
		return s.handleEcdhInit(p)
	case StateAwaitingKexSignature:
		return s.disconnect(sshproto.NewError(sshproto.KindPeerProtocolViolation, "unexpected packet while awaiting key exchange completion"))
	case StateNewKeys:
		return s.handleNewKeys(p)
	case StateServiceRequest:
		return s.handleServiceRequestState(p)
	case StateAuthenticating:
		return s.handleAuthPacket(p)
	case StateOpen:
		if s.rekeying {
			return s.handleKexInit(p)
		}
		if p.Type == sshproto.MsgKexInit {
			s.rekeying = true
			s.serverKexInitRaw = nil
			return s.handleKexInit(p)
		}
		return s.channels.HandlePacket(p)
	default:
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "packet received before protocol identification completed")
	}
}

func (s *Server) queueServerKexInit() {
	var cookie [16]byte
	_, _ = rand.Read(cookie[:])

	var buf []byte
	buf = sshproto.PutByte(buf, sshproto.MsgKexInit)
	buf = append(buf, cookie[:]...)
	buf = sshproto.PutNameList(buf, kexAlgorithmNames())
	buf = sshproto.PutNameList(buf, s.hostKeys.AlgorithmNames())
	buf = sshproto.PutNameList(buf, cipherNames())
	buf = sshproto.PutNameList(buf, cipherNames())
	buf = sshproto.PutNameList(buf, []string{sshproto.MACImplicitAEAD})
	buf = sshproto.PutNameList(buf, []string{sshproto.MACImplicitAEAD})
	buf = sshproto.PutNameList(buf, []string{sshproto.CompressionNone})
	buf = sshproto.PutNameList(buf, []string{sshproto.CompressionNone})
	buf = sshproto.PutNameList(buf, nil)
	buf = sshproto.PutNameList(buf, nil)
	buf = sshproto.PutBool(buf, false) // first_kex_packet_follows
	buf = sshproto.PutUint32(buf, 0)   // reserved

	s.serverKexInitRaw = buf
	s.send(sshproto.Packet{Type: sshproto.MsgKexInit, Payload: buf[1:]})
}

func kexAlgorithmNames() []string {
	names := make([]string, 0, len(sshkex.Methods()))
	for _, m := range sshkex.Methods() {
		names = append(names, m.Name())
	}
	return sshnegotiate.ServerKexAlgorithms(names)
}

func cipherNames() []string {
	return []string{sshproto.CipherChaCha20Poly1305, sshproto.CipherAES256GCM}
}

func (s *Server) handleKexInit(p sshproto.Packet) error {
	s.clientKexInitRaw = append([]byte{p.Type}, p.Payload...)

	client, err := parseKexInit(p.Payload)
	if err != nil {
		return s.disconnect(asErr(err, sshproto.KindPeerProtocolViolation))
	}
	if client.FirstKexPacketFollows {
		// Guessed-packet support is deliberately not implemented, matching
		// the reference implementation's explicit refusal.
		return s.disconnect(sshproto.NewError(sshproto.KindAlgorithmNegotiationFailure, "guessed kex packet not supported"))
	}

	server := KexInitFromServer(kexAlgorithmNames(), s.hostKeys.AlgorithmNames(), cipherNames())
	chosen, err := sshnegotiate.Negotiate(client, server)
	if err != nil {
		return s.disconnect(asErr(err, sshproto.KindAlgorithmNegotiationFailure))
	}
	s.negotiatedKex = chosen
	s.clientWantsExtInfo = chosen.ClientWantsExtInfo

	method, ok := sshkex.ByName(chosen.Kex)
	if !ok {
		return s.disconnect(sshproto.NewError(sshproto.KindAlgorithmNegotiationFailure, "negotiated kex method not implemented"))
	}
	s.kexMethod = method

	if s.serverKexInitRaw == nil {
		// Rekey: we are the one re-entering KeyExchangeInit from Open and
		// must (re-)send our own KEXINIT first.
		s.queueServerKexInit()
	}

	s.state = StateEcdhInit
	return nil
}

// KexInitFromServer builds the server's own offered algorithm lists in the
// shape sshnegotiate.Negotiate expects, mirroring queueServerKexInit's
// wire encoding.
func KexInitFromServer(kex, hostKeyAlgos, ciphers []string) sshnegotiate.KexInit {
	return sshnegotiate.KexInit{
		KexAlgorithms:             kex,
		ServerHostKeyAlgorithms:   hostKeyAlgos,
		EncryptionClientToServer:  ciphers,
		EncryptionServerToClient:  ciphers,
		MacClientToServer:         []string{sshproto.MACImplicitAEAD},
		MacServerToClient:         []string{sshproto.MACImplicitAEAD},
		CompressionClientToServer: []string{sshproto.CompressionNone},
		CompressionServerToClient: []string{sshproto.CompressionNone},
	}
}

func parseKexInit(payload []byte) (sshnegotiate.KexInit, error) {
	var ki sshnegotiate.KexInit
	rest := payload[16:] // skip cookie
	var err error
	if ki.KexAlgorithms, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.ServerHostKeyAlgorithms, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.EncryptionClientToServer, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.EncryptionServerToClient, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.MacClientToServer, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.MacServerToClient, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.CompressionClientToServer, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.CompressionServerToClient, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.LanguagesClientToServer, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.LanguagesServerToClient, rest, err = sshproto.ReadNameList(rest); err != nil {
		return ki, err
	}
	if ki.FirstKexPacketFollows, _, err = sshproto.ReadBool(rest); err != nil {
		return ki, err
	}
	return ki, nil
}

func asErr(err error, fallback sshproto.Kind) *sshproto.Error {
	if se, ok := err.(*sshproto.Error); ok {
		return se
	}
	return sshproto.WrapError(fallback, "negotiation error", err)
}
