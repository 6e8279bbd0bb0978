package sshchannel

import "github.com/coinstash/sshgatewayd/internal/sshproto"

func (m *Multiplexer) handleRequest(payload []byte) error {
	local, rest, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	reqType, rest, err := sshproto.ReadUTF8String(rest)
	if err != nil {
		return err
	}
	wantReply, rest, err := sshproto.ReadBool(rest)
	if err != nil {
		return err
	}

	ch, err := m.lookupOpen(local)
	if err != nil {
		return err
	}

	req := &Request{Type: reqType, WantReply: wantReply}

	switch reqType {
	case "pty-req":
		term, r, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		widthChars, r, err := sshproto.ReadUint32(r)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		heightRows, r, err := sshproto.ReadUint32(r)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		widthPx, r, err := sshproto.ReadUint32(r)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		heightPx, r, err := sshproto.ReadUint32(r)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		modes, _, err := sshproto.ReadString(r)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		req.Kind = RequestPtyReq
		req.Term = term
		req.WidthChars, req.HeightRows = widthChars, heightRows
		req.WidthPixels, req.HeightPixels = widthPx, heightPx
		req.Modes = modes

	case "shell":
		req.Kind = RequestShell

	case "exec":
		cmd, _, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		req.Kind = RequestExec
		req.Command = cmd

	case "subsystem":
		name, _, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		req.Kind = RequestSubsystem
		req.Name = name

	case "env":
		name, r, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		value, _, err := sshproto.ReadUTF8String(r)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		req.Kind = RequestEnv
		req.EnvName, req.EnvValue = name, value

	case "signal":
		name, _, err := sshproto.ReadUTF8String(rest)
		if err != nil {
			return m.failRequest(ch, wantReply, err)
		}
		req.Kind = RequestSignal
		req.SignalName = name
		// Silently ignored per spec: no update emitted, no reply sent,
		// regardless of want_reply.
		return nil

	case "exit-status":
		// Only valid server-to-client; receiving it inbound is a protocol
		// violation independent of want_reply.
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "exit-status is outbound-only")

	default:
		req.Kind = RequestUnknown
		if wantReply {
			var out []byte
			out = sshproto.PutUint32(out, ch.peerNumber)
			m.send(sshproto.NewPacket(sshproto.MsgChannelFailure, out))
		}
		return nil
	}

	m.emit(Update{Channel: local, Kind: UpdateRequest, Request: req})
	return nil
}

// failRequest responds CHANNEL_FAILURE (if owed) when a request's
// type-specific payload is malformed, rather than propagating a fatal
// connection error for what is often just a buggy/hostile client.
func (m *Multiplexer) failRequest(ch *channel, wantReply bool, parseErr error) error {
	if wantReply {
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		m.send(sshproto.NewPacket(sshproto.MsgChannelFailure, out))
	}
	return nil
}

// DoOperation applies one host-issued operation to the channel table,
// producing outbound packets as needed. Operations on a channel that has
// already been closed (by either side) are silently dropped.
func (m *Multiplexer) DoOperation(op Operation) error {
	if op.Kind == OpOpen {
		_, err := m.OpenChannel(op.OpenChannelType, op.OpenInitialWindow, op.OpenMaxPacketSize)
		return err
	}

	ch, ok := m.channels[op.Channel]
	if !ok {
		return nil // channel already closed/unknown: drop silently
	}
	if ch.weClosed && op.Kind != OpClose {
		return nil // post-close silence: everything but the idempotent Close is dropped
	}

	switch op.Kind {
	case OpData:
		m.sendData(ch, false, 0, op.Data)
	case OpExtendedData:
		m.sendData(ch, true, op.ExtendedCode, op.Data)
	case OpRequest:
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		out = sshproto.PutUTF8String(out, op.RequestType)
		out = sshproto.PutBool(out, op.WantReply)
		out = append(out, op.RequestPayload...)
		m.send(sshproto.NewPacket(sshproto.MsgChannelRequest, out))
	case OpSuccess:
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		m.send(sshproto.NewPacket(sshproto.MsgChannelSuccess, out))
	case OpFailure:
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		m.send(sshproto.NewPacket(sshproto.MsgChannelFailure, out))
	case OpEof:
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		m.send(sshproto.NewPacket(sshproto.MsgChannelEOF, out))
	case OpClose:
		if ch.weClosed {
			return nil // idempotent: a second Close is a no-op
		}
		ch.weClosed = true
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		m.send(sshproto.NewPacket(sshproto.MsgChannelClose, out))
	}
	return nil
}

// EncodeExitStatusPayload builds the type-specific payload for an outbound
// "exit-status" request (want_reply is always false for this type).
func EncodeExitStatusPayload(code uint32) []byte {
	return sshproto.PutUint32(nil, code)
}
