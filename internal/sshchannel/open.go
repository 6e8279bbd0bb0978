package sshchannel

import "github.com/coinstash/sshgatewayd/internal/sshproto"

func (m *Multiplexer) handleChannelOpen(payload []byte) error {
	channelType, rest, err := sshproto.ReadUTF8String(payload)
	if err != nil {
		return err
	}
	peerNumber, rest, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}
	peerWindow, rest, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}
	peerMaxPacket, _, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}

	if channelType != "session" {
		var out []byte
		out = sshproto.PutUint32(out, peerNumber)
		out = sshproto.PutUint32(out, sshproto.ChannelOpenUnknownChannelType)
		out = sshproto.PutUTF8String(out, "unsupported channel type")
		out = sshproto.PutUTF8String(out, "")
		m.send(sshproto.NewPacket(sshproto.MsgChannelOpenFailure, out))
		return nil
	}

	local, err := m.allocateLocalNumber()
	if err != nil {
		return err
	}
	m.channels[local] = &channel{
		state:            stateOpen,
		localNumber:      local,
		peerNumber:       peerNumber,
		peerWindow:       peerWindow,
		peerMaxPacket:    peerMaxPacket,
		ourWindow:        m.initialWindow,
		ourInitialWindow: m.initialWindow,
		ourMaxPacket:     m.maxPacketSize,
		extendedQueues:   make(map[uint32][]byte),
	}

	var out []byte
	out = sshproto.PutUint32(out, peerNumber)
	out = sshproto.PutUint32(out, local)
	out = sshproto.PutUint32(out, m.initialWindow)
	out = sshproto.PutUint32(out, m.maxPacketSize)
	m.send(sshproto.NewPacket(sshproto.MsgChannelOpenConfirmation, out))
	if m.metrics != nil {
		m.metrics.RecordChannelOpen()
	}

	m.emit(Update{Channel: local, Kind: UpdateOpen, OpenType: "session"})
	return nil
}

func (m *Multiplexer) handleChannelOpenConfirmation(payload []byte) error {
	local, rest, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	peerNumber, rest, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}
	peerWindow, rest, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}
	peerMaxPacket, _, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}

	ch, ok := m.channels[local]
	if !ok || ch.state != stateAwaitingConfirmation {
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "open confirmation for unknown/already-open channel")
	}
	ch.state = stateOpen
	ch.peerNumber = peerNumber
	ch.peerWindow = peerWindow
	ch.peerMaxPacket = peerMaxPacket

	m.emit(Update{Channel: local, Kind: UpdateOpen, OpenType: "session"})
	return nil
}

func (m *Multiplexer) handleChannelOpenFailure(payload []byte) error {
	local, rest, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	_, rest, err = sshproto.ReadUint32(rest) // reason code, surfaced via message only
	if err != nil {
		return err
	}
	message, _, err := sshproto.ReadUTF8String(rest)
	if err != nil {
		return err
	}

	ch, ok := m.channels[local]
	if !ok || ch.state != stateAwaitingConfirmation {
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "open failure for unknown/already-open channel")
	}
	delete(m.channels, local)
	m.emit(Update{Channel: local, Kind: UpdateOpenFailed, OpenFailedMessage: message})
	return nil
}

// OpenChannel issues a host-initiated CHANNEL_OPEN (the vestigial client
// path: this server implementation does not exercise it itself, but the
// multiplexer supports it symmetrically since the wire protocol is
// direction-agnostic).
func (m *Multiplexer) OpenChannel(channelType string, initialWindow, maxPacketSize uint32) (uint32, error) {
	if initialWindow == 0 {
		initialWindow = m.initialWindow
	}
	if maxPacketSize == 0 {
		maxPacketSize = m.maxPacketSize
	}
	local, err := m.allocateLocalNumber()
	if err != nil {
		return 0, err
	}
	m.channels[local] = &channel{
		state:            stateAwaitingConfirmation,
		localNumber:      local,
		ourWindow:        initialWindow,
		ourInitialWindow: initialWindow,
		ourMaxPacket:     maxPacketSize,
		extendedQueues:   make(map[uint32][]byte),
	}

	var out []byte
	out = sshproto.PutUTF8String(out, channelType)
	out = sshproto.PutUint32(out, local)
	out = sshproto.PutUint32(out, initialWindow)
	out = sshproto.PutUint32(out, maxPacketSize)
	m.send(sshproto.NewPacket(sshproto.MsgChannelOpen, out))
	return local, nil
}
