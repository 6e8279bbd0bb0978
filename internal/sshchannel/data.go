package sshchannel

import "github.com/coinstash/sshgatewayd/internal/sshproto"

func (m *Multiplexer) handleData(payload []byte, extended bool, code uint32) error {
	local, rest, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	data, _, err := sshproto.ReadString(rest)
	if err != nil {
		return err
	}

	ch, err := m.lookupOpen(local)
	if err != nil {
		return err
	}

	if uint32(len(data)) > ch.ourMaxPacket {
		return sshproto.NewError(sshproto.KindPacketTooLarge, "channel data exceeds advertised max packet size")
	}
	if uint32(len(data)) > ch.ourWindow {
		return sshproto.NewError(sshproto.KindChannelWindowUnderflow, "peer sent more data than our advertised window")
	}
	ch.ourWindow -= uint32(len(data))
	if m.metrics != nil {
		m.metrics.RecordChannelBytes("rx", len(data))
	}

	if extended {
		m.emit(Update{Channel: local, Kind: UpdateExtendedData, Data: data, ExtendedCode: code})
	} else {
		m.emit(Update{Channel: local, Kind: UpdateData, Data: data})
	}

	if ch.ourWindow < m.refillThreshold {
		delta := ch.ourInitialWindow
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		out = sshproto.PutUint32(out, delta)
		m.send(sshproto.NewPacket(sshproto.MsgChannelWindowAdjust, out))
		ch.ourWindow += delta
	}
	return nil
}

func (m *Multiplexer) handleWindowAdjust(payload []byte) error {
	local, rest, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	delta, _, err := sshproto.ReadUint32(rest)
	if err != nil {
		return err
	}

	ch, err := m.lookupOpen(local)
	if err != nil {
		return err
	}
	if ch.peerWindow+delta < ch.peerWindow {
		return sshproto.NewError(sshproto.KindInternalLimit, "peer window grant overflowed 32 bits")
	}
	ch.peerWindow += delta

	m.drainQueues(ch)
	return nil
}

func (m *Multiplexer) handleEOF(payload []byte) error {
	local, _, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	if _, err := m.lookupOpen(local); err != nil {
		return err
	}
	m.emit(Update{Channel: local, Kind: UpdateEof})
	return nil
}

func (m *Multiplexer) handleClose(payload []byte) error {
	local, _, err := sshproto.ReadUint32(payload)
	if err != nil {
		return err
	}
	ch, ok := m.channels[local]
	if !ok {
		return sshproto.NewError(sshproto.KindChannelUnknown, "close for unknown channel")
	}
	if !ch.weClosed {
		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		m.send(sshproto.NewPacket(sshproto.MsgChannelClose, out))
	}
	delete(m.channels, local)
	m.emit(Update{Channel: local, Kind: UpdateClosed})
	return nil
}

// sendData appends bytes to the channel's outbound queue (default, or the
// extended-code-keyed queue) and immediately attempts to drain it against
// the peer's current window. Appending before draining, rather than trying
// to send first, keeps per-channel send order intact across window-grant
// boundaries: anything already queued is always in front of new bytes.
func (m *Multiplexer) sendData(ch *channel, extended bool, code uint32, data []byte) {
	if extended {
		ch.extendedQueues[code] = append(ch.extendedQueues[code], data...)
	} else {
		ch.defaultQueue = append(ch.defaultQueue, data...)
	}
	if m.metrics != nil {
		m.metrics.RecordChannelBytes("tx", len(data))
	}
	m.drainOneQueue(ch, extended, code)
}

func (m *Multiplexer) drainOneQueue(ch *channel, extended bool, code uint32) {
	for {
		var q []byte
		if extended {
			q = ch.extendedQueues[code]
		} else {
			q = ch.defaultQueue
		}
		if len(q) == 0 || ch.peerWindow == 0 {
			return
		}
		chunk := int(ch.peerMaxPacket)
		if chunk > len(q) {
			chunk = len(q)
		}
		if uint32(chunk) > ch.peerWindow {
			chunk = int(ch.peerWindow)
		}
		if chunk == 0 {
			return
		}
		send := q[:chunk]
		remaining := append([]byte(nil), q[chunk:]...)

		var out []byte
		out = sshproto.PutUint32(out, ch.peerNumber)
		if extended {
			out = sshproto.PutUint32(out, code)
		}
		out = sshproto.PutString(out, send)
		msgType := sshproto.MsgChannelData
		if extended {
			msgType = sshproto.MsgChannelExtendedData
		}
		m.send(sshproto.NewPacket(msgType, out))

		ch.peerWindow -= uint32(chunk)
		if extended {
			ch.extendedQueues[code] = remaining
		} else {
			ch.defaultQueue = remaining
		}
	}
}

// drainQueues drains the default queue, then each extended queue, after a
// window grant. Extended-code iteration order is unspecified.
func (m *Multiplexer) drainQueues(ch *channel) {
	m.drainOneQueue(ch, false, 0)
	codes := make([]uint32, 0, len(ch.extendedQueues))
	for code, q := range ch.extendedQueues {
		if len(q) > 0 {
			codes = append(codes, code)
		}
	}
	for _, code := range codes {
		m.drainOneQueue(ch, true, code)
	}
}
