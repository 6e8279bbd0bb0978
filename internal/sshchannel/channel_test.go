package sshchannel

import (
	"testing"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

func openChannelPacket(peerNumber, peerWindow, peerMaxPacket uint32) sshproto.Packet {
	var out []byte
	out = sshproto.PutUTF8String(out, "session")
	out = sshproto.PutUint32(out, peerNumber)
	out = sshproto.PutUint32(out, peerWindow)
	out = sshproto.PutUint32(out, peerMaxPacket)
	return sshproto.NewPacket(sshproto.MsgChannelOpen, out)
}

func dataPacket(local uint32, data []byte) sshproto.Packet {
	var out []byte
	out = sshproto.PutUint32(out, local)
	out = sshproto.PutString(out, data)
	return sshproto.NewPacket(sshproto.MsgChannelData, out)
}

// openSessionChannel drives one peer-initiated "session" CHANNEL_OPEN
// through the multiplexer and returns the local channel number assigned.
func openSessionChannel(t *testing.T, m *Multiplexer, peerNumber uint32) uint32 {
	t.Helper()
	if err := m.HandlePacket(openChannelPacket(peerNumber, DefaultInitialWindow, DefaultMaxPacketSize)); err != nil {
		t.Fatalf("HandlePacket(open): %v", err)
	}
	p, ok := m.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgChannelOpenConfirmation {
		t.Fatalf("expected CHANNEL_OPEN_CONFIRMATION, got %+v ok=%v", p, ok)
	}
	_, rest, err := sshproto.ReadUint32(p.Payload) // peer's own channel number, echoed back first
	if err != nil {
		t.Fatal(err)
	}
	local, _, err := sshproto.ReadUint32(rest)
	if err != nil {
		t.Fatal(err)
	}

	u, ok := m.NextUpdate()
	if !ok || u.Kind != UpdateOpen {
		t.Fatalf("expected UpdateOpen, got %+v ok=%v", u, ok)
	}
	return local
}

func TestOpenSessionChannelScenario(t *testing.T) {
	m := NewMultiplexer(0, 0)
	local := openSessionChannel(t, m, 42)
	if local != 0 {
		t.Fatalf("first local channel number = %d, want 0", local)
	}
}

func TestChannelOrderingOpenThenDataThenClose(t *testing.T) {
	m := NewMultiplexer(0, 0)
	local := openSessionChannel(t, m, 7)

	if err := m.HandlePacket(dataPacket(local, []byte("hello"))); err != nil {
		t.Fatal(err)
	}
	u, ok := m.NextUpdate()
	if !ok || u.Kind != UpdateData || string(u.Data) != "hello" {
		t.Fatalf("expected UpdateData \"hello\", got %+v ok=%v", u, ok)
	}

	var closePayload []byte
	closePayload = sshproto.PutUint32(closePayload, local)
	if err := m.HandlePacket(sshproto.NewPacket(sshproto.MsgChannelClose, closePayload)); err != nil {
		t.Fatal(err)
	}
	u, ok = m.NextUpdate()
	if !ok || u.Kind != UpdateClosed {
		t.Fatalf("expected UpdateClosed, got %+v ok=%v", u, ok)
	}
}

// windowAdjustOnPeer exercises flow control on data flowing toward the
// peer: fill the send queue beyond the peer's advertised window and
// confirm only the window's worth is sent, then confirm the remainder
// drains once a WINDOW_ADJUST arrives.
func TestWindowAdjustOnPeerQueuesRemainder(t *testing.T) {
	// A peer who grants a tiny window at open time forces outbound data to
	// queue and drain incrementally as WINDOW_ADJUST grants arrive.
	m2 := NewMultiplexer(0, 0)
	if err := m2.HandlePacket(openChannelPacket(1, 10, 1024)); err != nil {
		t.Fatal(err)
	}
	p, ok := m2.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgChannelOpenConfirmation {
		t.Fatal("expected confirmation")
	}
	_, restP, _ := sshproto.ReadUint32(p.Payload)
	local2, _, _ := sshproto.ReadUint32(restP)
	m2.NextUpdate()

	payload := []byte("0123456789ABCDEF") // 16 bytes, window is 10
	if err := m2.DoOperation(Operation{Channel: local2, Kind: OpData, Data: payload}); err != nil {
		t.Fatal(err)
	}
	sent, ok := m2.NextPacketToSend()
	if !ok || sent.Type != sshproto.MsgChannelData {
		t.Fatalf("expected partial CHANNEL_DATA, got %+v ok=%v", sent, ok)
	}
	_, rest, _ := sshproto.ReadUint32(sent.Payload)
	chunk, _, _ := sshproto.ReadString(rest)
	if len(chunk) != 10 {
		t.Fatalf("first chunk = %d bytes, want 10 (peer window)", len(chunk))
	}
	if _, ok := m2.NextPacketToSend(); ok {
		t.Fatal("expected no further packets until window grant")
	}

	var adjust []byte
	adjust = sshproto.PutUint32(adjust, local2)
	adjust = sshproto.PutUint32(adjust, 100)
	if err := m2.HandlePacket(sshproto.NewPacket(sshproto.MsgChannelWindowAdjust, adjust)); err != nil {
		t.Fatal(err)
	}
	sent2, ok := m2.NextPacketToSend()
	if !ok || sent2.Type != sshproto.MsgChannelData {
		t.Fatalf("expected remainder CHANNEL_DATA after window grant, got %+v ok=%v", sent2, ok)
	}
	_, rest2, _ := sshproto.ReadUint32(sent2.Payload)
	chunk2, _, _ := sshproto.ReadString(rest2)
	if len(chunk2) != 6 {
		t.Fatalf("second chunk = %d bytes, want 6 (the remainder)", len(chunk2))
	}
}

// inboundWindowRefill exercises flow control on data flowing from the
// peer: consuming enough of our own advertised window triggers a
// WINDOW_ADJUST back to the peer once the threshold is crossed.
func TestInboundWindowRefill(t *testing.T) {
	m := NewMultiplexer(2048, 1024)
	local := openSessionChannel(t, m, 3)

	big := make([]byte, 1024)
	chunks := 0
	for {
		if err := m.HandlePacket(dataPacket(local, big)); err != nil {
			t.Fatalf("chunk %d: %v", chunks, err)
		}
		m.NextUpdate()
		chunks++
		if p, ok := m.NextPacketToSend(); ok {
			if p.Type != sshproto.MsgChannelWindowAdjust {
				t.Fatalf("expected WINDOW_ADJUST, got %v", p.Type)
			}
			break
		}
		if chunks > 10 {
			t.Fatal("window never refilled")
		}
	}
}

func TestIdempotentCloseIsANoOp(t *testing.T) {
	m := NewMultiplexer(0, 0)
	local := openSessionChannel(t, m, 9)

	if err := m.DoOperation(Operation{Channel: local, Kind: OpClose}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.NextPacketToSend(); !ok {
		t.Fatal("expected a CHANNEL_CLOSE to be sent")
	}
	if err := m.DoOperation(Operation{Channel: local, Kind: OpClose}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.NextPacketToSend(); ok {
		t.Fatal("second Close must not send anything")
	}
}

func TestPostCloseSilenceDropsFurtherOperations(t *testing.T) {
	m := NewMultiplexer(0, 0)
	local := openSessionChannel(t, m, 11)

	if err := m.DoOperation(Operation{Channel: local, Kind: OpClose}); err != nil {
		t.Fatal(err)
	}
	m.NextPacketToSend()

	if err := m.DoOperation(Operation{Channel: local, Kind: OpData, Data: []byte("too late")}); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.NextPacketToSend(); ok {
		t.Fatal("operations after our own Close must be silently dropped")
	}
}

func TestInteractivePtySessionRequestSequence(t *testing.T) {
	m := NewMultiplexer(0, 0)
	local := openSessionChannel(t, m, 5)

	var pty []byte
	pty = sshproto.PutUint32(pty, local)
	pty = sshproto.PutUTF8String(pty, "pty-req")
	pty = sshproto.PutBool(pty, true)
	pty = sshproto.PutUTF8String(pty, "xterm")
	pty = sshproto.PutUint32(pty, 80)
	pty = sshproto.PutUint32(pty, 24)
	pty = sshproto.PutUint32(pty, 0)
	pty = sshproto.PutUint32(pty, 0)
	pty = sshproto.PutString(pty, nil)
	if err := m.HandlePacket(sshproto.NewPacket(sshproto.MsgChannelRequest, pty)); err != nil {
		t.Fatal(err)
	}
	u, ok := m.NextUpdate()
	if !ok || u.Kind != UpdateRequest || u.Request.Kind != RequestPtyReq || u.Request.Term != "xterm" {
		t.Fatalf("expected pty-req update, got %+v ok=%v", u, ok)
	}
	if err := m.DoOperation(Operation{Channel: local, Kind: OpSuccess}); err != nil {
		t.Fatal(err)
	}
	if p, ok := m.NextPacketToSend(); !ok || p.Type != sshproto.MsgChannelSuccess {
		t.Fatalf("expected CHANNEL_SUCCESS, got %+v ok=%v", p, ok)
	}

	var shell []byte
	shell = sshproto.PutUint32(shell, local)
	shell = sshproto.PutUTF8String(shell, "shell")
	shell = sshproto.PutBool(shell, true)
	if err := m.HandlePacket(sshproto.NewPacket(sshproto.MsgChannelRequest, shell)); err != nil {
		t.Fatal(err)
	}
	u, ok = m.NextUpdate()
	if !ok || u.Kind != UpdateRequest || u.Request.Kind != RequestShell {
		t.Fatalf("expected shell update, got %+v ok=%v", u, ok)
	}

	if err := m.DoOperation(Operation{Channel: local, Kind: OpData, Data: []byte("$ ")}); err != nil {
		t.Fatal(err)
	}
	if p, ok := m.NextPacketToSend(); !ok || p.Type != sshproto.MsgChannelData {
		t.Fatalf("expected CHANNEL_DATA, got %+v ok=%v", p, ok)
	}

	exitPayload := EncodeExitStatusPayload(0)
	if err := m.DoOperation(Operation{
		Channel: local, Kind: OpRequest, RequestType: "exit-status", WantReply: false, RequestPayload: exitPayload,
	}); err != nil {
		t.Fatal(err)
	}
	if p, ok := m.NextPacketToSend(); !ok || p.Type != sshproto.MsgChannelRequest {
		t.Fatalf("expected exit-status CHANNEL_REQUEST, got %+v ok=%v", p, ok)
	}
}

func TestDataExceedingAdvertisedWindowIsRejected(t *testing.T) {
	m := NewMultiplexer(4, 1024)
	local := openSessionChannel(t, m, 1)

	if err := m.HandlePacket(dataPacket(local, []byte("too many bytes"))); err == nil {
		t.Fatal("expected window underflow error")
	}
}

func TestSignalRequestIsSilentlyIgnored(t *testing.T) {
	m := NewMultiplexer(0, 0)
	local := openSessionChannel(t, m, 1)

	var sig []byte
	sig = sshproto.PutUint32(sig, local)
	sig = sshproto.PutUTF8String(sig, "signal")
	sig = sshproto.PutBool(sig, false)
	sig = sshproto.PutUTF8String(sig, "TERM")
	if err := m.HandlePacket(sshproto.NewPacket(sshproto.MsgChannelRequest, sig)); err != nil {
		t.Fatal(err)
	}
	if _, ok := m.NextUpdate(); ok {
		t.Fatal("signal requests must not surface an update")
	}
	if _, ok := m.NextPacketToSend(); ok {
		t.Fatal("signal requests must never receive a reply")
	}
}

func globalRequestPacket(wantReply bool) sshproto.Packet {
	var out []byte
	out = sshproto.PutUTF8String(out, "hostkeys-prove-00@openssh.com")
	out = sshproto.PutBool(out, wantReply)
	return sshproto.NewPacket(sshproto.MsgGlobalRequest, out)
}

func TestGlobalRequestAlwaysAnsweredWithRequestFailure(t *testing.T) {
	m := NewMultiplexer(0, 0)

	if err := m.HandlePacket(globalRequestPacket(true)); err != nil {
		t.Fatal(err)
	}
	p, ok := m.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgRequestFailure {
		t.Fatalf("want_reply=true: expected REQUEST_FAILURE, got %+v ok=%v", p, ok)
	}
}

func TestGlobalRequestAnsweredEvenWithoutWantReply(t *testing.T) {
	m := NewMultiplexer(0, 0)

	if err := m.HandlePacket(globalRequestPacket(false)); err != nil {
		t.Fatal(err)
	}
	p, ok := m.NextPacketToSend()
	if !ok || p.Type != sshproto.MsgRequestFailure {
		t.Fatalf("want_reply=false: expected REQUEST_FAILURE unconditionally, got %+v ok=%v", p, ok)
	}
}
