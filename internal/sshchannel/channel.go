// Package sshchannel implements the ssh-connection channel multiplexer:
// per-channel open/close handshakes, two independent sliding-window flow
// control loops, data chunking and queueing, and the request vocabulary
// used by interactive sessions (pty-req, shell, exec, subsystem, env,
// signal, exit-status).
package sshchannel

import (
	"github.com/coinstash/sshgatewayd/internal/sshmetrics"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// Default policy values, matching the reference implementation.
const (
	DefaultInitialWindow   = 2 * 1024 * 1024
	DefaultMaxPacketSize   = 32 * 1024
	DefaultRefillThreshold = 1000
)

type channelState uint8

const (
	stateAwaitingConfirmation channelState = iota
	stateOpen
)

// channel is the multiplexer's internal per-channel record.
type channel struct {
	state channelState

	localNumber uint32
	peerNumber  uint32

	peerWindow    uint32
	peerMaxPacket uint32

	ourWindow        uint32
	ourInitialWindow uint32
	ourMaxPacket     uint32

	weClosed bool

	defaultQueue   []byte
	extendedQueues map[uint32][]byte
}

// UpdateKind enumerates the events the multiplexer surfaces to the host.
type UpdateKind uint8

const (
	UpdateOpen UpdateKind = iota
	UpdateOpenFailed
	UpdateData
	UpdateExtendedData
	UpdateRequest
	UpdateEof
	UpdateClosed
)

// RequestKind enumerates recognized CHANNEL_REQUEST types.
type RequestKind uint8

const (
	RequestPtyReq RequestKind = iota
	RequestShell
	RequestExec
	RequestSubsystem
	RequestEnv
	RequestSignal
	RequestExitStatus
	RequestUnknown
)

// Request describes one CHANNEL_REQUEST presented to the host.
type Request struct {
	Kind      RequestKind
	Type      string // raw request-type string, always set
	WantReply bool

	// pty-req
	Term                               string
	WidthChars, HeightRows             uint32
	WidthPixels, HeightPixels          uint32
	Modes                              []byte

	// exec
	Command string

	// subsystem
	Name string

	// env
	EnvName, EnvValue string

	// signal
	SignalName string

	// exit-status (outbound-only; never parsed from an inbound request,
	// populated only when reflecting host-issued state to a test)
	ExitStatus uint32
}

// Update is one event the multiplexer emits to the host, ordered per
// channel as: Open first, then zero or more of Data/ExtendedData/Request/
// Eof, then exactly one Closed.
type Update struct {
	Channel uint32
	Kind    UpdateKind

	OpenFailedMessage string
	OpenType          string // "session" for a peer-initiated Open

	Data         []byte
	ExtendedCode uint32

	Request *Request
}

// OperationKind enumerates the operations the host may issue on a channel.
type OperationKind uint8

const (
	OpData OperationKind = iota
	OpExtendedData
	OpRequest
	OpSuccess
	OpFailure
	OpEof
	OpClose
	OpOpen
)

// Operation is one host-issued action on a channel (or, for OpOpen, a
// request to open a new outbound channel — the vestigial client path).
type Operation struct {
	Channel uint32
	Kind    OperationKind

	Data         []byte
	ExtendedCode uint32

	RequestType    string
	WantReply      bool
	RequestPayload []byte // pre-encoded type-specific request payload

	// OpOpen fields
	OpenChannelType      string
	OpenInitialWindow    uint32
	OpenMaxPacketSize    uint32
}

// Multiplexer is the per-connection channel table plus inbound/outbound
// packet queues. It performs no I/O: HandlePacket/DoOperation mutate state
// and append to internal queues; the session driver drains
// NextPacketToSend and NextUpdate.
type Multiplexer struct {
	channels  map[uint32]*channel
	nextLocal uint32

	initialWindow   uint32
	maxPacketSize   uint32
	refillThreshold uint32

	outbound []sshproto.Packet
	updates  []Update

	metrics *sshmetrics.Metrics
}

// NewMultiplexer creates an empty channel table using the given default
// window/max-packet policy for locally-initiated and locally-advertised
// channel parameters.
func NewMultiplexer(initialWindow, maxPacketSize uint32) *Multiplexer {
	if initialWindow == 0 {
		initialWindow = DefaultInitialWindow
	}
	if maxPacketSize == 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	return &Multiplexer{
		channels:        make(map[uint32]*channel),
		initialWindow:   initialWindow,
		maxPacketSize:   maxPacketSize,
		refillThreshold: DefaultRefillThreshold,
	}
}

// NextPacketToSend pops the next outbound packet, if any.
func (m *Multiplexer) NextPacketToSend() (sshproto.Packet, bool) {
	if len(m.outbound) == 0 {
		return sshproto.Packet{}, false
	}
	p := m.outbound[0]
	m.outbound = m.outbound[1:]
	return p, true
}

// NextUpdate pops the next host-facing update, if any.
func (m *Multiplexer) NextUpdate() (Update, bool) {
	if len(m.updates) == 0 {
		return Update{}, false
	}
	u := m.updates[0]
	m.updates = m.updates[1:]
	return u, true
}

func (m *Multiplexer) send(p sshproto.Packet) { m.outbound = append(m.outbound, p) }
func (m *Multiplexer) emit(u Update)          { m.updates = append(m.updates, u) }

// SetMetrics attaches the Prometheus counters this multiplexer reports
// channel-open and channel-byte activity to. Nil-safe: a Multiplexer with
// no metrics attached (the default, and every test's NewMultiplexer) simply
// doesn't record.
func (m *Multiplexer) SetMetrics(metrics *sshmetrics.Metrics) {
	m.metrics = metrics
}

func (m *Multiplexer) allocateLocalNumber() (uint32, error) {
	if m.nextLocal == 0xFFFFFFFF {
		return 0, sshproto.NewError(sshproto.KindInternalLimit, "channel number space exhausted")
	}
	n := m.nextLocal
	m.nextLocal++
	return n, nil
}

// HandlePacket dispatches one inbound ssh-connection packet. A packet type
// with no meaning in the channel layer is a protocol violation, and
// CHANNEL_SUCCESS/CHANNEL_FAILURE are accepted without effect. Global
// requests are always answered with REQUEST_FAILURE; a "signal" channel
// request is ignored without a reply even when want_reply is set.
func (m *Multiplexer) HandlePacket(p sshproto.Packet) error {
	switch p.Type {
	case sshproto.MsgGlobalRequest:
		return m.handleGlobalRequest(p.Payload)
	case sshproto.MsgChannelOpen:
		return m.handleChannelOpen(p.Payload)
	case sshproto.MsgChannelOpenConfirmation:
		return m.handleChannelOpenConfirmation(p.Payload)
	case sshproto.MsgChannelOpenFailure:
		return m.handleChannelOpenFailure(p.Payload)
	case sshproto.MsgChannelWindowAdjust:
		return m.handleWindowAdjust(p.Payload)
	case sshproto.MsgChannelData:
		return m.handleData(p.Payload, false, 0)
	case sshproto.MsgChannelExtendedData:
		code, rest, err := sshproto.ReadUint32(p.Payload)
		if err != nil {
			return err
		}
		return m.handleData(rest, true, code)
	case sshproto.MsgChannelEOF:
		return m.handleEOF(p.Payload)
	case sshproto.MsgChannelClose:
		return m.handleClose(p.Payload)
	case sshproto.MsgChannelRequest:
		return m.handleRequest(p.Payload)
	case sshproto.MsgChannelSuccess:
		return nil // host-initiated requests are out of scope for the server role
	case sshproto.MsgChannelFailure:
		return nil
	default:
		return sshproto.NewError(sshproto.KindPeerProtocolViolation, "unexpected packet type in channel layer")
	}
}

func (m *Multiplexer) handleGlobalRequest(payload []byte) error {
	_, rest, err := sshproto.ReadUTF8String(payload)
	if err != nil {
		return err
	}
	if _, _, err := sshproto.ReadBool(rest); err != nil {
		return err
	}
	m.send(sshproto.NewPacket(sshproto.MsgRequestFailure, nil))
	return nil
}

func (m *Multiplexer) lookupOpen(localNumber uint32) (*channel, error) {
	ch, ok := m.channels[localNumber]
	if !ok || ch.state != stateOpen {
		return nil, sshproto.NewError(sshproto.KindChannelUnknown, "unknown or unopened channel")
	}
	return ch, nil
}
