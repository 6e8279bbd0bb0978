// Package sshtransport implements the transport state machine (protocol
// identification exchange, KEXINIT, ECDH key exchange, NEWKEYS, service
// request, and authentication hand-off) and the session driver that pumps
// bytes between a net.Conn and the core protocol engines.
package sshtransport

import (
	"github.com/coinstash/sshgatewayd/internal/sshauth"
	"github.com/coinstash/sshgatewayd/internal/sshchannel"
	"github.com/coinstash/sshgatewayd/internal/sshcipher"
	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
	"github.com/coinstash/sshgatewayd/internal/sshkex"
	"github.com/coinstash/sshgatewayd/internal/sshmetrics"
	"github.com/coinstash/sshgatewayd/internal/sshnegotiate"
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// State enumerates the connection-level phases, matching the data model's
// strictly-forward transitions (save for rekeying, which loops from Open
// back through KeyExchangeInit to Open, preserving the channel table).
type State uint8

const (
	StateProtoExchange State = iota
	StateKeyExchangeInit
	StateEcdhInit
	StateAwaitingKexSignature
	StateNewKeys
	StateServiceRequest
	StateAuthenticating
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateProtoExchange:
		return "ProtoExchange"
	case StateKeyExchangeInit:
		return "KeyExchangeInit"
	case StateEcdhInit:
		return "EcdhInit"
	case StateAwaitingKexSignature:
		return "AwaitingKexSignature"
	case StateNewKeys:
		return "NewKeys"
	case StateServiceRequest:
		return "ServiceRequest"
	case StateAuthenticating:
		return "Authenticating"
	case StateOpen:
		return "Open"
	default:
		return "Unknown"
	}
}

// Policy configures per-connection behavior. Zero values fall back to the
// defaults named in SPEC_FULL.md §13.
type Policy struct {
	MaxAuthAttempts    int
	InitialWindow      uint32
	MaxPacketSize      uint32
	RekeyAfterBytes    uint64
	RekeyAfterInterval int64 // nanoseconds; not consulted by Server or Driver
	AuthBanner         string
}

// KexParams is everything the host needs to complete a key exchange: the
// chosen algorithms, both identification strings, both raw KEXINIT
// payloads (needed verbatim for the exchange hash), and the client's
// ephemeral public value.
type KexParams struct {
	KexAlgorithm     string
	HostKeyAlgorithm string
	ClientIdent      string
	ServerIdent      string
	ClientKexInit    []byte
	ServerKexInit    []byte
	ClientEphemeral  []byte
}

// KexResponse is the host's answer to a KexParams request: the server's
// ephemeral public value, the resulting exchange hash, the shared secret,
// and the signature over the exchange hash.
type KexResponse struct {
	ServerEphemeral []byte
	ExchangeHash    []byte
	SharedSecret    []byte
	Signature       []byte
	HostKeyBlob     []byte
}

// HostKeys is the set of host identities offered for negotiation, keyed by
// their ssh wire algorithm name.
type HostKeys struct {
	keys map[string]sshhostkey.HostKey
}

// NewHostKeys builds a HostKeys set. The order of the supplied slice is not
// kept: AlgorithmNames returns the names in map iteration order.
func NewHostKeys(keys []sshhostkey.HostKey) *HostKeys {
	h := &HostKeys{keys: make(map[string]sshhostkey.HostKey, len(keys))}
	for _, k := range keys {
		h.keys[string(k.Algorithm())] = k
	}
	return h
}

// AlgorithmNames returns the offered server-host-key-algorithms list.
func (h *HostKeys) AlgorithmNames() []string {
	names := make([]string, 0, len(h.keys))
	for name := range h.keys {
		names = append(names, name)
	}
	return names
}

func (h *HostKeys) get(algo string) (sshhostkey.HostKey, bool) {
	k, ok := h.keys[algo]
	return k, ok
}

// Server is the synchronous, non-blocking core: transport state machine,
// authentication subprotocol, and channel multiplexer wired together. It
// performs no I/O; the identification line goes in via FeedIdentBytes and
// decoded packets via HandlePacket, packets/requests come out via the
// Next* accessors, matching sshchannel.Multiplexer's own queue-draining
// shape.
type Server struct {
	state State

	framer   *sshproto.Framer
	hostKeys *HostKeys
	policy   Policy

	serverIdent     string
	clientIdent     string
	identBuf        []byte
	identLineQueued []byte
	identLineSent   bool

	negotiatedKex     sshnegotiate.Chosen
	clientKexInitRaw  []byte
	serverKexInitRaw  []byte
	clientWantsExtInfo bool
	mayReceiveExtInfo bool // client may still send EXT_INFO (ServiceRequest state, once)

	ephemeral sshkex.EphemeralKeypair
	kexMethod sshkex.Method

	sessionID []byte // frozen at first NEWKEYS; unchanged across rekeys
	rekeying  bool

	pendingRekey *sshcipher.SessionKeys // computed keys awaiting NEWKEYS installation
	sentNewKeys  bool                   // our own NEWKEYS has been queued for the current (re)key exchange

	auth     *sshauth.State
	channels *sshchannel.Multiplexer

	outbound []sshproto.Packet

	pendingKex  *KexParams       // set while state == AwaitingKexSignature
	pendingAuth *sshauth.Request // set while a userauth host callback is outstanding

	disconnected bool
	disconnectReason uint32
	disconnectMessage string
}

// NewServer creates a Server ready to receive the client's identification
// line.
func NewServer(hostKeys *HostKeys, policy Policy) *Server {
	if policy.MaxAuthAttempts == 0 {
		policy.MaxAuthAttempts = sshauth.DefaultMaxAttempts
	}
	if policy.InitialWindow == 0 {
		policy.InitialWindow = sshchannel.DefaultInitialWindow
	}
	if policy.MaxPacketSize == 0 {
		policy.MaxPacketSize = sshchannel.DefaultMaxPacketSize
	}
	s := &Server{
		state:       StateProtoExchange,
		framer:      sshproto.NewFramer(sshcipher.Plaintext{}),
		hostKeys:    hostKeys,
		policy:      policy,
		serverIdent: "SSH-2.0-" + sshproto.ServerSoftwareID,
		channels:    sshchannel.NewMultiplexer(policy.InitialWindow, policy.MaxPacketSize),
	}
	s.queueIdentLine()
	return s
}

// State returns the current connection-level state.
func (s *Server) State() State { return s.state }

// IsOpen reports whether the connection has completed authentication.
func (s *Server) IsOpen() bool { return s.state == StateOpen }

// IsWaitingOnKeyExchange reports whether a KexParams request is pending a
// host DoKeyExchange call.
func (s *Server) IsWaitingOnKeyExchange() (*KexParams, bool) {
	if s.state == StateAwaitingKexSignature {
		return s.pendingKex, true
	}
	return nil, false
}

// Disconnected reports whether the connection has been torn down, and why.
func (s *Server) Disconnected() (bool, uint32, string) {
	return s.disconnected, s.disconnectReason, s.disconnectMessage
}

func (s *Server) send(p sshproto.Packet) { s.outbound = append(s.outbound, p) }

// NextPacketToSend pops the next outbound plaintext packet. The caller
// (driver) is responsible for framing it through Framer.Send and writing
// the resulting bytes.
func (s *Server) NextPacketToSend() (sshproto.Packet, bool) {
	if len(s.outbound) == 0 {
		return sshproto.Packet{}, false
	}
	p := s.outbound[0]
	s.outbound = s.outbound[1:]
	return p, true
}

// Channels exposes the channel multiplexer once the connection is Open
// (nil beforehand — channel operations before Open are a host bug).
func (s *Server) Channels() *sshchannel.Multiplexer {
	if s.state != StateOpen {
		return nil
	}
	return s.channels
}

// SetMetrics attaches the Prometheus counters the channel multiplexer
// reports channel-open and channel-byte activity to.
func (s *Server) SetMetrics(metrics *sshmetrics.Metrics) {
	s.channels.SetMetrics(metrics)
}

// Auth exposes the userauth state machine while authenticating.
func (s *Server) Auth() *sshauth.State {
	if s.state != StateAuthenticating {
		return nil
	}
	return s.auth
}

// disconnect marks the connection fatally terminated with the given
// sshproto.Error, queues an outbound SSH_MSG_DISCONNECT (best-effort: the
// driver may fail to flush it), and returns the same error to the caller.
func (s *Server) disconnect(err *sshproto.Error) error {
	s.disconnected = true
	s.disconnectReason = err.Kind.DisconnectReason()
	s.disconnectMessage = err.Message
	var out []byte
	out = sshproto.PutUint32(out, s.disconnectReason)
	out = sshproto.PutUTF8String(out, err.Message)
	out = sshproto.PutUTF8String(out, "")
	s.send(sshproto.NewPacket(sshproto.MsgDisconnect, out))
	return err
}
