// Package sshauth implements the ssh-userauth subprotocol: none, password,
// and publickey authentication methods, attempt capping, and banner
// delivery. Verification itself is delegated to host callbacks; this
// package only drives the message exchange.
package sshauth

import (
	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// DefaultMaxAttempts is the attempt cap applied when policy does not
// override it.
const DefaultMaxAttempts = 20

// RequestKind enumerates the outbound verification requests the state
// machine can surface to the host. The host answers asynchronously by
// calling the matching Resolve* method.
type RequestKind uint8

const (
	RequestVerifyPassword RequestKind = iota
	RequestCheckPublicKey
	RequestVerifySignature
)

// Request is one pending host-callback request.
type Request struct {
	Kind RequestKind

	User    string
	Service string

	Password string // RequestVerifyPassword

	Algorithm string // RequestCheckPublicKey, RequestVerifySignature
	PubKeyBlob []byte

	Signature []byte // RequestVerifySignature
	SignedData []byte // RequestVerifySignature: canonical blob that was signed
}

// OutcomeKind enumerates what the state machine produced for the driver to
// act on after processing one inbound packet or one resolved request.
type OutcomeKind uint8

const (
	OutcomeNone OutcomeKind = iota
	OutcomeRequest                // a Request is pending; dispatch it to the host
	OutcomeSuccess                 // authentication succeeded; transition to Open
	OutcomeDisconnect               // attempt cap exceeded; fatal
)

// Outcome is returned by every State method.
type Outcome struct {
	Kind    OutcomeKind
	Request *Request
}

// Policy configures the state machine's behavior.
type Policy struct {
	MaxAttempts int
	Banner      string
	// Methods lists the auth methods offered in USERAUTH_FAILURE, in
	// preference order. Must be non-empty and a subset of
	// {"publickey","password","none"}... "none" is never listed as an
	// offered retry method (it is only ever the client's first probe).
	Methods []string
}

// State is the per-connection ssh-userauth state machine.
type State struct {
	policy            Policy
	attempts          int
	bannerSent        bool
	sessionID         []byte
	authenticatedUser string

	outbound []sshproto.Packet
}

// NewState creates a userauth state machine bound to a frozen session id
// (used to build the canonical publickey signing blob).
func NewState(policy Policy, sessionID []byte) *State {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if len(policy.Methods) == 0 {
		policy.Methods = []string{"publickey", "password"}
	}
	return &State{policy: policy, sessionID: sessionID}
}

// AuthenticatedUser returns the username once authentication has succeeded.
func (s *State) AuthenticatedUser() string { return s.authenticatedUser }

// NextPacketToSend pops the next outbound packet, if any, the same way
// sshchannel.Multiplexer does.
func (s *State) NextPacketToSend() (sshproto.Packet, bool) {
	if len(s.outbound) == 0 {
		return sshproto.Packet{}, false
	}
	p := s.outbound[0]
	s.outbound = s.outbound[1:]
	return p, true
}

func (s *State) send(p sshproto.Packet) { s.outbound = append(s.outbound, p) }

// SendBannerIfConfigured queues SSH_MSG_USERAUTH_BANNER once, if a banner
// is configured. Called by the transport state machine right after
// SERVICE_ACCEPT.
func (s *State) SendBannerIfConfigured() {
	if s.bannerSent || s.policy.Banner == "" {
		return
	}
	s.bannerSent = true
	var out []byte
	out = sshproto.PutUTF8String(out, s.policy.Banner)
	out = sshproto.PutUTF8String(out, "")
	s.send(sshproto.NewPacket(sshproto.MsgUserauthBanner, out))
}
