// Package sshproto implements the wire-level primitives of the SSH binary
// packet protocol: byte encoding, packet framing, and the message-number
// constants defined by RFC 4253/4252/4254.
package sshproto

// Message numbers, RFC 4253 §12 and RFC 4252/4254.
const (
	MsgDisconnect                uint8 = 1
	MsgIgnore                    uint8 = 2
	MsgUnimplemented             uint8 = 3
	MsgDebug                     uint8 = 4
	MsgServiceRequest            uint8 = 5
	MsgServiceAccept             uint8 = 6
	MsgExtInfo                   uint8 = 7
	MsgKexInit                   uint8 = 20
	MsgNewKeys                   uint8 = 21
	MsgKexEcdhInit               uint8 = 30
	MsgKexEcdhReply              uint8 = 31
	MsgUserauthRequest           uint8 = 50
	MsgUserauthFailure           uint8 = 51
	MsgUserauthSuccess           uint8 = 52
	MsgUserauthBanner            uint8 = 53
	MsgUserauthPkOk              uint8 = 60
	MsgGlobalRequest             uint8 = 80
	MsgRequestSuccess            uint8 = 81
	MsgRequestFailure            uint8 = 82
	MsgChannelOpen               uint8 = 90
	MsgChannelOpenConfirmation   uint8 = 91
	MsgChannelOpenFailure        uint8 = 92
	MsgChannelWindowAdjust       uint8 = 93
	MsgChannelData               uint8 = 94
	MsgChannelExtendedData       uint8 = 95
	MsgChannelEOF                uint8 = 96
	MsgChannelClose              uint8 = 97
	MsgChannelRequest            uint8 = 98
	MsgChannelSuccess            uint8 = 99
	MsgChannelFailure            uint8 = 100
)

// Disconnect reason codes, RFC 4253 §11.1.
const (
	DisconnectHostNotAllowedToConnect   uint32 = 1
	DisconnectProtocolError             uint32 = 2
	DisconnectKeyExchangeFailed         uint32 = 3
	DisconnectReserved                  uint32 = 4
	DisconnectMacError                  uint32 = 5
	DisconnectCompressionError          uint32 = 6
	DisconnectServiceNotAvailable       uint32 = 7
	DisconnectProtocolVersionNotSupported uint32 = 8
	DisconnectHostKeyNotVerifiable      uint32 = 9
	DisconnectConnectionLost            uint32 = 10
	DisconnectByApplication             uint32 = 11
	DisconnectTooManyConnections        uint32 = 12
	DisconnectAuthCancelledByUser       uint32 = 13
	DisconnectNoMoreAuthMethodsAvailable uint32 = 14
	DisconnectIllegalUserName           uint32 = 15
)

// Channel-open failure reason codes, RFC 4254 §5.1.
const (
	ChannelOpenAdministrativelyProhibited uint32 = 1
	ChannelOpenConnectFailed              uint32 = 2
	ChannelOpenUnknownChannelType         uint32 = 3
	ChannelOpenResourceShortage           uint32 = 4
)

// Extended-data type codes, RFC 4254 §5.2.
const (
	ExtendedDataStderr uint32 = 1
)

// Algorithm names this implementation offers or accepts.
const (
	KexCurve25519SHA256   = "curve25519-sha256"
	KexEcdhSHA2NistP256   = "ecdh-sha2-nistp256"
	KexExtInfoC           = "ext-info-c"
	KexExtInfoS           = "ext-info-s"

	HostKeyEd25519         = "ssh-ed25519"
	HostKeyEcdsaSHA2NistP256 = "ecdsa-sha2-nistp256"

	CipherChaCha20Poly1305 = "chacha20-poly1305@openssh.com"
	CipherAES256GCM        = "aes256-gcm@openssh.com"

	// MACImplicitAEAD is advertised for compatibility with peers that
	// refuse to negotiate without a MAC list, but is never consulted:
	// both supported ciphers are AEADs with an implicit MAC.
	MACImplicitAEAD = "hmac-sha2-256"

	CompressionNone = "none"
)

// ServerSoftwareID is the identification string substring sent after
// "SSH-2.0-".
const ServerSoftwareID = "sshgatewayd_1.0"
