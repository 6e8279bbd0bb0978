// Package sshnegotiate implements SSH algorithm negotiation: the
// client-preference-first intersection rule applied independently to each
// of the eight KEXINIT preference lists.
package sshnegotiate

import (
	"fmt"

	"github.com/coinstash/sshgatewayd/internal/sshproto"
)

// KexInit mirrors the fields of an SSH_MSG_KEXINIT payload relevant to
// negotiation (the cookie itself plays no negotiation role).
type KexInit struct {
	KexAlgorithms           []string
	ServerHostKeyAlgorithms []string
	EncryptionClientToServer []string
	EncryptionServerToClient []string
	MacClientToServer       []string
	MacServerToClient       []string
	CompressionClientToServer []string
	CompressionServerToClient []string
	LanguagesClientToServer []string
	LanguagesServerToClient []string
	FirstKexPacketFollows  bool
}

// Chosen holds one negotiated algorithm per category.
type Chosen struct {
	Kex              string
	HostKey          string
	EncClientToServer string
	EncServerToClient string
	MacClientToServer string
	MacServerToClient string
	ClientWantsExtInfo bool
	ServerOffersExtInfo bool
}

// Negotiate applies the client-preference-first intersection rule to each
// category: walk the client's list in order, choose the first entry that
// also appears in the server's list. Returns an error naming both lists
// if any category has no common algorithm.
func Negotiate(client, server KexInit) (Chosen, error) {
	var c Chosen
	var err error

	// ext-info-c / ext-info-s are not real algorithms; strip them from the
	// kex list before intersecting, but remember whether the client asked.
	clientKex, clientWantsExtInfo := stripExtInfo(client.KexAlgorithms, sshproto.KexExtInfoC)
	c.ClientWantsExtInfo = clientWantsExtInfo
	c.ServerOffersExtInfo = true

	if c.Kex, err = firstCommon(clientKex, server.KexAlgorithms); err != nil {
		return Chosen{}, fmt.Errorf("kex: %w", err)
	}
	if c.HostKey, err = firstCommon(client.ServerHostKeyAlgorithms, server.ServerHostKeyAlgorithms); err != nil {
		return Chosen{}, fmt.Errorf("server host key: %w", err)
	}
	if c.EncClientToServer, err = firstCommon(client.EncryptionClientToServer, server.EncryptionClientToServer); err != nil {
		return Chosen{}, fmt.Errorf("encryption client-to-server: %w", err)
	}
	if c.EncServerToClient, err = firstCommon(client.EncryptionServerToClient, server.EncryptionServerToClient); err != nil {
		return Chosen{}, fmt.Errorf("encryption server-to-client: %w", err)
	}
	if c.MacClientToServer, err = firstCommon(client.MacClientToServer, server.MacClientToServer); err != nil {
		return Chosen{}, fmt.Errorf("mac client-to-server: %w", err)
	}
	if c.MacServerToClient, err = firstCommon(client.MacServerToClient, server.MacServerToClient); err != nil {
		return Chosen{}, fmt.Errorf("mac server-to-client: %w", err)
	}
	if _, err = firstCommon(client.CompressionClientToServer, server.CompressionClientToServer); err != nil {
		return Chosen{}, fmt.Errorf("compression client-to-server: %w", err)
	}
	if _, err = firstCommon(client.CompressionServerToClient, server.CompressionServerToClient); err != nil {
		return Chosen{}, fmt.Errorf("compression server-to-client: %w", err)
	}
	return c, nil
}

// firstCommon walks client in order, returning the first entry also
// present anywhere in server.
func firstCommon(client, server []string) (string, error) {
	for _, c := range client {
		for _, s := range server {
			if c == s {
				return c, nil
			}
		}
	}
	return "", &sshproto.Error{
		Kind:    sshproto.KindAlgorithmNegotiationFailure,
		Message: fmt.Sprintf("no common algorithm: client=%v server=%v", client, server),
	}
}

func stripExtInfo(list []string, sentinel string) ([]string, bool) {
	found := false
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s == sentinel {
			found = true
			continue
		}
		out = append(out, s)
	}
	return out, found
}

// ServerHostKeyAlgorithms returns the server's offered host key algorithm
// list for the given configured host keys, in preference order.
func ServerHostKeyAlgorithms(available []string) []string {
	return available
}

// ServerKexAlgorithms appends the ext-info-s sentinel to the server's
// offered kex algorithm list, following the reference implementation's
// convention of advertising EXT_INFO support as a pseudo-algorithm rather
// than a separate KEXINIT field.
func ServerKexAlgorithms(supported []string) []string {
	out := make([]string, len(supported), len(supported)+1)
	copy(out, supported)
	return append(out, sshproto.KexExtInfoS)
}
