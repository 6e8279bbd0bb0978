package sshauthstore

import (
	"context"

	"github.com/coinstash/sshgatewayd/internal/sshtransport"
)

// Callbacks adapts a Store and a host key set into sshtransport.HostCallbacks,
// the implementation cmd/sshgatewayd wires into every sshtransport.Listener
// it starts. One Callbacks is shared across all connections; Store's
// methods are read-only map lookups plus bcrypt, both safe for concurrent
// use without external locking.
type Callbacks struct {
	HostKeys *sshtransport.HostKeys
	Store    *Store
}

func (c *Callbacks) SignKex(ctx context.Context, params sshtransport.KexParams) (sshtransport.KexResponse, error) {
	return sshtransport.SignKex(c.HostKeys, params)
}

func (c *Callbacks) VerifyPassword(ctx context.Context, user, service, password string) (bool, error) {
	return c.Store.ValidPassword(user, password), nil
}

func (c *Callbacks) CheckPublicKey(ctx context.Context, user, service, algo string, pubKeyBlob []byte) (bool, error) {
	return c.Store.HasAuthorizedKey(user, pubKeyBlob), nil
}

func (c *Callbacks) VerifySignature(ctx context.Context, user, service, algo string, pubKeyBlob, signature, signedData []byte) (bool, error) {
	return c.Store.VerifySignature(user, pubKeyBlob, signature, signedData)
}
