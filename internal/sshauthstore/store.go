// Package sshauthstore is a simple config-driven credential store for
// ssh-userauth password and public-key verification: the reference
// implementation of the authentication provider SPEC_FULL.md names as a
// collaborator external to the transport core, in the same way the
// PTY/exec host that consumes channel data is named but not built here.
package sshauthstore

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
)

// Store holds per-user credentials: a bcrypt password hash and a set of
// authorized public keys, mirroring the teacher's socks5.HashedCredentials
// shape but keyed by username with two credential kinds instead of one.
type Store struct {
	passwordHashes map[string]string
	authorizedKeys map[string][][]byte
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		passwordHashes: make(map[string]string),
		authorizedKeys: make(map[string][][]byte),
	}
}

// SetPasswordHash registers user's bcrypt password hash, overwriting any
// previous one.
func (s *Store) SetPasswordHash(user, bcryptHash string) {
	s.passwordHashes[user] = bcryptHash
}

// AddAuthorizedKeyLine parses one OpenSSH authorized_keys-format line
// ("algo base64blob [comment]") and adds the key to user's set. Blank
// lines and "#"-prefixed comments are ignored. The base64 payload is
// already the wire public-key blob format sshhostkey.VerifySignature
// expects, so no additional decoding step is needed.
func (s *Store) AddAuthorizedKeyLine(user, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("sshauthstore: malformed authorized_keys line for %s", user)
	}
	blob, err := base64.StdEncoding.DecodeString(fields[1])
	if err != nil {
		return fmt.Errorf("sshauthstore: decode key material for %s: %w", user, err)
	}
	s.authorizedKeys[user] = append(s.authorizedKeys[user], blob)
	return nil
}

// LoadAuthorizedKeys parses every line of an authorized_keys-format file
// body for user.
func (s *Store) LoadAuthorizedKeys(user string, data []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if err := s.AddAuthorizedKeyLine(user, scanner.Text()); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// dummyHash is compared against when the username is unknown, so a
// missing account and a wrong password take the same amount of time.
var dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// ValidPassword reports whether password is user's registered password.
func (s *Store) ValidPassword(user, password string) bool {
	hash, ok := s.passwordHashes[user]
	if !ok {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HasAuthorizedKey reports whether blob is one of user's authorized keys.
func (s *Store) HasAuthorizedKey(user string, blob []byte) bool {
	for _, k := range s.authorizedKeys[user] {
		if bytes.Equal(k, blob) {
			return true
		}
	}
	return false
}

// VerifySignature reports whether blob is authorized for user and
// signature is a valid signature over signedData under that key.
func (s *Store) VerifySignature(user string, pubKeyBlob, signature, signedData []byte) (bool, error) {
	if !s.HasAuthorizedKey(user, pubKeyBlob) {
		return false, nil
	}
	return sshhostkey.VerifySignature(pubKeyBlob, signature, signedData)
}
