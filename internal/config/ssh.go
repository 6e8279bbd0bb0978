package config

import (
	"fmt"
	"os"
	"time"

	"github.com/coinstash/sshgatewayd/internal/sshauthstore"
	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
	"github.com/coinstash/sshgatewayd/internal/sshtransport"
)

// SSHConfig configures the SSH v2 server: the listener, its host key
// material, per-connection policy, connection-attempt rate limiting, and
// the reference userauth credential store.
type SSHConfig struct {
	ListenAddr        string `yaml:"listen_addr"`
	ControlSocketPath string `yaml:"control_socket_path"`

	HostKeys []SSHHostKeyConfig `yaml:"host_keys"`

	Policy    SSHPolicyConfig    `yaml:"policy"`
	RateLimit SSHRateLimitConfig `yaml:"rate_limit"`
	Auth      SSHAuthConfig      `yaml:"auth"`
}

// hostKeyAlgorithmWireNames maps the short, config-friendly algorithm name
// to the wire algorithm identifier sshhostkey uses.
var hostKeyAlgorithmWireNames = map[string]sshhostkey.Algorithm{
	"ed25519":    sshhostkey.AlgorithmEd25519,
	"ecdsa-p256": sshhostkey.AlgorithmEcdsaP256,
}

// SSHHostKeyConfig identifies one host key offered during negotiation,
// loaded either from a file path or inline PEM content (inline takes
// precedence), mirroring GlobalTLSConfig's Key/KeyPEM pair.
type SSHHostKeyConfig struct {
	Algorithm string `yaml:"algorithm"` // "ed25519" or "ecdsa-p256"
	Path      string `yaml:"path"`
	PEM       string `yaml:"pem"`
}

// GetPEM returns the host key's PEM content, reading from file if necessary.
func (h *SSHHostKeyConfig) GetPEM() ([]byte, error) {
	if h.PEM != "" {
		return []byte(h.PEM), nil
	}
	if h.Path != "" {
		return os.ReadFile(h.Path)
	}
	return nil, nil
}

// HasKey returns true if host key material is configured (either file or PEM).
func (h *SSHHostKeyConfig) HasKey() bool {
	return h.Path != "" || h.PEM != ""
}

// Load parses this entry's PEM content into a usable sshhostkey.HostKey.
func (h *SSHHostKeyConfig) Load() (sshhostkey.HostKey, error) {
	pemBytes, err := h.GetPEM()
	if err != nil {
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	if len(pemBytes) == 0 {
		return nil, fmt.Errorf("host key %q has no path or inline pem configured", h.Algorithm)
	}

	key, err := sshhostkey.ParsePEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing host key: %w", err)
	}
	wireAlgo, ok := hostKeyAlgorithmWireNames[h.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm %q (must be ed25519 or ecdsa-p256)", h.Algorithm)
	}
	if key.Algorithm() != wireAlgo {
		return nil, fmt.Errorf("host key algorithm mismatch: configured %q, key is %q", h.Algorithm, key.Algorithm())
	}
	return key, nil
}

// SSHPolicyConfig mirrors internal/sshtransport.Policy, expressed in
// YAML-friendly terms (durations and byte counts instead of raw
// nanoseconds).
type SSHPolicyConfig struct {
	MaxAuthAttempts    int    `yaml:"max_auth_attempts"`
	InitialWindow      uint32 `yaml:"initial_window"`
	MaxPacketSize      uint32 `yaml:"max_packet_size"`
	RekeyAfterBytes    uint64 `yaml:"rekey_after_bytes"`
	RekeyAfterInterval string `yaml:"rekey_after_interval"` // parsed with time.ParseDuration
	AuthBanner         string `yaml:"auth_banner"`
}

// SSHRateLimitConfig throttles new connection attempts per source IP via
// golang.org/x/time/rate, the same primitive the teacher's transports use
// for connection-level pacing.
type SSHRateLimitConfig struct {
	ConnectionsPerSecond float64 `yaml:"connections_per_second"`
	Burst                int     `yaml:"burst"`
}

// ToPolicy converts the YAML-friendly policy section into
// sshtransport.Policy, the form the server core actually consumes.
func (p SSHPolicyConfig) ToPolicy() (sshtransport.Policy, error) {
	var rekeyInterval time.Duration
	if p.RekeyAfterInterval != "" {
		var err error
		rekeyInterval, err = time.ParseDuration(p.RekeyAfterInterval)
		if err != nil {
			return sshtransport.Policy{}, fmt.Errorf("ssh.policy.rekey_after_interval: %w", err)
		}
	}

	return sshtransport.Policy{
		MaxAuthAttempts:    p.MaxAuthAttempts,
		InitialWindow:      p.InitialWindow,
		MaxPacketSize:      p.MaxPacketSize,
		RekeyAfterBytes:    p.RekeyAfterBytes,
		RekeyAfterInterval: int64(rekeyInterval),
		AuthBanner:         p.AuthBanner,
	}, nil
}

// SSHAuthConfig configures the reference userauth credential store
// (internal/sshauthstore): per-user password hash and authorized keys.
// This mirrors the teacher's SOCKS5Config auth section (Users/HashedUsers)
// but folds both credential kinds into one entry per user, since SSH
// offers password and publickey side by side rather than picking one
// authenticator for the whole listener.
type SSHAuthConfig struct {
	Users map[string]SSHUserAuthConfig `yaml:"users"`
}

// SSHUserAuthConfig is one user's credentials: a bcrypt password hash
// (`sshgatewayd wizard` generates one from an entered password) and zero or more
// authorized public keys, given inline or via an authorized_keys-format
// file.
type SSHUserAuthConfig struct {
	PasswordHash       string `yaml:"password_hash"`
	AuthorizedKeys     string `yaml:"authorized_keys"`
	AuthorizedKeysPath string `yaml:"authorized_keys_path"`
}

// BuildStore materializes the configured users into an sshauthstore.Store.
func (a SSHAuthConfig) BuildStore() (*sshauthstore.Store, error) {
	store := sshauthstore.NewStore()
	for user, uc := range a.Users {
		if uc.PasswordHash != "" {
			store.SetPasswordHash(user, uc.PasswordHash)
		}
		if uc.AuthorizedKeys != "" {
			if err := store.LoadAuthorizedKeys(user, []byte(uc.AuthorizedKeys)); err != nil {
				return nil, fmt.Errorf("ssh.auth.users[%s].authorized_keys: %w", user, err)
			}
		}
		if uc.AuthorizedKeysPath != "" {
			data, err := os.ReadFile(uc.AuthorizedKeysPath)
			if err != nil {
				return nil, fmt.Errorf("ssh.auth.users[%s].authorized_keys_path: %w", user, err)
			}
			if err := store.LoadAuthorizedKeys(user, data); err != nil {
				return nil, fmt.Errorf("ssh.auth.users[%s].authorized_keys_path: %w", user, err)
			}
		}
	}
	return store, nil
}

// LoadHostKeys parses every configured host key entry into an
// sshtransport.HostKeys set.
func (c SSHConfig) LoadHostKeys() (*sshtransport.HostKeys, error) {
	keys := make([]sshhostkey.HostKey, 0, len(c.HostKeys))
	for i, hk := range c.HostKeys {
		key, err := hk.Load()
		if err != nil {
			return nil, fmt.Errorf("ssh.host_keys[%d]: %w", i, err)
		}
		keys = append(keys, key)
	}
	return sshtransport.NewHostKeys(keys), nil
}

// validateSSH validates the ssh configuration section.
func (c *Config) validateSSH() error {
	if c.SSH.ListenAddr == "" {
		return fmt.Errorf("ssh.listen_addr is required")
	}

	// An empty host_keys list is accepted at parse time (e.g. before `keygen`
	// or the setup wizard has run); cmd/sshgatewayd serve refuses to start
	// without at least one.
	for i, hk := range c.SSH.HostKeys {
		if _, ok := hostKeyAlgorithmWireNames[hk.Algorithm]; !ok {
			return fmt.Errorf("ssh.host_keys[%d]: unsupported algorithm %q (must be ed25519 or ecdsa-p256)", i, hk.Algorithm)
		}
		if !hk.HasKey() {
			return fmt.Errorf("ssh.host_keys[%d]: path or pem is required", i)
		}
	}

	if c.SSH.Policy.MaxAuthAttempts < 1 {
		return fmt.Errorf("ssh.policy.max_auth_attempts must be positive")
	}
	if c.SSH.Policy.InitialWindow == 0 {
		return fmt.Errorf("ssh.policy.initial_window must be positive")
	}
	if c.SSH.Policy.MaxPacketSize == 0 {
		return fmt.Errorf("ssh.policy.max_packet_size must be positive")
	}
	if c.SSH.Policy.RekeyAfterInterval != "" {
		if _, err := time.ParseDuration(c.SSH.Policy.RekeyAfterInterval); err != nil {
			return fmt.Errorf("ssh.policy.rekey_after_interval: %w", err)
		}
	}

	if c.SSH.RateLimit.ConnectionsPerSecond < 0 {
		return fmt.Errorf("ssh.rate_limit.connections_per_second must not be negative")
	}
	if c.SSH.RateLimit.Burst < 0 {
		return fmt.Errorf("ssh.rate_limit.burst must not be negative")
	}

	for user, uc := range c.SSH.Auth.Users {
		if uc.AuthorizedKeys != "" && uc.AuthorizedKeysPath != "" {
			return fmt.Errorf("ssh.auth.users[%s]: authorized_keys and authorized_keys_path are mutually exclusive", user)
		}
	}

	return nil
}
