// Package wizard provides an interactive setup wizard for sshgatewayd.
package wizard

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/coinstash/sshgatewayd/internal/config"
	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
	"github.com/coinstash/sshgatewayd/internal/wizard/prompt"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
	DataDir    string
}

// Wizard manages the interactive setup process.
type Wizard struct {
	existingCfg *config.Config // loaded from an existing config file, used as defaults
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()

	dataDir, configPath, err := w.askBasicSetup()
	if err != nil {
		return nil, err
	}

	listenAddr, controlSocketPath, err := w.askNetworkConfig(dataDir)
	if err != nil {
		return nil, err
	}

	hostKeys, err := w.askHostKeys(dataDir)
	if err != nil {
		return nil, err
	}

	policy, err := w.askPolicy()
	if err != nil {
		return nil, err
	}

	rateLimit, err := w.askRateLimit()
	if err != nil {
		return nil, err
	}

	users, err := w.askAuthUsers()
	if err != nil {
		return nil, err
	}

	logLevel, logFormat, err := w.askAdvancedOptions()
	if err != nil {
		return nil, err
	}

	cfg := w.buildConfig(dataDir, listenAddr, controlSocketPath, hostKeys, policy, rateLimit, users, logLevel, logFormat)

	if err := w.writeConfig(cfg, configPath); err != nil {
		return nil, err
	}

	w.printSummary(configPath, cfg)

	return &Result{Config: cfg, ConfigPath: configPath, DataDir: dataDir}, nil
}

func (w *Wizard) printBanner() {
	prompt.PrintBanner("sshgatewayd Setup Wizard", "SSH v2 gateway server")
	fmt.Println()
}

func (w *Wizard) askBasicSetup() (dataDir, configPath string, err error) {
	dataDir = "./data"
	configPath = "./config.yaml"

	prompt.PrintHeader("Basic Setup", "Configure the essential paths for this server.")

	configPath, err = prompt.ReadLineValidated("Config File Path", configPath, func(s string) error {
		if s == "" {
			return fmt.Errorf("config path is required")
		}
		if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
			return fmt.Errorf("config file should have .yaml or .yml extension")
		}
		return nil
	})
	if err != nil {
		return
	}

	if existingCfg, loadErr := config.Load(configPath); loadErr == nil {
		w.existingCfg = existingCfg
		dataDir = existingCfg.Agent.DataDir
		prompt.PrintInfo("Found existing configuration, using values as defaults.")
	}

	dataDir, err = prompt.ReadLineValidated("Data Directory", dataDir, func(s string) error {
		if s == "" {
			return fmt.Errorf("data directory is required")
		}
		return nil
	})
	return
}

func (w *Wizard) askNetworkConfig(dataDir string) (listenAddr, controlSocketPath string, err error) {
	listenAddr = ":22"
	controlSocketPath = dataDir + "/ssh-control.sock"

	if w.existingCfg != nil {
		if w.existingCfg.SSH.ListenAddr != "" {
			listenAddr = w.existingCfg.SSH.ListenAddr
		}
		if w.existingCfg.SSH.ControlSocketPath != "" {
			controlSocketPath = w.existingCfg.SSH.ControlSocketPath
		}
	}

	prompt.PrintHeader("Network Configuration", "Configure how this server listens for connections.")

	listenAddr, err = prompt.ReadLineValidated("SSH Listen Address", listenAddr, func(s string) error {
		if s == "" {
			return fmt.Errorf("listen address is required")
		}
		_, _, err := net.SplitHostPort(s)
		if err != nil {
			return fmt.Errorf("invalid address format (use host:port)")
		}
		return nil
	})
	if err != nil {
		return
	}

	controlSocketPath, err = prompt.ReadLine("Control Socket Path", controlSocketPath)
	return
}

// askHostKeys offers to generate a fresh host key or reuse existing keys
// already present in the config.
func (w *Wizard) askHostKeys(dataDir string) ([]config.SSHHostKeyConfig, error) {
	if w.existingCfg != nil && len(w.existingCfg.SSH.HostKeys) > 0 {
		keep, err := prompt.Confirm("Keep existing host keys?", true)
		if err != nil {
			return nil, err
		}
		if keep {
			return w.existingCfg.SSH.HostKeys, nil
		}
	}

	prompt.PrintHeader("Host Key", "Generate the key this server presents during key exchange.")

	algoOptions := []string{
		"ed25519 (recommended)",
		"ecdsa-p256",
	}
	algoValues := []string{"ed25519", "ecdsa-p256"}

	idx, err := prompt.Select("Host Key Algorithm", algoOptions, 0)
	if err != nil {
		return nil, err
	}
	algorithm := algoValues[idx]

	path, err := prompt.ReadLine("Host Key Output Path", dataDir+"/host_"+algorithm)
	if err != nil {
		return nil, err
	}

	var key sshhostkey.HostKey
	switch algorithm {
	case "ed25519":
		key, err = sshhostkey.GenerateEd25519HostKey()
	case "ecdsa-p256":
		key, err = sshhostkey.GenerateEcdsaP256HostKey()
	}
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}

	pemBytes, err := sshhostkey.MarshalPEM(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling host key: %w", err)
	}

	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating host key directory: %w", err)
	}
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		return nil, fmt.Errorf("writing host key: %w", err)
	}

	prompt.PrintInfo(fmt.Sprintf("Generated %s host key at %s", algorithm, path))

	return []config.SSHHostKeyConfig{{Algorithm: algorithm, Path: path}}, nil
}

func (w *Wizard) askPolicy() (config.SSHPolicyConfig, error) {
	policy := config.SSHPolicyConfig{
		MaxAuthAttempts:    20,
		InitialWindow:      2 * 1024 * 1024,
		MaxPacketSize:      32768,
		RekeyAfterBytes:    1 << 30,
		RekeyAfterInterval: "1h",
	}
	if w.existingCfg != nil {
		policy = w.existingCfg.SSH.Policy
	}

	prompt.PrintHeader("Connection Policy", "Tune per-connection limits and rekeying.")

	attempts, err := prompt.ReadLineValidated("Max Auth Attempts", strconv.Itoa(policy.MaxAuthAttempts), validatePositiveInt)
	if err != nil {
		return policy, err
	}
	policy.MaxAuthAttempts, _ = strconv.Atoi(attempts)

	rekeyInterval, err := prompt.ReadLineValidated("Rekey Interval (e.g. 1h)", policy.RekeyAfterInterval, func(s string) error {
		if s == "" {
			return nil
		}
		_, err := time.ParseDuration(s)
		return err
	})
	if err != nil {
		return policy, err
	}
	policy.RekeyAfterInterval = rekeyInterval

	banner, err := prompt.ReadLine("Auth Banner (optional)", policy.AuthBanner)
	if err != nil {
		return policy, err
	}
	policy.AuthBanner = banner

	return policy, nil
}

func (w *Wizard) askRateLimit() (config.SSHRateLimitConfig, error) {
	rateLimit := config.SSHRateLimitConfig{ConnectionsPerSecond: 5, Burst: 10}
	if w.existingCfg != nil {
		rateLimit = w.existingCfg.SSH.RateLimit
	}

	prompt.PrintHeader("Rate Limiting", "Throttle new connection attempts per source IP.")

	cps, err := prompt.ReadLineValidated("Connections Per Second (0 disables)", strconv.FormatFloat(rateLimit.ConnectionsPerSecond, 'f', -1, 64), validateNonNegativeFloat)
	if err != nil {
		return rateLimit, err
	}
	rateLimit.ConnectionsPerSecond, _ = strconv.ParseFloat(cps, 64)

	burst, err := prompt.ReadLineValidated("Burst", strconv.Itoa(rateLimit.Burst), validateNonNegativeInt)
	if err != nil {
		return rateLimit, err
	}
	rateLimit.Burst, _ = strconv.Atoi(burst)

	return rateLimit, nil
}

// askAuthUsers loops, adding one user's credentials at a time, until the
// operator declines to add another.
func (w *Wizard) askAuthUsers() (map[string]config.SSHUserAuthConfig, error) {
	users := map[string]config.SSHUserAuthConfig{}
	if w.existingCfg != nil {
		for name, uc := range w.existingCfg.SSH.Auth.Users {
			users[name] = uc
		}
	}

	prompt.PrintHeader("Authentication", "Add the users allowed to authenticate against this server.")

	for {
		add, err := prompt.Confirm(fmt.Sprintf("Add a user? (%d configured)", len(users)), len(users) == 0)
		if err != nil {
			return nil, err
		}
		if !add {
			break
		}

		username, err := prompt.ReadLineValidated("Username", "", func(s string) error {
			if s == "" {
				return fmt.Errorf("username is required")
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		uc := users[username]

		setPassword, err := prompt.Confirm("Set a password?", uc.PasswordHash == "")
		if err != nil {
			return nil, err
		}
		if setPassword {
			password, err := prompt.ReadSecret("Password")
			if err != nil {
				return nil, err
			}
			if password != "" {
				hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
				if err != nil {
					return nil, fmt.Errorf("hashing password: %w", err)
				}
				uc.PasswordHash = string(hash)
			}
		}

		addKey, err := prompt.Confirm("Add an authorized_keys file?", uc.AuthorizedKeysPath == "" && uc.AuthorizedKeys == "")
		if err != nil {
			return nil, err
		}
		if addKey {
			path, err := prompt.ReadLineValidated("authorized_keys Path", uc.AuthorizedKeysPath, func(s string) error {
				if s == "" {
					return fmt.Errorf("path is required")
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			uc.AuthorizedKeysPath = path
		}

		users[username] = uc
		prompt.PrintInfo(fmt.Sprintf("Configured user %q", username))
	}

	return users, nil
}

func (w *Wizard) askAdvancedOptions() (logLevel, logFormat string, err error) {
	logLevel = "info"
	logFormat = "text"
	if w.existingCfg != nil {
		logLevel = w.existingCfg.Agent.LogLevel
		logFormat = w.existingCfg.Agent.LogFormat
	}

	prompt.PrintHeader("Advanced Options", "Logging configuration.")

	levelOptions := []string{"debug", "info", "warn", "error"}
	levelIdx, err := prompt.Select("Log Level", levelOptions, indexOf(levelOptions, logLevel))
	if err != nil {
		return
	}
	logLevel = levelOptions[levelIdx]

	formatOptions := []string{"text", "json"}
	formatIdx, err := prompt.Select("Log Format", formatOptions, indexOf(formatOptions, logFormat))
	if err != nil {
		return
	}
	logFormat = formatOptions[formatIdx]

	return
}

func (w *Wizard) buildConfig(
	dataDir, listenAddr, controlSocketPath string,
	hostKeys []config.SSHHostKeyConfig,
	policy config.SSHPolicyConfig,
	rateLimit config.SSHRateLimitConfig,
	users map[string]config.SSHUserAuthConfig,
	logLevel, logFormat string,
) *config.Config {
	cfg := config.Default()
	if w.existingCfg != nil {
		cfg = w.existingCfg
	}

	cfg.Agent.DataDir = dataDir
	cfg.Agent.LogLevel = logLevel
	cfg.Agent.LogFormat = logFormat

	cfg.SSH.ListenAddr = listenAddr
	cfg.SSH.ControlSocketPath = controlSocketPath
	cfg.SSH.HostKeys = hostKeys
	cfg.SSH.Policy = policy
	cfg.SSH.RateLimit = rateLimit
	cfg.SSH.Auth.Users = users

	return cfg
}

func (w *Wizard) writeConfig(cfg *config.Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func (w *Wizard) printSummary(configPath string, cfg *config.Config) {
	fmt.Println()
	prompt.PrintInfo(fmt.Sprintf("Configuration saved to: %s", configPath))
	fmt.Printf("Listening on %s with %d host key(s) and %d user(s) configured.\n",
		cfg.SSH.ListenAddr, len(cfg.SSH.HostKeys), len(cfg.SSH.Auth.Users))
	fmt.Println()
	fmt.Println("Start the server with:")
	fmt.Printf("  sshgatewayd serve --config %s\n", configPath)
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 1 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateNonNegativeFloat(s string) error {
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func indexOf(options []string, value string) int {
	for i, o := range options {
		if o == value {
			return i
		}
	}
	return 0
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
