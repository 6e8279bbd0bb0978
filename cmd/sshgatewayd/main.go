// Package main provides the CLI entry point for the SSH gateway daemon.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coinstash/sshgatewayd/internal/config"
	"github.com/coinstash/sshgatewayd/internal/control"
	"github.com/coinstash/sshgatewayd/internal/sshauthstore"
	"github.com/coinstash/sshgatewayd/internal/sshlog"
	"github.com/coinstash/sshgatewayd/internal/sshtransport"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "sshgatewayd",
		Short: "sshgatewayd - standalone SSH v2 gateway server",
		Long: `sshgatewayd is a standalone SSH v2 server: packet framing and
AEAD encryption, ECDH key exchange, and a channel multiplexer with flow
control, driven by an async TCP runtime.`,
		Version: Version,
	}

	rootCmd.AddGroup(&cobra.Group{ID: "start", Title: "Getting Started:"})
	rootCmd.AddGroup(&cobra.Group{ID: "admin", Title: "Administration:"})

	wizard := wizardCmd()
	wizard.GroupID = "start"
	serve := serveCmd()
	serve.GroupID = "start"

	keygen := keygenCmd()
	keygen.GroupID = "admin"
	version := versionCmd()
	version.GroupID = "admin"

	rootCmd.AddCommand(wizard, serve, keygen, version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SSH server",
		Long:  "Start the SSH server with the specified configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := sshlog.NewLogger(cfg.Agent.LogLevel, cfg.Agent.LogFormat)

			if len(cfg.SSH.HostKeys) == 0 {
				return fmt.Errorf("ssh.host_keys is empty; run `sshgatewayd keygen` and add the result to your config")
			}

			hostKeys, err := cfg.SSH.LoadHostKeys()
			if err != nil {
				return fmt.Errorf("failed to load host keys: %w", err)
			}

			policy, err := cfg.SSH.Policy.ToPolicy()
			if err != nil {
				return fmt.Errorf("failed to build policy: %w", err)
			}

			store, err := cfg.SSH.Auth.BuildStore()
			if err != nil {
				return fmt.Errorf("failed to build auth store: %w", err)
			}
			callbacks := &sshauthstore.Callbacks{HostKeys: hostKeys, Store: store}

			var limiter *sshtransport.ConnectionLimiter
			if cfg.SSH.RateLimit.ConnectionsPerSecond > 0 {
				limiter = sshtransport.NewConnectionLimiter(cfg.SSH.RateLimit.ConnectionsPerSecond, cfg.SSH.RateLimit.Burst)
			}

			listener := sshtransport.NewListener(sshtransport.ListenerConfig{
				Address:   cfg.SSH.ListenAddr,
				HostKeys:  hostKeys,
				Policy:    policy,
				Callbacks: callbacks,
				Limiter:   limiter,
				Log:       log,
			})

			if err := listener.Start(); err != nil {
				return fmt.Errorf("failed to start ssh listener: %w", err)
			}
			log.Info("ssh server listening", "address", listener.ListenAddr())

			ctrlCfg := control.DefaultServerConfig()
			ctrlCfg.SocketPath = cfg.SSH.ControlSocketPath
			ctrlServer := control.NewServer(ctrlCfg, listener)
			if err := ctrlServer.Start(); err != nil {
				log.Warn("failed to start control socket", "error", err)
			} else {
				log.Info("control socket listening", "path", ctrlServer.SocketPath())
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			log.Info("received signal, shutting down", "signal", sig.String())

			if err := ctrlServer.Stop(); err != nil {
				log.Warn("control socket shutdown error", "error", err)
			}
			if err := listener.Stop(); err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}

			log.Info("ssh server stopped")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./config.yaml", "Path to configuration file")

	return cmd
}
