package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coinstash/sshgatewayd/internal/sshhostkey"
)

func keygenCmd() *cobra.Command {
	var algorithm string
	var outPath string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new SSH host key",
		Long: `Generate a new host key for sshgatewayd and write it to a file as a
PKCS#8 PEM block.

The resulting path and algorithm can be added directly to your config:

  ssh:
    host_keys:
      - algorithm: ed25519
        path: ./host_ed25519`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key sshhostkey.HostKey
			var err error

			switch algorithm {
			case "ed25519":
				key, err = sshhostkey.GenerateEd25519HostKey()
			case "ecdsa-p256":
				key, err = sshhostkey.GenerateEcdsaP256HostKey()
			default:
				return fmt.Errorf("unsupported algorithm %q (must be ed25519 or ecdsa-p256)", algorithm)
			}
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}

			pemBytes, err := sshhostkey.MarshalPEM(key)
			if err != nil {
				return fmt.Errorf("failed to marshal key: %w", err)
			}

			if err := os.WriteFile(outPath, pemBytes, 0o600); err != nil {
				return fmt.Errorf("failed to write key: %w", err)
			}

			fmt.Printf("Generated %s host key: %s\n", algorithm, outPath)
			fmt.Println()
			fmt.Println("Config snippet:")
			fmt.Println("  ssh:")
			fmt.Println("    host_keys:")
			fmt.Printf("      - algorithm: %s\n", algorithm)
			fmt.Printf("        path: %s\n", outPath)

			return nil
		},
	}

	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "ed25519", "Host key algorithm (ed25519 or ecdsa-p256)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "./host_ed25519", "Output path for the generated key")

	return cmd
}
