package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coinstash/sshgatewayd/internal/wizard"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactively generate a configuration file",
		Long:  "Run the interactive setup wizard to generate a config.yaml for sshgatewayd.",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := wizard.New().Run()
			if err != nil {
				return fmt.Errorf("setup wizard failed: %w", err)
			}
			fmt.Printf("\nWrote %s\n", result.ConfigPath)
			return nil
		},
	}
}
