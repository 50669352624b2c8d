package main

import (
	"github.com/spf13/cobra"
)

func keysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect key material",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "jwks",
		Short: "Print the public JWK Set the gate publishes",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rt.Material.PublicJWKS())
		},
	})
	return cmd
}
