package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/gate"
)

func whoamiCmd() *cobra.Command {
	var bearer string

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Ask the gate which identity a token carries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bearer == "" {
				bearer = os.Getenv("GATE_TOKEN")
			}
			if bearer == "" {
				return fmt.Errorf("--token or GATE_TOKEN is required")
			}

			ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"})
			client := gate.NewWhoAmIClient(
				&http.Client{Timeout: 10 * time.Second},
				serverAddr,
				connect.WithInterceptors(auth.NewTokenInterceptor(ts)),
			)

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			resp, err := client.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
			if err != nil {
				return fmt.Errorf("whoami failed: %w", err)
			}

			fields := resp.Msg.AsMap()
			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), fields)
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.Header("Field", "Value")
			for _, k := range []string{"subject", "roles", "tokenId", "expiresAt"} {
				if v, ok := fields[k]; ok {
					table.Append([]string{k, fmt.Sprint(v)})
				}
			}
			return table.Render()
		},
	}

	cmd.Flags().StringVar(&bearer, "token", "", "Bearer token (env: GATE_TOKEN)")
	return cmd
}
