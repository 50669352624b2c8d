package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Heahaidu/interest-project/pkg/auth"
	"github.com/Heahaidu/interest-project/pkg/token"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue and verify bearer tokens",
	}
	cmd.AddCommand(tokenIssueCmd())
	cmd.AddCommand(tokenVerifyCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var subject string
	var roles []string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token signed with the configured key",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if !rt.Codec.CanIssue() {
				return fmt.Errorf("configured keys (%s) are verify-only", rt.Material.Origin())
			}
			tok, err := rt.Codec.Issue(subject, roles, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Subject (user id)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: configured ttl)")
	cmd.MarkFlagRequired("sub")
	return cmd
}

func tokenVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [TOKEN|-]",
		Short: "Verify a token and print its claims",
		Long:  `Verify a token against the configured key and clock. Pass "-" or nothing to read the token from stdin.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			if raw == "" || raw == "-" {
				var err error
				raw, err = readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
			}

			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			claims, err := rt.Codec.Verify(raw, time.Now())
			if err != nil {
				if rej, ok := auth.AsRejection(err); ok {
					return fmt.Errorf("token rejected: %s", rej.Cause)
				}
				return err
			}
			return printClaims(cmd.OutOrStdout(), claims)
		},
	}
	return cmd
}

func printClaims(w io.Writer, claims *token.Claims) error {
	id := claims.Identity()
	if outputFormat == "json" {
		return writeJSON(w, claims)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Claim", "Value")
	table.Append([]string{"sub", id.Subject()})
	table.Append([]string{"roles", strings.Join(id.Roles(), ",")})
	table.Append([]string{"jti", id.TokenID()})
	table.Append([]string{"iat", formatTime(id.IssuedAt())})
	table.Append([]string{"exp", formatTime(id.ExpiresAt())})
	if claims.Issuer != "" {
		table.Append([]string{"iss", claims.Issuer})
	}
	if len(claims.Audience) > 0 {
		table.Append([]string{"aud", strings.Join(claims.Audience, ",")})
	}
	return table.Render()
}

// readLine reads one trimmed, non-empty line.
func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no input")
	}
	line := strings.TrimSpace(sc.Text())
	if line == "" {
		return "", fmt.Errorf("no input")
	}
	return line, nil
}
