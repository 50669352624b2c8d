package main

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/Heahaidu/interest-project/pkg/policy"
)

func routesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Inspect the route policy",
	}
	cmd.AddCommand(routesListCmd())
	cmd.AddCommand(routesCheckCmd())
	cmd.AddCommand(routesLintCmd())
	return cmd
}

func routesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List route rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			rules := rt.Table.Rules()
			if outputFormat == "json" {
				return writeJSON(cmd.OutOrStdout(), rules)
			}
			if len(rules) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rules; every path requires authentication")
				return nil
			}
			return renderRules(cmd.OutOrStdout(), rules)
		},
	}
}

func renderRules(w io.Writer, rules []policy.Rule) error {
	table := tablewriter.NewWriter(w)
	table.Header("#", "Name", "Pattern", "Methods", "Requirement", "Owner", "Condition")
	for i, r := range rules {
		req, err := r.Requirement()
		requirement := req.String()
		if err != nil {
			requirement = "invalid"
		}
		table.Append([]string{
			strconv.Itoa(i),
			r.Name,
			r.Pattern,
			formatMethods(r.Methods),
			requirement,
			r.Owner,
			r.Condition,
		})
	}
	return table.Render()
}

func formatMethods(methods []string) string {
	if len(methods) == 0 {
		return "*"
	}
	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(m)
	}
	return strings.Join(upper, ",")
}

func routesCheckCmd() *cobra.Command {
	var method, bearer string

	cmd := &cobra.Command{
		Use:   "check PATH",
		Short: "Explain which rule a request path resolves to",
		Long: `Resolve PATH against the route policy. With --token, the full gate decision
is computed as if the request had been sent with that bearer token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}

			req := httptest.NewRequest(strings.ToUpper(method), "http://gate.local/", nil)
			req.URL.Path = args[0]
			if bearer != "" {
				req.Header.Set("Authorization", "Bearer "+bearer)
			}
			d := rt.Gate.Decide(req)

			out := cmd.OutOrStdout()
			rule := "default (no rule matched)"
			if !d.Match.Default() {
				rule = fmt.Sprintf("#%d %s", d.Match.Rule, d.Match.Label())
			}
			fmt.Fprintf(out, "path:        %s\n", policy.CleanPath(args[0]))
			fmt.Fprintf(out, "rule:        %s\n", rule)
			fmt.Fprintf(out, "requirement: %s\n", d.Match.Requirement)
			if len(d.Match.Params) > 0 {
				fmt.Fprintf(out, "params:      %s\n", formatParams(d.Match.Params))
			}
			if d.Admitted() {
				fmt.Fprintf(out, "decision:    admitted")
				if !d.Identity.Anonymous() {
					fmt.Fprintf(out, " as %s", d.Identity.Subject())
				}
				fmt.Fprintln(out)
				return nil
			}
			fmt.Fprintf(out, "decision:    rejected (%s)\n", d.Rejection.Cause)
			return nil
		},
	}

	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVar(&bearer, "token", "", "Bearer token to evaluate the full decision")
	return cmd
}

func formatParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, " ")
}

func routesLintCmd() *cobra.Command {
	var (
		strict     bool
		policyFile string
	)

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Report permissive or unreachable route rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			var findings []policy.Finding
			if policyFile != "" {
				p, err := policy.LoadPolicy(policyFile)
				if err != nil {
					return err
				}
				if _, err := policy.New(p.Rules); err != nil {
					return err
				}
				findings = policy.Lint(p.Rules)
			} else {
				rt, err := loadRuntime(cmd.Context())
				if err != nil {
					return err
				}
				findings = rt.Findings
			}
			if outputFormat == "json" {
				if err := writeJSON(cmd.OutOrStdout(), findings); err != nil {
					return err
				}
			} else if err := renderFindings(cmd.OutOrStdout(), findings); err != nil {
				return err
			}
			if strict && hasWarnings(findings) {
				return fmt.Errorf("route policy has %d finding(s)", len(findings))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any warning is found")
	cmd.Flags().StringVar(&policyFile, "policy", "", "Lint a standalone rules file instead of --config")
	return cmd
}

func renderFindings(w io.Writer, findings []policy.Finding) error {
	pterm.DefaultSection.WithWriter(w).Println("Route policy lint")
	if len(findings) == 0 {
		pterm.Success.WithWriter(w).Println("No findings")
		return nil
	}

	data := pterm.TableData{{"Rule", "Pattern", "Severity", "Message"}}
	for _, f := range findings {
		severity := string(f.Severity)
		if f.Severity == policy.SeverityWarning {
			severity = pterm.Yellow(severity)
		}
		data = append(data, []string{strconv.Itoa(f.Rule), f.Pattern, severity, f.Message})
	}
	return pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).WithWriter(w).Render()
}

func hasWarnings(findings []policy.Finding) bool {
	for _, f := range findings {
		if f.Severity == policy.SeverityWarning {
			return true
		}
	}
	return false
}
