package cmd

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var errAdminRequired = errors.New("admin privileges required; login with an admin account")

func newSessionsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and evict cached edge sessions (admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminToken(cmd.Context(), opts)
			if err != nil {
				return err
			}
			entries, err := opts.client().Sessions(cmd.Context(), token)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EXTERNAL ID\tEXPIRES IN\tTOKEN")
			now := opts.now()
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.ExternalID, e.ExpiresAt.Sub(now).Truncate(time.Second), e.TokenHint)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(newEvictCmd(opts))
	return cmd
}

func newEvictCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <external-id>",
		Short: "Drop every cached session of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminToken(cmd.Context(), opts)
			if err != nil {
				return err
			}
			n, err := opts.client().Evict(cmd.Context(), token, args[0])
			if err != nil {
				return err
			}
			pterm.Success.Printf("Evicted %d session(s) of %s\n", n, args[0])
			return nil
		},
	}
}

// adminToken returns the stored token after checking it locally and asking
// the edge that it belongs to a privileged account.
func adminToken(ctx context.Context, opts *options) (string, error) {
	store, err := opts.store()
	if err != nil {
		return "", err
	}
	creds, err := opts.session(store)
	if err != nil {
		return "", err
	}
	who, err := opts.client().Whoami(ctx, creds.Token)
	if err != nil {
		return "", err
	}
	if !who.IsPrivileged {
		return "", errAdminRequired
	}
	return creds.Token, nil
}
