package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/sentinelhive/svh/cmd/svhctl/internal/credentials"
	"github.com/spf13/cobra"
)

func newLoginCmd(opts *options) *cobra.Command {
	var (
		externalID string
		password   string
		ttl        time.Duration
		replace    bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the edge and store the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			c := opts.client()

			existing, err := store.Load()
			switch {
			case errors.Is(err, credentials.ErrNotLoggedIn):
			case err != nil:
				return err
			case !replace && !existing.Expired(opts.now()):
				return errors.New("a session is already active; run `svhctl logout` or pass --replace")
			case replace:
				if err := c.Logout(cmd.Context(), existing.Token); err != nil {
					pterm.Warning.Printf("Previous session not revoked: %v\n", err)
				}
				if err := store.Delete(); err != nil {
					return err
				}
			}

			res, err := c.Login(cmd.Context(), externalID, password, ttl)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
			if res.Token == "" {
				return errors.New("login failed: no token returned")
			}

			creds := &credentials.Credentials{
				Token:      res.Token,
				ExternalID: res.ExternalID,
				ExpiresAt:  opts.now().Add(ttl),
			}
			if err := store.Save(creds); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			pterm.Success.Printf("Logged in as %s\n", res.ExternalID)
			pterm.Info.Printf("Token expires in %s\n", ttl)
			return nil
		},
	}

	cmd.Flags().StringVar(&externalID, "external-id", "", "Account external id")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Session lifetime")
	cmd.Flags().BoolVar(&replace, "replace", false, "Log out an existing session first")
	_ = cmd.MarkFlagRequired("external-id")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
