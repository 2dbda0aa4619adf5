package cmd

import (
	"errors"

	"github.com/pterm/pterm"
	"github.com/sentinelhive/svh/cmd/svhctl/internal/credentials"
	"github.com/spf13/cobra"
)

func newLogoutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the stored session and forget it",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			creds, err := store.Load()
			if errors.Is(err, credentials.ErrNotLoggedIn) {
				pterm.Info.Println("No saved session.")
				return nil
			}
			if err != nil {
				return err
			}

			if err := opts.client().Logout(cmd.Context(), creds.Token); err != nil {
				pterm.Warning.Printf("Edge did not confirm logout: %v\n", err)
			}
			if err := store.Delete(); err != nil {
				return err
			}
			pterm.Success.Println("Logged out.")
			return nil
		},
	}
}
