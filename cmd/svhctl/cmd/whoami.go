package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newWhoamiCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the account behind the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.store()
			if err != nil {
				return err
			}
			creds, err := opts.session(store)
			if err != nil {
				return err
			}
			who, err := opts.client().Whoami(cmd.Context(), creds.Token)
			if err != nil {
				return err
			}
			role := "user"
			if who.IsPrivileged {
				role = "admin"
			}
			pterm.Info.Printf("%s (%s), token expires %s\n", who.ExternalID, role, creds.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
