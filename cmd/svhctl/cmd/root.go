package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/sentinelhive/svh/cmd/svhctl/internal/client"
	"github.com/sentinelhive/svh/cmd/svhctl/internal/credentials"
	"github.com/spf13/cobra"
)

const (
	envEdgeURL     = "SVH_API_BASE"
	defaultEdgeURL = "http://127.0.0.1:8000"
)

var errSessionExpired = errors.New("session expired; please login again")

type options struct {
	edgeURL   string
	tokenFile string
	now       func() time.Time
}

func (o *options) store() (*credentials.FileStore, error) {
	path := o.tokenFile
	if path == "" {
		var err error
		if path, err = credentials.DefaultPath(); err != nil {
			return nil, err
		}
	}
	return credentials.NewFileStore(path), nil
}

func (o *options) client() *client.Client { return client.New(o.edgeURL) }

// session returns stored credentials that have not expired locally.
// Expired ones are removed.
func (o *options) session(store *credentials.FileStore) (*credentials.Credentials, error) {
	creds, err := store.Load()
	if err != nil {
		return nil, err
	}
	if creds.Expired(o.now()) {
		_ = store.Delete()
		return nil, errSessionExpired
	}
	return creds, nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{now: time.Now}

	root := &cobra.Command{
		Use:   "svhctl",
		Short: "SentinelHive session CLI",
		Long: `svhctl logs in to the SentinelHive edge, keeps the session token on disk
and runs the admin session commands with it.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			pterm.SetDefaultOutput(cmd.OutOrStdout())
		},
	}

	edgeURL := os.Getenv(envEdgeURL)
	if edgeURL == "" {
		edgeURL = defaultEdgeURL
	}
	root.PersistentFlags().StringVar(&opts.edgeURL, "edge", edgeURL, "Edge base URL (also set via "+envEdgeURL+")")
	root.PersistentFlags().StringVar(&opts.tokenFile, "token-file", "", "Token file (default <user config dir>/svh/token.json)")

	root.AddCommand(newLoginCmd(opts))
	root.AddCommand(newLogoutCmd(opts))
	root.AddCommand(newWhoamiCmd(opts))
	root.AddCommand(newSessionsCmd(opts))
	return root
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
