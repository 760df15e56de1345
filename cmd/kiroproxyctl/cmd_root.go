package main

import (
	"github.com/spf13/cobra"

	"github.com/example/kiro-claude-bridge/internal/store"
)

// app bundles the store handle every subcommand needs, opened lazily
// from the --database flag once cobra has parsed arguments.
type app struct {
	databasePath string
	store        *store.CredentialStore
}

func (a *app) open() (*store.CredentialStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.Open(a.databasePath)
	if err != nil {
		return nil, err
	}
	a.store = s
	return s, nil
}

func newRootCmd() *cobra.Command {
	application := &app{}

	rootCmd := &cobra.Command{
		Use:           "kiroproxyctl",
		Short:         "kiroproxyctl: administer a kiro-bridge credential pool",
		Long:          "kiroproxyctl reads and mutates a kiro-bridge credential store directly, for deployments where the admin HTTP API is disabled or unreachable.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if application.store != nil {
				_ = application.store.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&application.databasePath, "database", "./kiro-bridge.db", "path to the credential store file")

	rootCmd.AddCommand(newCredsCmd(application))

	return rootCmd
}
