package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/kiro-claude-bridge/internal/credential"
)

func newCredsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage pooled OAuth credentials",
	}

	cmd.AddCommand(
		newCredsListCmd(app),
		newCredsAddCmd(app),
		newCredsRemoveCmd(app),
		newCredsDisableCmd(app),
		newCredsPriorityCmd(app),
		newCredsResetCmd(app),
	)

	return cmd
}

func newCredsListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pooled credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.open()
			if err != nil {
				return err
			}
			creds, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no credentials in the pool")
				return nil
			}
			for _, c := range creds {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%d auth=%s priority=%d disabled=%t failures=%d\n",
					c.ID, c.AuthMethod, c.Priority, c.Disabled, c.FailureCount)
			}
			return nil
		},
	}
}

func newCredsAddCmd(app *app) *cobra.Command {
	var authMethod, refreshToken, clientID, clientSecret string
	var priority int

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a credential to the pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := app.open()
			if err != nil {
				return err
			}
			c := &credential.Credential{
				RefreshToken: refreshToken,
				AuthMethod:   credential.AuthMethod(authMethod),
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Priority:     priority,
			}
			id, err := s.Insert(cmd.Context(), c)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added credential %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&authMethod, "auth-method", string(credential.AuthMethodSocial), "auth_method: social or idc")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "OAuth refresh token (required)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OIDC client id (idc only)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OIDC client secret (idc only)")
	cmd.Flags().IntVar(&priority, "priority", 0, "selection priority (lower selects first)")
	_ = cmd.MarkFlagRequired("refresh-token")

	return cmd
}

func newCredsRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Remove a credential from the pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid credential id %q", args[0])
			}
			s, err := app.open()
			if err != nil {
				return err
			}
			if err := s.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed credential %d\n", id)
			return nil
		},
	}
}

func newCredsDisableCmd(app *app) *cobra.Command {
	var disabled bool
	cmd := &cobra.Command{
		Use:   "disable <id>",
		Short: "Enable or disable a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid credential id %q", args[0])
			}
			s, err := app.open()
			if err != nil {
				return err
			}
			if err := s.SetDisabled(cmd.Context(), id, disabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential %d disabled=%t\n", id, disabled)
			return nil
		},
	}
	cmd.Flags().BoolVar(&disabled, "value", true, "disabled state to set")
	return cmd
}

func newCredsPriorityCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <priority>",
		Short: "Set a credential's selection priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid credential id %q", args[0])
			}
			priority, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid priority %q", args[1])
			}
			s, err := app.open()
			if err != nil {
				return err
			}
			if err := s.SetPriority(cmd.Context(), id, priority); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential %d priority=%d\n", id, priority)
			return nil
		},
	}
}

func newCredsResetCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <id>",
		Short: "Reset a credential's failure count and re-enable it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid credential id %q", args[0])
			}
			s, err := app.open()
			if err != nil {
				return err
			}
			if err := s.ResetAndEnable(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credential %d reset and enabled\n", id)
			return nil
		},
	}
}
