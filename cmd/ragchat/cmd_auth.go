package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/ragchat/internal/shared"
)

func newLoginCmd(getApp func() *app) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify an access token and remember it",
		Long: `Verify an access token against the backend and store it for later sessions.

The token is read from --token, or from the first line of stdin when the flag
is omitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no token given: pass --token or pipe it on stdin")
				}
				token = line
			}
			token = strings.TrimSpace(token)

			res, err := a.client.Verify(cmd.Context(), token)
			if err != nil {
				if shared.IsAuth(err) {
					return fmt.Errorf("token rejected: %w", err)
				}
				return err
			}
			if err := a.creds.Save(cmd.Context(), token); err != nil {
				return fmt.Errorf("save credential: %w", err)
			}
			a.logger.Info("Logged in from command line", "user_id", res.UserID)
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", res.UserID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "access token to verify")
	return cmd
}

func newLogoutCmd(getApp func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			if err := a.creds.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear credential: %w", err)
			}
			a.logger.Info("Logged out from command line")
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
