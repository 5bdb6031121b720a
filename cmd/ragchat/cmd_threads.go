package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/ashureev/ragchat/internal/store"
	"github.com/ashureev/ragchat/internal/threads"
)

func newThreadsCmd(getApp func() *app) *cobra.Command {
	var create bool
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List conversation threads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := getApp()
			ctx := cmd.Context()

			token, err := a.creds.Load(ctx)
			if errors.Is(err, store.ErrNoCredential) {
				return errors.New("not logged in: run 'ragchat login' first")
			}
			if err != nil {
				return fmt.Errorf("load credential: %w", err)
			}

			dir := threads.NewDirectory(a.client.WithToken(token), a.logger)
			if create {
				t, err := dir.Create(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created thread %d\n", t.ID)
			}
			if err := dir.Load(ctx); err != nil {
				return err
			}

			snap := dir.Snapshot()
			if len(snap.Threads) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No threads yet.")
				return nil
			}
			rows := make([][]string, 0, len(snap.Threads))
			for _, t := range snap.Threads {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.DisplayTitle(),
					t.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			tbl := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "TITLE", "CREATED").
				Rows(rows...)
			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&create, "new", false, "create a thread before listing")
	return cmd
}
