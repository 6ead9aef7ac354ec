package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ent0n29/pagechat/internal/content"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or remove saved page transcripts",
}

var historyShowCmd = &cobra.Command{
	Use:   "show <url>",
	Short: "Print the saved transcript for a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		pageID, _, err := content.NormalizeURL(args[0])
		if err != nil {
			return err
		}
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		t, ok, err := res.History.Get(cmd.Context(), pageID.String())
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		if !ok || len(t) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No saved transcript for "+pageID.String()))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), headerStyle.Render(pageID.String())+" "+metaStyle.Render(fmt.Sprintf("%d turns", len(t))))
		return printTurns(cmd.OutOrStdout(), t, 0)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear <url>",
	Short: "Remove the saved transcript for a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		pageID, _, err := content.NormalizeURL(args[0])
		if err != nil {
			return err
		}
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		if err := res.History.Remove(cmd.Context(), pageID.String()); err != nil {
			return fmt.Errorf("remove history: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cleared "+pageID.String())
		return nil
	},
}

func init() {
	historyShowCmd.Flags().StringVarP(&outputFormat, "format", "f", "terminal", "Output format: terminal, text or json")
	historyCmd.AddCommand(historyShowCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}
