package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/pagechat/internal/settings"
)

const listModelsTimeout = 10 * time.Second

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models available at the configured endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		cur, err := res.Settings.Load(cmd.Context())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), listModelsTimeout)
		defer cancel()
		models, err := res.Client.ListModels(ctx, cur.LLMEndpoint)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("Models")+" "+metaStyle.Render(cur.LLMEndpoint))
		if len(models) == 0 {
			fmt.Fprintln(out, dimStyle.Render("  none installed"))
			return nil
		}
		for _, m := range models {
			if m.ID == cur.Model {
				fmt.Fprintln(out, selectedStyle.Render("* "+m.ID))
				continue
			}
			fmt.Fprintln(out, "  "+m.ID)
		}
		return nil
	},
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage the selected generation model",
}

var modelSetCmd = &cobra.Command{
	Use:   "set <model>",
	Short: "Select the model used for summaries and answers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		s, err := settings.SetModel(cmd.Context(), res.Settings, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Selected model "+selectedStyle.Render(s.Model))
		return nil
	},
}

func init() {
	modelCmd.AddCommand(modelSetCmd)
	rootCmd.AddCommand(modelsCmd, modelCmd)
}
