package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	llmEndpointFlag    string
	speechEndpointFlag string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change endpoint and model preferences",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current preferences",
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
		model := cur.Model
		if model == "" {
			model = dimStyle.Render("(endpoint default)")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render("Settings")+" "+metaStyle.Render(res.Config.SettingsPath))
		fmt.Fprintf(out, "  llm endpoint     %s\n", cur.LLMEndpoint)
		fmt.Fprintf(out, "  speech endpoint  %s\n", cur.SpeechEndpoint)
		fmt.Fprintf(out, "  model            %s\n", model)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the generate or speech endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		flags := cmd.Flags()
		if !flags.Changed("llm-endpoint") && !flags.Changed("speech-endpoint") {
			return errors.New("nothing to change: pass --llm-endpoint or --speech-endpoint")
		}
		res, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup(res, &err)

		cur, err := res.Settings.Load(cmd.Context())
		if err != nil {
			return err
		}
		if flags.Changed("llm-endpoint") {
			cur.LLMEndpoint = llmEndpointFlag
		}
		if flags.Changed("speech-endpoint") {
			cur.SpeechEndpoint = speechEndpointFlag
		}
		if err := res.Settings.Save(cmd.Context(), cur); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Saved "+res.Config.SettingsPath)
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().StringVar(&llmEndpointFlag, "llm-endpoint", "", "Generate endpoint, e.g. http://localhost:11434")
	settingsSetCmd.Flags().StringVar(&speechEndpointFlag, "speech-endpoint", "", "Speech endpoint, e.g. http://localhost:8880")
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
