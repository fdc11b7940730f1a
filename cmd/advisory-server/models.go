package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/curalink-advisory/pkg/gemini"
)

type modelLister interface {
	ListModels(ctx context.Context) ([]gemini.Model, error)
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models that support content generation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Gemini.APIKey == "" {
			return fmt.Errorf("an API key is required to list models")
		}

		generator, err := newGenerator(cmd.Context(), cfg.Gemini, cfg.Gateway.Timeout)
		if err != nil {
			return err
		}
		lister, ok := generator.(modelLister)
		if !ok {
			return fmt.Errorf("transport %q cannot list models", cfg.Gemini.Transport)
		}

		all, _ := cmd.Flags().GetBool("all")
		return listModels(cmd.Context(), lister, cmd.OutOrStdout(), all)
	},
}

func init() {
	modelsCmd.Flags().Bool("all", false, "include models without generateContent support")
	rootCmd.AddCommand(modelsCmd)
}

func listModels(ctx context.Context, lister modelLister, out io.Writer, all bool) error {
	models, err := lister.ListModels(ctx)
	if err != nil {
		return err
	}
	if !all {
		models = gemini.GenerateContentModels(models)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDISPLAY NAME\tINPUT\tOUTPUT")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", m.Name, m.DisplayName, m.InputTokenLimit, m.OutputTokenLimit)
	}
	return tw.Flush()
}
