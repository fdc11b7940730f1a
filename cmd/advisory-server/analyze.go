package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/curalink-advisory/internal/domain"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Answer one advisory request and print the result as JSON",
	Long: `analyze runs a single request through the same pipeline as the HTTP API:
cache, model gateway, reply parser and fallback.

  advisory-server analyze --kind condition --text "recurrent migraines and vertigo"
  advisory-server analyze --kind research --specialty Oncology --interest Immunotherapy
  advisory-server analyze --kind trial --title "..." --description "..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := requestFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cmd, withStdioSafeLogging)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.service.Advise(cmd.Context(), req)
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	addRequestFlags(analyzeCmd.Flags())
	rootCmd.AddCommand(analyzeCmd)
}

func addRequestFlags(fs *pflag.FlagSet) {
	fs.String("kind", string(domain.KindCondition), "request kind: condition, research or trial")
	fs.String("text", "", "condition description (condition)")
	fs.StringSlice("specialty", nil, "researcher specialty, repeatable (research)")
	fs.StringSlice("interest", nil, "research interest, repeatable (research)")
	fs.String("question", "", "optional research question (research)")
	fs.String("title", "", "trial title (trial)")
	fs.String("description", "", "trial description (trial)")
}

// requestFromFlags builds the request named by --kind.
func requestFromFlags(cmd *cobra.Command) (domain.AdvisoryRequest, error) {
	flags := cmd.Flags()
	kind, _ := flags.GetString("kind")

	switch kind {
	case string(domain.KindCondition):
		text, _ := flags.GetString("text")
		return domain.ConditionQuery{Text: text}, nil
	case string(domain.KindResearch):
		specialties, _ := flags.GetStringSlice("specialty")
		interests, _ := flags.GetStringSlice("interest")
		question, _ := flags.GetString("question")
		return domain.NewResearchQuery(specialties, interests, question), nil
	case "trial", string(domain.KindTrialSummary):
		title, _ := flags.GetString("title")
		description, _ := flags.GetString("description")
		return domain.TrialSummaryQuery{Title: title, Description: description}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q: want condition, research or trial", kind)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
