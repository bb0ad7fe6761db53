package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/member-qa/internal/hybrid"
)

var (
	askJSON    bool
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question> [question...]",
	Short: "Answer one or more questions about member data",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "ask")
		if err != nil {
			return err
		}
		defer env.Close()

		out := cmd.OutOrStdout()
		if len(args) == 1 {
			resp, err := env.Orchestrator.Ask(ctx, args[0])
			if err != nil {
				return err
			}
			return printAnswers(out, []hybrid.BatchItem{{Question: args[0], Response: resp}}, askJSON, askVerbose)
		}

		items, err := env.Orchestrator.AskBatch(ctx, args)
		if err != nil {
			return err
		}
		return printAnswers(out, items, askJSON, askVerbose)
	},
}

type askResult struct {
	Question string           `json:"question"`
	Response *hybrid.Response `json:"response,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// printAnswers writes one answer per question, as JSON lines or text.
func printAnswers(out io.Writer, items []hybrid.BatchItem, asJSON, verbose bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, it := range items {
			r := askResult{Question: it.Question, Response: it.Response}
			if it.Err != nil {
				r.Error = it.Err.Error()
			}
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	for i, it := range items {
		if len(items) > 1 {
			if i > 0 {
				_, _ = fmt.Fprintln(out)
			}
			_, _ = fmt.Fprintf(out, "Q: %s\n", it.Question)
		}
		if it.Err != nil {
			_, _ = fmt.Fprintf(out, "error: %v\n", it.Err)
			continue
		}
		_, _ = fmt.Fprintln(out, it.Response.Answer.Text)
		if verbose {
			path := make([]string, len(it.Response.Path))
			for j, s := range it.Response.Path {
				path[j] = string(s)
			}
			_, _ = fmt.Fprintf(out, "  provenance: %s\n", it.Response.Answer.Provenance)
			_, _ = fmt.Fprintf(out, "  path:       %s\n", strings.Join(path, " -> "))
			if len(it.Response.Reasons) > 0 {
				_, _ = fmt.Fprintf(out, "  declined:   %s\n", strings.Join(it.Response.Reasons, "; "))
			}
			_, _ = fmt.Fprintf(out, "  snapshot:   %s (stale=%t)\n", truncateID(it.Response.SnapshotID), it.Response.Stale)
		}
	}
	return nil
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print answers as JSON lines")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print provenance and the engines tried")
	rootCmd.AddCommand(askCmd)
}
