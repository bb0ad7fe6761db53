package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/member-qa/internal/cache"
	"github.com/sells-group/member-qa/internal/model"
	"github.com/sells-group/member-qa/internal/quality"
)

var (
	analyzeJSON    bool
	analyzeRefresh bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Profile the member feed and report data quality anomalies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		var snap *model.DatasetSnapshot
		if analyzeRefresh {
			snap, err = env.Cache.Refresh(ctx)
		} else {
			snap, err = env.Cache.GetSnapshot(ctx, cfg.Cache.MaxAge())
		}
		var stale *cache.StaleDataWarning
		if err != nil && !(errors.As(err, &stale) && snap != nil) {
			return err
		}

		profile := quality.BuildProfile(snap)
		findings := quality.Findings(profile, cfg.Resolver.PresenceThreshold)

		out := cmd.OutOrStdout()
		if analyzeJSON {
			return json.NewEncoder(out).Encode(struct {
				Profile  *model.Profile    `json:"profile"`
				Findings []quality.Finding `json:"findings"`
				Stale    bool              `json:"stale"`
			}{profile, findings, stale != nil})
		}

		if stale != nil {
			_, _ = fmt.Fprintf(out, "warning: %v\n\n", stale)
		}
		formatProfile(out, profile)
		_, _ = fmt.Fprintln(out)
		formatFindings(out, findings)
		return nil
	},
}

func formatProfile(out io.Writer, p *model.Profile) {
	_, _ = fmt.Fprintf(out, "Snapshot %s: %d records, %d redundant duplicates\n\n", truncateID(p.SnapshotID), p.Total, p.DuplicateRecords())

	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FIELD\tPRESENT\tMISSING\tNULL\tEMPTY\tTYPES")
	_, _ = fmt.Fprintln(w, "-----\t-------\t-------\t----\t-----\t-----")
	for _, name := range names {
		fp := p.Fields[name]
		_, _ = fmt.Fprintf(w, "%s\t%d (%.0f%%)\t%d\t%d\t%d\t%s\n",
			name,
			fp.Present,
			fp.PresenceFraction*100,
			fp.Missing,
			fp.Nulls,
			fp.Empty,
			strings.Join(fp.Types, ","),
		)
	}
	_ = w.Flush()
}

func formatFindings(out io.Writer, findings []quality.Finding) {
	if len(findings) == 0 {
		_, _ = fmt.Fprintln(out, "No anomalies found.")
		return
	}
	_, _ = fmt.Fprintf(out, "Anomalies (%d):\n", len(findings))
	for _, f := range findings {
		_, _ = fmt.Fprintf(out, "  %s\n", f)
	}
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the profile and findings as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeRefresh, "refresh", false, "fetch the feed even when the cached snapshot is fresh")
	rootCmd.AddCommand(analyzeCmd)
}
