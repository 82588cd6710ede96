package cli

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/greenghost107/TradersMind-chartBot/internal/retention"
	"github.com/greenghost107/TradersMind-chartBot/internal/server"
	"github.com/greenghost107/TradersMind-chartBot/internal/store"
	"github.com/greenghost107/TradersMind-chartBot/internal/tracking"
)

var (
	outputFormat string
	trackedKind  string
	runsLimit    int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show retention engine status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st server.StatusResponse
		if err := newAPIClient().Get(cmd.Context(), "/api/status", &st); err != nil {
			return err
		}
		return output(cmd, st, func() string { return renderStatus(st) })
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run a cleanup tick now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		var summary retention.TickSummary
		if err := newAPIClient().Post(ctx, "/api/cleanup", nil, &summary); err != nil {
			return err
		}
		return output(cmd, summary, func() string {
			head := successColor.Sprint("✓ cleanup finished")
			if summary.Errors > 0 {
				head = warningColor.Sprintf("⚠ cleanup finished with %d errors", summary.Errors)
			}
			return head + "\n" + renderSummary(summary)
		})
	},
}

var trackedCmd = &cobra.Command{
	Use:   "tracked",
	Short: "List tracked artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/api/tracked"
		if trackedKind != "" {
			path += "?kind=" + url.QueryEscape(trackedKind)
		}
		var artifacts []tracking.Artifact
		if err := newAPIClient().Get(cmd.Context(), path, &artifacts); err != nil {
			return err
		}
		return output(cmd, artifacts, func() string { return renderTracked(artifacts, time.Now()) })
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent cleanup runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var runs []store.Run
		if err := newAPIClient().Get(cmd.Context(), fmt.Sprintf("/api/runs?limit=%d", runsLimit), &runs); err != nil {
			return err
		}
		return output(cmd, runs, func() string { return renderRuns(runs) })
	},
}

// output writes v in the chosen format, falling back to the rendered view.
func output(cmd *cobra.Command, v any, render func() string) error {
	w := cmd.OutOrStdout()
	ok, err := writeStructured(w, outputFormat, v)
	if ok || err != nil {
		return err
	}
	if outputFormat != "" && outputFormat != "text" {
		return fmt.Errorf("unknown output format %q (text, json, yaml)", outputFormat)
	}
	_, err = fmt.Fprintln(w, render())
	return err
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, cleanupCmd, trackedCmd, runsCmd} {
		c.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")
	}
	trackedCmd.Flags().StringVar(&trackedKind, "kind", "", "only show one kind (chart_response, button_prompt, thread_system_notice)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs")
}
