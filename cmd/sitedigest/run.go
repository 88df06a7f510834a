package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sitedigest/internal/app"
	"sitedigest/internal/dispatch"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	var (
		force bool
		at    string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Perform one digest pass now",
		Long:  "Checks the schedule, sends one digest per queued recipient and clears the queue. --force skips the schedule check.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(f, func(a *app.App) error {
				rep, err := a.RunOnce(cmd.Context(), now, force)
				printReport(cmd.OutOrStdout(), rep)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "send even if the digest is not due")
	cmd.Flags().StringVar(&at, "at", "", "pretend the current time is this RFC 3339 timestamp")
	return cmd
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: %w", err)
	}
	return t, nil
}

func printReport(w io.Writer, rep dispatch.Report) {
	switch {
	case rep.Busy:
		fmt.Fprintln(w, "another digest run is in progress")
		return
	case !rep.Due:
		fmt.Fprintln(w, "digest not due (use --force to send anyway)")
		return
	case rep.Events == 0:
		fmt.Fprintln(w, "queue empty, nothing sent")
		return
	}
	fmt.Fprintf(w, "%q: %s events for %d recipients in %s\n", rep.Subject,
		humanize.Comma(int64(rep.Events)), len(rep.Results), rep.Took.Round(time.Millisecond))
	for _, r := range rep.Results {
		line := fmt.Sprintf("  %-7s %s (%d entries", r.Status, r.Recipient, r.Entries)
		if r.Dropped+r.Skipped > 0 {
			line += fmt.Sprintf(", %d dropped, %d skipped", r.Dropped, r.Skipped)
		}
		if r.Attempts > 1 {
			line += fmt.Sprintf(", %d attempts", r.Attempts)
		}
		line += ")"
		if r.Err != nil {
			line += ": " + r.Err.Error()
		}
		fmt.Fprintln(w, line)
	}
	if rep.Cleared {
		fmt.Fprintf(w, "queue cleared up to #%d\n", rep.Watermark)
	}
}
