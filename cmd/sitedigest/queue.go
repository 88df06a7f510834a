package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sitedigest/internal/app"
	"sitedigest/internal/intake"
	"sitedigest/pkg/systemd"
)

func newEnqueueCmd(f *rootFlags) *cobra.Command {
	var p intake.Payload
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue one event for the next digest",
		Example: `  sitedigest enqueue --to alice@example.com --type comment_notification --subject 42
  sitedigest enqueue --to admin@example.com --type core_update_success --subject 6.4.2`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(f, func(a *app.App) error {
				e, err := a.Acceptor().Accept(cmd.Context(), p)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued #%d %s for %s\n", e.Seq, e.Type, e.Recipient)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&p.Recipient, "to", "", "recipient email address")
	cmd.Flags().StringVar(&p.Type, "type", "", "event type")
	cmd.Flags().StringVar(&p.Subject, "subject", "", "comment/user ID or version string")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newQueueCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show what is waiting for the next digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(f, func(a *app.App) error {
				snap, err := a.Store().GetAll(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if snap.Empty() {
					fmt.Fprintln(out, "queue empty")
				} else {
					tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "RECIPIENT\tEVENTS\tOLDEST")
					for _, r := range snap.Recipients {
						evs := snap.Events[r]
						fmt.Fprintf(tw, "%s\t%d\t%s\n", r, len(evs), humanize.Time(evs[0].OccurredAt))
					}
					_ = tw.Flush()
				}
				s := a.Driver().Settings()
				fmt.Fprintf(out, "schedule: %s at %02d:00", s.Frequency.Period, s.Frequency.Hour)
				if s.Frequency.Period != "daily" {
					fmt.Fprintf(out, " on %s", s.Frequency.Day)
				}
				fmt.Fprintf(out, " (%s), types: %s\n", s.Location, strings.Join(a.Registry().Types(), ", "))
				return nil
			})
		},
	}
}

func newPreviewCmd(f *rootFlags) *cobra.Command {
	var (
		to  string
		dir string
		at  string
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render the pending digests without sending or clearing them",
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(f, func(a *app.App) error {
				previews, err := a.Driver().Preview(cmd.Context(), now, to)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(previews) == 0 {
					fmt.Fprintln(out, "nothing to preview")
					return nil
				}
				for _, p := range previews {
					if p.Result.Empty() {
						fmt.Fprintf(out, "# %s: empty digest, would not be sent\n", p.Message.To)
						continue
					}
					if dir == "" {
						fmt.Fprintf(out, "# To: %s\n# Subject: %s\n\n%s\n\n", p.Message.To, p.Message.Subject, p.Message.Text)
						continue
					}
					name := filepath.Join(dir, strings.NewReplacer("@", "_at_", "/", "_").Replace(p.Message.To)+".html")
					if err := os.WriteFile(name, []byte(p.Message.HTML), 0o644); err != nil {
						return err
					}
					fmt.Fprintf(out, "wrote %s (%d entries)\n", name, p.Result.Entries())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "only this recipient")
	cmd.Flags().StringVar(&dir, "dir", "", "write HTML files here instead of printing text")
	cmd.Flags().StringVar(&at, "at", "", "render relative times as of this RFC 3339 timestamp")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var unit string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the systemd unit state of the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			u, err := systemd.UnitStatus(cmd.Context(), unit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (%s), load %s\n", u.Name, u.ActiveState, u.SubState, u.LoadState)
			if u.Running() && !u.ActiveSince.IsZero() {
				fmt.Fprintf(out, "active since %s (%s)\n", u.ActiveSince.Format(time.RFC3339), humanize.Time(u.ActiveSince))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&unit, "unit", "sitedigest.service", "systemd unit name")
	return cmd
}
