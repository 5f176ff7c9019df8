package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/store"
)

const timeLayout = "2006-01-02 15:04:05"

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recently updated sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			if d.db == nil {
				return fmt.Errorf("listing sessions needs the sqlite backend")
			}
			list, err := d.db.Sessions().List(ctx, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Stage", "Completed", "Terminated", "Updated"})
			for _, s := range list {
				tw.AppendRow(table.Row{s.ID, s.Stage, s.Completed, s.Terminated, s.UpdatedAt.Local().Format(timeLayout)})
			}
			tw.Render()
			return nil
		})
	},
}

var progressCmd = &cobra.Command{
	Use:   "progress <session-id>",
	Short: "Show how far a session has come",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			p, err := d.orch.GetProgress(ctx, args[0])
			if err != nil {
				return err
			}
			printProgress(cmd.OutOrStdout(), p)
			return nil
		})
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile <session-id>",
	Short: "Show the finished learner profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			p, err := d.orch.Profile(ctx, args[0])
			if err != nil {
				return err
			}
			low := make(map[assessment.Stage]bool, len(p.LowConfidence))
			for _, st := range p.LowConfidence {
				low[st] = true
			}
			tw := newTable(cmd.OutOrStdout())
			tw.SetTitle("Profile " + p.SessionID)
			tw.AppendHeader(table.Row{"Stage", "Value", "Needs Review"})
			values := []string{p.Topic, p.Goal, p.Time, p.Budget, p.Level}
			for i, st := range assessment.Stages() {
				review := ""
				if low[st] {
					review = "yes"
				}
				tw.AppendRow(table.Row{st.DisplayName(), values[i], review})
			}
			tw.Render()
			return nil
		})
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate <session-id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			resp, err := d.orch.Terminate(ctx, args[0], reason)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Reply)
			return nil
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <session-id>",
	Short: "List the stage transitions of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			log, err := d.eventLog()
			if err != nil {
				return err
			}
			events, err := log.QueryStageEvents(ctx, args[0], store.QueryOpts{Limit: limit})
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stage events found.")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"Seq", "Timestamp", "Stage", "Kind", "Value", "Confidence", "Attempts"})
			for _, e := range events {
				tw.AppendRow(table.Row{
					e.Sequence,
					e.Timestamp.Local().Format(timeLayout),
					e.Stage,
					e.Kind,
					truncate(e.Value, 40),
					fmt.Sprintf("%.2f", e.Confidence),
					e.Attempts,
				})
			}
			tw.Render()
			return nil
		})
	},
}

func printProgress(out io.Writer, p *assessment.Progress) {
	tw := newTable(out)
	tw.SetTitle(fmt.Sprintf("%s  %d/%d  %d%%", p.SessionID, p.StageIndex, assessment.StageCount, p.Percentage))
	tw.AppendHeader(table.Row{"", "Stage", "Status", "Value"})
	for _, s := range p.Stages {
		marker := ""
		if s.Current && !p.Complete {
			marker = "▶"
		}
		tw.AppendRow(table.Row{marker, s.DisplayName, s.Status, s.Value})
	}
	switch {
	case p.Terminated:
		tw.AppendFooter(table.Row{"", "", "terminated", ""})
	case p.Complete:
		tw.AppendFooter(table.Row{"", "", "complete", ""})
	}
	tw.Render()
}

func newTable(out io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleLight)
	return tw
}

func init() {
	sessionsCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	eventsCmd.Flags().IntP("limit", "n", 0, "Number of events to show (0 = all)")
	terminateCmd.Flags().String("reason", "", "Reason recorded on the session")
}
