package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/abhisek/learnintake/internal/llm"
	"github.com/abhisek/learnintake/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect LLM request/response events",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")

		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			log, err := d.eventLog()
			if err != nil {
				return err
			}
			events, err := log.QueryLLMEvents(ctx, purpose, store.QueryOpts{Limit: limit})
			if err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No LLM events found.")
				return nil
			}

			tw := newTable(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Timestamp", "Purpose", "Model", "In", "Out", "Ms", "OK"})
			for _, e := range events {
				ok := "✓"
				if !e.Success {
					ok = "✗"
				}
				tw.AppendRow(table.Row{
					e.ID,
					e.Timestamp.Local().Format(timeLayout),
					e.Purpose,
					truncate(e.Model, 28),
					e.InputTokens,
					e.OutputTokens,
					e.LatencyMs,
					ok,
				})
			}
			tw.Render()
			return nil
		})
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "View full request/response for an LLM event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			log, err := d.eventLog()
			if err != nil {
				return err
			}
			e, err := log.GetLLMEvent(ctx, id)
			if err != nil {
				return fmt.Errorf("get event: %w", err)
			}
			if e == nil {
				return fmt.Errorf("event %d not found", id)
			}

			out := cmd.OutOrStdout()
			sep := strings.Repeat("─", 60)
			fmt.Fprintf(out, "ID:        %d\n", e.ID)
			fmt.Fprintf(out, "Time:      %s\n", e.Timestamp.Local().Format(timeLayout))
			fmt.Fprintf(out, "Provider:  %s\n", e.Provider)
			fmt.Fprintf(out, "Model:     %s\n", e.Model)
			fmt.Fprintf(out, "Purpose:   %s\n", e.Purpose)
			fmt.Fprintf(out, "Tokens:    %d in / %d out\n", e.InputTokens, e.OutputTokens)
			fmt.Fprintf(out, "Latency:   %dms\n", e.LatencyMs)
			fmt.Fprintf(out, "Success:   %v\n", e.Success)
			if e.ErrorMessage != "" {
				fmt.Fprintf(out, "Error:     %s\n", e.ErrorMessage)
			}

			for _, part := range []struct{ title, body string }{
				{"REQUEST", e.RequestBody},
				{"RESPONSE", e.ResponseBody},
			} {
				fmt.Fprintln(out)
				fmt.Fprintln(out, sep)
				fmt.Fprintln(out, part.title)
				fmt.Fprintln(out, sep)
				if part.body == "" {
					fmt.Fprintln(out, "(not captured)")
				} else {
					fmt.Fprintln(out, part.body)
				}
			}
			return nil
		})
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated LLM token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, false, func(ctx context.Context, d *deps) error {
			log, err := d.eventLog()
			if err != nil {
				return err
			}
			stats, err := log.LLMUsageByPurpose(ctx)
			if err != nil {
				return fmt.Errorf("query usage: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(stats) == 0 {
				fmt.Fprintln(out, "No LLM usage recorded yet.")
				return nil
			}

			tw := newTable(out)
			tw.SetTitle("Usage by Purpose")
			tw.AppendHeader(table.Row{"Purpose", "Calls", "Input", "Output", "Total", "Avg Ms"})
			var totalCalls, totalIn, totalOut int
			for _, st := range stats {
				tw.AppendRow(table.Row{st.Key, st.Calls, st.InputTokens, st.OutputTokens,
					st.InputTokens + st.OutputTokens, st.AvgLatencyMs})
				totalCalls += st.Calls
				totalIn += st.InputTokens
				totalOut += st.OutputTokens
			}
			tw.AppendFooter(table.Row{"TOTAL", totalCalls, totalIn, totalOut, totalIn + totalOut, ""})
			tw.Render()

			modelUsage, err := log.LLMUsageByModel(ctx)
			if err != nil {
				return fmt.Errorf("query model usage: %w", err)
			}
			if len(modelUsage) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			cost := newTable(out)
			cost.SetTitle("Estimated Cost (USD)")
			cost.AppendHeader(table.Row{"Model", "Calls", "Input", "Output", "Cost"})
			var totalCost float64
			var unknownModels []string
			for _, mu := range modelUsage {
				price := llm.LookupCost(mu.Key)
				if price == nil {
					unknownModels = append(unknownModels, mu.Key)
					cost.AppendRow(table.Row{truncate(mu.Key, 32), mu.Calls, mu.InputTokens, mu.OutputTokens, "?"})
					continue
				}
				c := price.Cost(mu.InputTokens, mu.OutputTokens)
				totalCost += c
				cost.AppendRow(table.Row{truncate(mu.Key, 32), mu.Calls, mu.InputTokens, mu.OutputTokens, formatCost(c)})
			}
			label := "TOTAL"
			if len(unknownModels) > 0 {
				label = "TOTAL (partial)"
			}
			cost.AppendFooter(table.Row{label, "", "", "", formatCost(totalCost)})
			cost.Render()

			if len(unknownModels) > 0 {
				fmt.Fprintf(out, "\nPricing unavailable for: %s\n", strings.Join(unknownModels, ", "))
			}
			return nil
		})
	},
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (e.g. extract:topic)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
