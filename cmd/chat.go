package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/learnintake/internal/assessment"
	"github.com/abhisek/learnintake/internal/dialog"
)

var (
	assistantColor = color.New(color.FgCyan).SprintFunc()
	stageColor     = color.New(color.FgYellow).SprintFunc()
	promptColor    = color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor     = color.New(color.FgRed).SprintFunc()
)

var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Run an assessment conversation in the terminal",
	Long:  "Reads one learner utterance per line from stdin. Resumes the session when an id is given.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := uuid.NewString()
		if len(args) == 1 {
			id = args[0]
		}
		return withDeps(cmd, true, func(ctx context.Context, d *deps) error {
			return chat(ctx, d.orch, id, cmd.InOrStdin(), cmd.OutOrStdout())
		})
	},
}

// chat runs the read-reply loop until the session closes or input ends.
func chat(ctx context.Context, orch *dialog.Orchestrator, id string, in io.Reader, out io.Writer) error {
	resp, err := orch.Start(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "세션: %s\n\n", id)
	printReply(out, resp)
	if resp.Complete || resp.Terminated {
		return nil
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptColor("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		resp, err := orch.HandleUtterance(ctx, id, text)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, errorColor(dialog.UserMessage(err)))
			continue
		}
		printReply(out, resp)
		if resp.Complete || resp.Terminated {
			return nil
		}
	}
}

func printReply(out io.Writer, r *dialog.Response) {
	fmt.Fprintln(out, assistantColor(r.Reply))
	if !r.Complete && !r.Terminated {
		fmt.Fprintln(out, stageColor(fmt.Sprintf("[%d/%d %s]", r.StageIndex, assessment.StageCount, r.Stage.DisplayName())))
	}
	fmt.Fprintln(out)
}
