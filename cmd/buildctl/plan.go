package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"heftcoder/pkg/client"
	"heftcoder/pkg/models"
)

const maxClarifyRounds = 3

type planOptions struct {
	answers   []string
	asks      []string
	revisions []string
	refine    string
	approve   bool
	outDir    string
	transport string
	noInput   bool
}

func newPlanCmd() *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan <description>",
		Short: "Ask the architect for a plan, optionally build it",
		Example: `  buildctl plan "a landing page for a bakery" --approve --out ./bakery
  buildctl plan "todo app" --answer audience=students --approve
  buildctl plan "crm" --ask "which database will you use?" --revise "drop the backend"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPlan(ctx, opts, strings.Join(args, " "), os.Stdin, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&opts.answers, "answer", nil, "answer a clarifying question as id=value (repeatable)")
	f.StringArrayVar(&opts.asks, "ask", nil, "ask the architect about the plan before building (repeatable)")
	f.StringArrayVar(&opts.revisions, "revise", nil, "reject the plan with this feedback and plan again (repeatable)")
	f.StringVar(&opts.refine, "refine", "", "after building, refine the project with this feedback")
	f.BoolVar(&opts.approve, "approve", false, "build the plan without asking")
	f.StringVarP(&opts.outDir, "out", "o", "", "write generated files to this directory")
	f.StringVar(&opts.transport, "transport", string(client.TransportJob), "planning transport: job or stream")
	f.BoolVar(&opts.noInput, "no-input", false, "never prompt; fail when input would be needed")
	return cmd
}

func runPlan(ctx context.Context, opts *planOptions, description string, in io.Reader, out io.Writer) error {
	kind := client.TransportKind(opts.transport)
	if kind != client.TransportJob && kind != client.TransportStream {
		return fmt.Errorf("unknown transport %q", opts.transport)
	}
	answers, err := parseAnswers(opts.answers)
	if err != nil {
		return err
	}

	printer := newProgressPrinter(out)
	orch := client.New(client.Config{
		BaseURL:         serverURL,
		PlanTransport:   kind,
		AnswerTransport: kind,
		Logger:          logger(),
		OnChange:        printer.onChange,
	})
	input := bufio.NewReader(in)

	if err := orch.RequestPlan(ctx, description); err != nil {
		return err
	}
	// The architect may ask more than once.
	for round := 0; orch.State().Phase == client.PhaseClarifying; round++ {
		if round == maxClarifyRounds {
			return fmt.Errorf("the architect is still asking questions after %d rounds", round)
		}
		questions := orch.State().Questions
		if missing := unanswered(questions, answers); len(missing) > 0 {
			if opts.noInput {
				return fmt.Errorf("the architect needs answers for: %s", strings.Join(questionIDs(missing), ", "))
			}
			if err := promptAnswers(input, out, missing, answers); err != nil {
				return err
			}
		}
		if err := orch.AnswerQuestions(ctx, answers); err != nil {
			return err
		}
	}

	for _, feedback := range opts.revisions {
		if err := orch.RejectPlan(ctx, feedback); err != nil {
			return err
		}
	}

	state := orch.State()
	if state.Plan == nil {
		return client.ErrNoPlan
	}
	printPlan(out, state.Plan)

	for _, q := range opts.asks {
		if err := orch.AskQuestion(ctx, q); err != nil {
			return err
		}
	}

	if !opts.approve {
		if opts.noInput {
			return nil
		}
		ok, err := confirm(input, out, "Build this plan?")
		if err != nil || !ok {
			return err
		}
	}

	if err := orch.ApprovePlan(ctx); err != nil {
		return err
	}
	if opts.refine != "" {
		if err := orch.RefineProject(ctx, opts.refine); err != nil {
			return err
		}
	}

	state = orch.State()
	printSummary(out, state)
	if opts.outDir != "" {
		n, err := writeProject(opts.outDir, state.Project)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d files to %s\n", n, opts.outDir)
	}
	return nil
}

// parseAnswers turns id=value pairs into an answer map.
func parseAnswers(pairs []string) (map[string]string, error) {
	answers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		id, value, ok := strings.Cut(p, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --answer %q, want id=value", p)
		}
		answers[id] = strings.TrimSpace(value)
	}
	return answers, nil
}

func unanswered(questions []models.ClarifyingQuestion, answers map[string]string) []models.ClarifyingQuestion {
	var out []models.ClarifyingQuestion
	for _, q := range questions {
		if strings.TrimSpace(answers[q.ID]) == "" {
			out = append(out, q)
		}
	}
	return out
}

func questionIDs(questions []models.ClarifyingQuestion) []string {
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func promptAnswers(in *bufio.Reader, out io.Writer, questions []models.ClarifyingQuestion, answers map[string]string) error {
	for _, q := range questions {
		fmt.Fprintf(out, "\n%s\n", q.Question)
		for i, opt := range q.Options {
			fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
		}
		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return fmt.Errorf("reading answer for %s: %w", q.ID, err)
		}
		answers[q.ID] = pickOption(q, strings.TrimSpace(line))
	}
	return nil
}

// pickOption maps a numeric reply to the matching choice.
func pickOption(q models.ClarifyingQuestion, reply string) string {
	var n int
	if _, err := fmt.Sscanf(reply, "%d", &n); err == nil && fmt.Sprint(n) == reply && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1]
	}
	return reply
}

func confirm(in *bufio.Reader, out io.Writer, prompt string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
