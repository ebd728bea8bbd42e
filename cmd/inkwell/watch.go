package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"inkwell/internal/client"
	"inkwell/internal/config"
	"inkwell/internal/logging"
	"inkwell/internal/observability"
	"inkwell/internal/state"
)

func newWatchCommand(opts *cliOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch <workflow-id>",
		Short: "Stream a workflow's activity and answer its prompts",
		Long: `Attach to a workflow and stream agent messages to the terminal.
On a TTY, approval checkpoints and input requests become interactive
prompts; otherwise they are printed with instructions for the approve
and reject commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				cfg.Metrics.Enabled = true
				cfg.Metrics.ListenAddr = metricsAddr
			}
			return runWatch(cmd.OutOrStdout(), cfg, args[0])
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9464)")
	return cmd
}

func runWatch(out io.Writer, cfg config.Config, workflowID string) error {
	logger := logging.NewComponentLogger("cli")

	metrics, err := observability.NewMetricsCollector(cfg.Metrics, logger)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer func() { _ = metrics.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// hooks run on the stream goroutine; prompting there would stall the
	// stream, so checkpoints and questions queue up for the watch loop
	checkpoints := make(chan state.PendingCheckpoint, 4)
	inputs := make(chan state.PendingHumanInput, 4)
	completed := make(chan string, 1)

	options := clientOptions(cfg, workflowID)
	options.Logger = logger
	options.Metrics = metrics
	options.Hooks = client.Hooks{
		OnMessage: func(msg state.Message) {
			fmt.Fprintln(out, renderMessage(msg))
		},
		OnConnectionChange: func(status state.ConnectionStatus) {
			fmt.Fprintln(out, renderConnection(status))
		},
		OnCheckpoint: func(cp state.PendingCheckpoint) {
			select {
			case checkpoints <- cp:
			default:
			}
		},
		OnHumanInput: func(req state.PendingHumanInput) {
			select {
			case inputs <- req:
			default:
			}
		},
		OnComplete: func(final string) {
			select {
			case completed <- final:
			default:
			}
		},
	}

	c, err := client.New(options)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		// the registry keeps retrying with backoff; the transcript shows
		// the attempts, so the watch stays up
		logger.Warn("initial connection failed, retrying: %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case cp := <-checkpoints:
				handleCheckpointPrompt(ctx, out, c, cp)
			case req := <-inputs:
				handleInputPrompt(out, c, req)
			case final := <-completed:
				if final != "" {
					fmt.Fprintf(out, "\n%s\n\n%s\n", bold("final content:"), final)
				}
				fmt.Fprintln(out, renderSuccess("workflow completed"))
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// handleCheckpointPrompt collects a decision for a pending checkpoint.
// With no TTY it only prints what is pending and how to decide it from
// another terminal.
func handleCheckpointPrompt(ctx context.Context, out io.Writer, c *client.Client, cp state.PendingCheckpoint) {
	title := cp.Title
	if title == "" {
		title = cp.ID
	}
	fmt.Fprintf(out, "\n%s %s\n", yellow(bold("checkpoint:")), title)
	if cp.Description != "" {
		fmt.Fprintln(out, cp.Description)
	}
	if cp.ContentPreview != "" {
		fmt.Fprintln(out, gray(cp.ContentPreview))
	}

	if !isTTY() {
		fmt.Fprintf(out, "decide with: inkwell approve %s %s (or reject)\n", c.Store().WorkflowID(), cp.ID)
		return
	}

	selection := promptui.Select{
		Label: "Decision",
		Items: []string{"approve", "reject"},
	}
	_, choice, err := selection.Run()
	if err != nil {
		fmt.Fprintln(out, renderError("decision aborted, checkpoint stays pending"))
		return
	}

	feedbackPrompt := promptui.Prompt{Label: "Feedback (optional)"}
	feedback, err := feedbackPrompt.Run()
	if err != nil {
		feedback = ""
	}

	decisionCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if choice == "approve" {
		err = c.ApproveCheckpoint(decisionCtx, feedback)
	} else {
		err = c.RejectCheckpoint(decisionCtx, feedback)
	}
	if err != nil {
		fmt.Fprintln(out, renderError(fmt.Sprintf("decision failed, checkpoint stays pending: %v", err)))
		return
	}
	verb := "approved"
	if choice != "approve" {
		verb = "rejected"
	}
	fmt.Fprintln(out, renderSuccess("checkpoint "+verb))
}

// handleInputPrompt answers a pending human-input request according to
// its question type.
func handleInputPrompt(out io.Writer, c *client.Client, req state.PendingHumanInput) {
	question := req.Question
	if question == "" {
		question = "input requested"
	}
	fmt.Fprintf(out, "\n%s %s\n", yellow(bold("question:")), question)

	if !isTTY() {
		fmt.Fprintln(out, gray("no TTY available; the request stays pending"))
		return
	}

	answer, err := collectAnswer(req)
	if err != nil {
		fmt.Fprintln(out, renderError("answer aborted, request stays pending"))
		return
	}
	if err := c.RespondToHumanInput(answer); err != nil {
		fmt.Fprintln(out, renderError(fmt.Sprintf("answer failed, request stays pending: %v", err)))
	}
}

func collectAnswer(req state.PendingHumanInput) (string, error) {
	switch req.QuestionType {
	case state.QuestionYesNo, state.QuestionApproval:
		selection := promptui.Select{Label: "Answer", Items: []string{"yes", "no"}}
		_, choice, err := selection.Run()
		return choice, err
	case state.QuestionMultipleChoice:
		if len(req.Options) > 0 {
			selection := promptui.Select{Label: "Answer", Items: req.Options}
			_, choice, err := selection.Run()
			return choice, err
		}
		fallthrough
	default:
		prompt := promptui.Prompt{
			Label: "Answer",
			Validate: func(input string) error {
				if strings.TrimSpace(input) == "" {
					return errors.New("answer must not be empty")
				}
				return nil
			},
		}
		return prompt.Run()
	}
}
