package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"inkwell/internal/client"
	"inkwell/internal/config"
	"inkwell/internal/logging"
)

type cliOptions struct {
	configPath string
	serverURL  string
	token      string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "inkwell",
		Short: "Follow and steer multi-agent content workflows",
		Long: `inkwell attaches to a running content-generation workflow, streams
agent activity to the terminal and lets you answer the questions and
approval checkpoints the workflow raises.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: inkwell-config.json in $HOME or .)")
	rootCmd.PersistentFlags().StringVarP(&opts.serverURL, "server", "s", "", "Workflow service URL")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token")
	rootCmd.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newWatchCommand(opts))
	rootCmd.AddCommand(newStatusCommand(opts))
	rootCmd.AddCommand(newDecisionCommand(opts, true))
	rootCmd.AddCommand(newDecisionCommand(opts, false))

	return rootCmd
}

// loadConfig folds flag overrides over the layered file/env configuration
// and applies the resulting log level process-wide.
func (o *cliOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.serverURL != "" {
		cfg.ServerURL = strings.TrimRight(o.serverURL, "/")
	}
	if o.token != "" {
		cfg.Token = o.token
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	logging.SetLevel(cfg.LogLevel)
	return cfg, nil
}

func clientOptions(cfg config.Config, workflowID string) client.Options {
	return client.Options{
		WorkflowID:           workflowID,
		BaseURL:              cfg.ServerURL,
		StreamURL:            cfg.StreamURL,
		Token:                cfg.Token,
		RequestTimeout:       cfg.RequestTimeout,
		DialTimeout:          cfg.DialTimeout,
		KeepAliveInterval:    cfg.KeepAliveInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
		BootstrapHistory:     cfg.BootstrapHistory,
	}
}

func newStatusCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflow-id>",
		Short: "Show the current status of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			api := client.NewAPI(cfg.ServerURL, cfg.Token, cfg.RequestTimeout, logging.NewComponentLogger("cli"), nil)
			snapshot, err := api.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), snapshot)
			return nil
		},
	}
}

func newDecisionCommand(opts *cliOptions, approve bool) *cobra.Command {
	use, short, verb := "approve", "Approve a pending checkpoint", "approved"
	if !approve {
		use, short, verb = "reject", "Reject a pending checkpoint", "rejected"
	}

	var feedback string
	cmd := &cobra.Command{
		Use:   fmt.Sprintf("%s <workflow-id> <checkpoint-id>", use),
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			api := client.NewAPI(cfg.ServerURL, cfg.Token, cfg.RequestTimeout, logging.NewComponentLogger("cli"), nil)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if approve {
				err = api.ApproveCheckpoint(ctx, args[0], args[1], feedback)
			} else {
				err = api.RejectCheckpoint(ctx, args[0], args[1], feedback)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSuccess(fmt.Sprintf("checkpoint %s %s", args[1], verb)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&feedback, "feedback", "f", "", "Feedback to attach to the decision")
	return cmd
}
