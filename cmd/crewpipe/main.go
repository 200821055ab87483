// Crewpipe runs a fixed crew of LLM agent roles over a shared transcript,
// executes the produced code in a locked-down container, and on a clean
// verdict delivers it as a GitHub pull request with an email notification.
//
// Usage:
//
//	# Run a task with defaults from ~/.config/crewpipe/config.yaml
//	crewpipe run "write a function that merges two sorted lists"
//
//	# Notify a requester and use an explicit config file
//	crewpipe run --notify dev@example.com --config ./crewpipe.yaml "add retry helper"
//
// The exit status reports the run outcome: 0 delivered, 2 aborted,
// 3 no artifact produced, 4 delivery failed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewpipe/crewpipe/internal/agent"
	"github.com/crewpipe/crewpipe/internal/config"
	"github.com/crewpipe/crewpipe/internal/delivery"
	"github.com/crewpipe/crewpipe/internal/logging"
	"github.com/crewpipe/crewpipe/internal/pipeline"
	"github.com/crewpipe/crewpipe/internal/sandbox"
)

// Version information (set via ldflags during build)
var version = "dev"

var (
	configPath string
	notify     string
	logLevel   string
	logFormat  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "crewpipe",
	Short: "Multi-agent pipeline for reviewed, sandboxed code delivery",
	Long: `crewpipe coordinates five agent roles (planner, writer, sanitizer,
reviewer, notifier) to turn a task description into a pull request.
The written code runs once in an isolated container before the run
decides whether to deliver it.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run \"task description\"",
	Short: "Run one pipeline pass for a task",
	Long: `Run one complete pipeline pass: the agent roles take turns on the
task, the most recent code turn is executed in the sandbox, and a clean
run plus a safe sanitizer verdict produces a pull request.

Examples:
  # Basic run
  crewpipe run "write a function that merges two sorted lists"

  # Email the requester on delivery
  crewpipe run --notify dev@example.com "add a retry helper"`,
	Args: cobra.ExactArgs(1),
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/crewpipe/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json or console")
	runCmd.Flags().StringVar(&notify, "notify", "", "email address to notify after delivery")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	logCfg, err := logging.ParseConfig(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	log, err := logging.NewLogger(logCfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	client, err := agent.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("create agent client: %w", err)
	}

	executor := sandbox.NewExecutor(cfg.Sandbox, log)

	publisher, err := delivery.NewGitHubPublisher(ctx, cfg.GitHub, log)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	mailer := delivery.NewSMTPMailer(cfg.SMTP)
	notifier := delivery.NewNotifier(mailer, log)

	coordinator := pipeline.NewCoordinator(client, executor, publisher, notifier, cfg.Pipeline, log)

	task := pipeline.Task{
		Description:      args[0],
		RequesterContact: notify,
	}

	outcome := coordinator.Run(ctx, task)

	switch outcome.Kind {
	case pipeline.OutcomeDelivered:
		fmt.Fprintf(cmd.OutOrStdout(), "delivered: %s\n", outcome.PullRequestURL)
	case pipeline.OutcomeNoArtifact:
		fmt.Fprintln(cmd.OutOrStdout(), "no code artifact was produced")
	default:
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", outcome.Kind, outcome.Reason)
	}

	log.Sync()
	os.Exit(outcome.ExitCode())
	return nil
}
