package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"bitmap/internal/agent"
	"bitmap/internal/config"
	"bitmap/internal/core"
)

func (c *cli) runCmd() *cobra.Command {
	var (
		configPath string
		workflow   string
		event      core.Event
	)

	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run the workflow once for an event and wait for the result",
		Example: "  ci run --event push --ref refs/heads/main\n  ci run --event pull_request --ref refs/pull/7/merge --branch main",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if workflow != "" {
				cfg.Workflow = workflow
			}

			wf, err := core.LoadWorkflow(cfg.Workflow)
			if err != nil {
				return err
			}
			if err := event.Validate(); err != nil {
				return err
			}
			if !wf.Matches(event) {
				fmt.Fprintf(cmd.OutOrStdout(), "workflow %q is not triggered by %s on %s\n", wf.Name, event.Name, event.Ref)
				return nil
			}

			a, err := agent.New(cfg, c.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			run := a.Runner.Run(ctx, uuid.NewString(), wf, event)
			printRun(cmd, run.Snapshot())
			if run.Status() != core.StatusSuccess {
				return fmt.Errorf("run %s finished with status %s", run.ID, run.Status())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", os.Getenv("CI_CONFIG"), "path to a YAML config file")
	cmd.Flags().StringVar(&workflow, "workflow", "", "workflow file, overrides the config")
	cmd.Flags().StringVar(&event.Name, "event", core.EventPush, "event name (push or pull_request)")
	cmd.Flags().StringVar(&event.Ref, "ref", "refs/heads/main", "git ref the event is for")
	cmd.Flags().StringVar(&event.SHA, "sha", "", "commit to check out")
	cmd.Flags().StringVar(&event.Branch, "branch", "", "branch used for filters, defaults to the ref's branch")
	return cmd
}

func printRun(cmd *cobra.Command, snap core.RunSnapshot) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s) %s\n", snap.ID, snap.Workflow, snap.Status)
	for _, job := range snap.Jobs {
		fmt.Fprintf(out, "  %-10s %s\n", job.Status, job.Name)
		for _, step := range job.Steps {
			fmt.Fprintf(out, "    %-10s %s", step.Status, step.Name)
			if step.Error != "" {
				fmt.Fprintf(out, ": %s", step.Error)
			}
			fmt.Fprintln(out)
		}
	}
}

