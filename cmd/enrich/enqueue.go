package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bdougie/contributor-enrichment/internal/app"
	"github.com/bdougie/contributor-enrichment/internal/workers"
)

// withEnqueuer runs fn against an insert-only River client; no jobs are worked in this process.
func withEnqueuer(ctx context.Context, fn func(*workers.Enqueuer) (bool, error)) (bool, error) {
	env, err := connect(ctx, false)
	if err != nil {
		return false, err
	}
	defer env.Close()

	client, err := app.NewRiverClient(env.db, app.RiverConfig(env.cfg, nil, false))
	if err != nil {
		return false, err
	}

	return fn(workers.NewEnqueuer(client, env.cfg.EnrichmentMaxAttempts, nil))
}

func reportEnqueued(cmd *cobra.Command, what string, enqueued bool) {
	if enqueued {
		fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s\n", what)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s already pending, skipped\n", what)
}

func enqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue enrichment jobs for the worker",
	}

	cmd.AddCommand(enqueueContributorCmd())
	cmd.AddCommand(enqueueWorkspaceCmd("workspace", "Enqueue a full workspace run", (*workers.Enqueuer).EnqueueWorkspace))
	cmd.AddCommand(enqueueWorkspaceCmd("topics", "Enqueue a workspace topic clustering run", (*workers.Enqueuer).EnqueueWorkspaceTopics))
	cmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Enqueue a run over every active workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enqueued, err := withEnqueuer(cmd.Context(), func(e *workers.Enqueuer) (bool, error) {
				return e.EnqueueAllWorkspaces(cmd.Context())
			})
			if err != nil {
				return err
			}
			reportEnqueued(cmd, "all-workspaces run", enqueued)
			return nil
		},
	})

	return cmd
}

func enqueueWorkspaceCmd(use, short string, enqueue func(*workers.Enqueuer, context.Context, uuid.UUID) (bool, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <workspace-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, err := parseID("workspace", args[0])
			if err != nil {
				return err
			}

			enqueued, err := withEnqueuer(cmd.Context(), func(e *workers.Enqueuer) (bool, error) {
				return enqueue(e, cmd.Context(), workspaceID)
			})
			if err != nil {
				return err
			}
			reportEnqueued(cmd, use+" "+workspaceID.String(), enqueued)
			return nil
		},
	}
}

func enqueueContributorCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "contributor <contributor-id>",
		Short: "Enqueue enrichment of one contributor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contributorID, err := parseID("contributor", args[0])
			if err != nil {
				return err
			}
			workspaceID, err := parseID("workspace", workspace)
			if err != nil {
				return err
			}

			enqueued, err := withEnqueuer(cmd.Context(), func(e *workers.Enqueuer) (bool, error) {
				return e.EnqueueContributor(cmd.Context(), contributorID, workspaceID)
			})
			if err != nil {
				return err
			}
			reportEnqueued(cmd, "contributor "+contributorID.String(), enqueued)
			return nil
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace id (required)")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}
