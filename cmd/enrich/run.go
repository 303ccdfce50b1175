package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bdougie/contributor-enrichment/internal/app"
	"github.com/bdougie/contributor-enrichment/internal/service"
)

var errPartialRun = errors.New("one or more contributors failed")

// withService runs fn against a fully wired enrichment service.
func withService(ctx context.Context, fn func(*service.EnrichmentService) error) error {
	env, err := connect(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	svc, err := app.NewEnrichmentService(ctx, env.cfg, env.db, env.obs)
	if err != nil {
		return fmt.Errorf("create enrichment service: %w", err)
	}

	return fn(svc)
}

func contributorCmd() *cobra.Command {
	var workspace string

	cmd := &cobra.Command{
		Use:   "contributor <contributor-id>",
		Short: "Enrich one contributor within a workspace",
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

			return withService(cmd.Context(), func(svc *service.EnrichmentService) error {
				snapshot, err := svc.EnrichContributor(cmd.Context(), contributorID, workspaceID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), snapshot)
			})
		},
	}

	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace id (required)")
	_ = cmd.MarkFlagRequired("workspace")

	return cmd
}

func workspaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workspace <workspace-id>",
		Short: "Cluster workspace topics, then enrich every contributor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, err := parseID("workspace", args[0])
			if err != nil {
				return err
			}

			return withService(cmd.Context(), func(svc *service.EnrichmentService) error {
				summary, runErr := svc.EnrichWorkspace(cmd.Context(), workspaceID)
				if err := printJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
				if runErr != nil {
					return runErr
				}
				if len(summary.Failed) > 0 {
					return fmt.Errorf("%w: %d of %d", errPartialRun, len(summary.Failed), summary.Succeeded+len(summary.Failed))
				}
				return nil
			})
		},
	}
}

func topicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "topics <workspace-id>",
		Short: "Run only the workspace topic clustering phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspaceID, err := parseID("workspace", args[0])
			if err != nil {
				return err
			}

			return withService(cmd.Context(), func(svc *service.EnrichmentService) error {
				summary, err := svc.EnrichWorkspaceTopics(cmd.Context(), workspaceID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Enrich every active workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(svc *service.EnrichmentService) error {
				summary, err := svc.EnrichAllWorkspaces(cmd.Context())
				if summary != nil {
					if printErr := printJSON(cmd.OutOrStdout(), summary); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	}
}
