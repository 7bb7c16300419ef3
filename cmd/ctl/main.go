package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"team-activity-pipeline/internal/config"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/logging"
	"team-activity-pipeline/internal/queue"
	"team-activity-pipeline/internal/redis"
	"team-activity-pipeline/internal/signals"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

const rescorePageSize = 200

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logging.Configure(cfg.Log)

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:          "ctl",
		Short:        "Operate the team activity pipeline",
		SilenceUsage: true,
	}
	root.AddCommand(
		newEnrichCmd(cfg),
		newRescoreCmd(cfg),
		newAssignTeamCmd(cfg),
		newStatusCmd(cfg),
	)
	return root
}

func newEnrichCmd(cfg *config.Config) *cobra.Command {
	var teamID int64
	var batchSize int

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enqueue an enrichment job for a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			redisClient, err := redis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			publisher := queue.NewPublisher(redisClient, cfg.Redis.QueueName, cfg.Worker.MaxRetries)
			jobID, err := publisher.PublishEnrichmentJob(ctx, teamID, batchSize)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enqueued enrichment job %s for team %d\n", jobID, teamID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&teamID, "team", 0, "team id")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "override the configured batch size")
	cmd.MarkFlagRequired("team")
	return cmd
}

func newRescoreCmd(cfg *config.Config) *cobra.Command {
	var teamID int64

	cmd := &cobra.Command{
		Use:   "rescore",
		Short: "Recompute detection flags and confidence scores for a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := rescoreTeam(ctx, db, signals.NewScorer(db), teamID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rescored %d pull requests for team %d\n", n, teamID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&teamID, "team", 0, "team id")
	cmd.MarkFlagRequired("team")
	return cmd
}

type teamPullRequests interface {
	ListTeamPullRequests(ctx context.Context, teamID, afterID int64, limit int) ([]*database.PullRequest, error)
}

type flagRefresher interface {
	RefreshFlags(ctx context.Context, pr *database.PullRequest) (float64, error)
}

// rescoreTeam walks the team's pull requests page by page
func rescoreTeam(ctx context.Context, store teamPullRequests, scorer flagRefresher, teamID int64) (int, error) {
	var afterID int64
	total := 0
	for {
		prs, err := store.ListTeamPullRequests(ctx, teamID, afterID, rescorePageSize)
		if err != nil {
			return total, err
		}
		for _, pr := range prs {
			if _, err := scorer.RefreshFlags(ctx, pr); err != nil {
				return total, err
			}
			total++
			afterID = pr.ID
		}
		if len(prs) < rescorePageSize {
			return total, nil
		}
	}
}

func newAssignTeamCmd(cfg *config.Config) *cobra.Command {
	var installationID, teamID int64

	cmd := &cobra.Command{
		Use:   "assign-team",
		Short: "Link an installation to a team and sync its repositories",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.AssignInstallationTeam(ctx, installationID, teamID); err != nil {
				return err
			}

			redisClient, err := redis.NewClient(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			defer redisClient.Close()

			publisher := queue.NewPublisher(redisClient, cfg.Redis.QueueName, cfg.Worker.MaxRetries)
			if err := publisher.PublishInstallationSyncJob(ctx, installationID); err != nil {
				slog.Warn("Team assigned but sync could not be queued", "installationId", installationID, "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installation %d assigned to team %d\n", installationID, teamID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&installationID, "installation", 0, "GitHub installation id")
	cmd.Flags().Int64Var(&teamID, "team", 0, "team id")
	cmd.MarkFlagRequired("installation")
	cmd.MarkFlagRequired("team")
	return cmd
}

func newStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pipeline status of every team",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			teams, err := db.ListTeamOverviews(ctx)
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Team", "Name", "Status", "Pull requests", "Unanalyzed", "Changed"})
			for _, t := range teams {
				changed := "-"
				if t.PipelineStatusChangedAt != nil {
					changed = t.PipelineStatusChangedAt.Format("2006-01-02 15:04")
				}
				table.Append([]string{
					strconv.FormatInt(t.ID, 10),
					t.Name,
					string(t.PipelineStatus),
					strconv.Itoa(t.PullRequests),
					strconv.Itoa(t.Unanalyzed),
					changed,
				})
			}
			table.Render()
			return nil
		},
	}
}
