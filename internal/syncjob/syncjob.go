// Package syncjob pulls installation repositories and pull request activity
// from GitHub through the rate-limited gateway.
package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"team-activity-pipeline/internal/apperrors"
	"team-activity-pipeline/internal/database"
	"team-activity-pipeline/internal/gateway"
	"team-activity-pipeline/internal/ghapp"
	"team-activity-pipeline/internal/queue"
	"team-activity-pipeline/internal/signals"

	"github.com/google/go-github/v61/github"
	"github.com/samber/lo"
)

// DefaultRateLimitDelay is used when a rate-limited response carried no hint
const DefaultRateLimitDelay = time.Minute

const perPage = 100

type InstallationStore interface {
	GetInstallation(ctx context.Context, installationID int64) (*database.Installation, error)
	UpsertTrackedRepository(ctx context.Context, repo *database.TrackedRepository) error
	DeactivateMissingRepositories(ctx context.Context, installationID int64, keepRepoIDs []int64) (int64, error)
}

type PullRequestStore interface {
	GetPullRequest(ctx context.Context, id int64) (*database.PullRequest, error)
	ReplacePullRequestActivity(ctx context.Context, prID int64, commits []*database.PRCommit, reviews []*database.PRReview, files []*database.PRFile) error
}

type FlagRefresher interface {
	RefreshFlags(ctx context.Context, pr *database.PullRequest) (float64, error)
}

type Syncer struct {
	installations InstallationStore
	pullRequests  PullRequestStore
	clients       ghapp.ClientProvider
	gw            *gateway.Gateway
	scorer        FlagRefresher
}

func NewSyncer(installations InstallationStore, pullRequests PullRequestStore, clients ghapp.ClientProvider, gw *gateway.Gateway, scorer FlagRefresher) *Syncer {
	return &Syncer{
		installations: installations,
		pullRequests:  pullRequests,
		clients:       clients,
		gw:            gw,
		scorer:        scorer,
	}
}

// SyncInstallation reconciles the tracked repositories of an installation
// with the repositories GitHub reports it can access. Installations without a
// team, inactive or suspended are left alone.
func (s *Syncer) SyncInstallation(ctx context.Context, installationID int64) (int, error) {
	logger := slog.With("installationId", installationID)

	inst, err := s.installations.GetInstallation(ctx, installationID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.Warn("Installation not found, nothing to sync")
			return 0, nil
		}
		return 0, err
	}
	if inst.TeamID == nil {
		logger.Info("Installation has no team yet, skipping sync")
		return 0, nil
	}
	if !inst.IsActive || inst.SuspendedAt != nil {
		logger.Info("Installation inactive or suspended, skipping sync")
		return 0, nil
	}

	client, err := s.clients.Get(ctx, installationID)
	if err != nil {
		return 0, fmt.Errorf("failed to build client for installation %d: %w", installationID, err)
	}

	repos, err := paginate(ctx, s.gw, func(ctx context.Context, opts *github.ListOptions) ([]*github.Repository, *github.Response, error) {
		list, resp, err := client.Apps.ListRepos(ctx, opts)
		if list == nil {
			return nil, resp, err
		}
		return list.Repositories, resp, err
	})
	if err != nil {
		return 0, s.retryable(err)
	}

	keep := make([]int64, 0, len(repos))
	for _, repo := range repos {
		tracked := &database.TrackedRepository{
			TeamID:         *inst.TeamID,
			InstallationID: installationID,
			GitHubRepoID:   repo.GetID(),
			FullName:       repo.GetFullName(),
		}
		if err := s.installations.UpsertTrackedRepository(ctx, tracked); err != nil {
			return 0, err
		}
		keep = append(keep, repo.GetID())
	}

	deactivated, err := s.installations.DeactivateMissingRepositories(ctx, installationID, keep)
	if err != nil {
		return 0, err
	}

	logger.Info("Installation synced", "repositories", len(keep), "deactivated", deactivated)
	return len(keep), nil
}

// SyncPullRequest replaces the commits, reviews and files of a pull request
// with what GitHub reports now, then recomputes its detection flags and score
func (s *Syncer) SyncPullRequest(ctx context.Context, prID int64) error {
	logger := slog.With("prId", prID)

	pr, err := s.pullRequests.GetPullRequest(ctx, prID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			logger.Warn("Pull request not found, nothing to sync")
			return nil
		}
		return err
	}

	owner, repo, ok := strings.Cut(pr.RepoFullName, "/")
	if !ok {
		return queue.Permanent(fmt.Errorf("invalid repository name %q", pr.RepoFullName))
	}

	client, err := s.clients.Get(ctx, pr.InstallationID)
	if err != nil {
		return fmt.Errorf("failed to build client for installation %d: %w", pr.InstallationID, err)
	}

	commits, err := s.listCommits(ctx, client, owner, repo, pr)
	if err != nil {
		return s.retryable(err)
	}
	reviews, err := s.listReviews(ctx, client, owner, repo, pr)
	if err != nil {
		return s.retryable(err)
	}
	files, err := s.listFiles(ctx, client, owner, repo, pr)
	if err != nil {
		return s.retryable(err)
	}

	for _, r := range reviews {
		_, r.IsAIReview = signals.ReviewerTool(r.ReviewerLogin)
	}

	if err := s.pullRequests.ReplacePullRequestActivity(ctx, pr.ID, commits, reviews, files); err != nil {
		return err
	}

	pr.Commits = commits
	pr.Reviews = reviews
	pr.Files = files
	pr.AIToolsDetected = nil
	signals.ApplyTextDetection(pr)

	score, err := s.scorer.RefreshFlags(ctx, pr)
	if err != nil {
		return err
	}

	logger.Info("Pull request synced",
		"commits", len(commits),
		"reviews", len(reviews),
		"files", len(files),
		"score", score,
	)
	return nil
}

func (s *Syncer) listCommits(ctx context.Context, client *github.Client, owner, repo string, pr *database.PullRequest) ([]*database.PRCommit, error) {
	page, err := paginate(ctx, s.gw, func(ctx context.Context, opts *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
		return client.PullRequests.ListCommits(ctx, owner, repo, pr.Number, opts)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(page, func(c *github.RepositoryCommit, _ int) *database.PRCommit {
		commit := &database.PRCommit{
			PullRequestID: pr.ID,
			SHA:           c.GetSHA(),
			Message:       c.GetCommit().GetMessage(),
			AuthorLogin:   c.GetAuthor().GetLogin(),
		}
		signals.AnalyzeCommit(commit)
		return commit
	}), nil
}

func (s *Syncer) listReviews(ctx context.Context, client *github.Client, owner, repo string, pr *database.PullRequest) ([]*database.PRReview, error) {
	page, err := paginate(ctx, s.gw, func(ctx context.Context, opts *github.ListOptions) ([]*github.PullRequestReview, *github.Response, error) {
		return client.PullRequests.ListReviews(ctx, owner, repo, pr.Number, opts)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(page, func(r *github.PullRequestReview, _ int) *database.PRReview {
		return &database.PRReview{
			PullRequestID:  pr.ID,
			GitHubReviewID: r.GetID(),
			ReviewerLogin:  r.GetUser().GetLogin(),
			State:          r.GetState(),
			Body:           r.GetBody(),
		}
	}), nil
}

func (s *Syncer) listFiles(ctx context.Context, client *github.Client, owner, repo string, pr *database.PullRequest) ([]*database.PRFile, error) {
	page, err := paginate(ctx, s.gw, func(ctx context.Context, opts *github.ListOptions) ([]*github.CommitFile, *github.Response, error) {
		return client.PullRequests.ListFiles(ctx, owner, repo, pr.Number, opts)
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(page, func(f *github.CommitFile, _ int) *database.PRFile {
		return &database.PRFile{
			PullRequestID: pr.ID,
			Filename:      f.GetFilename(),
			Additions:     f.GetAdditions(),
			Deletions:     f.GetDeletions(),
		}
	}), nil
}

// paginate follows NextPage links, sending every page through the gateway
func paginate[T any](ctx context.Context, gw *gateway.Gateway, list func(ctx context.Context, opts *github.ListOptions) ([]T, *github.Response, error)) ([]T, error) {
	var out []T
	opts := &github.ListOptions{PerPage: perPage}
	for {
		var resp *github.Response
		err := gw.Execute(ctx, func(ctx context.Context) (*github.Response, error) {
			page, r, err := list(ctx, opts)
			resp = r
			out = append(out, page...)
			return r, err
		})
		if err != nil {
			return nil, err
		}
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// retryable turns a gateway rate-limit failure into a job error the consumer
// re-runs after the quota is expected back
func (s *Syncer) retryable(err error) error {
	if !apperrors.IsRateLimited(err) {
		return err
	}
	delay := s.gw.BackoffDelay()
	if delay <= 0 {
		delay = DefaultRateLimitDelay
	}
	return queue.Retry(err, delay)
}
