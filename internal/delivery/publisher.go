// Package delivery performs the irreversible external actions of a run:
// publishing the approved artifact as a pull request and notifying the
// requester. It is only ever invoked after the gate decided PROCEED.
package delivery

import (
	"context"
	"fmt"

	"github.com/crewpipe/crewpipe/internal/config"
	"github.com/crewpipe/crewpipe/internal/logging"
	"github.com/google/go-github/v57/github"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Publisher is the source-hosting collaborator boundary: publish one artifact,
// return a durable reference (the pull request URL) or an error. Partial
// completion (branch created, commit failed) is an overall failure; branches
// left behind are not rolled back.
type Publisher interface {
	Publish(ctx context.Context, sourceText, commitMessage string) (string, error)
}

// The narrow slices of the go-github API the publisher uses. Tests substitute
// deterministic doubles.
type gitService interface {
	GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error)
	CreateRef(ctx context.Context, owner, repo string, ref *github.Reference) (*github.Reference, *github.Response, error)
}

type repositoriesService interface {
	CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error)
}

type pullRequestsService interface {
	Create(ctx context.Context, owner, repo string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error)
}

const (
	prTitle = "Automated code contribution"
	prBody  = "This pull request was opened by the crewpipe agent pipeline after a sandboxed, gated run."
)

// GitHubPublisher publishes artifacts through the GitHub API.
type GitHubPublisher struct {
	git   gitService
	repos repositoriesService
	pulls pullRequestsService

	owner      string
	repo       string
	baseBranch string
	commitPath string

	retry *RetryConfig
	log   *logging.Logger
}

// NewGitHubPublisher creates a publisher with an authenticated GitHub client.
func NewGitHubPublisher(ctx context.Context, cfg config.GitHubConfig, log *logging.Logger) (*GitHubPublisher, error) {
	if !cfg.Token.IsSet() {
		return nil, fmt.Errorf("github token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token.Value()})
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	p := newGitHubPublisher(cfg, log)
	p.git = client.Git
	p.repos = client.Repositories
	p.pulls = client.PullRequests
	return p, nil
}

func newGitHubPublisher(cfg config.GitHubConfig, log *logging.Logger) *GitHubPublisher {
	if log == nil {
		log = logging.NewNop()
	}
	return &GitHubPublisher{
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		baseBranch: cfg.BaseBranch,
		commitPath: cfg.CommitPath,
		retry:      DefaultRetryConfig(),
		log:        log,
	}
}

// Publish creates a uniquely named branch from the base branch, commits the
// artifact to it and opens a pull request. Returns the pull request URL.
func (p *GitHubPublisher) Publish(ctx context.Context, sourceText, commitMessage string) (string, error) {
	branch := "crewpipe/run-" + uuid.NewString()[:8]

	baseRef, err := p.getBaseRef(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve base branch %s: %w", p.baseBranch, err)
	}

	if err := p.createBranch(ctx, branch, baseRef); err != nil {
		return "", fmt.Errorf("create branch %s: %w", branch, err)
	}

	if err := p.commitFile(ctx, branch, sourceText, commitMessage); err != nil {
		return "", fmt.Errorf("commit %s to %s: %w", p.commitPath, branch, err)
	}

	url, err := p.openPullRequest(ctx, branch)
	if err != nil {
		return "", fmt.Errorf("open pull request for %s: %w", branch, err)
	}

	p.log.Info(ctx, "pull request created",
		zap.String("branch", branch),
		zap.String("url", url),
	)
	return url, nil
}

func (p *GitHubPublisher) getBaseRef(ctx context.Context) (*github.Reference, error) {
	var ref *github.Reference
	_, err := retryGitHubOperation(ctx, p.retry, p.log, func() (*github.Response, error) {
		var resp *github.Response
		var opErr error
		ref, resp, opErr = p.git.GetRef(ctx, p.owner, p.repo, "refs/heads/"+p.baseBranch)
		return resp, opErr
	})
	if err != nil {
		return nil, err
	}
	if ref == nil || ref.Object == nil || ref.Object.SHA == nil {
		return nil, fmt.Errorf("base ref has no commit SHA")
	}
	return ref, nil
}

func (p *GitHubPublisher) createBranch(ctx context.Context, branch string, baseRef *github.Reference) error {
	newRef := &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: baseRef.Object.SHA},
	}
	_, err := retryGitHubOperation(ctx, p.retry, p.log, func() (*github.Response, error) {
		_, resp, opErr := p.git.CreateRef(ctx, p.owner, p.repo, newRef)
		return resp, opErr
	})
	return err
}

func (p *GitHubPublisher) commitFile(ctx context.Context, branch, sourceText, commitMessage string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(commitMessage),
		Content: []byte(sourceText),
		Branch:  github.String(branch),
	}
	_, err := retryGitHubOperation(ctx, p.retry, p.log, func() (*github.Response, error) {
		_, resp, opErr := p.repos.CreateFile(ctx, p.owner, p.repo, p.commitPath, opts)
		return resp, opErr
	})
	return err
}

func (p *GitHubPublisher) openPullRequest(ctx context.Context, branch string) (string, error) {
	pull := &github.NewPullRequest{
		Title: github.String(prTitle),
		Body:  github.String(prBody),
		Head:  github.String(branch),
		Base:  github.String(p.baseBranch),
	}
	var pr *github.PullRequest
	_, err := retryGitHubOperation(ctx, p.retry, p.log, func() (*github.Response, error) {
		var resp *github.Response
		var opErr error
		pr, resp, opErr = p.pulls.Create(ctx, p.owner, p.repo, pull)
		return resp, opErr
	})
	if err != nil {
		return "", err
	}
	if pr == nil || pr.GetHTMLURL() == "" {
		return "", fmt.Errorf("pull request created without URL")
	}
	return pr.GetHTMLURL(), nil
}

var _ Publisher = (*GitHubPublisher)(nil)
