package delivery

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/crewpipe/crewpipe/internal/config"
	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockGitService is a mock implementation of gitService.
type MockGitService struct {
	mock.Mock
}

func (m *MockGitService) GetRef(ctx context.Context, owner, repo, ref string) (*github.Reference, *github.Response, error) {
	args := m.Called(ctx, owner, repo, ref)
	var r *github.Reference
	if args.Get(0) != nil {
		r = args.Get(0).(*github.Reference)
	}
	return r, nil, args.Error(1)
}

func (m *MockGitService) CreateRef(ctx context.Context, owner, repo string, ref *github.Reference) (*github.Reference, *github.Response, error) {
	args := m.Called(ctx, owner, repo, ref)
	return ref, nil, args.Error(0)
}

// MockRepositoriesService is a mock implementation of repositoriesService.
type MockRepositoriesService struct {
	mock.Mock
}

func (m *MockRepositoriesService) CreateFile(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentFileOptions) (*github.RepositoryContentResponse, *github.Response, error) {
	args := m.Called(ctx, owner, repo, path, opts)
	return nil, nil, args.Error(0)
}

// MockPullRequestsService is a mock implementation of pullRequestsService.
type MockPullRequestsService struct {
	mock.Mock
}

func (m *MockPullRequestsService) Create(ctx context.Context, owner, repo string, pull *github.NewPullRequest) (*github.PullRequest, *github.Response, error) {
	args := m.Called(ctx, owner, repo, pull)
	var pr *github.PullRequest
	if args.Get(0) != nil {
		pr = args.Get(0).(*github.PullRequest)
	}
	return pr, nil, args.Error(1)
}

func githubConfig() config.GitHubConfig {
	return config.GitHubConfig{
		Token:      "ghp-test",
		Owner:      "octocat",
		Repo:       "hello-world",
		BaseBranch: "main",
		CommitPath: "generated_code.py",
	}
}

func testPublisher() (*GitHubPublisher, *MockGitService, *MockRepositoriesService, *MockPullRequestsService) {
	git := &MockGitService{}
	repos := &MockRepositoriesService{}
	pulls := &MockPullRequestsService{}

	p := newGitHubPublisher(githubConfig(), nil)
	p.git = git
	p.repos = repos
	p.pulls = pulls
	// Keep retries out of unit test timing.
	p.retry = &RetryConfig{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	return p, git, repos, pulls
}

func baseRef() *github.Reference {
	return &github.Reference{
		Ref:    github.String("refs/heads/main"),
		Object: &github.GitObject{SHA: github.String("abc123")},
	}
}

func TestPublishSuccess(t *testing.T) {
	p, git, repos, pulls := testPublisher()

	git.On("GetRef", mock.Anything, "octocat", "hello-world", "refs/heads/main").Return(baseRef(), nil)
	git.On("CreateRef", mock.Anything, "octocat", "hello-world", mock.MatchedBy(func(ref *github.Reference) bool {
		return strings.HasPrefix(ref.GetRef(), "refs/heads/crewpipe/run-") && ref.Object.GetSHA() == "abc123"
	})).Return(nil)
	repos.On("CreateFile", mock.Anything, "octocat", "hello-world", "generated_code.py", mock.MatchedBy(func(opts *github.RepositoryContentFileOptions) bool {
		return opts.GetMessage() == "Add generated feature" && string(opts.Content) == "def add(a, b):\n    return a + b\n"
	})).Return(nil)
	pulls.On("Create", mock.Anything, "octocat", "hello-world", mock.MatchedBy(func(pr *github.NewPullRequest) bool {
		return pr.GetBase() == "main" && strings.HasPrefix(pr.GetHead(), "crewpipe/run-")
	})).Return(&github.PullRequest{HTMLURL: github.String("https://github.com/octocat/hello-world/pull/7")}, nil)

	url, err := p.Publish(context.Background(), "def add(a, b):\n    return a + b\n", "Add generated feature")
	require.NoError(t, err)
	assert.Equal(t, "https://github.com/octocat/hello-world/pull/7", url)

	git.AssertExpectations(t)
	repos.AssertExpectations(t)
	pulls.AssertExpectations(t)
}

func TestPublishUniqueBranchPerRun(t *testing.T) {
	p, git, repos, pulls := testPublisher()

	var branches []string
	git.On("GetRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(baseRef(), nil)
	git.On("CreateRef", mock.Anything, mock.Anything, mock.Anything, mock.MatchedBy(func(ref *github.Reference) bool {
		branches = append(branches, ref.GetRef())
		return true
	})).Return(nil)
	repos.On("CreateFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	pulls.On("Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&github.PullRequest{HTMLURL: github.String("https://example.com/pr")}, nil)

	_, err := p.Publish(context.Background(), "code", "msg")
	require.NoError(t, err)
	_, err = p.Publish(context.Background(), "code", "msg")
	require.NoError(t, err)

	require.Len(t, branches, 2)
	assert.NotEqual(t, branches[0], branches[1])
}

func TestPublishBaseRefFailure(t *testing.T) {
	p, git, repos, pulls := testPublisher()

	git.On("GetRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("404 not found"))

	_, err := p.Publish(context.Background(), "code", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve base branch")

	git.AssertNotCalled(t, "CreateRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repos.AssertNotCalled(t, "CreateFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	pulls.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishPartialCompletionIsFailure(t *testing.T) {
	// Branch created, commit failed: overall publish failure, no PR opened.
	p, git, repos, pulls := testPublisher()

	git.On("GetRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(baseRef(), nil)
	git.On("CreateRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	repos.On("CreateFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("422 unprocessable"))

	_, err := p.Publish(context.Background(), "code", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit")

	pulls.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIsGitHubRetryableError(t *testing.T) {
	resp := func(code int) *github.Response {
		return &github.Response{Response: &http.Response{StatusCode: code}}
	}

	assert.False(t, isGitHubRetryableError(nil, nil))
	assert.True(t, isGitHubRetryableError(errors.New("503"), resp(http.StatusServiceUnavailable)))
	assert.True(t, isGitHubRetryableError(errors.New("429"), resp(http.StatusTooManyRequests)))
	assert.False(t, isGitHubRetryableError(errors.New("401"), resp(http.StatusUnauthorized)))
	assert.False(t, isGitHubRetryableError(errors.New("422"), resp(http.StatusUnprocessableEntity)))
	assert.True(t, isGitHubRetryableError(errors.New("net timeout"), nil), "no status code means transient")

	// 403 is only retryable as a secondary rate limit.
	forbidden := resp(http.StatusForbidden)
	assert.False(t, isGitHubRetryableError(errors.New("403"), forbidden))
	forbidden.Rate = github.Rate{Limit: 5000}
	assert.True(t, isGitHubRetryableError(errors.New("403"), forbidden))
}

func TestRetryGitHubOperationRecovers(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}

	calls := 0
	_, err := retryGitHubOperation(context.Background(), cfg, nil, func() (*github.Response, error) {
		calls++
		if calls < 3 {
			return &github.Response{Response: &http.Response{StatusCode: http.StatusBadGateway}}, errors.New("502")
		}
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGitHubOperationStopsOnTerminalError(t *testing.T) {
	cfg := &RetryConfig{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}

	calls := 0
	_, err := retryGitHubOperation(context.Background(), cfg, nil, func() (*github.Response, error) {
		calls++
		return &github.Response{Response: &http.Response{StatusCode: http.StatusUnauthorized}}, errors.New("401")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
