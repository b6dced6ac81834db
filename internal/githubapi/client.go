// Package githubapi wraps the go-github client behind the small read-only
// surface the sync pipeline needs, translating responses into internal types.
package githubapi

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"skill-profiler/internal/model"
)

const (
	perPage     = 100
	maxRetries  = 3
	callTimeout = 30 * time.Second
)

// TreeEntry is one file of a repository's recursive tree.
type TreeEntry struct {
	Path string
	SHA  string
	Size int
}

// Client is a wrapper around the go-github client.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance authenticated with
// the given token.
func NewClient(token string, logger *slog.Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// GetAuthenticatedUser fetches the token owner's profile.
func (c *Client) GetAuthenticatedUser(ctx context.Context) (*model.Account, error) {
	var user *github.User
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		user, _, err = c.gh.Users.Get(ctx, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return &model.Account{
		GitHubID:    user.GetID(),
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		AvatarURL:   user.GetAvatarURL(),
		PublicRepos: user.GetPublicRepos(),
		Followers:   user.GetFollowers(),
	}, nil
}

// ListRepositories fetches up to maxRepos of the authenticated user's
// repositories sorted by update time, handling pagination transparently.
func (c *Client) ListRepositories(ctx context.Context, maxRepos int, includePrivate bool) ([]model.RepositorySummary, error) {
	visibility := "public"
	if includePrivate {
		visibility = "all"
	}
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Visibility:  visibility,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var out []model.RepositorySummary
	for len(out) < maxRepos {
		var (
			repos []*github.Repository
			resp  *github.Response
		)
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			repos, resp, err = c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range repos {
			if len(out) >= maxRepos {
				break
			}
			out = append(out, toSummary(r))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

// ListLanguages fetches the repository's language byte map.
func (c *Client) ListLanguages(ctx context.Context, owner, name string) (map[string]int64, error) {
	var langs map[string]int
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		langs, _, err = c.gh.Repositories.ListLanguages(ctx, owner, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(langs))
	for lang, bytes := range langs {
		out[lang] = int64(bytes)
	}
	return out, nil
}

// CountRecentCommits fetches a bounded commit sample (a single page) and
// returns its size. The sample is evidence of activity, not a full history.
func (c *Client) CountRecentCommits(ctx context.Context, owner, name string, sampleSize int) (int, error) {
	opts := &github.CommitsListOptions{
		ListOptions: github.ListOptions{PerPage: sampleSize},
	}
	var commits []*github.RepositoryCommit
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		commits, _, err = c.gh.Repositories.ListCommits(ctx, owner, name, opts)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(commits), nil
}

// GetTree fetches the recursive file tree of a branch.
func (c *Client) GetTree(ctx context.Context, owner, name, branch string) ([]TreeEntry, error) {
	var tree *github.Tree
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		tree, _, err = c.gh.Git.GetTree(ctx, owner, name, branch, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if e.GetType() != "blob" {
			continue
		}
		entries = append(entries, TreeEntry{
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			Size: e.GetSize(),
		})
	}
	return entries, nil
}

// GetBlob fetches a blob by SHA and returns its decoded content.
func (c *Client) GetBlob(ctx context.Context, owner, name, sha string) (string, error) {
	var blob *github.Blob
	err := c.withRetry(ctx, func(ctx context.Context) error {
		var err error
		blob, _, err = c.gh.Git.GetBlob(ctx, owner, name, sha)
		return err
	})
	if err != nil {
		return "", err
	}
	content := blob.GetContent()
	if blob.GetEncoding() == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content, "\n", ""))
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}
	return content, nil
}

// withRetry runs one API call with a per-call timeout, retrying transient
// server errors and waiting out primary rate limits.
func (c *Client) withRetry(ctx context.Context, call func(context.Context) error) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries-1), ctx)

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		err := call(callCtx)
		if err == nil {
			return nil
		}

		var rateErr *github.RateLimitError
		if errors.As(err, &rateErr) {
			wait := time.Until(rateErr.Rate.Reset.Time)
			if wait > 0 {
				c.logger.Warn("GitHub rate limit hit, waiting for reset", "wait", wait.String())
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return err // retry after the reset
		}

		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode >= 500 {
			return err // transient, retry
		}
		return backoff.Permanent(err)
	}, policy)
}

func toSummary(r *github.Repository) model.RepositorySummary {
	return model.RepositorySummary{
		GitHubRepoID:  r.GetID(),
		Owner:         r.GetOwner().GetLogin(),
		Name:          r.GetName(),
		Private:       r.GetPrivate(),
		Description:   r.GetDescription(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Topics:        r.Topics,
		PushedAt:      r.GetPushedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
	}
}
