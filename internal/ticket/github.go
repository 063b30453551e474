package ticket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/go-github/v68/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	maxRetries = 3
	maxWait    = time.Minute
)

// issuesService is the subset of the GitHub issues API we use.
type issuesService interface {
	Create(ctx context.Context, owner, repo string, issue *github.IssueRequest) (*github.Issue, *github.Response, error)
}

// GitHub opens a GitHub issue per escalation.
type GitHub struct {
	issues issuesService
	owner  string
	repo   string
	labels []string
	log    *zap.Logger
}

// GitHubOpts holds parameters for creating a GitHub opener.
type GitHubOpts struct {
	Owner   string
	Repo    string
	Token   string
	Labels  []string
	BaseURL string // GitHub Enterprise API URL; empty for github.com
	Logger  *zap.Logger
}

// NewGitHub creates a GitHub opener authenticated with a static token.
func NewGitHub(ctx context.Context, opts GitHubOpts) (*GitHub, error) {
	if opts.Owner == "" || opts.Repo == "" {
		return nil, fmt.Errorf("ticket: github: owner and repo are required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("ticket: github: token is required")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if opts.BaseURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(opts.BaseURL, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("ticket: github: base url: %w", err)
		}
	}
	return newGitHub(client.Issues, opts), nil
}

func newGitHub(issues issuesService, opts GitHubOpts) *GitHub {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &GitHub{
		issues: issues,
		owner:  opts.Owner,
		repo:   opts.Repo,
		labels: opts.Labels,
		log:    log,
	}
}

// Open creates an issue for req.
func (g *GitHub) Open(ctx context.Context, req Request) (*Ref, error) {
	ir := &github.IssueRequest{
		Title: github.Ptr(Title(req)),
		Body:  github.Ptr(Body(req)),
	}
	if len(g.labels) > 0 {
		labels := append([]string(nil), g.labels...)
		ir.Labels = &labels
	}

	var issue *github.Issue
	err := retryOnRateLimit(ctx, func() error {
		var err error
		issue, _, err = g.issues.Create(ctx, g.owner, g.repo, ir)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ticket: github: create issue: %w", err)
	}

	ref := &Ref{ID: "#" + strconv.Itoa(issue.GetNumber()), URL: issue.GetHTMLURL()}
	g.log.Info("ticket opened",
		zap.String("session", req.SessionID),
		zap.String("ticket", ref.ID),
		zap.String("url", ref.URL))
	return ref, nil
}

// retryOnRateLimit retries fn while GitHub reports a rate limit.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		wait, ok := retryAfter(err)
		if !ok || attempt == maxRetries || wait > maxWait {
			return err
		}
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// retryAfter reports whether err is a rate limit and how long to wait.
func retryAfter(err error) (time.Duration, bool) {
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		if abuse.RetryAfter != nil {
			return *abuse.RetryAfter, true
		}
		return 0, true
	}
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return time.Until(rle.Rate.Reset.Time), true
	}
	return 0, false
}
