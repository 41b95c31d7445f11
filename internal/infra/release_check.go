package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const (
	githubOwner      = "eliteGoblin"
	githubRepo       = "bidbot"
	githubAPIBase    = "https://api.github.com"
	githubAPITimeout = 30 * time.Second
)

// GitHubRelease represents a GitHub release response.
type GitHubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// ReleaseStatus compares the running build with the latest published release.
type ReleaseStatus struct {
	Current   string
	Latest    string
	URL       string
	UpdateDue bool
}

// ReleaseChecker looks up the latest bidbot release on GitHub.
type ReleaseChecker struct {
	client  *http.Client
	apiBase string
	owner   string
	repo    string
}

// NewReleaseChecker creates a checker for the bidbot repository.
func NewReleaseChecker() *ReleaseChecker {
	return NewReleaseCheckerWithBase(githubAPIBase)
}

// NewReleaseCheckerWithBase creates a checker against another API base (for testing).
func NewReleaseCheckerWithBase(apiBase string) *ReleaseChecker {
	return &ReleaseChecker{
		// Timeouts are controlled per-request via context.
		client:  &http.Client{},
		apiBase: strings.TrimRight(apiBase, "/"),
		owner:   githubOwner,
		repo:    githubRepo,
	}
}

// GetLatestRelease fetches the latest release info from GitHub.
func (c *ReleaseChecker) GetLatestRelease(ctx context.Context) (*GitHubRelease, error) {
	ctx, cancel := context.WithTimeout(ctx, githubAPITimeout)
	defer cancel()

	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.apiBase, c.owner, c.repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "bidbot")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned status %d", resp.StatusCode)
	}

	var release GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to parse release: %w", err)
	}
	return &release, nil
}

// Check compares current with the latest release.
func (c *ReleaseChecker) Check(ctx context.Context, current string) (ReleaseStatus, error) {
	release, err := c.GetLatestRelease(ctx)
	if err != nil {
		return ReleaseStatus{}, err
	}
	newer, err := IsNewerVersion(current, release.TagName)
	if err != nil {
		return ReleaseStatus{}, err
	}
	return ReleaseStatus{
		Current:   current,
		Latest:    release.TagName,
		URL:       release.HTMLURL,
		UpdateDue: newer,
	}, nil
}

// IsNewerVersion reports whether latest is a higher semver than current.
// Both may carry a leading "v".
func IsNewerVersion(current, latest string) (bool, error) {
	cur, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("invalid current version %q: %w", current, err)
	}
	lat, err := semver.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("invalid release version %q: %w", latest, err)
	}
	return lat.GreaterThan(cur), nil
}
