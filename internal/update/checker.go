package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"smartbudget/internal/cache"
	"smartbudget/internal/netcheck"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL      = "https://api.github.com"
	DefaultTimeout      = 10 * time.Second
	DefaultAssetSuffix  = ".apk"
	DefaultReleaseNotes = "No release notes provided."

	userAgent = "smartbudget-update-checker"
)

var (
	ErrRequestFailed     = errors.New("release request failed")
	ErrRateLimited       = errors.New("rate limited by GitHub API")
	ErrMalformedResponse = errors.New("malformed release response")
)

// ReleaseInfo describes a release that carries an installer asset.
type ReleaseInfo struct {
	VersionName  string `json:"version_name"`
	DownloadURL  string `json:"download_url"`
	ReleaseNotes string `json:"release_notes"`
	ReleaseURL   string `json:"release_url"`
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Body    *string       `json:"body"`
	HTMLURL string        `json:"html_url"`
	Assets  []githubAsset `json:"assets"`
}

// Recorder receives check and download outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveUpdateCheck(outcome string)
	ObserveUpdateDownload(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveUpdateCheck(string)    {}
func (nopRecorder) ObserveUpdateDownload(string) {}

// Checker queries the latest release of one repository.
type Checker struct {
	owner       string
	repo        string
	baseURL     string
	assetSuffix string
	httpClient  *http.Client
	network     netcheck.Checker
	recorder    Recorder
	releases    cache.Cache[ReleaseInfo]
	group       singleflight.Group
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

func WithHTTPClient(client *http.Client) CheckerOption {
	return func(c *Checker) {
		c.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL points the checker at a GitHub Enterprise host or a test server.
func WithBaseURL(baseURL string) CheckerOption {
	return func(c *Checker) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithConnectivity(n netcheck.Checker) CheckerOption {
	return func(c *Checker) {
		c.network = n
	}
}

func WithAssetSuffix(suffix string) CheckerOption {
	return func(c *Checker) {
		c.assetSuffix = suffix
	}
}

func WithRecorder(r Recorder) CheckerOption {
	return func(c *Checker) {
		c.recorder = r
	}
}

// WithReleaseCache remembers the latest release for the cache's TTL so
// repeated checks do not spend the API rate limit.
func WithReleaseCache(releases cache.Cache[ReleaseInfo]) CheckerOption {
	return func(c *Checker) {
		c.releases = releases
	}
}

// NewChecker creates a checker for github.com/owner/repo.
func NewChecker(owner, repo string, opts ...CheckerOption) *Checker {
	c := &Checker{
		owner:       owner,
		repo:        repo,
		baseURL:     DefaultBaseURL,
		assetSuffix: DefaultAssetSuffix,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		network:     netcheck.Static(true),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckForUpdates returns the newer release, or nil when up to date, offline,
// or when the check failed for any reason. Failures are logged.
func (c *Checker) CheckForUpdates(ctx context.Context, currentVersion string) *ReleaseInfo {
	release, err := c.Check(ctx, currentVersion)
	if err != nil {
		slog.WarnContext(ctx, "Update check failed",
			"component", "update",
			"version", currentVersion,
			"error", err)
		return nil
	}
	return release
}

// Check is CheckForUpdates with the failure reason. A nil release with a nil
// error means the current version is up to date or the latest release ships
// no installer.
func (c *Checker) Check(ctx context.Context, currentVersion string) (*ReleaseInfo, error) {
	if !c.network.Online(ctx) {
		c.recorder.ObserveUpdateCheck("offline")
		return nil, netcheck.ErrNoConnectivity
	}

	latest, err := c.latest(ctx)
	if err != nil {
		c.recorder.ObserveUpdateCheck("failure")
		return nil, err
	}

	if latest.DownloadURL == "" {
		slog.InfoContext(ctx, "Latest release has no installer asset",
			"component", "update",
			"remote_version", latest.VersionName,
			"suffix", c.assetSuffix)
		c.recorder.ObserveUpdateCheck("no_update")
		return nil, nil
	}
	if !IsNewer(currentVersion, latest.VersionName) {
		c.recorder.ObserveUpdateCheck("no_update")
		return nil, nil
	}

	slog.InfoContext(ctx, "Update available",
		"component", "update",
		"version", currentVersion,
		"remote_version", latest.VersionName)
	c.recorder.ObserveUpdateCheck("update_available")
	return &latest, nil
}

func (c *Checker) latest(ctx context.Context) (ReleaseInfo, error) {
	key := c.owner + "/" + c.repo
	if c.releases != nil {
		if r, ok := c.releases.Get(key); ok {
			return r, nil
		}
	}

	// The request outlives any one caller; the client timeout bounds it.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetchLatestRelease(context.WithoutCancel(ctx))
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return ReleaseInfo{}, fmt.Errorf("%w: %w", ErrRequestFailed, ctx.Err())
	}
	if res.Err != nil {
		return ReleaseInfo{}, res.Err
	}
	if res.Shared {
		slog.DebugContext(ctx, "Joined in-flight release check", "component", "update")
	}

	release := res.Val.(ReleaseInfo)
	if c.releases != nil {
		c.releases.Set(key, release)
	}
	return release, nil
}

func (c *Checker) fetchLatestRelease(ctx context.Context) (ReleaseInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ReleaseInfo{}, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return ReleaseInfo{}, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return ReleaseInfo{}, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return ReleaseInfo{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return c.toReleaseInfo(release)
}

func (c *Checker) toReleaseInfo(r githubRelease) (ReleaseInfo, error) {
	version := normalizeTag(r.TagName)
	if version == "" {
		return ReleaseInfo{}, fmt.Errorf("%w: missing tag_name", ErrMalformedResponse)
	}

	notes := DefaultReleaseNotes
	if r.Body != nil {
		notes = *r.Body
	}

	info := ReleaseInfo{
		VersionName:  version,
		ReleaseNotes: notes,
		ReleaseURL:   r.HTMLURL,
	}
	for _, a := range r.Assets {
		if strings.HasSuffix(a.Name, c.assetSuffix) {
			info.DownloadURL = a.BrowserDownloadURL
			break
		}
	}
	return info, nil
}
