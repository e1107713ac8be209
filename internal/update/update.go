// Package update checks GitHub for newer releases of the recorder.
package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-cliprec/internal/types"
	"github.com/oszuidwest/zwfm-cliprec/internal/util"
	"golang.org/x/mod/semver"
)

const (
	// DefaultRepo is the repository whose releases are checked.
	DefaultRepo = "oszuidwest/zwfm-cliprec"

	checkInterval = 24 * time.Hour
	checkDelay    = 30 * time.Second // keeps the first request off the startup path
	checkTimeout  = 30 * time.Second
	maxRetries    = 3
	retryDelay    = 1 * time.Minute
)

// Build identifies the running binary.
type Build struct {
	Version   string
	Commit    string
	BuildTime string
}

// Checker periodically fetches the latest release.
type Checker struct {
	build   Build
	baseURL string
	repo    string
	client  *http.Client

	mu     sync.RWMutex
	latest string
	etag   string // for conditional requests
}

// New creates a checker for repo. It does nothing until Run is called.
func New(repo string, build Build) *Checker {
	return &Checker{
		build:   build,
		baseURL: "https://api.github.com",
		repo:    repo,
		client:  &http.Client{Timeout: checkTimeout},
	}
}

// Run checks after a short delay and then daily, until ctx is done.
// Development builds are never checked.
func (c *Checker) Run(ctx context.Context) {
	if current := normalize(c.build.Version); current == "dev" || current == "unknown" {
		return
	}

	timer := time.NewTimer(checkDelay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		c.checkWithRetry(ctx)
		timer.Reset(checkInterval)
	}
}

func (c *Checker) checkWithRetry(ctx context.Context) {
	for attempt := range maxRetries {
		if c.Check(ctx) {
			return
		}
		if attempt < maxRetries-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}
	slog.Debug("release check gave up", "repo", c.repo)
}

type release struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// Check fetches the latest release once. It returns false when the check
// should be retried.
func (c *Checker) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/repos/"+c.repo+"/releases/latest", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-cliprec/"+c.build.Version)

	c.mu.RLock()
	etag := c.etag
	c.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer util.SafeCloseFunc(resp.Body, "release response")()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNotFound:
		// Unchanged, or no releases yet.
		return true
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return false
	default:
		return resp.StatusCode < 500
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return false
	}
	if rel.Draft || rel.Prerelease {
		return true
	}
	if rel.TagName == "" {
		return false
	}

	c.mu.Lock()
	c.latest = normalize(rel.TagName)
	if tag := resp.Header.Get("ETag"); tag != "" {
		c.etag = tag
	}
	c.mu.Unlock()
	return true
}

// Info returns the running build and the latest known release.
func (c *Checker) Info() types.VersionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := normalize(c.build.Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    c.latest,
		Commit:    c.build.Commit,
		BuildTime: c.build.BuildTime,
	}
	if c.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = IsNewer(c.latest, current)
	}
	return info
}

func normalize(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

func canonical(v string) string {
	return "v" + normalize(v)
}

// IsNewer reports whether latest is a higher semantic version than current.
func IsNewer(latest, current string) bool {
	return semver.Compare(canonical(latest), canonical(current)) > 0
}
