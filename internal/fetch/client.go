// Package fetch implements the Find a Tender OCDS API client: bulk
// incremental fetch over cursor-paginated release packages, plus single-OCID
// lookup for on-demand refresh.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/procurely/tendersync/internal/ocds"
)

const (
	defaultBaseURL   = "https://www.find-tender.service.gov.uk/api/1.0"
	defaultTimeout   = 30 * time.Second
	defaultPageDelay = 500 * time.Millisecond
	defaultPageLimit = 100
	maxBodySize      = 50 << 20 // 50MB per page
)

// Client talks to the Find a Tender release-package API.
type Client struct {
	baseURL    string
	orgID      string
	pageLimit  int
	pageDelay  time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// Options tune the client; zero values fall back to defaults.
type Options struct {
	BaseURL   string
	PageLimit int
	PageDelay time.Duration
	Timeout   time.Duration
}

// NewClient creates a client filtering releases to the given buyer
// organization id.
func NewClient(orgID string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if opts.PageDelay <= 0 {
		opts.PageDelay = defaultPageDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		orgID:      orgID,
		pageLimit:  opts.PageLimit,
		pageDelay:  opts.PageDelay,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     slog.Default(),
	}
}

// FetchUpdated pulls every release updated in [from, to] belonging to the
// configured organization, following the feed's cursor pagination.
//
// hadError reports any transport/decode failure; the fetch stops at the
// first one and callers must not advance fetch state when it is set.
// Running out of pages (an empty page, no next link, or a next link
// without a cursor) is normal termination, not an error.
func (c *Client) FetchUpdated(ctx context.Context, from, to time.Time) (releases []ocds.Release, hadError bool) {
	cursor := ""
	for page := 1; ; page++ {
		pkg, err := c.fetchPage(ctx, from, to, cursor)
		if err != nil {
			c.logger.Error("fetch aborted", "page", page, "error", err)
			return releases, true
		}
		if len(pkg.Releases) == 0 {
			return releases, false
		}

		kept := 0
		for _, rel := range pkg.Releases {
			if c.matchesOrg(&rel) {
				releases = append(releases, rel)
				kept++
			}
		}
		c.logger.Debug("fetched page", "page", page, "releases", len(pkg.Releases), "kept", kept)

		if pkg.Links == nil || pkg.Links.Next == "" {
			return releases, false
		}
		next, ok := cursorFrom(pkg.Links.Next)
		if !ok {
			return releases, false
		}
		cursor = next

		// Bound the request rate against the upstream API.
		select {
		case <-ctx.Done():
			c.logger.Error("fetch aborted", "page", page, "error", ctx.Err())
			return releases, true
		case <-time.After(c.pageDelay):
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, from, to time.Time, cursor string) (*ocds.ReleasePackage, error) {
	q := url.Values{}
	q.Set("updatedFrom", from.UTC().Format(time.RFC3339))
	q.Set("updatedTo", to.UTC().Format(time.RFC3339))
	q.Set("limit", fmt.Sprintf("%d", c.pageLimit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return c.getPackage(ctx, c.baseURL+"/ocdsReleasePackages?"+q.Encode())
}

// FetchPackage retrieves the release package of a single procurement by
// OCID (on-demand refresh mode).
func (c *Client) FetchPackage(ctx context.Context, ocid string) (*ocds.ReleasePackage, error) {
	return c.getPackage(ctx, c.baseURL+"/ocdsReleasePackages/"+url.PathEscape(strings.TrimSpace(ocid)))
}

func (c *Client) getPackage(ctx context.Context, u string) (*ocds.ReleasePackage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return ocds.DecodePackage(body)
}

// matchesOrg keeps a release when its buyer id equals the configured
// organization, or, for releases published without a buyer reference,
// when any party carries that id.
func (c *Client) matchesOrg(rel *ocds.Release) bool {
	if id := rel.BuyerID(); id != "" {
		return id == c.orgID
	}
	for _, p := range rel.Parties {
		if p.ID == c.orgID {
			return true
		}
	}
	return false
}

// cursorFrom extracts the cursor query parameter from a links.next URL.
func cursorFrom(next string) (string, bool) {
	u, err := url.Parse(next)
	if err != nil {
		return "", false
	}
	cursor := u.Query().Get("cursor")
	return cursor, cursor != ""
}
