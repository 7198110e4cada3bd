package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

// listing page layouts seen for the modified column
var modifiedLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"02-Jan-2006 15:04",
	"2006-Jan-02 15:04",
	"2006-01-02",
}

// ListingClient implements ListingSource for the remote listing site
type ListingClient struct {
	client       *http.Client
	rootURL      *url.URL
	timestampURL string
	treeURL      string
	logger       *zap.Logger
}

// NewListingClient creates a client for the site described by config
func NewListingClient(config *domain.EndpointConfig, timeout time.Duration, logger *zap.Logger) (*ListingClient, error) {
	if config.RootURL == "" {
		return nil, domain.ConfigError("endpoint.root_url is required")
	}

	root, err := url.Parse(strings.TrimSuffix(config.RootURL, "/") + "/")
	if err != nil {
		return nil, domain.ConfigError("invalid endpoint.root_url %q: %v", config.RootURL, err)
	}

	timestampURL, err := root.Parse(config.TimestampFile)
	if err != nil {
		return nil, domain.ConfigError("invalid endpoint.timestamp_file: %v", err)
	}
	treeURL, err := root.Parse(config.TreeFile)
	if err != nil {
		return nil, domain.ConfigError("invalid endpoint.tree_file: %v", err)
	}

	return &ListingClient{
		client:       &http.Client{Timeout: timeout},
		rootURL:      root,
		timestampURL: timestampURL.String(),
		treeURL:      treeURL.String(),
		logger:       logger,
	}, nil
}

// DirectoryURL returns the listing page URL of a directory key
func (c *ListingClient) DirectoryURL(key string) string {
	page := &url.URL{Path: strings.TrimPrefix(key+"/index.html", "/")}
	return c.rootURL.ResolveReference(page).String()
}

// FetchTimestamp returns the remote tree timestamp
func (c *ListingClient) FetchTimestamp(ctx context.Context) (int64, error) {
	body, err := c.get(ctx, c.timestampURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch timestamp: %w", err)
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", string(body), err)
	}
	return ts, nil
}

// FetchTree returns the raw remote tree document
func (c *ListingClient) FetchTree(ctx context.Context) ([]byte, error) {
	body, err := c.get(ctx, c.treeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tree: %w", err)
	}
	return body, nil
}

// FetchListing scrapes the file rows of a directory listing page
func (c *ListingClient) FetchListing(ctx context.Context, pageURL string) ([]domain.ListingEntry, error) {
	resp, err := c.do(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", pageURL, err)
	}

	base := resp.Request.URL
	var entries []domain.ListingEntry
	doc.Find(".litem.file").Each(func(i int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Find(".litem_name").First().Text())
		href, ok := s.Find(".litem_name > a").First().Attr("href")
		if name == "" || !ok || href == "" {
			c.logger.Warn("Skipping listing row without name or link",
				zap.String("page", pageURL),
				zap.Int("row", i))
			return
		}

		fileURL, err := base.Parse(href)
		if err != nil {
			c.logger.Warn("Skipping listing row with invalid link",
				zap.String("page", pageURL),
				zap.String("href", href),
				zap.Error(err))
			return
		}

		entries = append(entries, domain.ListingEntry{
			FileName:     name,
			URL:          fileURL.String(),
			Size:         parseSize(s.Find(".litem_size").First().Text()),
			LastModified: parseModified(s.Find(".litem_modified").First().Text()),
		})
	})

	return entries, nil
}

func (c *ListingClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.do(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *ListingClient) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("request to %s failed with status %s", rawURL, resp.Status)
	}
	return resp, nil
}

// parseSize parses a human readable size, unknown sizes are 0
func parseSize(text string) int64 {
	text = strings.TrimSpace(text)
	if text == "" || text == "-" {
		return 0
	}
	size, err := humanize.ParseBytes(text)
	if err != nil {
		return 0
	}
	return int64(size)
}

func parseModified(text string) time.Time {
	text = strings.TrimSpace(text)
	for _, layout := range modifiedLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t
		}
	}
	return time.Time{}
}
