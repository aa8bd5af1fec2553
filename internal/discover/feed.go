// Package discover finds recipe page addresses in a site's RSS or Atom feed.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Feed turns feed items into page URLs. The feed itself is fetched through a
// recipe.Fetcher so it shares the user agents, robots and rate limits of
// recipe fetches.
type Feed struct {
	fetcher recipe.Fetcher
	parser  *gofeed.Parser
	logger  *zap.Logger
}

// NewFeed creates a feed discoverer.
func NewFeed(fetcher recipe.Fetcher, logger *zap.Logger) *Feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feed{fetcher: fetcher, parser: gofeed.NewParser(), logger: logger}
}

// Links returns the absolute, de-duplicated item links of the feed at feedURL
// in feed order.
func (f *Feed) Links(ctx context.Context, feedURL string) ([]string, error) {
	base, err := url.Parse(feedURL)
	if err != nil || !base.IsAbs() {
		return nil, fmt.Errorf("feed url %q must be absolute", feedURL)
	}

	headers := http.Header{}
	headers.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	resp, err := f.fetcher.Fetch(ctx, recipe.FetchRequest{URL: feedURL, Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	feed, err := f.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	seen := make(map[string]struct{}, len(feed.Items))
	links := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := itemLink(item)
		if link == "" {
			continue
		}
		ref, err := url.Parse(link)
		if err != nil {
			f.logger.Debug("skipping malformed feed link", zap.String("link", link), zap.Error(err))
			continue
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	}
	f.logger.Info("feed links discovered",
		zap.String("feed", feedURL),
		zap.Int("items", len(feed.Items)),
		zap.Int("links", len(links)),
	)
	return links, nil
}

func itemLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, link := range item.Links {
		if link = strings.TrimSpace(link); link != "" {
			return link
		}
	}
	return ""
}
