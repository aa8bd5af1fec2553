// Package reference pages through an ingredient nutrition API and stores each
// entry as an ingredient reference row.
package reference

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Config describes the paginated API.
type Config struct {
	Source      string
	URLTemplate string
	PageSize    int
	TotalCount  int
	Headers     http.Header
}

// Batcher fetches a list of targets concurrently.
type Batcher interface {
	FetchMany(ctx context.Context, targets []recipe.Target, headers http.Header) []recipe.Document
}

// Report summarizes one reference load.
type Report struct {
	Source   string   `json:"source"`
	Pages    int      `json:"pages"`
	Fetched  int      `json:"fetched"`
	Items    int      `json:"items"`
	Inserted int      `json:"inserted"`
	Failed   []string `json:"failed,omitempty"`
}

// Loader runs reference loads.
type Loader struct {
	cfg     Config
	batcher Batcher
	writer  recipe.ReferenceWriter
	logger  *zap.Logger
}

// New builds a Loader.
func New(cfg Config, batcher Batcher, writer recipe.ReferenceWriter, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{cfg: cfg, batcher: batcher, writer: writer, logger: logger.Named("reference")}
}

// Pages expands the URL template into one target per page. Pages are 1-based
// and cover TotalCount entries.
func Pages(cfg Config) []recipe.Target {
	if cfg.URLTemplate == "" || cfg.PageSize <= 0 || cfg.TotalCount <= 0 {
		return nil
	}
	count := (cfg.TotalCount + cfg.PageSize - 1) / cfg.PageSize
	size := strconv.Itoa(cfg.PageSize)
	targets := make([]recipe.Target, 0, count)
	for page := 1; page <= count; page++ {
		url := strings.NewReplacer("{page}", strconv.Itoa(page), "{page_size}", size).Replace(cfg.URLTemplate)
		targets = append(targets, recipe.Target{
			Address: recipe.Address{Source: cfg.Source, Value: url, Kind: recipe.KindURL},
			URL:     url,
		})
	}
	return targets
}

// Run fetches every page, parses it and writes its entries. Each page is
// written on its own, so a bad page is reported in Failed without stopping
// the others. Only a cancelled context or a missing configuration is an error.
func (l *Loader) Run(ctx context.Context) (Report, error) {
	report := Report{Source: l.cfg.Source}
	targets := Pages(l.cfg)
	if len(targets) == 0 {
		return report, errors.New("reference api is not configured")
	}
	if l.batcher == nil || l.writer == nil {
		return report, errors.New("reference loader needs a batcher and a writer")
	}
	report.Pages = len(targets)
	logger := l.logger.With(zap.String("source", l.cfg.Source))

	docs := l.batcher.FetchMany(ctx, targets, l.cfg.Headers)
	report.Fetched = len(docs)
	fetched := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		fetched[doc.Address.Value] = struct{}{}
	}
	for _, target := range targets {
		if _, ok := fetched[target.Address.Value]; !ok {
			report.Failed = append(report.Failed, target.Address.Value)
		}
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		items, err := Parse(l.cfg.Source, doc.Body)
		if err != nil {
			logger.Warn("reference page skipped", zap.String("url", doc.URL), zap.Error(err))
			report.Failed = append(report.Failed, doc.Address.Value)
			continue
		}
		report.Items += len(items)
		n, err := l.writer.PutReferences(ctx, items)
		if err != nil {
			logger.Error("reference page not stored", zap.String("url", doc.URL), zap.Error(err))
			report.Failed = append(report.Failed, doc.Address.Value)
			continue
		}
		report.Inserted += n
	}

	logger.Info("reference load finished",
		zap.Int("pages", report.Pages),
		zap.Int("fetched", report.Fetched),
		zap.Int("items", report.Items),
		zap.Int("inserted", report.Inserted),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}
