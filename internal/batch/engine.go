// Package batch fans a list of targets out over concurrent fetch workers.
//
// Targets are split into consecutive batches; each batch is fetched
// sequentially by its own goroutine, which hands its successes back over a
// dedicated one-shot channel. The engine collects every channel in batch
// order and joins all workers before returning.
package batch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/metrics"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// DefaultBatchSize is the number of targets fetched by one worker.
const DefaultBatchSize = 10

// Config tunes the engine.
type Config struct {
	BatchSize int
}

// Engine runs FetchMany over a single Fetcher.
type Engine struct {
	fetcher   recipe.Fetcher
	batchSize int
	logger    *zap.Logger
}

// New builds an Engine. A non-positive batch size falls back to DefaultBatchSize.
func New(cfg Config, fetcher recipe.Fetcher, logger *zap.Logger) *Engine {
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher:   fetcher,
		batchSize: size,
		logger:    logger.Named("batch"),
	}
}

// FetchMany fetches every distinct target and returns the successful
// documents. Failures are logged and counted, never returned, so the result
// may be shorter than the input. ctx is only handed to the fetcher.
func (e *Engine) FetchMany(ctx context.Context, targets []recipe.Target, headers http.Header) []recipe.Document {
	distinct := dedupe(targets)
	batches := partition(distinct, e.batchSize)
	results := make([]chan []recipe.Document, len(batches))

	var wg sync.WaitGroup
	for i, b := range batches {
		results[i] = make(chan []recipe.Document, 1)
		wg.Add(1)
		go e.work(ctx, &wg, i, b, headers, results[i])
	}

	docs := make([]recipe.Document, 0, len(distinct))
	for _, ch := range results {
		docs = append(docs, <-ch...)
	}
	wg.Wait()

	e.logger.Info("fetch fan-out finished",
		zap.Int("targets", len(targets)),
		zap.Int("distinct_targets", len(distinct)),
		zap.Int("batches", len(batches)),
		zap.Int("documents", len(docs)),
	)
	return docs
}

// work fetches one batch. The deferred send runs exactly once, also after a
// recovered panic, so the collector never blocks on a dead worker.
func (e *Engine) work(
	ctx context.Context,
	wg *sync.WaitGroup,
	index int,
	targets []recipe.Target,
	headers http.Header,
	out chan<- []recipe.Document,
) {
	defer wg.Done()
	metrics.IncActiveBatches()
	defer metrics.DecActiveBatches()

	var docs []recipe.Document
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("batch worker panicked", zap.Int("batch", index), zap.Any("panic", r))
		}
		out <- docs
	}()

	for _, target := range targets {
		doc, err := e.fetchOne(ctx, target, headers)
		if err != nil {
			e.logger.Warn("fetch failed",
				zap.Int("batch", index),
				zap.String("source", target.Address.Source),
				zap.String("url", target.URL),
				zap.Error(err),
			)
			continue
		}
		docs = append(docs, doc)
	}
}

func (e *Engine) fetchOne(ctx context.Context, target recipe.Target, headers http.Header) (doc recipe.Document, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = recipe.NewFetchError(target.URL, fmt.Errorf("fetcher panic: %v", r))
		}
		outcome := "ok"
		if err != nil {
			outcome = string(recipe.NewFetchError(target.URL, err).Kind)
		}
		metrics.ObserveFetch(target.URL, outcome, len(doc.Body), time.Since(start))
	}()

	resp, err := e.fetcher.Fetch(ctx, recipe.FetchRequest{URL: target.URL, Headers: headers.Clone()})
	if err != nil {
		return recipe.Document{}, recipe.NewFetchError(target.URL, err)
	}
	url := resp.URL
	if url == "" {
		url = target.URL
	}
	return recipe.Document{Address: target.Address, URL: url, Body: resp.Body}, nil
}

// dedupe keeps the first occurrence of each (source, address) pair.
func dedupe(targets []recipe.Target) []recipe.Target {
	seen := make(map[string]struct{}, len(targets))
	out := make([]recipe.Target, 0, len(targets))
	for _, t := range targets {
		key := t.Address.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// partition splits targets into consecutive batches of at most size items.
func partition(targets []recipe.Target, size int) [][]recipe.Target {
	var batches [][]recipe.Target
	for start := 0; start < len(targets); start += size {
		end := min(start+size, len(targets))
		batches = append(batches, targets[start:end])
	}
	return batches
}
