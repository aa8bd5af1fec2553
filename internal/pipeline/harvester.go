// Package pipeline runs one harvest of a source: registered addresses are
// fetched in batches, extracted, normalized, resolved to stable ids and
// persisted in chunks, and the run is summarized in a recipe.RunReport.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/config"
	"github.com/JakeFAU/recipe-harvester/internal/logging"
	"github.com/JakeFAU/recipe-harvester/internal/metrics"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
	"github.com/JakeFAU/recipe-harvester/internal/telemetry"
)

// DefaultPersistChunkSize is the number of records handed to one Persist call.
const DefaultPersistChunkSize = 100

// Batcher fetches many targets concurrently. *batch.Engine implements it.
type Batcher interface {
	FetchMany(ctx context.Context, targets []recipe.Target, headers http.Header) []recipe.Document
}

// Extractors resolves the extractor bound to a source. *extract.Registry implements it.
type Extractors interface {
	For(source string) (recipe.Extractor, error)
}

// Config controls Harvester behavior.
type Config struct {
	PersistChunkSize int
	PendingOnly      bool
	ArchivePrefix    string
	Topic            string
	Sources          map[string]config.SourceConfig
}

// Harvester wires the fetch, extract, resolve and persist stages together.
type Harvester struct {
	cfg        Config
	batchers   map[string]Batcher // by fetch mode
	extractors Extractors
	store      recipe.Store
	runs       recipe.RunRecorder
	archive    recipe.BlobStore
	publisher  recipe.Publisher
	ids        recipe.IDGenerator
	clock      recipe.Clock
	logger     *zap.Logger
}

// New constructs a Harvester. runs, archive and publisher are optional.
func New(
	cfg Config,
	batchers map[string]Batcher,
	extractors Extractors,
	store recipe.Store,
	runs recipe.RunRecorder,
	archive recipe.BlobStore,
	publisher recipe.Publisher,
	ids recipe.IDGenerator,
	clock recipe.Clock,
	logger *zap.Logger,
) *Harvester {
	if cfg.PersistChunkSize <= 0 {
		cfg.PersistChunkSize = DefaultPersistChunkSize
	}
	return &Harvester{
		cfg:        cfg,
		batchers:   batchers,
		extractors: extractors,
		store:      store,
		runs:       runs,
		archive:    archive,
		publisher:  publisher,
		ids:        ids,
		clock:      clock,
		logger:     logging.OrNop(logger).Named("pipeline"),
	}
}

// pending is a record waiting to be persisted, kept with its address for
// skip reporting.
type pending struct {
	address string
	record  recipe.Record
}

// Run harvests one source. It fails only when the run cannot start; item and
// chunk failures are reported in the returned RunReport.
func (h *Harvester) Run(ctx context.Context, source string) (report recipe.RunReport, err error) {
	src, ok := h.cfg.Sources[source]
	if !ok {
		return report, fmt.Errorf("unknown source %q", source)
	}
	extractor, err := h.extractors.For(source)
	if err != nil {
		return report, fmt.Errorf("resolve extractor: %w", err)
	}
	mode := src.FetchMode
	if mode == "" {
		mode = config.FetchModeHTTP
	}
	batcher, ok := h.batchers[mode]
	if !ok || batcher == nil {
		return report, fmt.Errorf("no fetcher configured for fetch mode %q", mode)
	}
	runID, err := h.ids.NewID()
	if err != nil {
		return report, fmt.Errorf("generate run id: %w", err)
	}

	ctx, span := telemetry.StartSpan(ctx, "harvest.run",
		attribute.String("harvest.source", source),
		attribute.String("harvest.run_id", runID),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	logger := logging.ForRun(h.logger, runID, source)
	report = recipe.RunReport{RunID: runID, Source: source, StartedAt: h.clock.Now()}

	regs, err := h.store.ListAddresses(ctx, source, h.cfg.PendingOnly)
	if err != nil {
		return report, fmt.Errorf("list registrations: %w", err)
	}
	targets, excluded := buildTargets(src, regs)
	report.Addresses = len(targets)
	logger.Info("harvest started",
		zap.Int("addresses", len(targets)),
		zap.Int("excluded", excluded),
		zap.Bool("pending_only", h.cfg.PendingOnly),
	)

	docs := h.fetch(ctx, batcher, targets, requestHeaders(src.Headers))
	report.Fetched = len(docs)
	report.Skipped = append(report.Skipped, fetchSkips(targets, docs)...)

	h.archiveDocuments(ctx, logger, runID, docs)

	records, skips := h.extract(ctx, logger, source, extractor, docs)
	report.Extracted = len(records)
	report.Skipped = append(report.Skipped, skips...)

	h.persist(ctx, logger, source, records, &report)

	report.FinishedAt = h.clock.Now()
	h.recordAndPublish(ctx, logger, report)

	logger.Info("harvest finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("extracted", report.Extracted),
		zap.Int("persisted", report.Persisted),
		zap.Int("failed_chunks", report.FailedChunks),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (h *Harvester) fetch(ctx context.Context, batcher Batcher, targets []recipe.Target, headers http.Header) []recipe.Document {
	if len(targets) == 0 {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "harvest.fetch_many", attribute.Int("harvest.targets", len(targets)))
	docs := batcher.FetchMany(ctx, targets, headers)
	span.SetAttributes(attribute.Int("harvest.documents", len(docs)))
	telemetry.EndSpan(span, nil)
	return docs
}

func (h *Harvester) extract(
	ctx context.Context,
	logger *zap.Logger,
	source string,
	extractor recipe.Extractor,
	docs []recipe.Document,
) ([]pending, []recipe.Skip) {
	ctx, span := telemetry.StartSpan(ctx, "harvest.extract", attribute.Int("harvest.documents", len(docs)))
	defer telemetry.EndSpan(span, nil)

	var (
		out   []pending
		skips []recipe.Skip
	)
	for _, doc := range docs {
		addr := doc.Address.Value
		rec, err := extractor.Extract(doc)
		if err == nil {
			rec = recipe.Normalize(rec)
			err = recipe.Validate(rec)
		}
		if err != nil {
			switch {
			case errors.Is(err, recipe.ErrNotARecipe):
				metrics.ObserveRecord(source, metrics.RecordNotARecipe)
			case errors.Is(err, recipe.ErrInvalidRecord):
				metrics.ObserveRecord(source, metrics.RecordInvalid)
			default:
				metrics.ObserveRecord(source, metrics.RecordExtractError)
			}
			logger.Debug("document skipped", zap.String("address", addr), zap.Error(err))
			skips = append(skips, recipe.Skip{Address: addr, Stage: recipe.StageExtract, Reason: err.Error()})
			continue
		}

		stableID, err := h.store.StableID(ctx, source, addr)
		if err != nil {
			if errors.Is(err, recipe.ErrNotRegistered) {
				metrics.ObserveRecord(source, metrics.RecordUnregistered)
			}
			logger.Warn("stable id lookup failed", zap.String("address", addr), zap.Error(err))
			skips = append(skips, recipe.Skip{Address: addr, Stage: recipe.StageResolve, Reason: err.Error()})
			continue
		}
		rec.Info.StableID = stableID
		metrics.ObserveRecord(source, metrics.RecordExtracted)
		out = append(out, pending{address: addr, record: rec})
	}
	return out, skips
}

func (h *Harvester) persist(ctx context.Context, logger *zap.Logger, source string, items []pending, report *recipe.RunReport) {
	for start := 0; start < len(items); start += h.cfg.PersistChunkSize {
		end := min(start+h.cfg.PersistChunkSize, len(items))
		chunk := items[start:end]
		records := make([]recipe.Record, len(chunk))
		for i, item := range chunk {
			records[i] = item.record
		}

		chunkCtx, span := telemetry.StartSpan(ctx, "harvest.persist", attribute.Int("harvest.records", len(records)))
		rows, err := h.store.Persist(chunkCtx, records)
		telemetry.EndSpan(span, err)
		metrics.ObservePersistChunk(source, err, rows.Recipes, rows.Ingredients, rows.Instructions, rows.Nutrition, rows.Tips)

		if err != nil {
			report.FailedChunks++
			logger.Error("persist chunk failed",
				zap.Int("chunk_start", start),
				zap.Int("records", len(records)),
				zap.Error(err),
			)
			for _, item := range chunk {
				report.Skipped = append(report.Skipped, recipe.Skip{
					Address: item.address,
					Stage:   recipe.StagePersist,
					Reason:  err.Error(),
				})
			}
			continue
		}
		report.Persisted += len(records)
		report.Rows.Add(rows)
		logger.Debug("persisted chunk",
			zap.Int("records", rows.Records),
			zap.Int("recipes", rows.Recipes),
		)
	}
}

func (h *Harvester) recordAndPublish(ctx context.Context, logger *zap.Logger, report recipe.RunReport) {
	if h.runs != nil {
		if err := h.runs.RecordRun(ctx, report); err != nil {
			logger.Warn("record run failed", zap.Error(err))
		}
	}
	if h.cfg.Topic == "" || h.publisher == nil {
		return
	}
	id, err := h.publisher.Publish(ctx, h.cfg.Topic, newRunEvent(report))
	if err != nil {
		logger.Warn("publish run event failed", zap.String("topic", h.cfg.Topic), zap.Error(err))
		return
	}
	logger.Info("run event published", zap.String("topic", h.cfg.Topic), zap.String("message_id", id))
}

// buildTargets drops excluded addresses and resolves the URL fetched for each
// registration.
func buildTargets(src config.SourceConfig, regs []recipe.Registration) ([]recipe.Target, int) {
	skip := make(map[string]struct{}, len(src.ExcludedURLs))
	for _, u := range src.ExcludedURLs {
		skip[u] = struct{}{}
	}
	targets := make([]recipe.Target, 0, len(regs))
	excluded := 0
	for _, reg := range regs {
		if _, ok := skip[reg.Address]; ok {
			excluded++
			continue
		}
		targets = append(targets, recipe.Target{Address: reg.AsAddress(), URL: TargetURL(src, reg)})
	}
	return targets, excluded
}

// TargetURL returns the URL fetched for a registration: the address itself,
// or the source's API template with {id} replaced for post ids.
func TargetURL(src config.SourceConfig, reg recipe.Registration) string {
	if reg.Kind == recipe.KindPostID && src.APIURLTemplate != "" {
		return strings.ReplaceAll(src.APIURLTemplate, "{id}", url.PathEscape(reg.Address))
	}
	return reg.Address
}

func requestHeaders(configured map[string]string) http.Header {
	if len(configured) == 0 {
		return nil
	}
	headers := make(http.Header, len(configured))
	for k, v := range configured {
		headers.Set(k, v)
	}
	return headers
}

func fetchSkips(targets []recipe.Target, docs []recipe.Document) []recipe.Skip {
	fetched := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		fetched[doc.Address.Key()] = struct{}{}
	}
	var skips []recipe.Skip
	for _, t := range targets {
		if _, ok := fetched[t.Address.Key()]; ok {
			continue
		}
		skips = append(skips, recipe.Skip{Address: t.Address.Value, Stage: recipe.StageFetch, Reason: "fetch failed"})
	}
	return skips
}
