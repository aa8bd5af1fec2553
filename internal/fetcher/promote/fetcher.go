// Package promote implements the "auto" fetch mode: a cheap HTTP probe that is
// re-fetched through a headless browser when the probe looks like an
// unrendered script shell.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/metrics"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Detector decides whether a probe response needs a headless render.
type Detector interface {
	ShouldPromote(resp recipe.FetchResponse) bool
}

// Fetcher probes with one Fetcher and promotes to another.
type Fetcher struct {
	probe    recipe.Fetcher
	headless recipe.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New wires a promoting fetcher. A nil detector uses NewHeuristic(0).
func New(probe, headless recipe.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if detector == nil {
		detector = NewHeuristic(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: detector, logger: logger}
}

// Fetch returns the probe response unless the detector asks for a render and
// the render succeeds. A failed render falls back to the probe response.
func (f *Fetcher) Fetch(ctx context.Context, request recipe.FetchRequest) (recipe.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, request)
	if err != nil {
		return resp, err
	}
	if f.headless == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	rendered, err := f.headless.Fetch(ctx, request)
	metrics.ObservePromotion(request.URL, err)
	if err != nil {
		f.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return resp, nil
	}
	f.logger.Debug("headless promotion applied", zap.String("url", request.URL))
	return rendered, nil
}
