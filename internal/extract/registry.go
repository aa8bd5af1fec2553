// Package extract turns fetched recipe documents into records. Each source
// is bound to one extractor: schema.org JSON-LD, the WordPress mv-create API,
// or per-site CSS selector rules.
package extract

import (
	"fmt"

	"github.com/JakeFAU/recipe-harvester/internal/config"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Registry maps source tags to their extractor.
type Registry struct {
	bySource map[string]recipe.Extractor
}

// NewRegistry builds the dispatch table from the configured sources.
func NewRegistry(sources map[string]config.SourceConfig) (*Registry, error) {
	r := &Registry{bySource: make(map[string]recipe.Extractor, len(sources))}
	for name, src := range sources {
		ex, err := build(src)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", name, err)
		}
		r.bySource[name] = ex
	}
	return r, nil
}

// Register binds (or replaces) the extractor for a source.
func (r *Registry) Register(source string, ex recipe.Extractor) {
	r.bySource[source] = ex
}

// For returns the extractor bound to source.
func (r *Registry) For(source string) (recipe.Extractor, error) {
	ex, ok := r.bySource[source]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for source %q", source)
	}
	return ex, nil
}

func build(src config.SourceConfig) (recipe.Extractor, error) {
	switch src.Extractor {
	case config.ExtractorJSONLD:
		return JSONLD{}, nil
	case config.ExtractorMVCreate:
		return MVCreate{}, nil
	case config.ExtractorSelector:
		return NewSelector(src.Selectors), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", src.Extractor)
	}
}
