package promote

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// DefaultBodyThreshold is the body size under which a script-heavy page is
// considered an unrendered shell.
const DefaultBodyThreshold = 2048

// Heuristic decides from a probe response whether a page needs a browser.
type Heuristic struct {
	BodyThreshold int
}

// NewHeuristic creates a detector; a zero threshold uses DefaultBodyThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Heuristic{BodyThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

var recipeMarkers = [][]byte{
	[]byte("application/ld+json"),
	[]byte("itemtype=\"http://schema.org/recipe\""),
	[]byte("itemtype=\"https://schema.org/recipe\""),
}

// ShouldPromote reports whether resp looks like a page whose recipe only
// appears after scripts run. Pages that already carry structured recipe data
// are never promoted.
func (h *Heuristic) ShouldPromote(resp recipe.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	if body[0] == '{' || body[0] == '[' {
		return false
	}
	lower := bytes.ToLower(body)
	for _, marker := range recipeMarkers {
		if bytes.Contains(lower, marker) {
			return false
		}
	}
	if len(body) < h.BodyThreshold && scriptDensityHigh(string(lower)) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether <script> elements cover at least a
// quarter of the (lowercased) document.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Unterminated tag: the rest of the document counts.
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		next := total
		if end := strings.Index(lower[contentStart:], closeTag); end != -1 {
			next = contentStart + end + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}
