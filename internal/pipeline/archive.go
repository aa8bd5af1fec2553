package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// DocumentPath is the archive key of a document:
// <prefix>/<source>/<run id>/<sha256 of url>.<html|json>.
func DocumentPath(prefix, runID string, doc recipe.Document) (string, string) {
	sum := sha256.Sum256([]byte(doc.URL))
	ext, contentType := "html", "text/html; charset=utf-8"
	if trimmed := bytes.TrimSpace(doc.Body); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		ext, contentType = "json", "application/json"
	}
	name := hex.EncodeToString(sum[:]) + "." + ext
	return path.Join(strings.Trim(prefix, "/"), doc.Address.Source, runID, name), contentType
}

// archiveDocuments stores raw documents when an archive is configured.
// Failures are logged; they never drop a document from the run.
func (h *Harvester) archiveDocuments(ctx context.Context, logger *zap.Logger, runID string, docs []recipe.Document) {
	if h.archive == nil {
		return
	}
	stored := 0
	for _, doc := range docs {
		key, contentType := DocumentPath(h.cfg.ArchivePrefix, runID, doc)
		if _, err := h.archive.PutObject(ctx, key, contentType, bytes.NewReader(doc.Body)); err != nil {
			logger.Warn("archive document failed", zap.String("url", doc.URL), zap.Error(err))
			continue
		}
		stored++
	}
	logger.Debug("documents archived", zap.Int("stored", stored), zap.Int("documents", len(docs)))
}
