package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

const insertRunSQL = `
INSERT INTO harvest_runs (run_id, source, started_at, finished_at, addresses, fetched,
                          extracted, persisted, failed_chunks, report)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO NOTHING`

// RecordRun appends a run report to harvest_runs.
func (s *Store) RecordRun(ctx context.Context, report recipe.RunReport) error {
	if report.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	_, err = s.db.Exec(ctx, insertRunSQL,
		report.RunID, report.Source, report.StartedAt, report.FinishedAt,
		report.Addresses, report.Fetched, report.Extracted, report.Persisted, report.FailedChunks,
		payload,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", report.RunID, err)
	}
	return nil
}
