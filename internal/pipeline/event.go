package pipeline

import (
	"time"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// RunEvent is the payload published when a run completes.
type RunEvent struct {
	RunID        string               `json:"run_id"`
	Source       string               `json:"source"`
	StartedAt    string               `json:"started_at"`
	FinishedAt   string               `json:"finished_at"`
	Addresses    int                  `json:"addresses"`
	Fetched      int                  `json:"fetched"`
	Extracted    int                  `json:"extracted"`
	Persisted    int                  `json:"persisted"`
	FailedChunks int                  `json:"failed_chunks"`
	Skipped      int                  `json:"skipped"`
	Rows         recipe.PersistReport `json:"rows"`
}

func newRunEvent(r recipe.RunReport) RunEvent {
	return RunEvent{
		RunID:        r.RunID,
		Source:       r.Source,
		StartedAt:    r.StartedAt.Format(time.RFC3339),
		FinishedAt:   r.FinishedAt.Format(time.RFC3339),
		Addresses:    r.Addresses,
		Fetched:      r.Fetched,
		Extracted:    r.Extracted,
		Persisted:    r.Persisted,
		FailedChunks: r.FailedChunks,
		Skipped:      len(r.Skipped),
		Rows:         r.Rows,
	}
}
