package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

const upsertSourceSQL = `
INSERT INTO recipe_sources (source, address, kind)
VALUES ($1, $2, $3)
ON CONFLICT (source, address) DO UPDATE
SET kind = EXCLUDED.kind, updated_at = now()
RETURNING (xmax = 0) AS inserted`

// RegisterAddresses upserts (source, address) pairs in one transaction and
// returns how many were new. Existing pairs keep their stable id; the latest
// kind wins.
func (s *Store) RegisterAddresses(ctx context.Context, source string, addrs []recipe.Address) (created int, err error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin register tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("rollback register tx", zap.Error(rbErr))
			}
		}
	}()

	for _, addr := range addrs {
		if addr.Value == "" {
			continue
		}
		kind := addr.Kind
		if kind == "" {
			kind = recipe.KindURL
		}
		var inserted bool
		if err := tx.QueryRow(ctx, upsertSourceSQL, source, addr.Value, string(kind)).Scan(&inserted); err != nil {
			return 0, fmt.Errorf("register %s/%s: %w", source, addr.Value, err)
		}
		if inserted {
			created++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit register tx: %w", err)
	}
	committed = true
	return created, nil
}

// StableID returns the id registered for (source, address).
func (s *Store) StableID(ctx context.Context, source, address string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`SELECT stable_id FROM recipe_sources WHERE source = $1 AND address = $2`,
		source, address,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%s/%s: %w", source, address, recipe.ErrNotRegistered)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup stable id: %w", err)
	}
	return id, nil
}

// RecipeIdentity returns the recipe id minted for stableID.
func (s *Store) RecipeIdentity(ctx context.Context, stableID int64) (int64, error) {
	return recipeIdentity(ctx, s.db, stableID)
}

func recipeIdentity(ctx context.Context, q querier, stableID int64) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `SELECT recipe_id FROM recipes WHERE stable_id = $1`, stableID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("stable id %d: %w", stableID, recipe.ErrRecipeNotPersisted)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup recipe identity: %w", err)
	}
	return id, nil
}

const listSourcesSQL = `
SELECT s.source, s.address, s.kind, s.stable_id, s.discovered_at, s.updated_at, r.recipe_id IS NOT NULL
FROM recipe_sources s
LEFT JOIN recipes r ON r.stable_id = s.stable_id
WHERE s.source = $1 AND (NOT $2::boolean OR r.recipe_id IS NULL)
ORDER BY s.stable_id`

// ListAddresses returns the registrations of a source, optionally only the
// ones without a persisted recipe.
func (s *Store) ListAddresses(ctx context.Context, source string, pendingOnly bool) ([]recipe.Registration, error) {
	rows, err := s.db.Query(ctx, listSourcesSQL, source, pendingOnly)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var out []recipe.Registration
	for rows.Next() {
		var (
			reg        recipe.Registration
			kind       string
			discovered time.Time
			updated    time.Time
		)
		if err := rows.Scan(&reg.Source, &reg.Address, &kind, &reg.StableID, &discovered, &updated, &reg.HasRecipe); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg.Kind = recipe.AddressKind(kind)
		reg.DiscoveredAt = discovered.UTC()
		reg.UpdatedAt = updated.UTC()
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}
