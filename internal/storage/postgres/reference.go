package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

const insertReferenceSQL = `
INSERT INTO ingredient_reference (source, ingredient_name, english_name, basis_grams,
                                  energy, fat, carbohydrate, protein, fiber, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (source, ingredient_name) DO NOTHING`

// PutReferences inserts reference rows in one transaction and returns how
// many were new.
func (s *Store) PutReferences(ctx context.Context, items []recipe.ReferenceIngredient) (inserted int, err error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin reference tx: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback reference tx", zap.Error(rbErr))
		}
	}()

	for _, item := range items {
		n := item.Nutrition
		extra, err := extraJSON(n.Extra)
		if err != nil {
			return 0, fmt.Errorf("reference %q: %w", item.Name, err)
		}
		tag, err := tx.Exec(ctx, insertReferenceSQL,
			item.Source, item.Name, item.EnglishName, item.BasisGrams,
			numeric(n.Energy), numeric(n.Fat), numeric(n.Carbohydrate), numeric(n.Protein), numeric(n.Fiber), extra,
		)
		if err != nil {
			return 0, fmt.Errorf("insert reference %q: %w", item.Name, err)
		}
		inserted += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit reference tx: %w", err)
	}
	committed = true
	s.logger.Debug("stored reference rows", zap.Int("rows", len(items)), zap.Int("inserted", inserted))
	return inserted, nil
}
