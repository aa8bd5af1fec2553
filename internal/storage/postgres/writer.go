package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Persist stages.
const (
	stageValidate     = "validate"
	stageBegin        = "begin"
	stageInfo         = "info"
	stageIdentity     = "identity"
	stageIngredients  = "ingredients"
	stageInstructions = "instructions"
	stageNutrition    = "nutrition"
	stageTips         = "tips"
	stageCommit       = "commit"
)

const (
	insertRecipeSQL = `
INSERT INTO recipes (stable_id, recipe_name, yield_quantity, yield_unit, image_url,
                     prep_time_seconds, active_time_seconds, total_time_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (stable_id) DO NOTHING`

	insertIngredientSQL = `
INSERT INTO recipe_ingredients (recipe_id, ingredient_name, unit, amount)
VALUES ($1, $2, $3, $4)
ON CONFLICT DO NOTHING`

	insertInstructionSQL = `
INSERT INTO recipe_instructions (recipe_id, order_number, description)
VALUES ($1, $2, $3)
ON CONFLICT (recipe_id, order_number) DO NOTHING`

	insertNutritionSQL = `
INSERT INTO recipe_nutrition (recipe_id, energy, fat, carbohydrate, protein, fiber, extra)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (recipe_id) DO NOTHING`

	insertTipSQL = `
INSERT INTO recipe_tips (recipe_id, order_number, tip)
VALUES ($1, $2, $3)
ON CONFLICT (recipe_id, order_number) DO NOTHING`
)

// Persist writes records inside one transaction. Recipe rows go first so the
// child tables can resolve recipe ids within the same transaction. Every
// insert skips rows that already exist, so re-running a batch inserts nothing.
// Any failure rolls the whole batch back and is reported as *recipe.PersistError.
func (s *Store) Persist(ctx context.Context, records []recipe.Record) (report recipe.PersistReport, err error) {
	report.Records = len(records)
	if len(records) == 0 {
		return report, nil
	}
	for _, rec := range records {
		if rec.Info.StableID <= 0 {
			return recipe.PersistReport{}, persistErr(rec, stageValidate, fmt.Errorf("stable id must be > 0"))
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return recipe.PersistReport{}, &recipe.PersistError{Stage: stageBegin, Err: err}
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback persist tx", zap.Error(rbErr))
		}
	}()

	for _, rec := range records {
		info := rec.Info
		tag, err := tx.Exec(ctx, insertRecipeSQL,
			info.StableID, info.Name, info.YieldQuantity, info.YieldUnit, info.ImageURL,
			info.PrepSeconds, info.ActiveSeconds, info.TotalSeconds,
		)
		if err != nil {
			return recipe.PersistReport{}, persistErr(rec, stageInfo, err)
		}
		report.Recipes += int(tag.RowsAffected())
	}

	for _, rec := range records {
		counts, err := persistChildren(ctx, tx, rec)
		if err != nil {
			return recipe.PersistReport{}, err
		}
		report.Ingredients += counts.Ingredients
		report.Instructions += counts.Instructions
		report.Nutrition += counts.Nutrition
		report.Tips += counts.Tips
	}

	if err := tx.Commit(ctx); err != nil {
		return recipe.PersistReport{}, &recipe.PersistError{Stage: stageCommit, Err: err}
	}
	committed = true

	s.logger.Debug("persisted batch",
		zap.Int("records", report.Records),
		zap.Int("recipes", report.Recipes),
		zap.Int("ingredients", report.Ingredients),
	)
	return report, nil
}

func persistChildren(ctx context.Context, tx pgx.Tx, rec recipe.Record) (recipe.PersistReport, error) {
	var counts recipe.PersistReport

	recipeID, err := recipeIdentity(ctx, tx, rec.Info.StableID)
	if err != nil {
		return counts, persistErr(rec, stageIdentity, err)
	}

	for _, ing := range rec.Ingredients {
		tag, err := tx.Exec(ctx, insertIngredientSQL, recipeID, ing.Name, ing.Unit, ing.Amount)
		if err != nil {
			return counts, persistErr(rec, stageIngredients, err)
		}
		counts.Ingredients += int(tag.RowsAffected())
	}

	for _, step := range rec.Instructions {
		tag, err := tx.Exec(ctx, insertInstructionSQL, recipeID, step.Order, step.Description)
		if err != nil {
			return counts, persistErr(rec, stageInstructions, err)
		}
		counts.Instructions += int(tag.RowsAffected())
	}

	if n := rec.Nutrition; n != nil {
		extra, err := extraJSON(n.Extra)
		if err != nil {
			return counts, persistErr(rec, stageNutrition, err)
		}
		tag, err := tx.Exec(ctx, insertNutritionSQL, recipeID,
			numeric(n.Energy), numeric(n.Fat), numeric(n.Carbohydrate), numeric(n.Protein), numeric(n.Fiber), extra,
		)
		if err != nil {
			return counts, persistErr(rec, stageNutrition, err)
		}
		counts.Nutrition += int(tag.RowsAffected())
	}

	for _, tip := range rec.Tips {
		tag, err := tx.Exec(ctx, insertTipSQL, recipeID, tip.Order, tip.Text)
		if err != nil {
			return counts, persistErr(rec, stageTips, err)
		}
		counts.Tips += int(tag.RowsAffected())
	}
	return counts, nil
}

func persistErr(rec recipe.Record, stage string, err error) *recipe.PersistError {
	return &recipe.PersistError{RecipeName: rec.Info.Name, StableID: rec.Info.StableID, Stage: stage, Err: err}
}

// numeric converts a normalized nutrition string for a NUMERIC column.
func numeric(v *string) *float64 {
	if v == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func extraJSON(extra map[string]string) (*string, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("marshal nutrition extra: %w", err)
	}
	s := string(b)
	return &s, nil
}
