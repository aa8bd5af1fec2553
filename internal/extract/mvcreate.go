package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// MVCreate extracts recipes from the WordPress mv-create REST API
// (/wp-json/mv-create/v1/creations/{id}).
type MVCreate struct{}

type mvCreation struct {
	Title        string     `json:"title"`
	Yield        flexString `json:"yield"`
	ThumbnailURI string     `json:"thumbnail_uri"`
	PrepTime     flexString `json:"prep_time"`
	ActiveTime   flexString `json:"active_time"`
	TotalTime    flexString `json:"total_time"`
	Supplies     []struct {
		OriginalText string `json:"original_text"`
	} `json:"supplies"`
	Instructions string       `json:"instructions"`
	Notes        string       `json:"notes"`
	Nutrition    *mvNutrition `json:"nutrition"`
}

type mvNutrition struct {
	Calories         flexString `json:"calories"`
	TotalFat         flexString `json:"total_fat"`
	NetCarbs         flexString `json:"net_carbs"`
	Carbohydrates    flexString `json:"carbohydrates"`
	Protein          flexString `json:"protein"`
	Fiber            flexString `json:"fiber"`
	Sugar            flexString `json:"sugar"`
	Sodium           flexString `json:"sodium"`
	NumberOfServings flexString `json:"number_of_servings"`
}

// flexString accepts JSON strings, numbers and null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode string: %w", err)
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// Extract implements recipe.Extractor.
func (MVCreate) Extract(doc recipe.Document) (recipe.Record, error) {
	var c mvCreation
	if err := json.Unmarshal(doc.Body, &c); err != nil {
		return recipe.Record{}, &recipe.ExtractionError{Address: doc.Address.Value, Err: fmt.Errorf("decode mv-create payload: %w", err)}
	}
	if strings.TrimSpace(c.Title) == "" && len(c.Supplies) == 0 {
		return recipe.Record{}, recipe.ErrNotARecipe
	}

	rec := recipe.Record{
		Info: recipe.Info{
			Name:          c.Title,
			ImageURL:      optional(c.ThumbnailURI),
			PrepSeconds:   seconds(c.PrepTime),
			ActiveSeconds: seconds(c.ActiveTime),
			TotalSeconds:  seconds(c.TotalTime),
		},
	}
	rec.Info.YieldQuantity, rec.Info.YieldUnit = SplitYield(string(c.Yield))
	if rec.Info.YieldQuantity == nil && c.Nutrition != nil {
		rec.Info.YieldQuantity, _ = SplitYield(string(c.Nutrition.NumberOfServings))
	}

	for _, s := range c.Supplies {
		rec.Ingredients = append(rec.Ingredients, SplitIngredient(s.OriginalText))
	}

	if c.Instructions != "" {
		steps, err := htmlSteps(c.Instructions)
		if err != nil {
			return recipe.Record{}, &recipe.ExtractionError{Address: doc.Address.Value, Err: fmt.Errorf("parse instructions: %w", err)}
		}
		for i, step := range steps {
			rec.Instructions = append(rec.Instructions, recipe.Instruction{Description: step, Order: i})
		}
	}

	if c.Notes != "" {
		notes, err := htmlSteps(c.Notes)
		if err != nil {
			return recipe.Record{}, &recipe.ExtractionError{Address: doc.Address.Value, Err: fmt.Errorf("parse notes: %w", err)}
		}
		for i, note := range notes {
			rec.Tips = append(rec.Tips, recipe.Tip{Text: note, Order: i})
		}
	}

	if c.Nutrition != nil {
		rec.Nutrition = c.Nutrition.toRecord()
		scaleNutrition(rec.Nutrition, rec.Info.YieldQuantity)
	}
	return rec, nil
}

func (n *mvNutrition) toRecord() *recipe.Nutrition {
	carbs := n.NetCarbs
	if carbs == "" {
		carbs = n.Carbohydrates
	}
	out := &recipe.Nutrition{
		Energy:       recipe.FirstNumber(string(n.Calories)),
		Fat:          recipe.FirstNumber(string(n.TotalFat)),
		Carbohydrate: recipe.FirstNumber(string(carbs)),
		Protein:      recipe.FirstNumber(string(n.Protein)),
		Fiber:        recipe.FirstNumber(string(n.Fiber)),
	}
	for key, v := range map[string]flexString{"sugar": n.Sugar, "sodium": n.Sodium} {
		if v == "" {
			continue
		}
		if out.Extra == nil {
			out.Extra = map[string]string{}
		}
		out.Extra[key] = string(v)
	}
	return out
}

// seconds reads mv-create times, which are whole seconds, falling back to the
// free-text parser for anything else.
func seconds(v flexString) *int {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return durationSeconds(float64(n))
	}
	return ParseDuration(s)
}
