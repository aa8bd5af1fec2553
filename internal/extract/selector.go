package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/recipe-harvester/internal/config"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Selector extracts recipes from plain HTML pages using per-site CSS rules.
type Selector struct {
	rules config.SelectorRules
}

// NewSelector builds a Selector for one site.
func NewSelector(rules config.SelectorRules) *Selector {
	if rules.ImageAttr == "" {
		rules.ImageAttr = "src"
	}
	return &Selector{rules: rules}
}

// Extract implements recipe.Extractor.
func (s *Selector) Extract(doc recipe.Document) (recipe.Record, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return recipe.Record{}, &recipe.ExtractionError{Address: doc.Address.Value, Err: fmt.Errorf("parse html: %w", err)}
	}

	name := s.text(page, s.rules.Name)
	ingredients := s.ingredients(page)
	steps := s.texts(page, s.rules.Instructions)
	if name == "" && len(ingredients) == 0 && len(steps) == 0 {
		return recipe.Record{}, recipe.ErrNotARecipe
	}

	rec := recipe.Record{
		Info: recipe.Info{
			Name:          name,
			ImageURL:      optional(s.image(page)),
			PrepSeconds:   ParseDuration(s.text(page, s.rules.PrepTime)),
			ActiveSeconds: ParseDuration(s.text(page, s.rules.CookTime)),
			TotalSeconds:  ParseDuration(s.text(page, s.rules.TotalTime)),
		},
	}
	rec.Info.YieldQuantity, rec.Info.YieldUnit = SplitYield(s.text(page, s.rules.Yield))

	rec.Ingredients = ingredients
	for i, step := range steps {
		rec.Instructions = append(rec.Instructions, recipe.Instruction{Description: step, Order: i})
	}
	for i, tip := range s.texts(page, s.rules.Tips) {
		rec.Tips = append(rec.Tips, recipe.Tip{Text: tip, Order: i})
	}
	return rec, nil
}

func (s *Selector) text(page *goquery.Document, sel string) string {
	if sel == "" {
		return ""
	}
	return strings.TrimSpace(page.Find(sel).First().Text())
}

func (s *Selector) texts(page *goquery.Document, sel string) []string {
	if sel == "" {
		return nil
	}
	var out []string
	page.Find(sel).Each(func(_ int, item *goquery.Selection) {
		out = append(out, item.Text())
	})
	return out
}

// ingredients reads one Ingredient per node. Without sub-selectors the node
// text is split as a free-text line.
func (s *Selector) ingredients(page *goquery.Document) []recipe.Ingredient {
	if s.rules.Ingredients == "" {
		return nil
	}
	r := s.rules
	structured := r.IngredientName != "" || r.IngredientAmount != "" || r.IngredientUnit != "" || r.IngredientQuantity != ""
	var out []recipe.Ingredient
	page.Find(r.Ingredients).Each(func(_ int, node *goquery.Selection) {
		line := node.Text()
		if !structured {
			out = append(out, SplitIngredient(line))
			return
		}
		amountText := subText(node, r.IngredientAmount)
		unitText := subText(node, r.IngredientUnit)
		quantity := subText(node, r.IngredientQuantity)

		ing := recipe.Ingredient{Amount: optional(amountText), Unit: optional(unitText)}
		if quantity != "" {
			amount, unit := SplitQuantity(quantity)
			if ing.Amount == nil {
				ing.Amount = amount
			}
			if ing.Unit == nil {
				ing.Unit = unit
			}
		}
		ing.Name = subText(node, r.IngredientName)
		if ing.Name == "" {
			for _, part := range []string{quantity, amountText, unitText} {
				if part != "" {
					line = strings.Replace(line, part, "", 1)
				}
			}
			ing.Name = strings.TrimSpace(line)
		}
		out = append(out, ing)
	})
	return out
}

func subText(node *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	return strings.TrimSpace(node.Find(sel).First().Text())
}

// image reads the configured attribute, then the usual lazy-load attributes.
func (s *Selector) image(page *goquery.Document) string {
	if s.rules.Image == "" {
		return ""
	}
	img := page.Find(s.rules.Image).First()
	for _, attr := range []string{s.rules.ImageAttr, "data-lazy-src", "data-src", "src"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
