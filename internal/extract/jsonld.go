package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// JSONLD extracts schema.org Recipe objects embedded as
// <script type="application/ld+json">.
type JSONLD struct{}

// Extract implements recipe.Extractor.
func (JSONLD) Extract(doc recipe.Document) (recipe.Record, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(doc.Body))
	if err != nil {
		return recipe.Record{}, &recipe.ExtractionError{Address: doc.Address.Value, Err: fmt.Errorf("parse html: %w", err)}
	}

	var parseErrs []error
	var found map[string]any
	page.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		payload, err := decodeBlock(strings.TrimSpace(s.Text()))
		if err != nil {
			parseErrs = append(parseErrs, err)
			return true
		}
		found = findRecipe(payload)
		return found == nil
	})

	if found == nil {
		if len(parseErrs) > 0 {
			return recipe.Record{}, &recipe.ExtractionError{Address: doc.Address.Value, Err: fmt.Errorf("decode json-ld: %w", errors.Join(parseErrs...))}
		}
		return recipe.Record{}, recipe.ErrNotARecipe
	}
	return recordFromSchema(found), nil
}

// decodeBlock parses a JSON-LD block, retrying as JSON5 for hand-edited
// blocks with trailing commas, comments or unquoted keys.
func decodeBlock(raw string) (any, error) {
	var payload any
	err := json.Unmarshal([]byte(raw), &payload)
	if err == nil {
		return payload, nil
	}
	payload = nil
	if json5.Unmarshal([]byte(raw), &payload) == nil {
		return payload, nil
	}
	return nil, err
}

// findRecipe walks objects, arrays and @graph containers for an object whose
// @type is (or includes) Recipe.
func findRecipe(v any) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if r := findRecipe(item); r != nil {
				return r
			}
		}
	case map[string]any:
		if hasType(node["@type"], "Recipe") {
			return node
		}
		if graph, ok := node["@graph"]; ok {
			return findRecipe(graph)
		}
	}
	return nil
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func recordFromSchema(obj map[string]any) recipe.Record {
	rec := recipe.Record{
		Info: recipe.Info{
			Name:          str(obj["name"]),
			ImageURL:      optional(imageURL(obj["image"])),
			PrepSeconds:   ParseDuration(str(obj["prepTime"])),
			ActiveSeconds: ParseDuration(str(obj["cookTime"])),
			TotalSeconds:  ParseDuration(str(obj["totalTime"])),
		},
	}
	rec.Info.YieldQuantity, rec.Info.YieldUnit = SplitYield(first(obj["recipeYield"]))

	ingredients := obj["recipeIngredient"]
	if ingredients == nil {
		ingredients = obj["ingredients"]
	}
	for _, line := range strs(ingredients) {
		rec.Ingredients = append(rec.Ingredients, SplitIngredient(line))
	}

	for i, step := range instructionTexts(obj["recipeInstructions"]) {
		rec.Instructions = append(rec.Instructions, recipe.Instruction{Description: step, Order: i})
	}

	rec.Nutrition = nutritionFromSchema(obj["nutrition"])
	scaleNutrition(rec.Nutrition, rec.Info.YieldQuantity)
	return rec
}

func instructionTexts(v any) []string {
	switch node := v.(type) {
	case string:
		return strings.Split(node, "\n")
	case []any:
		var out []string
		for _, item := range node {
			out = append(out, instructionTexts(item)...)
		}
		return out
	case map[string]any:
		if hasType(node["@type"], "HowToSection") {
			return instructionTexts(node["itemListElement"])
		}
		if text := str(node["text"]); text != "" {
			return []string{text}
		}
		return []string{str(node["name"])}
	}
	return nil
}

var schemaNutrition = map[string]string{
	"calories":            "energy",
	"fatContent":          "fat",
	"carbohydrateContent": "carbohydrate",
	"proteinContent":      "protein",
	"fiberContent":        "fiber",
}

func nutritionFromSchema(v any) *recipe.Nutrition {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	n := &recipe.Nutrition{}
	for key, raw := range obj {
		if strings.HasPrefix(key, "@") {
			continue
		}
		value := str(raw)
		switch schemaNutrition[key] {
		case "energy":
			n.Energy = recipe.FirstNumber(value)
		case "fat":
			n.Fat = recipe.FirstNumber(value)
		case "carbohydrate":
			n.Carbohydrate = recipe.FirstNumber(value)
		case "protein":
			n.Protein = recipe.FirstNumber(value)
		case "fiber":
			n.Fiber = recipe.FirstNumber(value)
		default:
			if value == "" {
				continue
			}
			if n.Extra == nil {
				n.Extra = map[string]string{}
			}
			n.Extra[key] = value
		}
	}
	return n
}

func imageURL(v any) string {
	switch img := v.(type) {
	case string:
		return img
	case []any:
		for _, item := range img {
			if u := imageURL(item); u != "" {
				return u
			}
		}
	case map[string]any:
		return str(img["url"])
	}
	return ""
}

// str renders scalar JSON values as text.
func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return fmt.Sprint(t)
	}
	return ""
}

func strs(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, str(item))
		}
		return out
	case string:
		return []string{t}
	}
	return nil
}

func first(v any) string {
	if list, ok := v.([]any); ok {
		for _, item := range list {
			if s := str(item); s != "" {
				return s
			}
		}
		return ""
	}
	return str(v)
}
