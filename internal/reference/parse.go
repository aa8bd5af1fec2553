package reference

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// BasisGrams is the serving every reference value is measured against.
const BasisGrams = 100

// generalGroup is the component group carrying the proximate values.
const generalGroup = "일반성분"

type payload struct {
	Service *struct {
		List []entry `json:"list"`
	} `json:"service"`
}

type entry struct {
	Name        string  `json:"fdNm"`
	EnglishName string  `json:"fdEngNm"`
	Groups      []group `json:"irdnt"`
}

type group struct {
	Name    string   `json:"irdntSeNm"`
	Details []detail `json:"irdnttcket"`
}

type detail struct {
	Name    string `json:"irdntEngNm"`
	Content string `json:"contInfo"`
	Unit    string `json:"irdntUnitNm"`
}

// Parse decodes one page of the nutrition API. Proximate values fill the
// nutrition columns; every other component lands in Extra with its unit.
// Entries without a name are dropped.
func Parse(source string, body []byte) ([]recipe.ReferenceIngredient, error) {
	var p payload
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode reference page: %w", err)
	}
	if p.Service == nil {
		return nil, errors.New("reference page has no service object")
	}

	out := make([]recipe.ReferenceIngredient, 0, len(p.Service.List))
	for _, e := range p.Service.List {
		name := recipe.CleanText(e.Name)
		if name == "" {
			continue
		}
		item := recipe.ReferenceIngredient{
			Source:      source,
			Name:        name,
			EnglishName: optional(e.EnglishName),
			BasisGrams:  BasisGrams,
		}
		if n := recipe.NormalizeNutrition(nutrition(e.Groups)); n != nil {
			item.Nutrition = *n
		}
		out = append(out, item)
	}
	return out, nil
}

func nutrition(groups []group) recipe.Nutrition {
	var n recipe.Nutrition
	extra := make(map[string]string)
	for _, g := range groups {
		for _, d := range g.Details {
			key := componentKey(d.Name)
			if key == "" {
				continue
			}
			if g.Name != generalGroup {
				if v := strings.TrimSpace(d.Content); v != "" {
					extra[key] = strings.TrimSpace(v + " " + d.Unit)
				}
				continue
			}
			value := amount(d.Content)
			switch key {
			case "energy":
				n.Energy = value
			case "fat":
				n.Fat = value
			case "carbohydrate":
				n.Carbohydrate = value
			case "protein":
				n.Protein = value
			case "total_dietary_fiber":
				n.Fiber = value
			default:
				extra[key] = *value
			}
		}
	}
	if len(extra) > 0 {
		n.Extra = extra
	}
	return n
}

// amount reads the first number of a content cell. Dashes mark trace
// amounts and read as zero, as does a cell with no number at all.
func amount(content string) *string {
	if v := recipe.FirstNumber(strings.ReplaceAll(content, "-", "0")); v != nil {
		return v
	}
	zero := "0"
	return &zero
}

func componentKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(recipe.CleanText(name)), " ", "_")
}

func optional(s string) *string {
	s = recipe.CleanText(s)
	if s == "" {
		return nil
	}
	return &s
}
