package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

const (
	quantityPattern = `(?:\d+(?:[.,]\d+)?\s*)?[½⅓⅔¼¾⅛]|\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?(?:\s*[-–~]\s*\d+(?:[.,]\d+)?)?`
	unitPattern     = `(?i:cups?|tablespoons?|tbsps?|tbs|teaspoons?|tsps?|kilograms?|kg|grams?|g|millilit(?:er|re)s?|ml|lit(?:er|re)s?|l|ounces?|oz|pounds?|lbs?|pinch(?:es)?|dash(?:es)?|cloves?|cans?|slices?|pieces?|sticks?|큰술|작은술|스푼|컵|개|쪽|줌)`
)

var (
	leadingQuantity  = regexp.MustCompile(`^(` + quantityPattern + `)\s*(?:(` + unitPattern + `)\.?(?:\s+|$))?(.*)$`)
	trailingQuantity = regexp.MustCompile(`^(.+?)\s+(` + quantityPattern + `)\s*(` + unitPattern + `)?\.?$`)
	quantityValue    = regexp.MustCompile(quantityPattern)
)

// SplitIngredient reads an amount and unit from a free-text ingredient line.
// "2 cups almond flour" and "돼지고기 300g" both split; a line without a
// quantity, or one that is only a quantity, is kept whole as the name.
func SplitIngredient(line string) recipe.Ingredient {
	line = strings.Join(strings.Fields(line), " ")
	whole := recipe.Ingredient{Name: line}
	if line == "" {
		return whole
	}

	var name, amount, unit string
	if m := leadingQuantity.FindStringSubmatch(line); m != nil {
		amount, unit, name = m[1], m[2], m[3]
		name = strings.TrimPrefix(strings.TrimSpace(name), "of ")
	} else if m := trailingQuantity.FindStringSubmatch(line); m != nil {
		name, amount, unit = m[1], m[2], m[3]
	} else {
		return whole
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return whole
	}
	return recipe.Ingredient{Name: name, Amount: optional(amount), Unit: optional(unit)}
}

// SplitQuantity separates a combined quantity such as "2큰술" or "1/2 cup"
// into its number and the text around it.
func SplitQuantity(value string) (amount, unit *string) {
	value = strings.TrimSpace(value)
	loc := quantityValue.FindStringIndex(value)
	if loc == nil {
		return nil, optional(value)
	}
	return optional(value[loc[0]:loc[1]]), optional(value[:loc[0]] + value[loc[1]:])
}
