package recipe

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Column ranges of the recipe store. Values outside them are treated as
// absent rather than failing the write.
const (
	// MaxNumeric is the largest magnitude a NUMERIC(10,2) column holds.
	MaxNumeric = 99999999.99
	// MaxSeconds is the largest duration an INTEGER column holds.
	MaxSeconds = math.MaxInt32
)

var (
	whitespaceRun  = regexp.MustCompile(`\s+`)
	firstNumber    = regexp.MustCompile(`[-+]?\d*\.\d+|[-+]?\d+`)
	thousandsGroup = regexp.MustCompile(`(\d),(\d{3})\b`)
)

// CleanText collapses whitespace runs and applies Unicode NFC.
func CleanText(s string) string {
	s = norm.NFC.String(s)
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// FirstNumber returns the first decimal number found in s, or nil. Comma
// thousands separators ("1,234 kcal") are part of the number.
func FirstNumber(s string) *string {
	for thousandsGroup.MatchString(s) {
		s = thousandsGroup.ReplaceAllString(s, "$1$2")
	}
	match := firstNumber.FindString(s)
	if match == "" {
		return nil
	}
	return &match
}

// Normalize cleans a record into its canonical form: text is trimmed and NFC
// normalized, blank entries are dropped, instruction and tip order numbers are
// renumbered 0..n-1 preserving relative order, duplicate ingredients collapse,
// the total time is derived from prep+active when absent, and nutrition values
// that do not parse as numbers are dropped.
func Normalize(r Record) Record {
	out := Record{Info: normalizeInfo(r.Info)}

	seen := make(map[string]struct{}, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		name := CleanText(ing.Name)
		if name == "" {
			continue
		}
		item := Ingredient{Name: name, Unit: cleanOptional(ing.Unit), Amount: cleanOptional(ing.Amount)}
		key := name + "\x00" + deref(item.Unit) + "\x00" + deref(item.Amount)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Ingredients = append(out.Ingredients, item)
	}

	steps := append([]Instruction(nil), r.Instructions...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })
	for _, step := range steps {
		desc := CleanText(step.Description)
		if desc == "" {
			continue
		}
		out.Instructions = append(out.Instructions, Instruction{Description: desc, Order: len(out.Instructions)})
	}

	tips := append([]Tip(nil), r.Tips...)
	sort.SliceStable(tips, func(i, j int) bool { return tips[i].Order < tips[j].Order })
	for _, tip := range tips {
		text := CleanText(tip.Text)
		if text == "" {
			continue
		}
		out.Tips = append(out.Tips, Tip{Text: text, Order: len(out.Tips)})
	}

	out.Nutrition = normalizeNutrition(r.Nutrition)
	return out
}

// Validate enforces the only structural rule of the pipeline: a recipe has a
// name, at least one ingredient and at least one instruction.
func Validate(r Record) error {
	if strings.TrimSpace(r.Info.Name) == "" {
		return fmt.Errorf("%w: recipe name is empty", ErrInvalidRecord)
	}
	if len(r.Ingredients) == 0 {
		return fmt.Errorf("%w: no ingredients", ErrNotARecipe)
	}
	if len(r.Instructions) == 0 {
		return fmt.Errorf("%w: no instructions", ErrNotARecipe)
	}
	return nil
}

func normalizeInfo(info Info) Info {
	out := Info{
		Name:          CleanText(info.Name),
		StableID:      info.StableID,
		YieldUnit:     cleanOptional(info.YieldUnit),
		ImageURL:      cleanOptional(info.ImageURL),
		PrepSeconds:   nonNegative(info.PrepSeconds),
		ActiveSeconds: nonNegative(info.ActiveSeconds),
		TotalSeconds:  nonNegative(info.TotalSeconds),
	}
	if info.YieldQuantity != nil && *info.YieldQuantity > 0 && NumericInRange(*info.YieldQuantity) {
		q := *info.YieldQuantity
		out.YieldQuantity = &q
	}
	if out.TotalSeconds == nil && out.PrepSeconds != nil && out.ActiveSeconds != nil {
		total := *out.PrepSeconds + *out.ActiveSeconds
		out.TotalSeconds = nonNegative(&total)
	}
	return out
}

// NormalizeNutrition applies the record nutrition rules to a standalone value.
// It returns nil when nothing usable remains.
func NormalizeNutrition(n Nutrition) *Nutrition {
	return normalizeNutrition(&n)
}

func normalizeNutrition(n *Nutrition) *Nutrition {
	if n == nil {
		return nil
	}
	out := &Nutrition{
		Energy:       numericOptional(n.Energy),
		Fat:          numericOptional(n.Fat),
		Carbohydrate: numericOptional(n.Carbohydrate),
		Protein:      numericOptional(n.Protein),
		Fiber:        numericOptional(n.Fiber),
	}
	for k, v := range n.Extra {
		key := CleanText(k)
		val := CleanText(v)
		if key == "" || val == "" {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		out.Extra[key] = val
	}
	if out.Energy == nil && out.Fat == nil && out.Carbohydrate == nil &&
		out.Protein == nil && out.Fiber == nil && len(out.Extra) == 0 {
		return nil
	}
	return out
}

func numericOptional(v *string) *string {
	if v == nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
	if err != nil || !NumericInRange(f) {
		return nil
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	return &s
}

// NumericInRange reports whether v is finite and fits a NUMERIC(10,2) column
// once rounded to two decimals.
func NumericInRange(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return math.Abs(math.Round(v*100)/100) <= MaxNumeric
}

// SecondsInRange reports whether v fits an INTEGER duration column.
func SecondsInRange(v int) bool {
	return v >= 0 && v <= MaxSeconds
}

func cleanOptional(v *string) *string {
	if v == nil {
		return nil
	}
	s := CleanText(*v)
	if s == "" {
		return nil
	}
	return &s
}

func nonNegative(v *int) *int {
	if v == nil || !SecondsInRange(*v) {
		return nil
	}
	n := *v
	return &n
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
