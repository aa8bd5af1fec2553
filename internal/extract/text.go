package extract

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sosodev/duration"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

var (
	durationPart = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(hours|hour|hrs|hr|h|시간|minutes|minute|mins|min|m|분|seconds|second|secs|sec|s|초)`)
	anyNumber    = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// ParseDuration turns a recipe time into seconds. ISO-8601 values ("PT1H15M")
// are parsed strictly; anything else is read as free text such as
// "1 hour 15 mins" or "1시간 30분". A bare number is minutes unless the text
// mentions hours. Unparseable input yields nil.
func ParseDuration(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToUpper(s), "P") {
		if d, err := duration.Parse(strings.ToUpper(s)); err == nil {
			return durationSeconds(d.ToTimeDuration().Seconds())
		}
	}

	matches := durationPart.FindAllStringSubmatch(s, -1)
	if len(matches) > 0 {
		var total float64
		for _, m := range matches {
			n, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			total += n * unitSeconds(strings.ToLower(m[2]))
		}
		return durationSeconds(total)
	}

	num := anyNumber.FindString(s)
	if num == "" {
		return nil
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", "."), 64)
	if err != nil {
		return nil
	}
	mult := 60.0
	if strings.Contains(strings.ToLower(s), "h") || strings.Contains(s, "시") {
		mult = 3600
	}
	return durationSeconds(n * mult)
}

// durationSeconds rounds secs, or returns nil when it is negative or does not
// fit a stored duration.
func durationSeconds(secs float64) *int {
	secs = math.Round(secs)
	if math.IsNaN(secs) || secs < 0 || secs > recipe.MaxSeconds {
		return nil
	}
	n := int(secs)
	return &n
}

func unitSeconds(unit string) float64 {
	switch unit {
	case "hours", "hour", "hrs", "hr", "h", "시간":
		return 3600
	case "seconds", "second", "secs", "sec", "s", "초":
		return 1
	default:
		return 60
	}
}

// SplitYield reads a yield such as "4 servings" or "Serves 6" into a quantity
// and an optional unit.
func SplitYield(s string) (*float64, *string) {
	s = recipe.CleanText(s)
	loc := anyNumber.FindStringIndex(s)
	if loc == nil {
		return nil, nil
	}
	q, err := strconv.ParseFloat(strings.ReplaceAll(s[loc[0]:loc[1]], ",", "."), 64)
	if err != nil {
		return nil, nil
	}
	unit := strings.TrimSpace(strings.TrimLeft(s[loc[1]:], "-– 0123456789."))
	if unit == "" {
		unit = strings.TrimSpace(s[:loc[0]])
	}
	if unit == "" {
		return &q, nil
	}
	return &q, &unit
}

// scaleNutrition multiplies per-serving values by the number of servings so
// stored nutrition describes the whole recipe.
func scaleNutrition(n *recipe.Nutrition, servings *float64) {
	if n == nil || servings == nil || *servings <= 0 {
		return
	}
	for _, field := range []**string{&n.Energy, &n.Fat, &n.Carbohydrate, &n.Protein, &n.Fiber} {
		if *field == nil {
			continue
		}
		v, err := strconv.ParseFloat(**field, 64)
		if err != nil {
			continue
		}
		scaled := strconv.FormatFloat(v**servings, 'f', 2, 64)
		*field = &scaled
	}
}

// htmlSteps splits an HTML fragment into instruction steps: list items when
// present, otherwise paragraphs, otherwise sentences.
func htmlSteps(fragment string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(fragment))
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by callers
	}
	var steps []string
	for _, sel := range []string{"li", "p"} {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			steps = append(steps, s.Text())
		})
		if len(steps) > 0 {
			return steps, nil
		}
	}
	for _, sentence := range strings.Split(doc.Text(), ".") {
		if strings.TrimSpace(sentence) != "" {
			steps = append(steps, strings.TrimSpace(sentence)+".")
		}
	}
	return steps, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
