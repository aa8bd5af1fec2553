package extract

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recipe-harvester/internal/config"
	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

func loadDoc(t *testing.T, name string) recipe.Document {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return recipe.Document{
		Address: recipe.Address{Source: "test", Value: name, Kind: recipe.KindURL},
		URL:     "https://site.test/" + name,
		Body:    body,
	}
}

func TestJSONLDExtractsRecipeFromGraph(t *testing.T) {
	t.Parallel()

	rec, err := JSONLD{}.Extract(loadDoc(t, "jsonld_graph.html"))
	require.NoError(t, err)

	rec = recipe.Normalize(rec)
	require.NoError(t, recipe.Validate(rec))
	require.Equal(t, "Keto Chaffles", rec.Info.Name)
	require.Equal(t, "https://cdn.test/chaffle.jpg", *rec.Info.ImageURL)
	require.Equal(t, 2.0, *rec.Info.YieldQuantity)
	require.Equal(t, 300, *rec.Info.PrepSeconds)
	require.Equal(t, 600, *rec.Info.ActiveSeconds)
	require.Equal(t, 900, *rec.Info.TotalSeconds)
	require.Len(t, rec.Ingredients, 2)
	require.Equal(t, []recipe.Instruction{
		{Description: "Preheat the waffle maker.", Order: 0},
		{Description: "Whisk the egg and cheese.", Order: 1},
		{Description: "Cook until golden.", Order: 2},
	}, rec.Instructions)

	require.NotNil(t, rec.Nutrition)
	require.Equal(t, "300.00", *rec.Nutrition.Energy, "per-serving values scaled by yield")
	require.Equal(t, "22.00", *rec.Nutrition.Fat)
	require.Nil(t, rec.Nutrition.Fiber)
	require.Equal(t, "300 mg", rec.Nutrition.Extra["sodiumContent"])
}

func TestJSONLDWithoutRecipe(t *testing.T) {
	t.Parallel()

	doc := recipe.Document{Body: []byte(`<script type="application/ld+json">{"@type":"Article","name":"news"}</script>`)}
	_, err := JSONLD{}.Extract(doc)
	require.True(t, errors.Is(err, recipe.ErrNotARecipe))

	doc = recipe.Document{Body: []byte(`<html><body>plain</body></html>`)}
	_, err = JSONLD{}.Extract(doc)
	require.True(t, errors.Is(err, recipe.ErrNotARecipe))
}

func TestJSONLDOnlyBrokenBlocks(t *testing.T) {
	t.Parallel()

	doc := recipe.Document{
		Address: recipe.Address{Value: "https://broken.test"},
		Body:    []byte(`<script type="application/ld+json">{"@type": "Recipe",</script>`),
	}
	_, err := JSONLD{}.Extract(doc)
	var exErr *recipe.ExtractionError
	require.True(t, errors.As(err, &exErr))
	require.Equal(t, "https://broken.test", exErr.Address)
}

func TestJSONLDToleratesTrailingCommasAndComments(t *testing.T) {
	t.Parallel()

	doc := recipe.Document{Body: []byte(`<script type="application/ld+json">
{
  // added by the theme
  "@type": "Recipe",
  "name": "Fat Bombs",
  "recipeIngredient": ["cocoa butter", "coconut oil",],
  "recipeInstructions": ["Melt.", "Freeze.",],
}
</script>`)}
	rec, err := JSONLD{}.Extract(doc)
	require.NoError(t, err)
	require.Equal(t, "Fat Bombs", rec.Info.Name)
	require.Len(t, rec.Ingredients, 2)
	require.Len(t, rec.Instructions, 2)
}

func TestMVCreateExtractsAPIPayload(t *testing.T) {
	t.Parallel()

	rec, err := MVCreate{}.Extract(loadDoc(t, "mvcreate.json"))
	require.NoError(t, err)
	rec = recipe.Normalize(rec)
	require.NoError(t, recipe.Validate(rec))

	require.Equal(t, "Keto Taco Casserole", rec.Info.Name)
	require.Equal(t, 6.0, *rec.Info.YieldQuantity)
	require.Equal(t, "servings", *rec.Info.YieldUnit)
	require.Equal(t, 600, *rec.Info.PrepSeconds)
	require.Equal(t, 1800, *rec.Info.ActiveSeconds)
	require.Equal(t, 2400, *rec.Info.TotalSeconds)
	require.Equal(t, recipe.Ingredient{Name: "ground beef", Amount: ptr("1"), Unit: ptr("pound")}, rec.Ingredients[0])
	require.Len(t, rec.Instructions, 3)
	require.Equal(t, "Bake 30 minutes.", rec.Instructions[2].Description)
	require.Equal(t, []recipe.Tip{{Text: "Leftovers keep for 3 days.", Order: 0}}, rec.Tips)

	require.Equal(t, "1800.00", *rec.Nutrition.Energy)
	require.Equal(t, "18.00", *rec.Nutrition.Carbohydrate)
	require.Nil(t, rec.Nutrition.Fiber)
	require.Equal(t, "1", rec.Nutrition.Extra["sugar"])
}

func TestMVCreateFallsBackToServings(t *testing.T) {
	t.Parallel()

	doc := recipe.Document{Body: []byte(`{"title":"Soup","supplies":[{"original_text":"water"}],"instructions":"Boil. Serve.","nutrition":{"calories":"100","number_of_servings":"2 bowls"}}`)}
	rec, err := MVCreate{}.Extract(doc)
	require.NoError(t, err)
	require.Equal(t, 2.0, *rec.Info.YieldQuantity)
	require.Equal(t, "200.00", *rec.Nutrition.Energy)
	require.Equal(t, []recipe.Instruction{{Description: "Boil.", Order: 0}, {Description: "Serve.", Order: 1}}, rec.Instructions)
}

func TestMVCreateErrors(t *testing.T) {
	t.Parallel()

	_, err := MVCreate{}.Extract(recipe.Document{Body: []byte(`<html>not json</html>`)})
	var exErr *recipe.ExtractionError
	require.True(t, errors.As(err, &exErr))

	_, err = MVCreate{}.Extract(recipe.Document{Body: []byte(`{"code":"rest_no_route"}`)})
	require.True(t, errors.Is(err, recipe.ErrNotARecipe))
}

func TestSelectorExtractsWithRules(t *testing.T) {
	t.Parallel()

	ex := NewSelector(config.SelectorRules{
		Name:         "h1.entry-title",
		Image:        "div.postImage > img",
		ImageAttr:    "data-lazy-src",
		Yield:        "p#yield > span",
		PrepTime:     "span.prep",
		CookTime:     "span.cook",
		Ingredients:  "ul.ingredients > li",
		Instructions: "ol.instructions > li",
		Tips:         "ol.tips > li",
	})

	rec, err := ex.Extract(loadDoc(t, "selector.html"))
	require.NoError(t, err)
	rec = recipe.Normalize(rec)
	require.NoError(t, recipe.Validate(rec))

	require.Equal(t, "Keto Fat Bombs", rec.Info.Name)
	require.Equal(t, "https://cdn.test/fatbombs.jpg", *rec.Info.ImageURL)
	require.Equal(t, 12.0, *rec.Info.YieldQuantity)
	require.Equal(t, "bombs", *rec.Info.YieldUnit)
	require.Equal(t, 900, *rec.Info.PrepSeconds)
	require.Equal(t, 5400, *rec.Info.ActiveSeconds)
	require.Equal(t, 6300, *rec.Info.TotalSeconds)
	require.Len(t, rec.Ingredients, 2)
	require.Equal(t, []recipe.Instruction{
		{Description: "Melt the coconut oil.", Order: 0},
		{Description: "Stir in cocoa and freeze.", Order: 1},
	}, rec.Instructions)
	require.Len(t, rec.Tips, 1)
}

func TestSelectorNotARecipe(t *testing.T) {
	t.Parallel()

	ex := NewSelector(config.SelectorRules{Name: "h1.recipe", Ingredients: "li.ing", Instructions: "li.step"})
	_, err := ex.Extract(recipe.Document{Body: []byte(`<html><h2>About us</h2></html>`)})
	require.True(t, errors.Is(err, recipe.ErrNotARecipe))
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(map[string]config.SourceConfig{
		"kitchn": {Extractor: config.ExtractorJSONLD},
		"girl":   {Extractor: config.ExtractorMVCreate},
		"ruled":  {Extractor: config.ExtractorSelector, Selectors: config.SelectorRules{Name: "h1"}},
	})
	require.NoError(t, err)

	ex, err := reg.For("kitchn")
	require.NoError(t, err)
	require.IsType(t, JSONLD{}, ex)
	ex, err = reg.For("ruled")
	require.NoError(t, err)
	require.IsType(t, &Selector{}, ex)

	_, err = reg.For("unknown")
	require.Error(t, err)

	reg.Register("custom", recipe.ExtractorFunc(func(recipe.Document) (recipe.Record, error) {
		return recipe.Record{}, recipe.ErrNotARecipe
	}))
	_, err = reg.For("custom")
	require.NoError(t, err)

	_, err = NewRegistry(map[string]config.SourceConfig{"x": {Extractor: "nope"}})
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"PT1H15M":        4500,
		"pt20m":          1200,
		"1 hour 15 mins": 4500,
		"45 minutes":     2700,
		"1시간 30분":        5400,
		"20":             1200,
		"2h":             7200,
		"1.5 hrs":        5400,
	}
	for in, want := range cases {
		got := ParseDuration(in)
		require.NotNil(t, got, in)
		require.Equal(t, want, *got, in)
	}
	require.Nil(t, ParseDuration(""))
	require.Nil(t, ParseDuration("overnight"))
}

func TestDurationsOutsideColumnRangeAreDropped(t *testing.T) {
	t.Parallel()

	require.Nil(t, ParseDuration("P100Y"))
	require.Nil(t, ParseDuration("99999999 hours"))
	require.Nil(t, seconds(flexString("9999999999")))
	require.Nil(t, seconds(flexString("-5")))

	got := seconds(flexString("2147483647"))
	require.NotNil(t, got)
	require.Equal(t, 2147483647, *got)
}

func TestSplitYield(t *testing.T) {
	t.Parallel()

	q, unit := SplitYield("4 servings")
	require.Equal(t, 4.0, *q)
	require.Equal(t, "servings", *unit)

	q, unit = SplitYield("Serves 6")
	require.Equal(t, 6.0, *q)
	require.Equal(t, "Serves", *unit)

	q, unit = SplitYield("8")
	require.Equal(t, 8.0, *q)
	require.Nil(t, unit)

	q, unit = SplitYield("a few")
	require.Nil(t, q)
	require.Nil(t, unit)
}

func TestSplitIngredient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line   string
		name   string
		amount *string
		unit   *string
	}{
		{line: "2 cups almond flour", name: "almond flour", amount: ptr("2"), unit: ptr("cups")},
		{line: "1/2 cup mozzarella cheese, shredded", name: "mozzarella cheese, shredded", amount: ptr("1/2"), unit: ptr("cup")},
		{line: "1 1/2 tsp. baking powder", name: "baking powder", amount: ptr("1 1/2"), unit: ptr("tsp")},
		{line: "½ cup of cream", name: "cream", amount: ptr("½"), unit: ptr("cup")},
		{line: "1 large egg", name: "large egg", amount: ptr("1")},
		{line: "2큰술 간장", name: "간장", amount: ptr("2"), unit: ptr("큰술")},
		{line: "돼지고기 300g", name: "돼지고기", amount: ptr("300"), unit: ptr("g")},
		{line: "salt to taste", name: "salt to taste"},
		{line: "2 g", name: "2 g"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()
			got := SplitIngredient(tt.line)
			require.Equal(t, recipe.Ingredient{Name: tt.name, Amount: tt.amount, Unit: tt.unit}, got)
		})
	}
}

func TestSplitQuantity(t *testing.T) {
	t.Parallel()

	amount, unit := SplitQuantity("2큰술")
	require.Equal(t, "2", *amount)
	require.Equal(t, "큰술", *unit)

	amount, unit = SplitQuantity("약간")
	require.Nil(t, amount)
	require.Equal(t, "약간", *unit)
}

func TestJSONLDIngredientsCarryAmountAndUnit(t *testing.T) {
	t.Parallel()

	doc := recipe.Document{Body: []byte(`<script type="application/ld+json">{"@type":"Recipe","name":"Bread","recipeIngredient":["2 cups almond flour"],"recipeInstructions":"Bake."}</script>`)}
	rec, err := JSONLD{}.Extract(doc)
	require.NoError(t, err)
	require.Equal(t, []recipe.Ingredient{{Name: "almond flour", Amount: ptr("2"), Unit: ptr("cups")}}, rec.Ingredients)
}

func TestSelectorReadsIngredientSubSelectors(t *testing.T) {
	t.Parallel()

	page := loadDoc(t, "selector_wprm.html")

	wprm := NewSelector(config.SelectorRules{
		Name:             "h2.wprm-recipe-name",
		Ingredients:      "li.wprm-recipe-ingredient",
		IngredientName:   "span.wprm-recipe-ingredient-name",
		IngredientAmount: "span.wprm-recipe-ingredient-amount",
		IngredientUnit:   "span.wprm-recipe-ingredient-unit",
		Instructions:     "div.wprm-recipe-instruction-text",
	})
	rec, err := wprm.Extract(page)
	require.NoError(t, err)
	require.Equal(t, []recipe.Ingredient{
		{Name: "almond flour", Amount: ptr("2"), Unit: ptr("cups")},
		{Name: "eggs", Amount: ptr("3")},
	}, rec.Ingredients)

	combined := NewSelector(config.SelectorRules{
		Name:               "h2.wprm-recipe-name",
		Ingredients:        "ul.ingre_list > li",
		IngredientQuantity: "span.ingre_unit",
		Instructions:       "div.wprm-recipe-instruction-text",
	})
	rec, err = combined.Extract(page)
	require.NoError(t, err)
	require.Len(t, rec.Ingredients, 1)
	require.Equal(t, "간장", rec.Ingredients[0].Name)
	require.NotNil(t, rec.Ingredients[0].Amount)
	require.NotNil(t, rec.Ingredients[0].Unit)
	require.Equal(t, "2", *rec.Ingredients[0].Amount)
	require.Equal(t, "큰술", *rec.Ingredients[0].Unit)
}

func ptr(s string) *string { return &s }
