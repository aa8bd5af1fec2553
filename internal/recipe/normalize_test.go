package recipe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func TestNormalizeRenumbersInstructionsAndTips(t *testing.T) {
	t.Parallel()

	rec := Normalize(Record{
		Info: Info{Name: "  Keto   Bread "},
		Ingredients: []Ingredient{
			{Name: "almond flour", Amount: ptr("2"), Unit: ptr("cups")},
		},
		Instructions: []Instruction{
			{Description: "bake", Order: 7},
			{Description: "   ", Order: 3},
			{Description: "mix", Order: 2},
			{Description: "cool", Order: 7},
		},
		Tips: []Tip{
			{Text: "store cold", Order: 4},
			{Text: "", Order: 0},
			{Text: "slice thin", Order: 1},
		},
	})

	require.Equal(t, "Keto Bread", rec.Info.Name)
	require.Equal(t, []Instruction{
		{Description: "mix", Order: 0},
		{Description: "bake", Order: 1},
		{Description: "cool", Order: 2},
	}, rec.Instructions)
	require.Equal(t, []Tip{
		{Text: "slice thin", Order: 0},
		{Text: "store cold", Order: 1},
	}, rec.Tips)
}

func TestNormalizeOrderNumbersAreContiguous(t *testing.T) {
	t.Parallel()

	orders := []int{9, -1, 4, 4, 100, 0}
	var steps []Instruction
	for _, o := range orders {
		steps = append(steps, Instruction{Description: "step", Order: o})
	}
	rec := Normalize(Record{Instructions: steps})
	for i, step := range rec.Instructions {
		require.Equal(t, i, step.Order)
	}
	require.Len(t, rec.Instructions, len(orders))
}

func TestNormalizeDerivesTotalTime(t *testing.T) {
	t.Parallel()

	rec := Normalize(Record{Info: Info{Name: "x", PrepSeconds: ptr(600), ActiveSeconds: ptr(1200)}})
	require.NotNil(t, rec.Info.TotalSeconds)
	require.Equal(t, 1800, *rec.Info.TotalSeconds)

	rec = Normalize(Record{Info: Info{Name: "x", PrepSeconds: ptr(600), ActiveSeconds: ptr(1200), TotalSeconds: ptr(2400)}})
	require.Equal(t, 2400, *rec.Info.TotalSeconds)

	rec = Normalize(Record{Info: Info{Name: "x", PrepSeconds: ptr(600)}})
	require.Nil(t, rec.Info.TotalSeconds)
}

func TestNormalizeDropsUnparseableNutrition(t *testing.T) {
	t.Parallel()

	rec := Normalize(Record{Nutrition: &Nutrition{
		Energy:  ptr("250"),
		Fat:     ptr("lots"),
		Protein: ptr(" 12.5 "),
	}})
	require.NotNil(t, rec.Nutrition)
	require.Equal(t, "250", *rec.Nutrition.Energy)
	require.Nil(t, rec.Nutrition.Fat)
	require.Equal(t, "12.5", *rec.Nutrition.Protein)

	rec = Normalize(Record{Nutrition: &Nutrition{Fat: ptr("n/a")}})
	require.Nil(t, rec.Nutrition)
}

func TestNormalizeDropsValuesOutsideColumnRanges(t *testing.T) {
	t.Parallel()

	rec := Normalize(Record{
		Info: Info{
			Name:          "Stew",
			YieldQuantity: ptr(1e9),
			PrepSeconds:   ptr(MaxSeconds),
			ActiveSeconds: ptr(60),
			TotalSeconds:  nil,
		},
		Nutrition: &Nutrition{
			Energy:       ptr("NaN"),
			Fat:          ptr("Inf"),
			Carbohydrate: ptr("1e15"),
			Protein:      ptr("123456789012"),
			Fiber:        ptr("99999999.99"),
		},
	})
	require.Nil(t, rec.Info.YieldQuantity)
	require.Equal(t, MaxSeconds, *rec.Info.PrepSeconds)
	require.Nil(t, rec.Info.TotalSeconds, "prep+active overflows the column")
	require.NotNil(t, rec.Nutrition)
	require.Nil(t, rec.Nutrition.Energy)
	require.Nil(t, rec.Nutrition.Fat)
	require.Nil(t, rec.Nutrition.Carbohydrate)
	require.Nil(t, rec.Nutrition.Protein)
	require.Equal(t, "99999999.99", *rec.Nutrition.Fiber)

	rec = Normalize(Record{Info: Info{Name: "x", TotalSeconds: ptr(MaxSeconds + 1)}})
	require.Nil(t, rec.Info.TotalSeconds)
}

func TestNumericInRange(t *testing.T) {
	t.Parallel()

	require.True(t, NumericInRange(-99999999.99))
	require.True(t, NumericInRange(12.345))
	require.False(t, NumericInRange(99999999.999))
	require.False(t, NumericInRange(math.NaN()))
	require.False(t, NumericInRange(math.Inf(-1)))
}

func TestNormalizeCollapsesDuplicateIngredients(t *testing.T) {
	t.Parallel()

	rec := Normalize(Record{Ingredients: []Ingredient{
		{Name: "egg", Amount: ptr("2")},
		{Name: " egg ", Amount: ptr("2")},
		{Name: "egg", Amount: ptr("3")},
		{Name: ""},
	}})
	require.Len(t, rec.Ingredients, 2)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := Record{
		Info:         Info{Name: "soup"},
		Ingredients:  []Ingredient{{Name: "water"}},
		Instructions: []Instruction{{Description: "boil"}},
	}
	require.NoError(t, Validate(valid))

	noIngredients := valid
	noIngredients.Ingredients = nil
	require.True(t, errors.Is(Validate(noIngredients), ErrNotARecipe))

	noSteps := valid
	noSteps.Instructions = nil
	require.True(t, errors.Is(Validate(noSteps), ErrNotARecipe))

	noName := valid
	noName.Info.Name = " "
	require.True(t, errors.Is(Validate(noName), ErrInvalidRecord))
}

func TestFirstNumber(t *testing.T) {
	t.Parallel()

	require.Equal(t, "12.5", *FirstNumber("12.5g fat"))
	require.Equal(t, "3", *FirstNumber("serves 3 people"))
	require.Equal(t, "1234", *FirstNumber("1,234 kcal"))
	require.Equal(t, "1234567.5", *FirstNumber("1,234,567.5 mg"))
	require.Equal(t, "1", *FirstNumber("1,5 g"))
	require.Nil(t, FirstNumber("none"))
}

func TestFetchErrorMessages(t *testing.T) {
	t.Parallel()

	statusErr := &FetchError{URL: "https://a", Kind: FetchStatus, StatusCode: 404}
	require.Equal(t, "fetch https://a: status 404", statusErr.Error())

	cause := errors.New("dial refused")
	transportErr := &FetchError{URL: "https://b", Kind: FetchTransport, Err: cause}
	require.ErrorIs(t, transportErr, cause)

	var fe *FetchError
	require.True(t, errors.As(error(transportErr), &fe))
	require.Equal(t, FetchTransport, fe.Kind)
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestNewFetchErrorClassification(t *testing.T) {
	t.Parallel()

	require.Equal(t, FetchTimeout, NewFetchError("u", context.DeadlineExceeded).Kind)
	require.Equal(t, FetchTimeout, NewFetchError("u", fmt.Errorf("get: %w", timeoutErr{})).Kind)
	require.Equal(t, FetchTransport, NewFetchError("u", errors.New("connection reset")).Kind)

	status := NewStatusError("u", 503)
	require.Equal(t, FetchStatus, status.Kind)
	require.Same(t, status, NewFetchError("u", fmt.Errorf("wrapped: %w", status)))
}
