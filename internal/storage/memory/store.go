package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

// Column limits mirrored from the Postgres schema.
const (
	maxNameLen  = 255
	maxShortLen = 64
)

type recipeRow struct {
	id   int64
	info recipe.Info
}

type ingredientKey struct {
	name, unit, amount string
}

// state is everything a Persist call may touch; it is cloned so a failed
// batch leaves the committed state untouched.
type state struct {
	recipes      map[int64]recipeRow // by stable id
	nextRecipeID int64
	ingredients  map[int64]map[ingredientKey]recipe.Ingredient
	instructions map[int64]map[int]string
	nutrition    map[int64]recipe.Nutrition
	tips         map[int64]map[int]string
}

func newState() *state {
	return &state{
		recipes:      make(map[int64]recipeRow),
		nextRecipeID: 1,
		ingredients:  make(map[int64]map[ingredientKey]recipe.Ingredient),
		instructions: make(map[int64]map[int]string),
		nutrition:    make(map[int64]recipe.Nutrition),
		tips:         make(map[int64]map[int]string),
	}
}

func (s *state) clone() *state {
	out := newState()
	out.nextRecipeID = s.nextRecipeID
	for k, v := range s.recipes {
		out.recipes[k] = v
	}
	for k, v := range s.ingredients {
		m := make(map[ingredientKey]recipe.Ingredient, len(v))
		for ik, iv := range v {
			m[ik] = iv
		}
		out.ingredients[k] = m
	}
	for k, v := range s.instructions {
		out.instructions[k] = cloneOrdered(v)
	}
	for k, v := range s.nutrition {
		out.nutrition[k] = v
	}
	for k, v := range s.tips {
		out.tips[k] = cloneOrdered(v)
	}
	return out
}

func cloneOrdered(in map[int]string) map[int]string {
	out := make(map[int]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Store is an in-memory recipe.Store and recipe.RunRecorder for development
// and tests. It enforces the same uniqueness and length rules as the schema.
type Store struct {
	mu           sync.RWMutex
	now          func() time.Time
	sources      map[string]*recipe.Registration // by Address.Key()
	nextStableID int64
	data         *state
	runs         []recipe.RunReport
	references   map[string]recipe.ReferenceIngredient // by source + name
}

// NewStore constructs an empty Store. A nil clock uses the wall clock.
func NewStore(clock recipe.Clock) *Store {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = func() time.Time { return clock.Now().UTC() }
	}
	return &Store{
		now:          now,
		sources:      make(map[string]*recipe.Registration),
		nextStableID: 1,
		data:         newState(),
		references:   make(map[string]recipe.ReferenceIngredient),
	}
}

// RegisterAddresses adds unseen pairs and refreshes the kind of known ones.
func (s *Store) RegisterAddresses(_ context.Context, source string, addrs []recipe.Address) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	created := 0
	for _, addr := range addrs {
		if addr.Value == "" {
			continue
		}
		kind := addr.Kind
		if kind == "" {
			kind = recipe.KindURL
		}
		key := recipe.Address{Source: source, Value: addr.Value}.Key()
		if reg, ok := s.sources[key]; ok {
			reg.Kind = kind
			reg.UpdatedAt = now
			continue
		}
		s.sources[key] = &recipe.Registration{
			Source:       source,
			Address:      addr.Value,
			Kind:         kind,
			StableID:     s.nextStableID,
			DiscoveredAt: now,
			UpdatedAt:    now,
		}
		s.nextStableID++
		created++
	}
	return created, nil
}

// StableID returns the id registered for (source, address).
func (s *Store) StableID(_ context.Context, source, address string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.sources[recipe.Address{Source: source, Value: address}.Key()]
	if !ok {
		return 0, fmt.Errorf("%s/%s: %w", source, address, recipe.ErrNotRegistered)
	}
	return reg.StableID, nil
}

// RecipeIdentity returns the recipe id minted for stableID.
func (s *Store) RecipeIdentity(_ context.Context, stableID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.data.recipes[stableID]
	if !ok {
		return 0, fmt.Errorf("stable id %d: %w", stableID, recipe.ErrRecipeNotPersisted)
	}
	return row.id, nil
}

// ListAddresses returns the registrations of source ordered by stable id.
func (s *Store) ListAddresses(_ context.Context, source string, pendingOnly bool) ([]recipe.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []recipe.Registration
	for _, reg := range s.sources {
		if reg.Source != source {
			continue
		}
		r := *reg
		_, r.HasRecipe = s.data.recipes[r.StableID]
		if pendingOnly && r.HasRecipe {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StableID < out[j].StableID })
	return out, nil
}

// Persist applies records all-or-nothing with insert-if-absent semantics.
func (s *Store) Persist(_ context.Context, records []recipe.Record) (recipe.PersistReport, error) {
	report := recipe.PersistReport{Records: len(records)}
	if len(records) == 0 {
		return report, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.data.clone()
	for _, rec := range records {
		if err := s.checkInfo(rec); err != nil {
			return recipe.PersistReport{}, err
		}
		if _, exists := next.recipes[rec.Info.StableID]; exists {
			continue
		}
		next.recipes[rec.Info.StableID] = recipeRow{id: next.nextRecipeID, info: rec.Info}
		next.nextRecipeID++
		report.Recipes++
	}

	for _, rec := range records {
		recipeID := next.recipes[rec.Info.StableID].id
		for _, ing := range rec.Ingredients {
			if utf8.RuneCountInString(ing.Name) > maxNameLen || tooLong(ing.Unit) || tooLong(ing.Amount) {
				return recipe.PersistReport{}, persistErr(rec, "ingredients", fmt.Errorf("ingredient %q exceeds column length", ing.Name))
			}
			set := next.ingredients[recipeID]
			if set == nil {
				set = make(map[ingredientKey]recipe.Ingredient)
				next.ingredients[recipeID] = set
			}
			key := ingredientKey{name: ing.Name, unit: deref(ing.Unit), amount: deref(ing.Amount)}
			if _, ok := set[key]; ok {
				continue
			}
			set[key] = ing
			report.Ingredients++
		}
		for _, step := range rec.Instructions {
			if insertOrdered(next.instructions, recipeID, step.Order, step.Description) {
				report.Instructions++
			}
		}
		if rec.Nutrition != nil {
			if err := checkNutrition(*rec.Nutrition); err != nil {
				return recipe.PersistReport{}, persistErr(rec, "nutrition", err)
			}
			if _, ok := next.nutrition[recipeID]; !ok {
				next.nutrition[recipeID] = *rec.Nutrition
				report.Nutrition++
			}
		}
		for _, tip := range rec.Tips {
			if insertOrdered(next.tips, recipeID, tip.Order, tip.Text) {
				report.Tips++
			}
		}
	}

	s.data = next
	return report, nil
}

func (s *Store) checkInfo(rec recipe.Record) error {
	info := rec.Info
	if info.StableID <= 0 {
		return persistErr(rec, "validate", fmt.Errorf("stable id must be > 0"))
	}
	registered := false
	for _, reg := range s.sources {
		if reg.StableID == info.StableID {
			registered = true
			break
		}
	}
	if !registered {
		return persistErr(rec, "info", fmt.Errorf("stable id %d: %w", info.StableID, recipe.ErrNotRegistered))
	}
	if info.Name == "" || utf8.RuneCountInString(info.Name) > maxNameLen {
		return persistErr(rec, "info", fmt.Errorf("recipe name must be 1..%d characters", maxNameLen))
	}
	if tooLong(info.YieldUnit) {
		return persistErr(rec, "info", fmt.Errorf("yield unit exceeds %d characters", maxShortLen))
	}
	if info.YieldQuantity != nil && !recipe.NumericInRange(*info.YieldQuantity) {
		return persistErr(rec, "info", fmt.Errorf("yield quantity %v out of range", *info.YieldQuantity))
	}
	for _, secs := range []*int{info.PrepSeconds, info.ActiveSeconds, info.TotalSeconds} {
		if secs != nil && (*secs < math.MinInt32 || *secs > math.MaxInt32) {
			return persistErr(rec, "info", fmt.Errorf("duration %d out of integer range", *secs))
		}
	}
	return nil
}

// checkNutrition mirrors the NUMERIC(10,2) nutrition columns.
func checkNutrition(n recipe.Nutrition) error {
	for _, v := range []*string{n.Energy, n.Fat, n.Carbohydrate, n.Protein, n.Fiber} {
		if v == nil {
			continue
		}
		f, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			// The writer stores unparseable values as NULL.
			continue
		}
		if !recipe.NumericInRange(f) {
			return fmt.Errorf("nutrition value %q exceeds NUMERIC(10,2)", *v)
		}
	}
	return nil
}

// PutReferences inserts unseen (source, name) rows. The batch is checked
// against the column limits first and rejected as a whole.
func (s *Store) PutReferences(_ context.Context, items []recipe.ReferenceIngredient) (int, error) {
	for _, item := range items {
		if item.Source == "" || item.Name == "" {
			return 0, fmt.Errorf("reference row needs a source and a name")
		}
		if utf8.RuneCountInString(item.Name) > maxNameLen || (item.EnglishName != nil && utf8.RuneCountInString(*item.EnglishName) > maxNameLen) {
			return 0, fmt.Errorf("reference %q: name exceeds %d characters", item.Name, maxNameLen)
		}
		if utf8.RuneCountInString(item.Source) > maxShortLen {
			return 0, fmt.Errorf("reference %q: source exceeds %d characters", item.Name, maxShortLen)
		}
		if !recipe.NumericInRange(item.BasisGrams) {
			return 0, fmt.Errorf("reference %q: basis %v exceeds NUMERIC(10,2)", item.Name, item.BasisGrams)
		}
		if err := checkNutrition(item.Nutrition); err != nil {
			return 0, fmt.Errorf("reference %q: %w", item.Name, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, item := range items {
		key := item.Source + "\x00" + item.Name
		if _, ok := s.references[key]; ok {
			continue
		}
		s.references[key] = item
		inserted++
	}
	return inserted, nil
}

// References returns the stored reference rows of source ordered by name.
func (s *Store) References(source string) []recipe.ReferenceIngredient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []recipe.ReferenceIngredient
	for _, item := range s.references {
		if item.Source == source {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecordRun appends report to the run log.
func (s *Store) RecordRun(_ context.Context, report recipe.RunReport) error {
	if report.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, report)
	return nil
}

// Runs returns a copy of the recorded run reports.
func (s *Store) Runs() []recipe.RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]recipe.RunReport, len(s.runs))
	copy(out, s.runs)
	return out
}

// Counts reports the number of rows held per table.
func (s *Store) Counts() recipe.PersistReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var c recipe.PersistReport
	c.Recipes = len(s.data.recipes)
	for _, set := range s.data.ingredients {
		c.Ingredients += len(set)
	}
	for _, steps := range s.data.instructions {
		c.Instructions += len(steps)
	}
	c.Nutrition = len(s.data.nutrition)
	for _, tips := range s.data.tips {
		c.Tips += len(tips)
	}
	return c
}

// Recipe returns the stored info row for stableID.
func (s *Store) Recipe(stableID int64) (recipe.Info, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.data.recipes[stableID]
	return row.info, ok
}

func insertOrdered(table map[int64]map[int]string, recipeID int64, order int, text string) bool {
	rows := table[recipeID]
	if rows == nil {
		rows = make(map[int]string)
		table[recipeID] = rows
	}
	if _, ok := rows[order]; ok {
		return false
	}
	rows[order] = text
	return true
}

func persistErr(rec recipe.Record, stage string, err error) *recipe.PersistError {
	return &recipe.PersistError{RecipeName: rec.Info.Name, StableID: rec.Info.StableID, Stage: stage, Err: err}
}

func tooLong(v *string) bool {
	return v != nil && utf8.RuneCountInString(*v) > maxShortLen
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
