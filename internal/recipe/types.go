// Package recipe defines the core types shared across the harvest pipeline.
package recipe

import (
	"net/http"
	"time"
)

// AddressKind tells whether an address is a page URL or a source-specific API id.
type AddressKind string

// Address kinds persisted in the source registry.
const (
	KindURL    AddressKind = "url"
	KindPostID AddressKind = "post_id"
)

// Address identifies one remote resource of a source. It is a value type and
// never mutated once issued.
type Address struct {
	Source string
	Value  string
	Kind   AddressKind
}

// Key returns the identity used for deduplication.
func (a Address) Key() string {
	return a.Source + "\x00" + a.Value
}

// Target pairs an address with the concrete URL fetched for it.
type Target struct {
	Address Address
	URL     string
}

// Document is the raw content fetched for one target.
type Document struct {
	Address Address
	URL     string
	Body    []byte
}

// Registration is a durable (source, address) -> stable id mapping.
type Registration struct {
	Source       string
	Address      string
	Kind         AddressKind
	StableID     int64
	DiscoveredAt time.Time
	UpdatedAt    time.Time
	// HasRecipe reports whether a recipe row already exists for StableID.
	HasRecipe bool
}

// AsAddress converts the registration back into an Address.
func (r Registration) AsAddress() Address {
	return Address{Source: r.Source, Value: r.Address, Kind: r.Kind}
}

// Info is the recipe row itself.
type Info struct {
	Name          string
	StableID      int64
	YieldQuantity *float64
	YieldUnit     *string
	ImageURL      *string
	PrepSeconds   *int
	ActiveSeconds *int
	TotalSeconds  *int
}

// Ingredient is one ingredient line. Order carries no meaning.
type Ingredient struct {
	Name   string
	Unit   *string
	Amount *string
}

// Instruction is one step; Order is 0-based and contiguous within a record.
type Instruction struct {
	Description string
	Order       int
}

// Nutrition holds best-effort numeric strings. Extra carries source-specific
// fields without a dedicated column.
type Nutrition struct {
	Energy       *string
	Fat          *string
	Carbohydrate *string
	Protein      *string
	Fiber        *string
	Extra        map[string]string
}

// Tip follows the same ordering contract as Instruction.
type Tip struct {
	Text  string
	Order int
}

// Record is the normalized multi-entity shape produced by extraction.
type Record struct {
	Info         Info
	Ingredients  []Ingredient
	Instructions []Instruction
	Nutrition    *Nutrition
	Tips         []Tip
}

// FetchRequest captures everything needed to fetch one resource.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// PersistReport counts the rows a Persist call inserted per table.
type PersistReport struct {
	Records      int `json:"records"`
	Recipes      int `json:"recipes"`
	Ingredients  int `json:"ingredients"`
	Instructions int `json:"instructions"`
	Nutrition    int `json:"nutrition"`
	Tips         int `json:"tips"`
}

// Add accumulates another report into r.
func (r *PersistReport) Add(other PersistReport) {
	r.Records += other.Records
	r.Recipes += other.Recipes
	r.Ingredients += other.Ingredients
	r.Instructions += other.Instructions
	r.Nutrition += other.Nutrition
	r.Tips += other.Tips
}

// Stage names the pipeline step at which an item was dropped.
type Stage string

// Pipeline stages reported in Skip entries.
const (
	StageFetch   Stage = "fetch"
	StageExtract Stage = "extract"
	StageResolve Stage = "resolve"
	StagePersist Stage = "persist"
)

// Skip records one address that did not make it into the store.
type Skip struct {
	Address string `json:"address"`
	Stage   Stage  `json:"stage"`
	Reason  string `json:"reason"`
}

// RunReport summarizes one harvest run for a source.
type RunReport struct {
	RunID        string        `json:"run_id"`
	Source       string        `json:"source"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Addresses    int           `json:"addresses"`
	Fetched      int           `json:"fetched"`
	Extracted    int           `json:"extracted"`
	Persisted    int           `json:"persisted"`
	FailedChunks int           `json:"failed_chunks"`
	Rows         PersistReport `json:"rows"`
	Skipped      []Skip        `json:"skipped,omitempty"`
}

// ReferenceIngredient is one row of an ingredient nutrition table. Nutrition
// values are per BasisGrams of the ingredient.
type ReferenceIngredient struct {
	Source      string
	Name        string
	EnglishName *string
	BasisGrams  float64
	Nutrition   Nutrition
}
