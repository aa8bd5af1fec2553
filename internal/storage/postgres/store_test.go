package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithDB(mock, nil)
	require.NoError(t, err)
	return store, mock
}

func strPtr(s string) *string { return &s }

func sampleRecord() recipe.Record {
	yield := 8.0
	return recipe.Record{
		Info:         recipe.Info{Name: "Keto Bread", StableID: 7, YieldQuantity: &yield, YieldUnit: strPtr("slices")},
		Ingredients:  []recipe.Ingredient{{Name: "almond flour", Unit: strPtr("cups"), Amount: strPtr("2")}},
		Instructions: []recipe.Instruction{{Description: "mix", Order: 0}},
		Nutrition:    &recipe.Nutrition{Energy: strPtr("1200"), Extra: map[string]string{"sodium": "300"}},
		Tips:         []recipe.Tip{{Text: "store cold", Order: 0}},
	}
}

func expectRecordInserts(mock pgxmock.PgxPoolIface, rows int64) {
	mock.ExpectExec("INSERT INTO recipes ").
		WithArgs(int64(7), "Keto Bread", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectQuery("SELECT recipe_id FROM recipes").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"recipe_id"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO recipe_ingredients").
		WithArgs(int64(42), "almond flour", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectExec("INSERT INTO recipe_instructions").
		WithArgs(int64(42), 0, "mix").
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectExec("INSERT INTO recipe_nutrition").
		WithArgs(int64(42), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectExec("INSERT INTO recipe_tips").
		WithArgs(int64(42), 0, "store cold").
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
}

func TestPersistCommitsAndCountsRows(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	expectRecordInserts(mock, 1)
	mock.ExpectCommit()

	report, err := store.Persist(context.Background(), []recipe.Record{sampleRecord()})
	require.NoError(t, err)
	require.Equal(t, recipe.PersistReport{
		Records: 1, Recipes: 1, Ingredients: 1, Instructions: 1, Nutrition: 1, Tips: 1,
	}, report)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRerunInsertsNothing(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	expectRecordInserts(mock, 0)
	mock.ExpectCommit()

	report, err := store.Persist(context.Background(), []recipe.Record{sampleRecord()})
	require.NoError(t, err)
	require.Equal(t, recipe.PersistReport{Records: 1}, report)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRollsBackOnChildFailure(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO recipes ").
		WithArgs(int64(7), "Keto Bread", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("SELECT recipe_id FROM recipes").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"recipe_id"}).AddRow(int64(42)))
	mock.ExpectExec("INSERT INTO recipe_ingredients").
		WithArgs(int64(42), "almond flour", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("value too long for type character varying(255)"))
	mock.ExpectRollback()

	report, err := store.Persist(context.Background(), []recipe.Record{sampleRecord()})
	require.Error(t, err)
	require.Equal(t, recipe.PersistReport{}, report)

	var perr *recipe.PersistError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, stageIngredients, perr.Stage)
	require.Equal(t, "Keto Bread", perr.RecipeName)
	require.Equal(t, int64(7), perr.StableID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistRejectsMissingStableID(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := sampleRecord()
	rec.Info.StableID = 0
	_, err := store.Persist(context.Background(), []recipe.Record{rec})

	var perr *recipe.PersistError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, stageValidate, perr.Stage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistEmptyBatchIsNoop(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	report, err := store.Persist(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, report.Records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAddressesCountsNewRows(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO recipe_sources").
		WithArgs("girl_ate_everything", "123", "post_id").
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	mock.ExpectQuery("INSERT INTO recipe_sources").
		WithArgs("girl_ate_everything", "456", "url").
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectCommit()

	created, err := store.RegisterAddresses(context.Background(), "girl_ate_everything", []recipe.Address{
		{Value: "123", Kind: recipe.KindPostID},
		{Value: ""},
		{Value: "456"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAddressesRollsBackOnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO recipe_sources").
		WithArgs("src", "https://a", "url").
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := store.RegisterAddresses(context.Background(), "src", []recipe.Address{{Value: "https://a"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStableIDLookup(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT stable_id FROM recipe_sources").
		WithArgs("src", "https://a").
		WillReturnRows(pgxmock.NewRows([]string{"stable_id"}).AddRow(int64(3)))
	mock.ExpectQuery("SELECT stable_id FROM recipe_sources").
		WithArgs("src", "https://missing").
		WillReturnError(pgx.ErrNoRows)

	id, err := store.StableID(context.Background(), "src", "https://a")
	require.NoError(t, err)
	require.Equal(t, int64(3), id)

	_, err = store.StableID(context.Background(), "src", "https://missing")
	require.ErrorIs(t, err, recipe.ErrNotRegistered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecipeIdentityNotPersisted(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT recipe_id FROM recipes").
		WithArgs(int64(9)).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.RecipeIdentity(context.Background(), 9)
	require.ErrorIs(t, err, recipe.ErrRecipeNotPersisted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAddressesPendingOnly(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("LEFT JOIN recipes").
		WithArgs("src", true).
		WillReturnRows(pgxmock.NewRows([]string{
			"source", "address", "kind", "stable_id", "discovered_at", "updated_at", "has_recipe",
		}).
			AddRow("src", "https://a", "url", int64(1), now, now, false).
			AddRow("src", "55", "post_id", int64(2), now, now, false))

	regs, err := store.ListAddresses(context.Background(), "src", true)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	require.Equal(t, recipe.KindPostID, regs[1].Kind)
	require.Equal(t, recipe.Address{Source: "src", Value: "https://a", Kind: recipe.KindURL}, regs[0].AsAddress())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRun(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	started := time.Unix(1700000000, 0).UTC()
	report := recipe.RunReport{
		RunID: "run-1", Source: "src", StartedAt: started, FinishedAt: started.Add(time.Minute),
		Addresses: 3, Fetched: 2, Extracted: 2, Persisted: 2,
	}
	mock.ExpectExec("INSERT INTO harvest_runs").
		WithArgs("run-1", "src", report.StartedAt, report.FinishedAt, 3, 2, 2, 2, 0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), report))
	require.Error(t, store.RecordRun(context.Background(), recipe.RunReport{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithDBRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithDB(nil, nil)
	require.Error(t, err)
}

func TestPing(t *testing.T) {
	t.Parallel()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewWithDB(mock, nil)
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	require.NoError(t, store.Ping(context.Background()))
	require.Error(t, store.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationDSN(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pgx5://u:p@localhost/db", MigrationDSN("postgres://u:p@localhost/db"))
	require.Equal(t, "pgx5://localhost/db", MigrationDSN("postgresql://localhost/db"))
	require.Equal(t, "pgx5://localhost/db", MigrationDSN("pgx5://localhost/db"))
}
