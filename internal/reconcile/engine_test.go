package reconcile_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/rpattn/regwatch/internal/db"
	"github.com/rpattn/regwatch/internal/dbtest"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/metrics"
	"github.com/rpattn/regwatch/internal/reconcile"
	"github.com/rpattn/regwatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store     *repository.Store
	attorneys *reconcile.Engine[domain.Attorney]
	firms     *reconcile.Engine[domain.Firm]
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := repository.NewStore(dbtest.SQLite(t))
	logger := zaptest.NewLogger(t).Sugar()
	m := metrics.New()
	return fixture{
		store: store,
		attorneys: reconcile.NewEngine(store.Conn, store.Attorneys,
			reconcile.WithLogger[domain.Attorney](logger),
			reconcile.WithMetrics[domain.Attorney](m)),
		firms: reconcile.NewEngine(store.Conn, store.Firms,
			reconcile.WithLogger[domain.Firm](logger)),
		metrics: m,
	}
}

func rec(id, name string) domain.Record[domain.Attorney] {
	return domain.Record[domain.Attorney]{ExternalID: id, Attrs: domain.Attorney{Name: name}}
}

func (f fixture) asOf(t *testing.T, d time.Time) map[string]domain.AttorneyVersion {
	t.Helper()
	versions, err := f.store.Attorneys.AsOf(context.Background(), f.store.Conn, d)
	require.NoError(t, err)
	out := make(map[string]domain.AttorneyVersion, len(versions))
	for _, v := range versions {
		_, dup := out[v.ExternalID]
		require.False(t, dup, "two versions of %s valid on %s", v.ExternalID, d)
		out[v.ExternalID] = v
	}
	return out
}

func (f fixture) rowCount(t *testing.T) int64 {
	t.Helper()
	count, err := f.store.Attorneys.Count(context.Background(), f.store.Conn)
	require.NoError(t, err)
	return count
}

func (f fixture) runCount(t *testing.T) int {
	t.Helper()
	runs, err := f.store.Runs.List(context.Background(), f.store.Conn, "", 100)
	require.NoError(t, err)
	return len(runs)
}

func assertIntervalIntegrity(t *testing.T, store *repository.Store) {
	t.Helper()
	all, err := store.Attorneys.All(context.Background(), store.Conn)
	require.NoError(t, err)

	byID := map[string][]domain.AttorneyVersion{}
	for _, v := range all {
		byID[v.ExternalID] = append(byID[v.ExternalID], v)
	}
	for id, versions := range byID {
		open := 0
		for i, v := range versions {
			if v.Current() {
				open++
			}
			if v.ValidTo != nil {
				assert.False(t, v.ValidTo.Before(v.ValidFrom), "%s has an inverted interval", id)
			}
			if i > 0 && versions[i-1].Effective() && v.Effective() {
				prev := versions[i-1]
				require.NotNil(t, prev.ValidTo, "%s has a superseded open version", id)
				assert.False(t, prev.ValidTo.After(v.ValidFrom), "%s has overlapping versions", id)
			}
		}
		assert.LessOrEqual(t, open, 1, "%s has more than one open version", id)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	snapshot := []domain.Record[domain.Attorney]{rec("X", "Xavier"), rec("Y", "Yolanda")}

	run, err := f.attorneys.Reconcile(ctx, snapshot, day(1), "first")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Inserted)
	rows := f.rowCount(t)

	again, err := f.attorneys.Reconcile(ctx, snapshot, day(1), "again")
	require.NoError(t, err)
	assert.Zero(t, again.Writes())
	assert.Equal(t, 2, again.Unchanged)
	assert.Equal(t, rows, f.rowCount(t))
	assert.Equal(t, 1, f.runCount(t), "a no-op run writes nothing")

	later, err := f.attorneys.Reconcile(ctx, snapshot, day(5), "later")
	require.NoError(t, err)
	assert.Zero(t, later.Writes())
	assert.Equal(t, rows, f.rowCount(t))
}

func TestReconcileCoverageAndDiffScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("X", "Xavier"), rec("Y", "Yolanda")}, day(1), "day1")
	require.NoError(t, err)
	run, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("Y", "Yolanda"), rec("Z", "Zed")}, day(8), "day8")
	require.NoError(t, err)

	assert.Equal(t, 1, run.Closed)
	assert.Equal(t, 1, run.Inserted)
	assert.Equal(t, 1, run.Unchanged)

	day8 := f.asOf(t, day(8))
	assert.Len(t, day8, 2)
	assert.Contains(t, day8, "Y")
	assert.Contains(t, day8, "Z")
	assert.NotContains(t, day8, "X")

	day1 := f.asOf(t, day(1))
	assert.Len(t, day1, 2)
	assert.Contains(t, day1, "X")
	assert.Equal(t, day(1), day8["Y"].ValidFrom, "unchanged identity keeps its version")

	assertIntervalIntegrity(t, f.store)
}

func TestReconcileChangedAttributesVersionsTheRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := domain.Record[domain.Attorney]{ExternalID: "A", Attrs: domain.Attorney{Name: "Ann", Firm: "One"}}
	moved := domain.Record[domain.Attorney]{ExternalID: "A", Attrs: domain.Attorney{Name: "Ann", Firm: "Two"}}

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{first}, day(1), "")
	require.NoError(t, err)
	run, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{moved}, day(10), "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Closed)
	assert.Equal(t, 1, run.Inserted)

	history, err := f.store.Attorneys.History(ctx, f.store.Conn, "A")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "One", history[0].Attrs.Firm)
	assert.Equal(t, day(10), *history[0].ValidTo)
	assert.Equal(t, "Two", history[1].Attrs.Firm)
	assert.Equal(t, day(10), history[1].ValidFrom)

	assertIntervalIntegrity(t, f.store)
}

func TestReconcileEqualityTolerance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	withEmpty := domain.Record[domain.Attorney]{ExternalID: "A", Attrs: domain.Attorney{Name: "Ann", Phone: ""}}
	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{withEmpty}, day(1), "")
	require.NoError(t, err)

	// Stored as NULL, re-observed as absent.
	absent := domain.Record[domain.Attorney]{ExternalID: "A", Attrs: domain.Attorney{Name: "Ann"}}
	run, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{absent}, day(2), "")
	require.NoError(t, err)
	assert.Zero(t, run.Writes())
}

func TestReconcileIgnoresFirmReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.firms.Reconcile(ctx, []domain.Record[domain.Firm]{{ExternalID: "F", Attrs: domain.Firm{Name: "Acme"}}}, day(1), "")
	require.NoError(t, err)
	firms, err := f.store.Firms.Current(ctx, f.store.Conn)
	require.NoError(t, err)
	firmID := firms[0].ID

	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A", "Ann")}, day(1), "")
	require.NoError(t, err)

	linked := rec("A", "Ann")
	linked.Attrs.FirmID = &firmID
	run, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{linked}, day(2), "")
	require.NoError(t, err)
	assert.Zero(t, run.Writes())
}

func TestReconcileRejectsOutOfOrderDates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A", "Ann")}, day(8), "")
	require.NoError(t, err)
	rows := f.rowCount(t)

	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("B", "Bob")}, day(3), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrOutOfOrder))
	assert.Equal(t, rows, f.rowCount(t))

	// A lapse also advances the watermark.
	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("B", "Bob")}, day(12), "")
	require.NoError(t, err)
	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("B", "Bob")}, day(10), "")
	assert.True(t, errors.Is(err, domain.ErrOutOfOrder))
}

func TestSameDayCorrectionRetractsVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A", "Anne")}, day(5), "")
	require.NoError(t, err)
	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A", "Ann")}, day(5), "")
	require.NoError(t, err)

	current := f.asOf(t, day(5))
	require.Len(t, current, 1)
	assert.Equal(t, "Ann", current["A"].Attrs.Name)

	history, err := f.store.Attorneys.History(ctx, f.store.Conn, "A")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Effective())
	assert.True(t, history[1].Current())

	assertIntervalIntegrity(t, f.store)
}

func TestReconcileRejectsInvalidSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := map[string][]domain.Record[domain.Attorney]{
		"empty":        nil,
		"missing name": {rec("A", " ")},
		"duplicate id": {rec("A", "Ann"), rec("A", "Annie")},
		"long id":      {rec(strings.Repeat("é", 65), "Ann")},
	}
	for name, snapshot := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.attorneys.Reconcile(ctx, snapshot, day(1), "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSnapshot))
			assert.Zero(t, f.rowCount(t))
		})
	}
}

func TestReconcileCountsIDLengthInCharacters(t *testing.T) {
	f := newFixture(t)
	id := strings.Repeat("é", domain.MaxExternalIDLength)

	_, err := f.attorneys.Reconcile(context.Background(), []domain.Record[domain.Attorney]{rec(id, "Ann")}, day(1), "")
	require.NoError(t, err)
	assert.Contains(t, f.asOf(t, day(1)), id)
}

func TestPatchExternalIDRejectsOverlappingMerge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	derived := domain.Record[domain.Attorney]{Attrs: domain.Attorney{Name: "Jane Doe"}}

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{derived}, day(1), "")
	require.NoError(t, err)
	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{derived, rec("A1", "Jane Q Doe")}, day(5), "")
	require.NoError(t, err)

	_, err = f.store.PatchExternalID(ctx, domain.KindAttorney, "jane doe", "A1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	current := f.asOf(t, day(6))
	assert.Contains(t, current, "jane doe", "a rejected merge changes nothing")
	assert.Contains(t, current, "A1")
	assertIntervalIntegrity(t, f.store)
}

func TestPatchExternalIDMergesAdjacentHistories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{{Attrs: domain.Attorney{Name: "Jane Doe"}}}, day(1), "")
	require.NoError(t, err)
	// The register starts publishing its own id; the derived version closes.
	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A1", "Jane Doe")}, day(5), "")
	require.NoError(t, err)

	affected, err := f.store.PatchExternalID(ctx, domain.KindAttorney, "jane doe", "A1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	history, err := f.store.Attorneys.History(ctx, f.store.Conn, "A1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, day(1), history[0].ValidFrom)
	assertIntervalIntegrity(t, f.store)

	_, err = f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A1", "Jane Doe")}, day(8), "")
	require.NoError(t, err)
	assertIntervalIntegrity(t, f.store)
}

func TestReconcileDerivesMissingIdentities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snapshot := []domain.Record[domain.Attorney]{
		{Attrs: domain.Attorney{Name: "Jane Doe", Firm: "One"}},
		{Attrs: domain.Attorney{Name: "JANE DOE", Firm: "Two"}},
		{Attrs: domain.Attorney{Name: "John Roe"}},
	}
	run, err := f.attorneys.Reconcile(ctx, snapshot, day(1), "")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Inserted, "colliding derived ids keep the first record")

	current := f.asOf(t, day(1))
	require.Contains(t, current, "jane doe")
	assert.Equal(t, "One", current["jane doe"].Attrs.Firm)
	assert.Contains(t, current, "john roe")

	// The single open version named "Jane Doe" lends its id to a later
	// snapshot that again lacks one.
	again := []domain.Record[domain.Attorney]{
		{Attrs: domain.Attorney{Name: "Jane Doe", Firm: "Three"}},
		{Attrs: domain.Attorney{Name: "John Roe"}},
	}
	run, err = f.attorneys.Reconcile(ctx, again, day(2), "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Closed)
	assert.Equal(t, 1, run.Inserted)
	assert.Equal(t, 1, run.Unchanged)
}

func TestReconcileExplicitIdentityWinsOverDerived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snapshot := []domain.Record[domain.Attorney]{
		{Attrs: domain.Attorney{Name: "Jane", Firm: "Derived"}},
		{ExternalID: "jane", Attrs: domain.Attorney{Name: "Jane", Firm: "Explicit"}},
	}
	_, err := f.attorneys.Reconcile(ctx, snapshot, day(1), "")
	require.NoError(t, err)

	current := f.asOf(t, day(1))
	require.Len(t, current, 1)
	assert.Equal(t, "Explicit", current["jane"].Attrs.Firm)
}

func TestFirmUpsertPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	firm := func(id, name, website string) domain.Record[domain.Firm] {
		return domain.Record[domain.Firm]{ExternalID: id, Attrs: domain.Firm{Name: name, Website: website}}
	}

	assert.Equal(t, "upsert", f.firms.Policy().Name())

	_, err := f.firms.Reconcile(ctx, []domain.Record[domain.Firm]{firm("F1", "Acme", "a.example"), firm("F2", "Beta", "")}, day(1), "")
	require.NoError(t, err)

	run, err := f.firms.Reconcile(ctx, []domain.Record[domain.Firm]{firm("F1", "Acme", "acme.example"), firm("F3", "Gamma", "")}, day(8), "")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 1, run.Inserted)
	assert.Zero(t, run.Closed)

	all, err := f.store.Firms.All(ctx, f.store.Conn)
	require.NoError(t, err)
	require.Len(t, all, 3, "updates happen in place")
	for _, v := range all {
		assert.True(t, v.Current(), "upserted rows are never closed")
	}
	assert.Equal(t, "acme.example", all[0].Attrs.Website)
	assert.Equal(t, day(1), all[0].ValidFrom)
}

func TestReconcileRecordsRunAndMetrics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.attorneys.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A", "Ann")}, day(1), "2024-01-01.csv")
	require.NoError(t, err)

	runs, err := f.store.Runs.List(ctx, f.store.Conn, domain.KindAttorney, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "2024-01-01.csv", runs[0].Source)
	assert.Equal(t, 1, runs[0].Inserted)
}

func TestReconcileRollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store := repository.NewStore(db.NewSQLite(mockDB, nil))
	engine := reconcile.NewEngine(store.Conn, store.Attorneys)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT MIN\(valid_from\), MAX\(valid_from\), MAX\(valid_to\) FROM attorneys`).
		WillReturnRows(sqlmock.NewRows([]string{"min", "max_from", "max_to"}).AddRow(nil, nil, nil))
	mock.ExpectQuery(`SELECT .* FROM attorneys v WHERE \(v.valid_to IS NULL\)`).
		WillReturnRows(sqlmock.NewRows(repository.AttorneySchema().AllColumns()))
	mock.ExpectExec(`INSERT INTO attorneys`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO attorneys`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = engine.Reconcile(ctx, []domain.Record[domain.Attorney]{rec("A", "Ann"), rec("B", "Bob")}, day(1), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}
