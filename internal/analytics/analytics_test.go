package analytics_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rpattn/regwatch/internal/analytics"
	"github.com/rpattn/regwatch/internal/dbtest"
	"github.com/rpattn/regwatch/internal/domain"
	"github.com/rpattn/regwatch/internal/reconcile"
	"github.com/rpattn/regwatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC)
}

func window(t *testing.T, first, last int) domain.Window {
	t.Helper()
	w, err := domain.NewWindow(day(first), day(last))
	require.NoError(t, err)
	return w
}

func ids[A any](versions []domain.Version[A]) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.ExternalID)
	}
	return out
}

func names(versions []domain.AttorneyVersion) []string {
	out := make([]string, 0, len(versions))
	for _, v := range versions {
		out = append(out, v.Attrs.Name)
	}
	return out
}

type register struct {
	store   *repository.Store
	engine  *reconcile.Engine[domain.Attorney]
	service *analytics.Service
}

func newRegister(t *testing.T) register {
	t.Helper()
	store := repository.NewStore(dbtest.SQLite(t))
	return register{
		store:   store,
		engine:  reconcile.NewEngine(store.Conn, store.Attorneys),
		service: analytics.NewService(store),
	}
}

func (r register) scrape(t *testing.T, d int, attorneys ...domain.Record[domain.Attorney]) {
	t.Helper()
	_, err := r.engine.Reconcile(context.Background(), attorneys, day(d), "")
	require.NoError(t, err)
}

func (r register) insert(t *testing.T, id string, attrs domain.Attorney, from int, to int) {
	t.Helper()
	v := domain.NewVersion(id, attrs, day(from))
	if to > 0 {
		end := day(to)
		v.ValidTo = &end
	}
	require.NoError(t, r.store.Attorneys.Insert(context.Background(), r.store.Conn, v))
}

func att(id, name, firm string) domain.Record[domain.Attorney] {
	return domain.Record[domain.Attorney]{ExternalID: id, Attrs: domain.Attorney{Name: name, Firm: firm}}
}

func TestDiffScenario(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.scrape(t, 1, att("X", "Xavier", "One"), att("Y", "Yolanda", "One"))
	r.scrape(t, 8, att("Y", "Yolanda", "One"), att("Z", "Zed", "Two"))

	registrations, err := r.service.Registrations(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Z"}, ids(registrations))

	lapses, err := r.service.Lapses(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, ids(lapses))

	current, err := r.service.Attorneys(ctx, day(8), domain.OrderBy{}, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "Z"}, ids(current))
}

func TestChangeIsNeitherLapseNorRegistration(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.scrape(t, 1, att("A", "Ann", "One"))
	r.scrape(t, 5, att("A", "Ann", "Two"))

	registrations, err := r.service.Registrations(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, registrations)

	lapses, err := r.service.Lapses(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, lapses)

	movements, err := r.service.Movements(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, "One", movements[0].Old.Attrs.Firm)
	assert.Equal(t, "Two", movements[0].New.Attrs.Firm)
}

func TestLapseThenReturnAfterWindowStillCounts(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.scrape(t, 1, att("A", "Ann", "One"), att("B", "Bob", "One"))
	r.scrape(t, 4, att("B", "Bob", "One"))
	r.scrape(t, 12, att("A", "Ann", "One"), att("B", "Bob", "One"))

	lapses, err := r.service.Lapses(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(lapses))

	// Returning inside the window cancels the lapse.
	lapses, err = r.service.Lapses(ctx, window(t, 1, 12), domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, lapses)

	registrations, err := r.service.Registrations(ctx, window(t, 8, 12), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, ids(registrations))
}

func TestRegistrationsRespectFilters(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.scrape(t, 1, att("A", "Ann", ""))
	r.scrape(t, 8,
		att("A", "Ann", ""),
		domain.Record[domain.Attorney]{ExternalID: "P", Attrs: domain.Attorney{Name: "Pat", Patents: true}},
		domain.Record[domain.Attorney]{ExternalID: "T", Attrs: domain.Attorney{Name: "Tim", Trademarks: true}},
	)

	pat, err := r.service.Registrations(ctx, window(t, 1, 8), domain.Filter{Patents: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"P"}, ids(pat))

	all, err := r.service.Registrations(ctx, window(t, 1, 8), domain.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"P", "T"}, ids(all))

	none, err := r.service.Registrations(ctx, window(t, 2, 7), domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMovementAdjacency(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "Y"}, 1, 10)
	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "X"}, 10, 20)
	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "Y"}, 20, 0)

	movements, err := r.service.Movements(ctx, window(t, 15, 25), domain.Filter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, day(10), movements[0].Old.ValidFrom)
	assert.Equal(t, "X", movements[0].Old.Attrs.Firm)
	assert.Equal(t, day(20), movements[0].New.ValidFrom)
	assert.Equal(t, "Y", movements[0].New.Attrs.Firm)

	movements, err = r.service.Movements(ctx, window(t, 1, 25), domain.Filter{})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	assert.Equal(t, day(20), movements[0].New.ValidFrom, "newest first")
	assert.Equal(t, day(10), movements[1].New.ValidFrom)
}

func TestMovementIgnoresNonFirmChangesAndRetractions(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "A"}, 1, 5)
	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "A", Phone: "1"}, 5, 9)
	// Retracted on the day it appeared.
	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "B"}, 9, 9)
	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "A", Phone: "2"}, 9, 0)
	// Empty and missing firm are the same affiliation.
	r.insert(t, "N", domain.Attorney{Name: "Ned"}, 1, 6)
	r.insert(t, "N", domain.Attorney{Name: "Ned", Phone: "3"}, 6, 0)

	movements, err := r.service.Movements(ctx, window(t, 1, 30), domain.Filter{})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestMovementFilterAppliesToNewVersion(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "A"}, 1, 5)
	r.insert(t, "M", domain.Attorney{Name: "Mo", Firm: "B", Trademarks: true}, 5, 0)

	pat, err := r.service.Movements(ctx, window(t, 1, 8), domain.Filter{Patents: true})
	require.NoError(t, err)
	assert.Empty(t, pat)

	tm, err := r.service.Movements(ctx, window(t, 1, 8), domain.Filter{Trademarks: true})
	require.NoError(t, err)
	assert.Len(t, tm, 1)
}

func TestMovementsUnsupportedForFirms(t *testing.T) {
	r := newRegister(t)
	_, err := analytics.Movements(context.Background(), r.store.Conn, r.store.Firms, window(t, 1, 8), domain.Filter{})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedKind))
}

func TestRanking(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.scrape(t, 1,
		att("1", "Al", "Zeta"),
		att("2", "Bob", "alpha"),
		att("3", "Cassandra", "Mid"),
	)

	byLength, err := r.service.Attorneys(ctx, day(1), domain.ParseOrderBy("-name_length"), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Cassandra", "Bob", "Al"}, names(byLength))

	asc, err := r.service.Attorneys(ctx, day(1), domain.ParseOrderBy("+name_length"), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Al", "Bob", "Cassandra"}, names(asc))

	byFirm, err := r.service.Attorneys(ctx, day(1), domain.ParseOrderBy("firm"), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Bob", "Cassandra", "Al"}, names(byFirm))

	unknown, err := r.service.Attorneys(ctx, day(1), domain.ParseOrderBy("-shoe_size"), domain.Filter{})
	require.NoError(t, err)
	plain, err := r.service.Attorneys(ctx, day(1), domain.OrderBy{}, domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, names(plain), names(unknown))
}

func TestSortIsStableInBothDirections(t *testing.T) {
	schema := repository.AttorneySchema()
	versions := []domain.AttorneyVersion{
		domain.NewVersion("1", domain.Attorney{Name: "Ann"}, day(1)),
		domain.NewVersion("2", domain.Attorney{Name: "Bob"}, day(1)),
		domain.NewVersion("3", domain.Attorney{Name: "Cy"}, day(1)),
	}

	analytics.Sort(schema, versions, domain.ParseOrderBy("-name_length"))
	assert.Equal(t, []string{"1", "2", "3"}, ids(versions))

	analytics.Sort(schema, versions, domain.ParseOrderBy("name_length"))
	assert.Equal(t, []string{"3", "1", "2"}, ids(versions))
}

func TestFirmRankingAndHistory(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)
	firms := reconcile.NewEngine(r.store.Conn, r.store.Firms)

	_, err := firms.Reconcile(ctx, []domain.Record[domain.Firm]{
		{ExternalID: "F1", Attrs: domain.Firm{Name: "beta"}},
		{ExternalID: "F2", Attrs: domain.Firm{Name: "Alpha"}},
	}, day(1), "")
	require.NoError(t, err)

	listed, err := r.service.Firms(ctx, day(3), domain.ParseOrderBy("+name"), domain.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"F2", "F1"}, ids(listed))

	history, err := r.service.FirmHistory(ctx, "F1")
	require.NoError(t, err)
	assert.Len(t, history, 1)

	byID, err := r.service.FirmsByIDs(ctx, []uuid.UUID{listed[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", byID[listed[0].ID].Attrs.Name)
}

func TestAttorneyHistoryDescribesChanges(t *testing.T) {
	ctx := context.Background()
	r := newRegister(t)

	r.scrape(t, 1, att("A", "Ann", "One"))
	r.scrape(t, 5, att("A", "Ann", "Two"))

	history, err := r.service.AttorneyHistory(ctx, "A")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []domain.Change{{Field: "firm", From: "One", To: "Two"}}, history[1].Changes)

	oldest, err := r.service.OldestDate(ctx)
	require.NoError(t, err)
	assert.Equal(t, day(1), oldest)
}
