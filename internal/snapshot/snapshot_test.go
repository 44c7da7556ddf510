package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/property-matcher/internal/estate"
)

func fixture() *Snapshot {
	return &Snapshot{
		Listings: []estate.Listing{
			{
				ID:           "l1",
				Title:        "T2 in Alfama",
				Price:        250000,
				ListingType:  estate.ListingTypeSale,
				PropertyType: estate.PropertyTypeApartment,
				City:         "Lisboa",
				Bedrooms:     estate.Int(2),
				Area:         estate.Float(85.5),
				Amenities:    []string{"lift", "balcony"},
			},
			{
				ID:          "l2",
				Price:       1200,
				ListingType: estate.ListingTypeRent,
				City:        "Porto",
			},
		},
		Profiles: []estate.RequirementProfile{
			{
				ID:            "p1",
				Name:          "Ana",
				ListingType:   estate.ListingTypeSale,
				PropertyTypes: []estate.PropertyType{estate.PropertyTypeApartment},
				Locations:     []string{"Lisboa"},
				BudgetMin:     estate.Float(200000),
				BudgetMax:     estate.Float(300000),
				BedroomsMin:   estate.Int(2),
			},
			{ID: "p2", ListingType: estate.ListingTypeBoth},
		},
		Feedback: []estate.FeedbackRecord{
			{ListingID: "l1", ProfileID: "p1", Type: estate.FeedbackGood},
			{ListingID: "l2", ProfileID: "p1", Type: estate.FeedbackPoor},
		},
	}
}

func TestFileSourceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, WriteFile(path, fixture()))

	got, err := NewFileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fixture(), got)
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	require.NoError(t, src.EnsureSchema(ctx))
	require.NoError(t, src.EnsureSchema(ctx), "schema bootstrap must be idempotent")
	require.NoError(t, src.Save(ctx, fixture()))

	got, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixture(), got)
}

func TestSQLiteSaveUpsertsByID(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "snapshot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	require.NoError(t, src.EnsureSchema(ctx))

	require.NoError(t, src.Save(ctx, fixture()))

	updated := &Snapshot{Listings: []estate.Listing{{ID: "l1", Price: 199000, ListingType: estate.ListingTypeSale}}}
	require.NoError(t, src.Save(ctx, updated))

	got, err := src.Load(ctx)
	require.NoError(t, err)
	require.Len(t, got.Listings, 2)
	assert.Equal(t, 199000.0, got.Listings[0].Price)
	assert.Nil(t, got.Listings[0].Bedrooms)
	assert.Len(t, got.Feedback, 2)
}

func TestSnapshotFind(t *testing.T) {
	snap := fixture()

	p, err := snap.FindProfile("p2")
	require.NoError(t, err)
	assert.Equal(t, estate.ListingTypeBoth, p.ListingType)

	_, err = snap.FindListing("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = snap.FindProfile("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListingSetCopies(t *testing.T) {
	snap := fixture()
	set := snap.ListingSet()
	require.Equal(t, 2, set.Len())

	set.Items[0].Price = 1
	assert.Equal(t, 250000.0, snap.Listings[0].Price)
}

func TestSQLiteSaveRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR REPLACE INTO listings").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = NewSQLiteSource(db).Save(context.Background(), &Snapshot{Listings: fixture().Listings[:1]})
	assert.ErrorContains(t, err, "save listing l1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteLoadWrapsQueryErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT id, title").WillReturnError(errors.New("no such table: listings"))

	_, err = NewSQLiteSource(db).Load(context.Background())
	assert.ErrorContains(t, err, "query listings")
	assert.NoError(t, mock.ExpectationsWereMet())
}
