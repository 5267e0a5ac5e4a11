package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/osvhub/osv-discovery/internal/store"
	"github.com/osvhub/osv-discovery/internal/vessel"
)

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	repo, err := NewWithPool(mock)
	require.NoError(t, err)
	return repo, mock
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil)
	require.Error(t, err)
}

func TestMigrateAppliesEmbeddedSchema(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	require.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS vessels")

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS companies").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, repo.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertCompanyDefaultsMembership(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO companies").
		WithArgs(append([]any{"Acme Marine", "ordinary"}, anyArgs(6)...)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("c-1", now, now))

	c := &vessel.Company{Name: "Acme Marine"}
	require.NoError(t, repo.UpsertCompany(context.Background(), c))
	require.Equal(t, "c-1", c.ID)
	require.Equal(t, vessel.MembershipOrdinary, c.MembershipType)
	require.Equal(t, now, c.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVesselMapsNoRows(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM vessels WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetVessel(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertVesselInsertsWhenNoMatch(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("FROM vessels WHERE imo_number").
		WithArgs("9123456").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("FROM vessels WHERE upper\\(vessel_name\\)").
		WithArgs("Sea Hawk", "Acme Marine").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO vessels").
		WithArgs(anyArgs(len(vesselColumns))...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("v-1", now, now))

	v := &vessel.Vessel{VesselName: "Sea Hawk", IMONumber: "9123456", OwnerCompany: "Acme Marine"}
	created, err := repo.UpsertVessel(context.Background(), v)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "v-1", v.ID)
	require.NotNil(t, v.DataSources)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindVesselWithoutKeysIsNotFound(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	_, err := repo.FindVessel(context.Background(), store.VesselLookup{})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveVesselReportsConflict(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("UPDATE vessels SET").
		WithArgs(anyArgs(len(vesselColumns) + 1)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.SaveVessel(context.Background(), &vessel.Vessel{ID: "v-1", VesselName: "A", IMONumber: "9123456"})
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateQualityScoreMissingRow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE vessels SET data_quality_score").
		WithArgs(0.5, "v-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateQualityScore(context.Background(), "v-404", 0.5)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertMediaMissingVessel(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("INSERT INTO vessel_media").
		WithArgs(anyArgs(12)...).
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.UpsertMedia(context.Background(), &vessel.Media{
		VesselID:  "v-404",
		MediaType: vessel.MediaPhoto,
		SourceURL: "https://example.com/a.jpg",
	})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMediaExists(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("v-1", "https://example.com/a.jpg").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := repo.MediaExists(context.Background(), "v-1", "https://example.com/a.jpg")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPrimaryPhotoURL(t *testing.T) {
	t.Parallel()

	t.Run("best photo", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("FROM vessel_media").
			WithArgs("v-1").
			WillReturnRows(pgxmock.NewRows([]string{"source_url"}).AddRow("https://img.example.com/sea-hawk.jpg"))

		url, err := repo.PrimaryPhotoURL(context.Background(), "v-1")
		require.NoError(t, err)
		require.Equal(t, "https://img.example.com/sea-hawk.jpg", url)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no photos", func(t *testing.T) {
		t.Parallel()
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("media_type = 'photo'").
			WithArgs("v-2").
			WillReturnError(pgx.ErrNoRows)

		url, err := repo.PrimaryPhotoURL(context.Background(), "v-2")
		require.NoError(t, err)
		require.Empty(t, url)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpsertListingStoresPrimaryPhoto(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Unix(1700000000, 0).UTC()
	photo := "https://img.example.com/sea-hawk.jpg"
	mock.ExpectQuery("INSERT INTO vessel_listings").
		WithArgs("v-1", "active", "charter", pgxmock.AnyArg(), "USD", pgxmock.AnyArg(), pgxmock.AnyArg(),
			false, &photo, "unverified").
		WillReturnRows(pgxmock.NewRows([]string{"id", "featured", "created_at", "updated_at"}).AddRow("l-1", false, now, now))

	l := vessel.Listing{
		VesselID:           "v-1",
		ListingStatus:      "active",
		ListingType:        "charter",
		Currency:           "USD",
		PrimaryPhotoURL:    photo,
		VerificationStatus: "unverified",
	}
	require.NoError(t, repo.UpsertListing(context.Background(), &l))
	require.Equal(t, "l-1", l.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionMissingRow(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE crawl_sessions").
		WithArgs(anyArgs(11)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateSession(context.Background(), vessel.CrawlSession{ID: "s-1", Status: vessel.SessionCompleted})
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSessionDuplicate(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectExec("INSERT INTO crawl_sessions").
		WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreateSession(context.Background(), vessel.CrawlSession{ID: "s-1", Status: vessel.SessionRunning})
	require.ErrorIs(t, err, store.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySourceDelta(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	at := time.Unix(1700000000, 0).UTC()
	delta := store.SourceDelta{
		SourceName:   "vesselfinder",
		SourceType:   "imo_lookup",
		Successes:    1,
		Failures:     1,
		TotalLatency: 300 * time.Millisecond,
	}

	mock.ExpectExec("INSERT INTO source_performance").
		WithArgs("vesselfinder", "imo_lookup", int64(2), int64(1), int64(1), 300.0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.ApplySourceDelta(context.Background(), delta, at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySourceDeltaSkipsEmpty(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	require.NoError(t, repo.ApplySourceDelta(context.Background(), store.SourceDelta{SourceName: "x"}, time.Now()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListingCounts(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM vessel_listings").
		WillReturnRows(pgxmock.NewRows([]string{"active", "featured"}).AddRow(3, 1))

	counts, err := repo.ListingCounts(context.Background())
	require.NoError(t, err)
	require.Equal(t, store.ListingCounts{Active: 3, Featured: 1}, counts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDashboardStatsWrapsErrors(t *testing.T) {
	t.Parallel()

	repo, mock := newMockRepo(t)
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM companies").
		WithArgs(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), now.AddDate(0, 0, -7)).
		WillReturnError(errors.New("boom"))

	_, err := repo.DashboardStats(context.Background(), now)
	require.ErrorContains(t, err, "dashboard stats")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPingWrapsError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo, err := NewWithPool(mock)
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, repo.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
