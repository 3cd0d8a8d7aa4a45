package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	testutil "github.com/amirphl/specialist-referral/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestReferralEventRepository_PostgresAggregateQuery(t *testing.T) {
	db, mock := newMockPostgres(t)
	repo := NewReferralEventRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT COALESCE(SUM(referral_count), 0) FROM "referral_events" WHERE specialist_id = $1 AND year = $2 AND month = $3`)).
		WithArgs(7, 2025, 3).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(4))

	total, err := repo.SumReferralCount(context.Background(), Period{SpecialistID: 7, Year: 2025, Month: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferralEventRepository_PostgresDelete(t *testing.T) {
	db, mock := newMockPostgres(t)
	repo := NewReferralEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "referral_events" WHERE "referral_events"."id" = $1`)).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteByID(context.Background(), 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReferralEventRepository_PostgresIntegration(t *testing.T) {
	if !testutil.PostgresAvailable() {
		t.Skip("TEST_DB_HOST not set")
	}

	err := testutil.TestWithDB(func(tdb *testutil.TestDB) error {
		ctx := testutil.CreateTestContext()
		fixtures := testutil.NewTestFixtures(tdb.DB)
		repo := NewReferralEventRepository(tdb.DB)

		specialist, err := fixtures.CreateTestSpecialist("Dr. X", "x@example.com", "")
		require.NoError(t, err)
		_, err = fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "")
		require.NoError(t, err)

		total, err := repo.SumReferralCount(ctx, Period{SpecialistID: specialist.ID, Year: 2025, Month: 3})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		found, err := repo.ByClient(ctx, Period{SpecialistID: specialist.ID, Year: 2025, Month: 3}, "mehmet", "demir")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "Mehmet", found.ClientName)
		return nil
	})
	require.NoError(t, err)
}
