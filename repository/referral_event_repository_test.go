package repository

import (
	"context"
	"testing"
	"time"

	"github.com/amirphl/specialist-referral/models"
	testutil "github.com/amirphl/specialist-referral/testing"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupReferralRepo(t *testing.T) (ReferralEventRepository, *testutil.TestFixtures, *models.Specialist) {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	fixtures := testutil.NewTestFixtures(db)
	specialist, err := fixtures.CreateTestSpecialist("Dr. Ayşe Yılmaz", "ayse@example.com", "05551112233")
	require.NoError(t, err)
	return NewReferralEventRepository(db), fixtures, specialist
}

func TestReferralEventRepository_SumReferralCount(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()
	period := Period{SpecialistID: specialist.ID, Year: 2025, Month: 3}

	t.Run("empty period sums to zero", func(t *testing.T) {
		total, err := repo.SumReferralCount(ctx, period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("sums every row of the period only", func(t *testing.T) {
		_, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Mehmet", "Demir", 2, "")
		require.NoError(t, err)
		_, err = fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Elif", "Kaya", 1, "")
		require.NoError(t, err)
		_, err = fixtures.CreateTestReferralEvent(specialist.ID, 2025, 4, "Can", "Öz", 5, "")
		require.NoError(t, err)

		total, err := repo.SumReferralCount(ctx, period)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})
}

func TestReferralEventRepository_ByClient(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()
	period := Period{SpecialistID: specialist.ID, Year: 2025, Month: 3}

	created, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "")
	require.NoError(t, err)

	found, err := repo.ByClient(ctx, period, " mehmet ", "DEMIR")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	missing, err := repo.ByClient(ctx, period, "Mehmet", "Yıldız")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReferralEventRepository_ByClientFoldsNonASCII(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()
	period := Period{SpecialistID: specialist.ID, Year: 2025, Month: 3}

	created, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Ayşe", "Şahin", 1, "")
	require.NoError(t, err)

	for _, c := range []struct{ name, surname string }{
		{"AYŞE", "ŞAHIN"},
		{"ayşe", "şahin"},
		{" Ayşe ", " Şahin "},
	} {
		found, err := repo.ByClient(ctx, period, c.name, c.surname)
		require.NoError(t, err)
		require.NotNil(t, found, "%s %s", c.name, c.surname)
		assert.Equal(t, created.ID, found.ID)
	}
}

func TestReferralEventRepository_LatestRows(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()
	period := Period{SpecialistID: specialist.ID, Year: 2025, Month: 3}

	placeholder, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "", "", 0, "first note")
	require.NoError(t, err)
	first, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "")
	require.NoError(t, err)
	second, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Elif", "Kaya", 1, "")
	require.NoError(t, err)

	latest, err := repo.LatestCounted(ctx, period)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	foundPlaceholder, err := repo.LatestPlaceholder(ctx, period)
	require.NoError(t, err)
	require.NotNil(t, foundPlaceholder)
	assert.Equal(t, placeholder.ID, foundPlaceholder.ID)

	notes, err := repo.LatestNotes(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, "first note", notes)

	rows, err := repo.ListByPeriod(ctx, period)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, second.ID, rows[0].ID)
	assert.Equal(t, first.ID, rows[1].ID)
}

func TestReferralEventRepository_Mutations(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()
	period := Period{SpecialistID: specialist.ID, Year: 2025, Month: 3}

	event, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "")
	require.NoError(t, err)

	t.Run("increment in place", func(t *testing.T) {
		referredAt := utils.UTCNow().Add(time.Minute)
		require.NoError(t, repo.IncrementCount(ctx, event.ID, referredAt))

		reloaded, err := repo.ByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, reloaded.ReferralCount)
		require.NotNil(t, reloaded.ReferredAt)
		assert.WithinDuration(t, referredAt, *reloaded.ReferredAt, time.Second)
	})

	t.Run("update notes", func(t *testing.T) {
		require.NoError(t, repo.UpdateNotes(ctx, event.ID, "called twice"))
		reloaded, err := repo.ByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Equal(t, "called twice", reloaded.Notes)
	})

	t.Run("claim placeholder", func(t *testing.T) {
		placeholder, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "", "", 0, "keep")
		require.NoError(t, err)

		require.NoError(t, repo.ClaimPlaceholder(ctx, placeholder.ID, "Elif", "Kaya", "05550000000", utils.UTCNow()))
		reloaded, err := repo.ByID(ctx, placeholder.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, reloaded.ReferralCount)
		assert.Equal(t, "Elif", reloaded.ClientName)
		assert.Equal(t, "keep", reloaded.Notes)
		assert.True(t, reloaded.IsReferred)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteByID(ctx, event.ID))
		gone, err := repo.ByID(ctx, event.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		assert.Error(t, repo.DeleteByID(ctx, event.ID))
	})

	t.Run("missing row reports not found", func(t *testing.T) {
		assert.Error(t, repo.IncrementCount(ctx, 999999, utils.UTCNow()))
	})

	total, err := repo.SumReferralCount(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestReferralEventRepository_MonthlyTotals(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()

	other, err := fixtures.CreateTestSpecialist("Psk. Can Öz", "", "")
	require.NoError(t, err)

	for _, row := range []struct {
		specialistID uint
		month        int
		count        int
	}{
		{specialist.ID, 1, 1},
		{specialist.ID, 1, 2},
		{specialist.ID, 3, 1},
		{other.ID, 3, 4},
	} {
		_, err := fixtures.CreateTestReferralEvent(row.specialistID, 2025, row.month, "Client", "X", row.count, "")
		require.NoError(t, err)
	}
	_, err = fixtures.CreateTestReferralEvent(specialist.ID, 2024, 1, "Old", "Row", 7, "")
	require.NoError(t, err)

	all, err := repo.MonthlyTotals(ctx, nil, 2025)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, MonthlyTotal{SpecialistID: specialist.ID, Year: 2025, Month: 1, Total: 3}, *all[0])
	assert.Equal(t, MonthlyTotal{SpecialistID: specialist.ID, Year: 2025, Month: 3, Total: 1}, *all[1])
	assert.Equal(t, MonthlyTotal{SpecialistID: other.ID, Year: 2025, Month: 3, Total: 4}, *all[2])

	one, err := repo.MonthlyTotals(ctx, &other.ID, 2025)
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, int64(4), one[0].Total)
}

func TestReferralEventRepository_ByFilter(t *testing.T) {
	repo, fixtures, specialist := setupReferralRepo(t)
	ctx := context.Background()

	_, err := fixtures.CreateTestReferralEvent(specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "")
	require.NoError(t, err)
	_, err = fixtures.CreateTestReferralEvent(specialist.ID, 2025, 4, "Elif", "Kaya", 1, "")
	require.NoError(t, err)

	month := 4
	rows, err := repo.ByFilter(ctx, models.ReferralEventFilter{SpecialistID: &specialist.ID, Month: &month}, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Elif", rows[0].ClientName)

	count, err := repo.Count(ctx, models.ReferralEventFilter{SpecialistID: &specialist.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	exists, err := repo.Exists(ctx, models.ReferralEventFilter{ClientName: utils.ToPtr("Nobody")})
	require.NoError(t, err)
	assert.False(t, exists)
}
