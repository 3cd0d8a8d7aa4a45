package businessflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	testutil "github.com/amirphl/specialist-referral/testing"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type storeTestEnv struct {
	db         *gorm.DB
	repo       repository.ReferralEventRepository
	store      ReferralStore
	fixtures   *testutil.TestFixtures
	specialist *models.Specialist
	period     repository.Period
}

func newStoreTestEnv(t *testing.T) *storeTestEnv {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	fixtures := testutil.NewTestFixtures(db)
	specialist, err := fixtures.CreateTestSpecialist("Dr. X", "drx@example.com", "05551112233")
	require.NoError(t, err)

	repo := repository.NewReferralEventRepository(db)
	return &storeTestEnv{
		db:         db,
		repo:       repo,
		store:      NewReferralStore(repo, db, zap.NewNop()),
		fixtures:   fixtures,
		specialist: specialist,
		period:     repository.Period{SpecialistID: specialist.ID, Year: 2025, Month: 3},
	}
}

// failingNotesRepo fails UpdateNotes for the listed row ids
type failingNotesRepo struct {
	repository.ReferralEventRepository
	failIDs map[uint]bool
}

func (r *failingNotesRepo) UpdateNotes(ctx context.Context, id uint, notes string) error {
	if r.failIDs[id] {
		return errors.New("disk full")
	}
	return r.ReferralEventRepository.UpdateNotes(ctx, id, notes)
}

func TestReferralStore_Increment(t *testing.T) {
	ctx := context.Background()

	t.Run("same client merges into one row", func(t *testing.T) {
		env := newStoreTestEnv(t)

		total, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Mehmet", Surname: "Demir", Contact: "05551234567"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		total, err = env.store.Increment(ctx, env.period, ClientIdentity{Name: " mehmet ", Surname: "DEMIR", Contact: "05551234567"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		rows, err := env.repo.ListByPeriod(ctx, env.period)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 2, rows[0].ReferralCount)
	})

	t.Run("non-ASCII names merge regardless of case", func(t *testing.T) {
		env := newStoreTestEnv(t)

		_, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Ayşe", Surname: "Şahin", Contact: "1"})
		require.NoError(t, err)
		total, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "AYŞE", Surname: "ŞAHIN", Contact: "1"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		rows, err := env.repo.ListByPeriod(ctx, env.period)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Ayşe", rows[0].ClientName)
		assert.Equal(t, 2, rows[0].ReferralCount)
	})

	t.Run("different clients get separate rows", func(t *testing.T) {
		env := newStoreTestEnv(t)

		_, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Mehmet", Surname: "Demir", Contact: "1"})
		require.NoError(t, err)
		total, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Elif", Surname: "Kaya", Contact: "2"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)

		rows, err := env.repo.ListByPeriod(ctx, env.period)
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("claims a notes placeholder", func(t *testing.T) {
		env := newStoreTestEnv(t)
		_, err := env.store.SetNotes(ctx, env.period, "call back monday")
		require.NoError(t, err)

		total, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Mehmet", Surname: "Demir", Contact: "1"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		rows, err := env.repo.ListByPeriod(ctx, env.period)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "Mehmet", rows[0].ClientName)
		assert.Equal(t, "call back monday", rows[0].Notes)
	})

	t.Run("new rows carry the period notes", func(t *testing.T) {
		env := newStoreTestEnv(t)
		_, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Mehmet", Surname: "Demir", Contact: "1"})
		require.NoError(t, err)
		_, err = env.store.SetNotes(ctx, env.period, "vip")
		require.NoError(t, err)

		_, err = env.store.Increment(ctx, env.period, ClientIdentity{Name: "Elif", Surname: "Kaya", Contact: "2"})
		require.NoError(t, err)

		snapshot, err := env.store.Snapshot(ctx, env.period)
		require.NoError(t, err)
		require.Len(t, snapshot.Rows, 2)
		for _, row := range snapshot.Rows {
			assert.Equal(t, "vip", row.Notes)
		}
	})

	t.Run("rejects missing client names and bad periods", func(t *testing.T) {
		env := newStoreTestEnv(t)

		_, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "  ", Surname: "Demir"})
		assert.ErrorIs(t, err, ErrClientFieldsRequired)

		_, err = env.store.Increment(ctx, repository.Period{SpecialistID: env.specialist.ID, Year: 2025, Month: 13}, ClientIdentity{Name: "A", Surname: "B"})
		assert.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestReferralStore_Decrement(t *testing.T) {
	ctx := context.Background()

	t.Run("never goes below zero", func(t *testing.T) {
		env := newStoreTestEnv(t)

		total, err := env.store.Decrement(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("removes the latest counted row and keeps notes", func(t *testing.T) {
		env := newStoreTestEnv(t)
		_, err := env.store.Increment(ctx, env.period, ClientIdentity{Name: "Mehmet", Surname: "Demir", Contact: "1"})
		require.NoError(t, err)
		_, err = env.store.Increment(ctx, env.period, ClientIdentity{Name: "Elif", Surname: "Kaya", Contact: "2"})
		require.NoError(t, err)
		_, err = env.store.SetNotes(ctx, env.period, "keep me")
		require.NoError(t, err)

		total, err := env.store.Decrement(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		total, err = env.store.Decrement(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)

		snapshot, err := env.store.Snapshot(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), snapshot.Total)
		assert.Equal(t, "keep me", snapshot.Notes)
		require.Len(t, snapshot.Rows, 1)
		assert.Equal(t, 0, snapshot.Rows[0].ReferralCount)

		total, err = env.store.Decrement(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("moves notes to the surviving row", func(t *testing.T) {
		env := newStoreTestEnv(t)
		_, err := env.fixtures.CreateTestReferralEvent(env.specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "")
		require.NoError(t, err)
		_, err = env.fixtures.CreateTestReferralEvent(env.specialist.ID, 2025, 3, "Elif", "Kaya", 1, "only here")
		require.NoError(t, err)

		total, err := env.store.Decrement(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)

		notes, err := env.repo.LatestNotes(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, "only here", notes)
	})
}

func TestReferralStore_SetNotes(t *testing.T) {
	ctx := context.Background()

	t.Run("empty period gets a placeholder", func(t *testing.T) {
		env := newStoreTestEnv(t)

		report, err := env.store.SetNotes(ctx, env.period, "first note")
		require.NoError(t, err)
		assert.True(t, report.PlaceholderCreated)

		total, err := env.store.Aggregate(ctx, env.period)
		require.NoError(t, err)
		assert.Equal(t, int64(0), total)
	})

	t.Run("too long", func(t *testing.T) {
		env := newStoreTestEnv(t)

		_, err := env.store.SetNotes(ctx, env.period, strings.Repeat("ş", utils.MaxNotesLength+1))
		assert.ErrorIs(t, err, ErrNotesTooLong)
	})

	t.Run("partial failure keeps written rows and reports counts", func(t *testing.T) {
		env := newStoreTestEnv(t)
		first, err := env.fixtures.CreateTestReferralEvent(env.specialist.ID, 2025, 3, "Mehmet", "Demir", 1, "old")
		require.NoError(t, err)
		second, err := env.fixtures.CreateTestReferralEvent(env.specialist.ID, 2025, 3, "Elif", "Kaya", 1, "old")
		require.NoError(t, err)

		failing := &failingNotesRepo{ReferralEventRepository: env.repo, failIDs: map[uint]bool{second.ID: true}}
		store := NewReferralStore(failing, env.db, zap.NewNop())

		report, err := store.SetNotes(ctx, env.period, "new")
		require.Error(t, err)
		assert.True(t, IsPartialWrite(err))
		assert.Equal(t, &NotesWriteReport{Total: 2, Updated: 1, Failed: 1}, report)

		written, err := env.repo.ByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "new", written.Notes)

		untouched, err := env.repo.ByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "old", untouched.Notes)
	})
}
