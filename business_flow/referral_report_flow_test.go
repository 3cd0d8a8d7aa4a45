package businessflow

import (
	"bytes"
	"context"
	"testing"

	"github.com/amirphl/specialist-referral/models"
	"github.com/amirphl/specialist-referral/repository"
	"github.com/amirphl/specialist-referral/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func newReportTestEnv(t *testing.T) (*workflowTestEnv, ReferralReportFlow) {
	t.Helper()
	env := newWorkflowTestEnv(t)
	resolver := NewContactResolver(repository.NewOrderRecordRepository(env.db), nil, utils.NewSwitchboardSet(nil), "90", zap.NewNop())
	report := NewReferralReportFlow(
		env.repo,
		repository.NewSpecialistRepository(env.db),
		env.logRepo,
		env.audit,
		resolver,
		zap.NewNop(),
	)
	return env, report
}

func TestReferralReport_MonthlyTotalsAndExport(t *testing.T) {
	env, report := newReportTestEnv(t)
	ctx := context.Background()

	other, err := env.fixtures.CreateTestSpecialist("Dr. Y", "", "")
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestReferralEvent(env.specialist.ID, 2025, 1, "A", "B", 2, "")
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestReferralEvent(env.specialist.ID, 2025, 3, "C", "D", 1, "")
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestReferralEvent(other.ID, 2025, 3, "E", "F", 4, "")
	require.NoError(t, err)
	_, err = env.fixtures.CreateTestReferralEvent(other.ID, 2024, 3, "G", "H", 9, "")
	require.NoError(t, err)

	yearly, err := report.MonthlyTotals(ctx, nil, 2025)
	require.NoError(t, err)
	require.Len(t, yearly.Rows, 2)
	assert.Equal(t, "Dr. X", yearly.Rows[0].SpecialistName)
	assert.Equal(t, int64(2), yearly.Rows[0].Months[0])
	assert.Equal(t, int64(1), yearly.Rows[0].Months[2])
	assert.Equal(t, int64(3), yearly.Rows[0].Total)
	assert.Equal(t, int64(4), yearly.Rows[1].Total)

	single, err := report.MonthlyTotals(ctx, &other.ID, 2025)
	require.NoError(t, err)
	require.Len(t, single.Rows, 1)
	assert.Equal(t, "Dr. Y", single.Rows[0].SpecialistName)

	filename, data, err := report.ExportYear(ctx, 2025, env.meta)
	require.NoError(t, err)
	assert.Equal(t, "referrals_2025.xlsx", filename)

	xl, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = xl.Close() }()

	rows, err := xl.GetRows("Referrals 2025")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Specialist", rows[0][1])
	assert.Equal(t, "January", rows[0][2])
	assert.Equal(t, "Total", rows[0][14])
	assert.Equal(t, "Dr. X", rows[1][1])
	assert.Equal(t, "3", rows[1][14])
	assert.Equal(t, "Total", rows[3][1])
	assert.Equal(t, "5", rows[3][4])
	assert.Equal(t, "7", rows[3][14])

	_, err = report.MonthlyTotals(ctx, nil, 1990)
	assert.True(t, IsInvalidPeriod(err))
}

func TestReferralReport_ListNotifications(t *testing.T) {
	env, report := newReportTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		staged := env.stage(t)
		_, err := env.flow.Confirm(ctx, staged.StagingID, mehmet, env.meta)
		require.NoError(t, err)
	}

	page, err := report.ListNotifications(ctx, NotificationQuery{SpecialistID: &env.specialist.ID, Status: "success", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].ID > page.Items[1].ID)

	empty, err := report.ListNotifications(ctx, NotificationQuery{Status: "error"})
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Equal(t, 20, empty.PageSize)

	tests := []struct {
		name  string
		query NotificationQuery
		want  error
	}{
		{"negative page", NotificationQuery{Page: -1}, ErrInvalidPage},
		{"page size too big", NotificationQuery{PageSize: 101}, ErrInvalidPageSize},
		{"unknown status", NotificationQuery{Status: "pending"}, ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := report.ListNotifications(ctx, tt.query)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReferralReport_ListAudit(t *testing.T) {
	env, report := newReportTestEnv(t)
	ctx := context.Background()

	staged := env.stage(t)
	_, err := env.flow.Confirm(ctx, staged.StagingID, mehmet, env.meta)
	require.NoError(t, err)

	impl := env.flow.(*ReferralWorkflowFlowImpl)
	impl.store = &failingIncrementStore{ReferralStore: env.store}
	staged = env.stage(t)
	_, err = env.flow.Confirm(ctx, staged.StagingID, mehmet, env.meta)
	require.Error(t, err)

	bySpecialist, err := report.ListAudit(ctx, AuditQuery{SpecialistID: &env.specialist.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, bySpecialist.Page)
	assert.Equal(t, 20, bySpecialist.PageSize)
	assert.Len(t, bySpecialist.Items, 4)

	failed, err := report.ListAudit(ctx, AuditQuery{FailedOnly: true, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, failed.Items, 1)
	assert.Equal(t, models.AuditActionReferralCommitFailed, failed.Items[0].Action)

	tests := []struct {
		name  string
		query AuditQuery
		want  error
	}{
		{"no scope", AuditQuery{}, ErrAuditScope},
		{"both scopes", AuditQuery{SpecialistID: &env.specialist.ID, FailedOnly: true}, ErrAuditScope},
		{"page size too big", AuditQuery{FailedOnly: true, PageSize: 101}, ErrInvalidPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := report.ListAudit(ctx, tt.query)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReferralReport_ContactPreview(t *testing.T) {
	env, report := newReportTestEnv(t)
	ctx := context.Background()

	preview, err := report.ContactPreview(ctx, env.specialist.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. X", preview.SpecialistName)
	assert.Equal(t, ContactSourceDirectory, preview.Contact.Source)
	assert.Empty(t, env.channel.GetSentMessages())

	_, err = report.ContactPreview(ctx, 424242)
	assert.True(t, IsSpecialistNotFound(err))

	count, err := env.logRepo.Count(ctx, models.NotificationLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
