package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

var fixedNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PublishSubmissionEvent(_ context.Context, eventType, submissionID, _, _ string, recipients []string, _ map[string]any) {
	m.Called(eventType, submissionID, recipients)
}

func (m *mockNotifier) PublishWorkbookEvent(_ context.Context, eventType string, workbookID int64, _, _ string, recipients []string, _ map[string]any) {
	m.Called(eventType, workbookID, recipients)
}

type fixture struct {
	store    *repository.MemoryStore
	notifier *mockNotifier
	wizard   *WizardService
	bundles  *BundleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	n := &mockNotifier{}
	n.On("PublishSubmissionEvent", mock.Anything, mock.Anything, mock.Anything).Maybe()
	n.On("PublishWorkbookEvent", mock.Anything, mock.Anything, mock.Anything).Maybe()

	stores := MemoryStores(store)
	w := NewWizardService(stores, n, logger.Nop())
	w.now = func() time.Time { return fixedNow }
	b := NewBundleService(stores, n, logger.Nop())
	b.now = func() time.Time { return fixedNow }

	return &fixture{store: store, notifier: n, wizard: w, bundles: b}
}

func userCtx(userID, companyID string) context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{UserID: userID, TenantID: companyID})
}

func adminCtx() context.Context {
	return auth.WithUserContext(context.Background(), &auth.UserContext{UserID: "admin", Privileged: true})
}

// completeWorkbook marks a stored workbook completed as the final wizard
// step would.
func completeWorkbook(t *testing.T, f *fixture, wb *repository.Workbook) {
	t.Helper()
	ctx := context.Background()
	stored, err := f.store.Workbooks.GetByID(ctx, wb.ID)
	require.NoError(t, err)
	stored.Status = workbook.StatusCompleted
	stored.UpdatedAt = fixedNow
	require.NoError(t, f.store.Workbooks.SaveData(ctx, stored))
}

func startBundle(ctx context.Context, t *testing.T, f *fixture) *SubmissionView {
	t.Helper()
	view, created, err := f.bundles.StartSubmission(ctx)
	require.NoError(t, err)
	require.True(t, created)
	return view
}

func auditActions(t *testing.T, f *fixture, submissionID string) []string {
	t.Helper()
	entries, err := f.store.Audit.ListBySubmission(context.Background(), submissionID)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}
