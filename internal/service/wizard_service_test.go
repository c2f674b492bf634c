package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

const (
	qaSummaryStep = 3
	qaInfoStep    = 4
	qaGELStep     = 5
	qaFinalStep   = 13
)

func stored(t *testing.T, f *fixture, id int64) *repository.Workbook {
	t.Helper()
	wb, err := f.store.Workbooks.GetByID(context.Background(), id)
	require.NoError(t, err)
	return wb
}

func TestStartWorkbook(t *testing.T) {
	f := newFixture(t)

	wb, err := f.wizard.StartWorkbook(userCtx("u1", "c1"), &StartWorkbookRequest{Kind: "Quality_Assurance"})
	require.NoError(t, err)
	assert.Equal(t, workbook.KindQualityAssurance, wb.Kind)
	assert.Equal(t, "c1", wb.CompanyID)
	assert.Equal(t, workbook.StatusDraft, wb.Status)
	assert.Equal(t, "New QA Workbook - 2025-06-01 09:30", wb.Title)
	assert.True(t, wb.Standalone())

	doc, malformed, err := workbook.Decode(wb.Kind, stored(t, f, wb.ID).Data)
	require.NoError(t, err)
	assert.False(t, malformed)
	assert.Equal(t, workbook.NewQA(), doc)

	_, err = f.wizard.StartWorkbook(userCtx("u1", "c1"), &StartWorkbookRequest{Kind: "spreadsheet"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	_, err = f.wizard.StartWorkbook(userCtx("u1", "c1"), &StartWorkbookRequest{Kind: "org_info", CompanyID: "c2"})
	assert.True(t, errors.Is(err, errors.ErrCodeForbidden))

	forOther, err := f.wizard.StartWorkbook(adminCtx(), &StartWorkbookRequest{Kind: "org_info", CompanyID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, "c2", forOther.CompanyID)
}

func TestGetStepSeedsAndPersistsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: "quality_assurance"})
	require.NoError(t, err)

	res, err := f.wizard.GetStep(ctx, wb.ID, qaGELStep)
	require.NoError(t, err)
	assert.Equal(t, "Governance, Ethics & Leadership", res.View.Title)
	def, _ := workbook.Catalog(workbook.SectionGEL)
	assert.Len(t, res.View.Section.(*workbook.QAGrid).Rows, def.RowCount())
	assert.Equal(t, 2, stored(t, f, wb.ID).Version, "seeded rows are saved")

	_, err = f.wizard.GetStep(ctx, wb.ID, qaGELStep)
	require.NoError(t, err)
	assert.Equal(t, 2, stored(t, f, wb.ID).Version, "nothing to save the second time")

	_, err = f.wizard.GetStep(ctx, wb.ID, 99)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestGetStepRecoversMalformedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: "quality_assurance"})
	require.NoError(t, err)

	broken := stored(t, f, wb.ID)
	broken.Data = []byte("{not valid")
	require.NoError(t, f.store.Workbooks.SaveData(context.Background(), broken))

	res, err := f.wizard.GetStep(ctx, wb.ID, qaGELStep)
	require.NoError(t, err)
	assert.NotEmpty(t, res.View.Section.(*workbook.QAGrid).Rows)

	var doc workbook.QA
	require.NoError(t, json.Unmarshal(stored(t, f, wb.ID).Data, &doc), "the seeded defaults replace the broken JSON")
}

func TestSaveStepNavigation(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: "quality_assurance"})
	require.NoError(t, err)
	payload := []byte(`{"HighLevelSummary":"fine"}`)

	res, err := f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: wb.ID, Step: qaSummaryStep, Nav: "next", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, qaSummaryStep+1, res.NextStep)
	assert.False(t, res.Completed)

	res, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: wb.ID, Step: qaSummaryStep, Nav: "prev", Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, qaSummaryStep-1, res.NextStep)

	res, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: wb.ID, Step: qaSummaryStep, Payload: payload})
	require.NoError(t, err)
	assert.Zero(t, res.NextStep, "save exits to the list")

	after := stored(t, f, wb.ID)
	assert.Equal(t, 4, after.Version)
	assert.Equal(t, workbook.StatusDraft, after.Status)
	assert.True(t, after.UpdatedAt.Equal(fixedNow))

	doc, _, err := workbook.Decode(after.Kind, after.Data)
	require.NoError(t, err)
	assert.Equal(t, "fine", doc.(*workbook.QA).Summary.HighLevelSummary)

	_, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: wb.ID, Step: qaSummaryStep, Nav: "sideways", Payload: payload})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestSaveStepValidationSavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: "quality_assurance"})
	require.NoError(t, err)

	_, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: wb.ID, Step: qaInfoStep, Nav: "next", Payload: []byte(`{"Email":"not-an-email"}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	var appErr *errors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "Email", appErr.Field)

	assert.Equal(t, 1, stored(t, f, wb.ID).Version)
}

func TestSaveFinalStepCompletesBundleChild(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	view := startBundle(ctx, t, f)
	qa := view.Workbooks[1]
	require.Equal(t, workbook.KindQualityAssurance, qa.Kind)

	res, err := f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: qa.ID, Step: qaFinalStep, Nav: "next", Payload: []byte(`{"Rows":[]}`)})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, workbook.StatusCompleted, res.Workbook.Status)
	assert.Equal(t, workbook.StatusCompleted, stored(t, f, qa.ID).Status)

	sub, err := f.store.Submissions.GetByID(context.Background(), view.Submission.ID)
	require.NoError(t, err)
	assert.Equal(t, workbook.BundleInProgress, sub.Status, "bundle status follows the workbook")

	assert.Equal(t, []string{"started", "step_saved", "completed"}, auditActions(t, f, view.Submission.ID))
	f.notifier.AssertCalled(t, "PublishWorkbookEvent", "workbook_completed", qa.ID, []string{"u1"})

	// Completing again neither re-audits nor re-notifies.
	_, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: qa.ID, Step: qaFinalStep, Nav: "next", Payload: []byte(`{"Rows":[]}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"started", "step_saved", "completed", "step_saved"}, auditActions(t, f, view.Submission.ID))
	f.notifier.AssertNumberOfCalls(t, "PublishWorkbookEvent", 1)
}

func TestSaveStepRecordsSectionDiff(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	view := startBundle(ctx, t, f)
	qa := view.Workbooks[1]

	_, err := f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: qa.ID, Step: qaSummaryStep, Payload: []byte(`{"HighLevelSummary":"strong governance"}`)})
	require.NoError(t, err)
	_, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: qa.ID, Step: qaSummaryStep, Payload: []byte(`{"HighLevelSummary":"strong governance"}`)})
	require.NoError(t, err)

	entries, err := f.store.Audit.ListBySubmission(context.Background(), view.Submission.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	first := entries[1].Metadata
	assert.Equal(t, "step_saved", entries[1].Action)
	assert.Equal(t, qaSummaryStep, first["step"])
	assert.Equal(t, "save", first["nav"])
	assert.Contains(t, first["diff"], "strong governance")
	assert.Equal(t, "", entries[2].Metadata["diff"], "unchanged section has an empty diff")
}

func TestLockedBundleRejectsEdits(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	view := startBundle(ctx, t, f)
	for _, wb := range view.Workbooks {
		completeWorkbook(t, f, wb)
	}
	_, err := f.bundles.Submit(ctx, view.Submission.ID)
	require.NoError(t, err)

	qa := view.Workbooks[1]
	version := stored(t, f, qa.ID).Version

	_, err = f.wizard.SaveStep(ctx, &SaveStepRequest{WorkbookID: qa.ID, Step: qaSummaryStep, Payload: []byte(`{"HighLevelSummary":"late"}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	res, err := f.wizard.GetStep(ctx, qa.ID, qaGELStep)
	require.NoError(t, err, "locked workbooks still render")
	assert.NotEmpty(t, res.View.Section.(*workbook.QAGrid).Rows)
	assert.Equal(t, version, stored(t, f, qa.ID).Version, "seeding is not saved on a locked bundle")
}

func TestWorkbookScoping(t *testing.T) {
	f := newFixture(t)
	wb, err := f.wizard.StartWorkbook(userCtx("u1", "c1"), &StartWorkbookRequest{Kind: "org_info"})
	require.NoError(t, err)

	_, err = f.wizard.GetStep(userCtx("u2", "c2"), wb.ID, 1)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	_, err = f.wizard.SaveStep(userCtx("u2", "c2"), &SaveStepRequest{WorkbookID: wb.ID, Step: 1})
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = f.wizard.GetStep(adminCtx(), wb.ID, 1)
	assert.NoError(t, err)
	_, err = f.wizard.GetStep(userCtx("u3", "c1"), wb.ID, 1)
	assert.NoError(t, err)

	personal, err := f.wizard.StartWorkbook(userCtx("solo", ""), &StartWorkbookRequest{Kind: "org_info"})
	require.NoError(t, err)
	_, err = f.wizard.GetStep(userCtx("solo", ""), personal.ID, 1)
	assert.NoError(t, err)
	_, err = f.wizard.GetStep(userCtx("other", ""), personal.ID, 1)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))

	_, err = f.wizard.GetStep(context.Background(), wb.ID, 1)
	assert.True(t, errors.Is(err, errors.ErrCodeUnauthorized))
}

func TestListWorkbooks(t *testing.T) {
	f := newFixture(t)
	for _, kind := range []string{"org_info", "quality_assurance"} {
		_, err := f.wizard.StartWorkbook(userCtx("u1", "c1"), &StartWorkbookRequest{Kind: kind})
		require.NoError(t, err)
	}
	_, err := f.wizard.StartWorkbook(userCtx("u2", "c2"), &StartWorkbookRequest{Kind: "org_info"})
	require.NoError(t, err)

	_, total, err := f.wizard.ListWorkbooks(userCtx("u1", "c1"), &ListWorkbooksRequest{CompanyID: "c2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	list, total, err := f.wizard.ListWorkbooks(userCtx("u1", "c1"), &ListWorkbooksRequest{Kind: "org_info"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, workbook.KindOrgInfo, list[0].Kind)

	_, total, err = f.wizard.ListWorkbooks(adminCtx(), &ListWorkbooksRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	_, total, err = f.wizard.ListWorkbooks(adminCtx(), &ListWorkbooksRequest{CompanyID: "c2", Query: "org"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, _, err = f.wizard.ListWorkbooks(adminCtx(), &ListWorkbooksRequest{Kind: "nope"})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestShowBuildsOverview(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	for kind, check := range map[string]func(any){
		"org_info":                   func(v any) { assert.IsType(t, &workbook.OrgInfo{}, v) },
		"quality_assurance":          func(v any) { assert.IsType(t, workbook.QASummaryView{}, v) },
		"training_quality_assurance": func(v any) { assert.IsType(t, workbook.ComplianceOverview{}, v) },
	} {
		wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: kind})
		require.NoError(t, err)
		view, err := f.wizard.Show(ctx, wb.ID)
		require.NoError(t, err)
		check(view.Overview)
		assert.Len(t, view.Steps, workbook.StepCount(wb.Kind))
		assert.Equal(t, wb.Kind, view.Document.Kind())
	}
}

func TestDeleteWorkbook(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	child := startBundle(ctx, t, f).Workbooks[0]

	err := f.wizard.DeleteWorkbook(ctx, child.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: "org_info"})
	require.NoError(t, err)
	require.NoError(t, f.wizard.DeleteWorkbook(ctx, wb.ID))
	_, err = f.store.Workbooks.GetByID(context.Background(), wb.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("u1", "c1")
	wb, err := f.wizard.StartWorkbook(ctx, &StartWorkbookRequest{Kind: "training_quality_assurance"})
	require.NoError(t, err)

	file, err := f.wizard.Export(ctx, wb.ID)
	require.NoError(t, err)
	assert.Equal(t, "training_quality_assurance-1.xlsx", file.Name)
	assert.Equal(t, []byte("PK"), file.Data[:2], "xlsx is a zip archive")

	_, err = f.wizard.Export(auth.WithUserContext(context.Background(), &auth.UserContext{UserID: "x", TenantID: "c9"}), wb.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
}
