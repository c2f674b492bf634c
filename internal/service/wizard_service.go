package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/pesio-ai/be-compliance-workbooks/internal/export"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

// WizardService runs the step-by-step editing of workbooks: one load, one
// mutation and one save per call.
type WizardService struct {
	workbooks   WorkbookStore
	submissions SubmissionStore
	audit       AuditLog
	notifier    Notifier
	log         *logger.Logger
	now         func() time.Time
}

// NewWizardService creates a new wizard service. A nil notifier disables
// events.
func NewWizardService(stores Stores, notifier Notifier, log *logger.Logger) *WizardService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &WizardService{
		workbooks:   stores.Workbooks,
		submissions: stores.Submissions,
		audit:       stores.Audit,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
	}
}

// StartWorkbookRequest starts a standalone workbook.
type StartWorkbookRequest struct {
	Kind string
	// CompanyID may only name another company when the caller is privileged.
	CompanyID string
}

// ListWorkbooksRequest filters a workbook listing.
type ListWorkbooksRequest struct {
	CompanyID string
	Kind      string
	Status    string
	Query     string
	Limit     int
	Offset    int
}

// StepResult is a loaded wizard step.
type StepResult struct {
	Workbook *repository.Workbook
	View     *workbook.StepView
}

// SaveStepRequest posts one wizard step.
type SaveStepRequest struct {
	WorkbookID int64
	Step       int
	Nav        string
	Payload    []byte
}

// SaveStepResult tells the caller where to go next.
type SaveStepResult struct {
	Workbook *repository.Workbook
	workbook.Outcome
}

// WorkbookView is the read-only rendering of a workbook.
type WorkbookView struct {
	Workbook *repository.Workbook
	Document workbook.Document
	Overview any
	Steps    []workbook.StepInfo
}

// ExportFile is a rendered spreadsheet.
type ExportFile struct {
	Name string
	Data []byte
}

// StartWorkbook creates a standalone Draft workbook of the requested kind.
func (s *WizardService) StartWorkbook(ctx context.Context, req *StartWorkbookRequest) (*repository.Workbook, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, err
	}
	kind, ok := workbook.ParseKind(req.Kind)
	if !ok {
		return nil, errors.InvalidInput("kind", fmt.Sprintf("unknown workbook kind %q", req.Kind))
	}

	companyID := uc.TenantID
	if req.CompanyID != "" && req.CompanyID != uc.TenantID {
		if !uc.Privileged {
			return nil, errors.Forbidden("cannot start a workbook for another company")
		}
		companyID = req.CompanyID
	}

	wb, err := newWorkbook(kind, uc.UserID, companyID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.workbooks.Create(ctx, wb); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("workbook_id", wb.ID).
		Str("kind", string(kind)).
		Str("company_id", companyID).
		Str("user_id", uc.UserID).
		Msg("Workbook started")

	return wb, nil
}

// ListWorkbooks lists the workbooks visible to the caller, most recently
// updated first.
func (s *WizardService) ListWorkbooks(ctx context.Context, req *ListWorkbooksRequest) ([]*repository.Workbook, int64, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.WorkbookFilter{Query: req.Query, Limit: req.Limit, Offset: req.Offset}
	switch {
	case uc.Privileged:
		if req.CompanyID != "" {
			filter.CompanyID = &req.CompanyID
		}
	case uc.TenantID != "":
		filter.CompanyID = &uc.TenantID
	default:
		filter.OwnerUserID = &uc.UserID
	}
	if req.Kind != "" {
		kind, ok := workbook.ParseKind(req.Kind)
		if !ok {
			return nil, 0, errors.InvalidInput("kind", fmt.Sprintf("unknown workbook kind %q", req.Kind))
		}
		filter.Kind = &kind
	}
	if req.Status != "" {
		status := workbook.Status(req.Status)
		filter.Status = &status
	}

	return s.workbooks.List(ctx, filter)
}

// Show renders a workbook read-only with its per-kind score overview.
func (s *WizardService) Show(ctx context.Context, id int64) (*WorkbookView, error) {
	wb, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.decode(wb)
	if err != nil {
		return nil, err
	}

	view := &WorkbookView{Workbook: wb, Document: doc, Steps: workbook.Steps(wb.Kind)}
	switch d := doc.(type) {
	case *workbook.OrgInfo:
		view.Overview = workbook.BuildOverview(d, s.now())
	case *workbook.QA:
		view.Overview = workbook.BuildQASummary(d)
	case *workbook.TQA:
		view.Overview = workbook.BuildComplianceOverview(d)
	}
	return view, nil
}

// GetStep loads a wizard step. Defaults the step applies (catalog rows,
// blank rows, synchronised sections) are saved unless the workbook's bundle
// is locked.
func (s *WizardService) GetStep(ctx context.Context, id int64, step int) (*StepResult, error) {
	wb, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.decode(wb)
	if err != nil {
		return nil, err
	}

	now := s.now()
	view, changed, err := workbook.Prepare(doc, step, now)
	if err != nil {
		return nil, err
	}
	if !changed {
		return &StepResult{Workbook: wb, View: view}, nil
	}

	locked, err := s.bundleLocked(ctx, wb)
	if err != nil {
		return nil, err
	}
	if !locked {
		if err := s.persist(ctx, wb, doc, now); err != nil {
			return nil, err
		}
		s.log.Debug().
			Int64("workbook_id", wb.ID).
			Int("step", step).
			Msg("Step defaults saved")
	}
	return &StepResult{Workbook: wb, View: view}, nil
}

// SaveStep replaces the step's section with the posted payload, re-derives
// dependent sections and saves. Posting next on the final step completes
// the workbook. A validation failure saves nothing.
func (s *WizardService) SaveStep(ctx context.Context, req *SaveStepRequest) (*SaveStepResult, error) {
	nav, err := workbook.ParseNav(req.Nav)
	if err != nil {
		return nil, err
	}
	wb, uc, err := s.load(ctx, req.WorkbookID)
	if err != nil {
		return nil, err
	}

	locked, err := s.bundleLocked(ctx, wb)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, errors.New(errors.ErrCodeConflict, "This workbook belongs to a finalized submission and can no longer be edited.")
	}

	doc, err := s.decode(wb)
	if err != nil {
		return nil, err
	}

	before := sectionJSON(doc, req.Step)
	outcome, err := workbook.Apply(doc, req.Step, req.Payload, nav)
	if err != nil {
		return nil, err
	}
	after := sectionJSON(doc, req.Step)

	statusBefore := wb.Status
	if outcome.Completed {
		wb.Status = workbook.StatusCompleted
	}
	if err := s.persist(ctx, wb, doc, s.now()); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		SubmissionID: wb.SubmissionID,
		WorkbookID:   &wb.ID,
		CompanyID:    wb.CompanyID,
		Action:       "step_saved",
		PerformedBy:  uc.UserID,
		Metadata: map[string]any{
			"kind":    string(wb.Kind),
			"step":    req.Step,
			"nav":     string(nav),
			"version": wb.Version,
			"diff":    sectionDiff(before, after),
		},
	})

	if outcome.Completed && statusBefore != workbook.StatusCompleted {
		from, to := string(statusBefore), string(wb.Status)
		s.appendAudit(ctx, &repository.AuditEntry{
			SubmissionID: wb.SubmissionID,
			WorkbookID:   &wb.ID,
			CompanyID:    wb.CompanyID,
			Action:       "completed",
			PerformedBy:  uc.UserID,
			StatusBefore: &from,
			StatusAfter:  &to,
			Metadata:     map[string]any{"kind": string(wb.Kind)},
		})
		s.notifier.PublishWorkbookEvent(ctx, "workbook_completed", wb.ID, wb.CompanyID, uc.UserID,
			[]string{wb.UserID}, map[string]any{"kind": string(wb.Kind), "title": wb.Title})

		s.log.Info().
			Int64("workbook_id", wb.ID).
			Str("kind", string(wb.Kind)).
			Msg("Workbook completed")
	}

	if !wb.Standalone() {
		sub, err := s.submissions.GetByID(ctx, wb.SubmissionID)
		if err != nil {
			return nil, err
		}
		if _, err := refreshBundleStatus(ctx, s.submissions, s.workbooks, sub, s.now()); err != nil {
			return nil, err
		}
	}

	return &SaveStepResult{Workbook: wb, Outcome: outcome}, nil
}

// DeleteWorkbook deletes a standalone workbook. Bundle members go with
// their bundle.
func (s *WizardService) DeleteWorkbook(ctx context.Context, id int64) error {
	wb, uc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !wb.Standalone() {
		return errors.New(errors.ErrCodeConflict, "Workbooks that belong to a submission are deleted with the submission.")
	}
	if err := s.workbooks.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().
		Int64("workbook_id", id).
		Str("user_id", uc.UserID).
		Msg("Workbook deleted")
	return nil
}

// Export renders the workbook as an xlsx file.
func (s *WizardService) Export(ctx context.Context, id int64) (*ExportFile, error) {
	wb, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := s.decode(wb)
	if err != nil {
		return nil, err
	}
	data, err := export.Render(wb.Title, doc, s.now())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to render workbook export")
	}
	return &ExportFile{Name: export.FileName(wb.Kind, wb.ID), Data: data}, nil
}

// ── helpers ───────────────────────────────────────────────────────────────────

// load fetches a workbook the caller may see. Workbooks outside the
// caller's scope are reported as not found.
func (s *WizardService) load(ctx context.Context, id int64) (*repository.Workbook, *auth.UserContext, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	wb, err := s.workbooks.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !canAccess(uc, wb.CompanyID, wb.UserID) {
		return nil, nil, errors.NotFound("workbook", strconv.FormatInt(id, 10))
	}
	return wb, uc, nil
}

func (s *WizardService) decode(wb *repository.Workbook) (workbook.Document, error) {
	doc, malformed, err := workbook.Decode(wb.Kind, wb.Data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to decode workbook")
	}
	if malformed {
		s.log.Warn().
			Int64("workbook_id", wb.ID).
			Str("kind", string(wb.Kind)).
			Msg("Stored workbook document is malformed, using defaults")
	}
	return doc, nil
}

func (s *WizardService) persist(ctx context.Context, wb *repository.Workbook, doc workbook.Document, now time.Time) error {
	data, err := workbook.Encode(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to encode workbook")
	}
	wb.Data = data
	wb.UpdatedAt = now.UTC()
	return s.workbooks.SaveData(ctx, wb)
}

func (s *WizardService) bundleLocked(ctx context.Context, wb *repository.Workbook) (bool, error) {
	if wb.Standalone() {
		return false, nil
	}
	sub, err := s.submissions.GetByID(ctx, wb.SubmissionID)
	if err != nil {
		return false, err
	}
	return sub.Status.Locked(), nil
}

func (s *WizardService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	appendAudit(ctx, s.audit, s.log, entry)
}

func newWorkbook(kind workbook.Kind, userID, companyID string, now time.Time) (*repository.Workbook, error) {
	doc, err := workbook.New(kind)
	if err != nil {
		return nil, err
	}
	data, err := workbook.Encode(doc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to encode workbook")
	}
	return &repository.Workbook{
		UserID:    userID,
		CompanyID: companyID,
		Title:     fmt.Sprintf("New %s - %s", kind.DisplayName(), now.Format("2006-01-02 15:04")),
		Kind:      kind,
		Data:      data,
		Status:    workbook.StatusDraft,
	}, nil
}

func sectionJSON(doc workbook.Document, step int) string {
	sec, err := workbook.Section(doc, step)
	if err != nil || sec == nil {
		return ""
	}
	b, err := json.MarshalIndent(sec, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

// sectionDiff is the patch text turning before into after, empty when the
// section did not change.
func sectionDiff(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}
