package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/auth"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/logger"
	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

// BundleService handles the submission lifecycle: start, status rollup,
// submit, administrator decision and delete.
type BundleService struct {
	submissions SubmissionStore
	workbooks   WorkbookStore
	audit       AuditLog
	notifier    Notifier
	log         *logger.Logger
	now         func() time.Time
	newID       func() string
}

// NewBundleService creates a new bundle service. A nil notifier disables
// events.
func NewBundleService(stores Stores, notifier Notifier, log *logger.Logger) *BundleService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &BundleService{
		submissions: stores.Submissions,
		workbooks:   stores.Workbooks,
		audit:       stores.Audit,
		notifier:    notifier,
		log:         log,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// SubmissionView is a bundle with its three workbooks.
type SubmissionView struct {
	Submission *repository.Submission
	Workbooks  []*repository.Workbook
}

// ListSubmissionsRequest filters a bundle listing. CompanyID is honoured
// for privileged callers only.
type ListSubmissionsRequest struct {
	Status    string
	CompanyID string
	Limit     int
	Offset    int
}

// DecideRequest is an administrator ruling.
type DecideRequest struct {
	ID       string
	Decision string
	Note     string
}

// StartSubmission returns the caller's active bundle, or creates a new one
// with three Draft workbooks. created reports which.
func (s *BundleService) StartSubmission(ctx context.Context) (view *SubmissionView, created bool, err error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, false, err
	}

	active, err := s.submissions.FindActive(ctx, uc.UserID, uc.TenantID)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		view, err := s.view(ctx, active)
		return view, false, err
	}

	now := s.now()
	sub := &repository.Submission{
		ID:          s.newID(),
		OwnerUserID: uc.UserID,
		CompanyID:   uc.TenantID,
		Status:      workbook.BundleDraft,
	}
	children := make([]*repository.Workbook, 0, len(workbook.Kinds))
	for _, kind := range workbook.Kinds {
		wb, err := newWorkbook(kind, uc.UserID, uc.TenantID, now)
		if err != nil {
			return nil, false, err
		}
		children = append(children, wb)
	}
	if err := s.submissions.CreateWithWorkbooks(ctx, sub, children); err != nil {
		return nil, false, err
	}

	status := string(sub.Status)
	s.appendAudit(ctx, &repository.AuditEntry{
		SubmissionID: sub.ID,
		CompanyID:    sub.CompanyID,
		Action:       "started",
		PerformedBy:  uc.UserID,
		StatusAfter:  &status,
		Metadata:     map[string]any{"workbooks": workbookIDs(children)},
	})
	s.notifier.PublishSubmissionEvent(ctx, "submission_started", sub.ID, sub.CompanyID, uc.UserID,
		[]string{uc.UserID}, map[string]any{"status": status})

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("company_id", sub.CompanyID).
		Str("user_id", uc.UserID).
		Msg("Submission started")

	return &SubmissionView{Submission: sub, Workbooks: children}, true, nil
}

// GetSubmission loads a bundle and recomputes its status from the
// workbooks.
func (s *BundleService) GetSubmission(ctx context.Context, id string) (*SubmissionView, error) {
	sub, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sub)
}

// ListSubmissions lists bundles newest first. Privileged callers see every
// company; others see their company's bundles, or their own when they have
// no company.
func (s *BundleService) ListSubmissions(ctx context.Context, req *ListSubmissionsRequest) ([]*repository.Submission, int64, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	filter := repository.SubmissionFilter{Limit: req.Limit, Offset: req.Offset}
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
	if req.Status != "" {
		status, ok := workbook.ParseBundleStatus(req.Status)
		if !ok {
			return nil, 0, errors.InvalidInput("status", "unknown submission status")
		}
		filter.Status = &status
	}

	list, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for _, sub := range list {
		if _, err := refreshBundleStatus(ctx, s.submissions, s.workbooks, sub, s.now()); err != nil {
			return nil, 0, err
		}
	}
	return list, total, nil
}

// Submit moves a bundle whose three workbooks are complete to Submitted.
func (s *BundleService) Submit(ctx context.Context, id string) (*SubmissionView, error) {
	sub, uc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.workbooks.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	b := bundleOf(sub, children)
	statusBefore := string(workbook.DeriveBundleStatus(sub.Status, b.Children))
	if err := b.Submit(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.submissions.UpdateStatus(ctx, sub.ID, b.Status, now); err != nil {
		return nil, err
	}
	sub.Status, sub.UpdatedAt = b.Status, now

	statusAfter := string(sub.Status)
	s.appendAudit(ctx, &repository.AuditEntry{
		SubmissionID: sub.ID,
		CompanyID:    sub.CompanyID,
		Action:       "submitted",
		PerformedBy:  uc.UserID,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
	})
	s.notifier.PublishSubmissionEvent(ctx, "submission_submitted", sub.ID, sub.CompanyID, uc.UserID,
		recipients(sub.OwnerUserID, uc.UserID), map[string]any{"status": statusAfter})

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("user_id", uc.UserID).
		Msg("Submission submitted")

	return &SubmissionView{Submission: sub, Workbooks: children}, nil
}

// Decide approves or rejects a Submitted bundle. Administrators only.
func (s *BundleService) Decide(ctx context.Context, req *DecideRequest) (*SubmissionView, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, err
	}
	if !uc.Privileged {
		return nil, errors.Forbidden("only administrators can approve or reject submissions")
	}
	decision, err := workbook.ParseDecision(req.Decision)
	if err != nil {
		return nil, err
	}
	sub, _, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	children, err := s.workbooks.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, err
	}

	b := bundleOf(sub, children)
	statusBefore := string(sub.Status)
	now := s.now()
	if err := b.Decide(decision, req.Note, uc.UserID, now); err != nil {
		return nil, err
	}

	sub.Status = b.Status
	sub.DecisionNote = b.DecisionNote
	sub.DecidedByUserID = &b.DecidedByUserID
	sub.DecidedAt = b.DecidedAt
	sub.UpdatedAt = now.UTC()
	if err := s.submissions.SaveDecision(ctx, sub); err != nil {
		return nil, err
	}

	action := string(sub.Status)
	statusAfter := action
	metadata := map[string]any{"decision": string(decision)}
	if sub.DecisionNote != nil {
		metadata["note"] = *sub.DecisionNote
	}
	s.appendAudit(ctx, &repository.AuditEntry{
		SubmissionID: sub.ID,
		CompanyID:    sub.CompanyID,
		Action:       action,
		PerformedBy:  uc.UserID,
		StatusBefore: &statusBefore,
		StatusAfter:  &statusAfter,
		Metadata:     metadata,
	})
	s.notifier.PublishSubmissionEvent(ctx, "submission_"+action, sub.ID, sub.CompanyID, uc.UserID,
		[]string{sub.OwnerUserID}, metadata)

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("status", statusAfter).
		Str("decided_by", uc.UserID).
		Msg("Submission decided")

	return &SubmissionView{Submission: sub, Workbooks: children}, nil
}

// DeleteSubmission deletes a Draft bundle and its workbooks.
func (s *BundleService) DeleteSubmission(ctx context.Context, id string) error {
	sub, uc, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if _, err := refreshBundleStatus(ctx, s.submissions, s.workbooks, sub, s.now()); err != nil {
		return err
	}
	b := workbook.Bundle{Status: sub.Status}
	if err := b.CanDelete(); err != nil {
		return err
	}
	if err := s.submissions.Delete(ctx, sub.ID); err != nil {
		return err
	}

	statusBefore := string(sub.Status)
	s.appendAudit(ctx, &repository.AuditEntry{
		SubmissionID: sub.ID,
		CompanyID:    sub.CompanyID,
		Action:       "deleted",
		PerformedBy:  uc.UserID,
		StatusBefore: &statusBefore,
	})
	s.notifier.PublishSubmissionEvent(ctx, "submission_deleted", sub.ID, sub.CompanyID, uc.UserID,
		recipients(sub.OwnerUserID, uc.UserID), nil)

	s.log.Info().
		Str("submission_id", sub.ID).
		Str("user_id", uc.UserID).
		Msg("Submission deleted")
	return nil
}

// History returns the bundle's audit trail, oldest first.
func (s *BundleService) History(ctx context.Context, id string) ([]*repository.AuditEntry, error) {
	sub, _, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.audit.ListBySubmission(ctx, sub.ID)
}

// ── helpers ───────────────────────────────────────────────────────────────────

func (s *BundleService) load(ctx context.Context, id string) (*repository.Submission, *auth.UserContext, error) {
	uc, err := auth.GetUserContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, errors.NotFound("submission", id)
	}
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !canAccess(uc, sub.CompanyID, sub.OwnerUserID) {
		return nil, nil, errors.NotFound("submission", id)
	}
	return sub, uc, nil
}

func (s *BundleService) view(ctx context.Context, sub *repository.Submission) (*SubmissionView, error) {
	children, err := refreshBundleStatus(ctx, s.submissions, s.workbooks, sub, s.now())
	if err != nil {
		return nil, err
	}
	return &SubmissionView{Submission: sub, Workbooks: children}, nil
}

func (s *BundleService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	appendAudit(ctx, s.audit, s.log, entry)
}

// refreshBundleStatus recomputes sub's status from its workbooks and stores
// it when it moved. Locked bundles are left alone, including ones locked by a
// concurrent Submit or Decide after sub was read.
func refreshBundleStatus(ctx context.Context, submissions SubmissionStore, workbooks WorkbookStore, sub *repository.Submission, now time.Time) ([]*repository.Workbook, error) {
	children, err := workbooks.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	b := bundleOf(sub, children)
	if status := b.Recompute(); status != sub.Status {
		at := now.UTC()
		err := submissions.UpdateStatus(ctx, sub.ID, status, at)
		switch {
		case errors.Is(err, errors.ErrCodeConflict):
			// Locked since sub was read; report what is stored.
			stored, err := submissions.GetByID(ctx, sub.ID)
			if err != nil {
				return nil, err
			}
			*sub = *stored
		case err != nil:
			return nil, err
		default:
			sub.Status, sub.UpdatedAt = status, at
		}
	}
	return children, nil
}

func bundleOf(sub *repository.Submission, children []*repository.Workbook) *workbook.Bundle {
	b := &workbook.Bundle{
		Status:       sub.Status,
		Children:     make([]workbook.Status, 0, len(children)),
		DecisionNote: sub.DecisionNote,
		DecidedAt:    sub.DecidedAt,
	}
	if sub.DecidedByUserID != nil {
		b.DecidedByUserID = *sub.DecidedByUserID
	}
	for _, wb := range children {
		b.Children = append(b.Children, wb.Status)
	}
	return b
}

// canAccess is the tenant scoping rule: privileged callers see everything,
// company users see their company's records, and users without a company
// see only records they own that have no company.
func canAccess(uc *auth.UserContext, companyID, ownerUserID string) bool {
	if uc.CanAccessTenant(companyID) {
		return true
	}
	return companyID == "" && uc.TenantID == "" && ownerUserID == uc.UserID
}

func appendAudit(ctx context.Context, audit AuditLog, log *logger.Logger, entry *repository.AuditEntry) {
	if err := audit.Append(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("submission_id", entry.SubmissionID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func workbookIDs(list []*repository.Workbook) []int64 {
	ids := make([]int64, 0, len(list))
	for _, wb := range list {
		ids = append(ids, wb.ID)
	}
	return ids
}

func recipients(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
