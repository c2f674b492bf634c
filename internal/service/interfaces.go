package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-compliance-workbooks/internal/repository"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

// WorkbookStore is the document store. Implemented by
// repository.WorkbookRepository and repository.MemoryWorkbookRepository.
type WorkbookStore interface {
	Create(ctx context.Context, wb *repository.Workbook) error
	GetByID(ctx context.Context, id int64) (*repository.Workbook, error)
	SaveData(ctx context.Context, wb *repository.Workbook) error
	List(ctx context.Context, filter repository.WorkbookFilter) ([]*repository.Workbook, int64, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]*repository.Workbook, error)
	Delete(ctx context.Context, id int64) error
}

// SubmissionStore persists bundles.
type SubmissionStore interface {
	CreateWithWorkbooks(ctx context.Context, s *repository.Submission, workbooks []*repository.Workbook) error
	GetByID(ctx context.Context, id string) (*repository.Submission, error)
	FindActive(ctx context.Context, ownerUserID, companyID string) (*repository.Submission, error)
	List(ctx context.Context, filter repository.SubmissionFilter) ([]*repository.Submission, int64, error)
	// UpdateStatus returns ErrCodeConflict when the stored bundle is locked.
	UpdateStatus(ctx context.Context, id string, status workbook.BundleStatus, at time.Time) error
	// SaveDecision returns ErrCodeConflict unless the stored bundle is Submitted.
	SaveDecision(ctx context.Context, s *repository.Submission) error
	Delete(ctx context.Context, id string) error
}

// AuditLog is the append-only audit trail.
type AuditLog interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListBySubmission(ctx context.Context, submissionID string) ([]*repository.AuditEntry, error)
}

// Notifier publishes lifecycle events. Implementations must not fail the
// caller.
type Notifier interface {
	PublishSubmissionEvent(ctx context.Context, eventType, submissionID, companyID, actorID string, recipients []string, payload map[string]any)
	PublishWorkbookEvent(ctx context.Context, eventType string, workbookID int64, companyID, actorID string, recipients []string, payload map[string]any)
}

var (
	_ WorkbookStore   = (*repository.WorkbookRepository)(nil)
	_ WorkbookStore   = (*repository.MemoryWorkbookRepository)(nil)
	_ SubmissionStore = (*repository.SubmissionRepository)(nil)
	_ SubmissionStore = (*repository.MemorySubmissionRepository)(nil)
	_ AuditLog        = (*repository.AuditRepository)(nil)
	_ AuditLog        = (*repository.MemoryAuditRepository)(nil)
)

// Stores groups the repositories a service set needs.
type Stores struct {
	Workbooks   WorkbookStore
	Submissions SubmissionStore
	Audit       AuditLog
}

// MemoryStores adapts a memory store.
func MemoryStores(m *repository.MemoryStore) Stores {
	return Stores{Workbooks: m.Workbooks, Submissions: m.Submissions, Audit: m.Audit}
}

type nopNotifier struct{}

func (nopNotifier) PublishSubmissionEvent(context.Context, string, string, string, string, []string, map[string]any) {
}

func (nopNotifier) PublishWorkbookEvent(context.Context, string, int64, string, string, []string, map[string]any) {
}
