package repository

import (
	"time"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

// ── Stored records ───────────────────────────────────────────────────────────

// Workbook is one stored workbook. Data is the raw JSON document.
type Workbook struct {
	ID           int64
	UserID       string
	CompanyID    string // empty when the owner has no company
	Title        string
	Kind         workbook.Kind
	Data         []byte
	Status       workbook.Status
	Version      int    // bumped on every save, never compared
	SubmissionID string // empty for standalone workbooks
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Standalone reports whether the workbook belongs to no bundle.
func (w *Workbook) Standalone() bool {
	return w.SubmissionID == ""
}

// Submission is a bundle of three workbooks and its approval decision.
type Submission struct {
	ID              string
	OwnerUserID     string
	CompanyID       string
	Status          workbook.BundleStatus
	DecisionNote    *string
	DecidedByUserID *string
	DecidedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuditEntry is one immutable record in the workbook audit log.
type AuditEntry struct {
	ID           int64
	SubmissionID string
	WorkbookID   *int64
	CompanyID    string
	Action       string // started | step_saved | completed | submitted | approved | rejected | deleted
	PerformedBy  string
	PerformedAt  time.Time
	StatusBefore *string
	StatusAfter  *string
	Metadata     map[string]any
}

// ── Filters ──────────────────────────────────────────────────────────────────

// WorkbookFilter narrows a workbook listing. Zero values match everything.
type WorkbookFilter struct {
	CompanyID   *string
	OwnerUserID *string
	Kind        *workbook.Kind
	Status      *workbook.Status
	Query       string // case-insensitive title substring
	Limit       int
	Offset      int
}

// SubmissionFilter narrows a submission listing. Zero values match everything.
type SubmissionFilter struct {
	CompanyID   *string
	OwnerUserID *string
	Status      *workbook.BundleStatus
	Limit       int
	Offset      int
}

// DefaultLimit caps listings that do not ask for a page size.
const DefaultLimit = 100

func pageLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultLimit
	}
	return limit
}

// activeBundleStatuses are the statuses a bundle can be reused from.
var activeBundleStatuses = []string{
	string(workbook.BundleDraft),
	string(workbook.BundleInProgress),
	string(workbook.BundleCompleted),
}

var (
	errSubmissionLocked  = errors.New(errors.ErrCodeConflict, "This submission has already been finalized.")
	errSubmissionDecided = errors.New(errors.ErrCodeConflict, "This submission has already been decided.")
)

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
