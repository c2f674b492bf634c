package repository

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

// memoryState is the shared in-process state behind the memory repositories.
// Records are copied in and out so callers never alias stored values.
type memoryState struct {
	mu          sync.RWMutex
	nextWB      int64
	nextAudit   int64
	workbooks   map[int64]Workbook
	submissions map[string]Submission
	audit       []AuditEntry
	now         func() time.Time
}

// MemoryStore holds the in-process repositories used by the memory driver
// and by tests.
type MemoryStore struct {
	Workbooks   *MemoryWorkbookRepository
	Submissions *MemorySubmissionRepository
	Audit       *MemoryAuditRepository
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	st := &memoryState{
		workbooks:   map[int64]Workbook{},
		submissions: map[string]Submission{},
		now:         time.Now,
	}
	return &MemoryStore{
		Workbooks:   &MemoryWorkbookRepository{st: st},
		Submissions: &MemorySubmissionRepository{st: st},
		Audit:       &MemoryAuditRepository{st: st},
	}
}

func cloneWorkbook(wb Workbook) *Workbook {
	wb.Data = slices.Clone(wb.Data)
	return &wb
}

func cloneSubmission(s Submission) *Submission {
	if s.DecisionNote != nil {
		note := *s.DecisionNote
		s.DecisionNote = &note
	}
	if s.DecidedByUserID != nil {
		by := *s.DecidedByUserID
		s.DecidedByUserID = &by
	}
	if s.DecidedAt != nil {
		at := *s.DecidedAt
		s.DecidedAt = &at
	}
	return &s
}

func page[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return make([]T, 0)
	}
	list = list[offset:]
	if n := pageLimit(limit); len(list) > n {
		list = list[:n]
	}
	return list
}

// ── workbooks ────────────────────────────────────────────────────────────────

// MemoryWorkbookRepository is the in-process workbook store.
type MemoryWorkbookRepository struct {
	st *memoryState
}

func (r *MemoryWorkbookRepository) Create(_ context.Context, wb *Workbook) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.insertWorkbook(wb)
	return nil
}

func (st *memoryState) insertWorkbook(wb *Workbook) {
	st.nextWB++
	now := st.now().UTC()
	wb.ID = st.nextWB
	wb.Version = 1
	wb.CreatedAt, wb.UpdatedAt = now, now
	if len(wb.Data) == 0 {
		wb.Data = []byte("{}")
	}
	st.workbooks[wb.ID] = *cloneWorkbook(*wb)
}

func (r *MemoryWorkbookRepository) GetByID(_ context.Context, id int64) (*Workbook, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	wb, ok := r.st.workbooks[id]
	if !ok {
		return nil, errors.NotFound("workbook", strconv.FormatInt(id, 10))
	}
	return cloneWorkbook(wb), nil
}

func (r *MemoryWorkbookRepository) SaveData(_ context.Context, wb *Workbook) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.workbooks[wb.ID]
	if !ok {
		return errors.NotFound("workbook", strconv.FormatInt(wb.ID, 10))
	}
	stored.Data = slices.Clone(wb.Data)
	stored.Status = wb.Status
	stored.UpdatedAt = wb.UpdatedAt
	stored.Version++
	r.st.workbooks[wb.ID] = stored
	wb.Version = stored.Version
	return nil
}

func (r *MemoryWorkbookRepository) List(_ context.Context, filter WorkbookFilter) ([]*Workbook, int64, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	q := strings.ToLower(filter.Query)
	matches := make([]*Workbook, 0)
	for _, wb := range r.st.workbooks {
		switch {
		case filter.CompanyID != nil && wb.CompanyID != *filter.CompanyID:
		case filter.OwnerUserID != nil && wb.UserID != *filter.OwnerUserID:
		case filter.Kind != nil && wb.Kind != *filter.Kind:
		case filter.Status != nil && wb.Status != *filter.Status:
		case q != "" && !strings.Contains(strings.ToLower(wb.Title), q):
		default:
			matches = append(matches, cloneWorkbook(wb))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].UpdatedAt.Equal(matches[j].UpdatedAt) {
			return matches[i].UpdatedAt.After(matches[j].UpdatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	return page(matches, filter.Limit, filter.Offset), int64(len(matches)), nil
}

func (r *MemoryWorkbookRepository) ListBySubmission(_ context.Context, submissionID string) ([]*Workbook, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	return r.st.childWorkbooks(submissionID), nil
}

func (st *memoryState) childWorkbooks(submissionID string) []*Workbook {
	list := make([]*Workbook, 0, len(workbook.Kinds))
	for _, wb := range st.workbooks {
		if wb.SubmissionID == submissionID {
			list = append(list, cloneWorkbook(wb))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (r *MemoryWorkbookRepository) Delete(_ context.Context, id int64) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.workbooks[id]; !ok {
		return errors.NotFound("workbook", strconv.FormatInt(id, 10))
	}
	delete(r.st.workbooks, id)
	return nil
}

// ── submissions ──────────────────────────────────────────────────────────────

// MemorySubmissionRepository is the in-process bundle store.
type MemorySubmissionRepository struct {
	st *memoryState
}

func (r *MemorySubmissionRepository) CreateWithWorkbooks(_ context.Context, s *Submission, workbooks []*Workbook) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, exists := r.st.submissions[s.ID]; exists {
		return errors.New(errors.ErrCodeConflict, "submission already exists: "+s.ID)
	}
	now := r.st.now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	r.st.submissions[s.ID] = *cloneSubmission(*s)
	for _, wb := range workbooks {
		wb.SubmissionID = s.ID
		r.st.insertWorkbook(wb)
	}
	return nil
}

func (r *MemorySubmissionRepository) GetByID(_ context.Context, id string) (*Submission, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	s, ok := r.st.submissions[id]
	if !ok {
		return nil, errors.NotFound("submission", id)
	}
	return cloneSubmission(s), nil
}

func (r *MemorySubmissionRepository) FindActive(_ context.Context, ownerUserID, companyID string) (*Submission, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	var found *Submission
	for _, s := range r.st.submissions {
		if !s.Status.Active() {
			continue
		}
		if s.OwnerUserID != ownerUserID || s.CompanyID != companyID {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = cloneSubmission(s)
		}
	}
	return found, nil
}

func (r *MemorySubmissionRepository) List(_ context.Context, filter SubmissionFilter) ([]*Submission, int64, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()

	matches := make([]*Submission, 0)
	for _, s := range r.st.submissions {
		switch {
		case filter.CompanyID != nil && s.CompanyID != *filter.CompanyID:
		case filter.OwnerUserID != nil && s.OwnerUserID != *filter.OwnerUserID:
		case filter.Status != nil && s.Status != *filter.Status:
		default:
			matches = append(matches, cloneSubmission(s))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	return page(matches, filter.Limit, filter.Offset), int64(len(matches)), nil
}

func (r *MemorySubmissionRepository) UpdateStatus(_ context.Context, id string, status workbook.BundleStatus, at time.Time) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	s, ok := r.st.submissions[id]
	if !ok {
		return errors.NotFound("submission", id)
	}
	if s.Status.Locked() {
		return errSubmissionLocked
	}
	s.Status, s.UpdatedAt = status, at
	r.st.submissions[id] = s
	return nil
}

func (r *MemorySubmissionRepository) SaveDecision(_ context.Context, s *Submission) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	stored, ok := r.st.submissions[s.ID]
	if !ok {
		return errors.NotFound("submission", s.ID)
	}
	if stored.Status != workbook.BundleSubmitted {
		return errSubmissionDecided
	}
	decided := cloneSubmission(*s)
	stored.Status = decided.Status
	stored.DecisionNote = decided.DecisionNote
	stored.DecidedByUserID = decided.DecidedByUserID
	stored.DecidedAt = decided.DecidedAt
	stored.UpdatedAt = decided.UpdatedAt
	r.st.submissions[s.ID] = stored
	return nil
}

// Delete removes the bundle and cascades to its workbooks.
func (r *MemorySubmissionRepository) Delete(_ context.Context, id string) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	if _, ok := r.st.submissions[id]; !ok {
		return errors.NotFound("submission", id)
	}
	delete(r.st.submissions, id)
	for wbID, wb := range r.st.workbooks {
		if wb.SubmissionID == id {
			delete(r.st.workbooks, wbID)
		}
	}
	return nil
}

// ── audit ────────────────────────────────────────────────────────────────────

// MemoryAuditRepository is the in-process audit log.
type MemoryAuditRepository struct {
	st *memoryState
}

func (r *MemoryAuditRepository) Append(_ context.Context, entry *AuditEntry) error {
	r.st.mu.Lock()
	defer r.st.mu.Unlock()
	r.st.nextAudit++
	entry.ID = r.st.nextAudit
	entry.PerformedAt = r.st.now().UTC()
	r.st.audit = append(r.st.audit, *entry)
	return nil
}

func (r *MemoryAuditRepository) ListBySubmission(_ context.Context, submissionID string) ([]*AuditEntry, error) {
	r.st.mu.RLock()
	defer r.st.mu.RUnlock()
	out := make([]*AuditEntry, 0)
	for _, e := range r.st.audit {
		if e.SubmissionID == submissionID {
			entry := e
			out = append(out, &entry)
		}
	}
	return out, nil
}
