package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

const workbookColumns = `
	id, user_id, company_id, title, kind, data, status, version,
	submission_id, created_at, updated_at`

// rowQuerier is satisfied by *database.DB and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WorkbookRepository is the document store for workbooks.
type WorkbookRepository struct {
	db *database.DB
}

// NewWorkbookRepository creates a new workbook repository
func NewWorkbookRepository(db *database.DB) *WorkbookRepository {
	return &WorkbookRepository{db: db}
}

// Create inserts a workbook and fills its id, version and timestamps.
func (r *WorkbookRepository) Create(ctx context.Context, wb *Workbook) error {
	return insertWorkbook(ctx, r.db, wb)
}

func insertWorkbook(ctx context.Context, q rowQuerier, wb *Workbook) error {
	query := `
		INSERT INTO workbooks (user_id, company_id, title, kind, data, status, version, submission_id)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		RETURNING id, version, created_at, updated_at
	`

	data := wb.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	err := q.QueryRow(ctx, query,
		wb.UserID,
		nullIfEmpty(wb.CompanyID),
		wb.Title,
		wb.Kind,
		data,
		wb.Status,
		nullIfEmpty(wb.SubmissionID),
	).Scan(&wb.ID, &wb.Version, &wb.CreatedAt, &wb.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create workbook")
	}
	wb.Data = data
	return nil
}

// GetByID loads a workbook. Tenant scoping is the caller's job.
func (r *WorkbookRepository) GetByID(ctx context.Context, id int64) (*Workbook, error) {
	query := `SELECT ` + workbookColumns + ` FROM workbooks WHERE id = $1`

	wb, err := scanWorkbook(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("workbook", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get workbook")
	}
	return wb, nil
}

// SaveData writes the document, status and updated time and bumps the
// version. Nothing is compared, so the last writer wins.
func (r *WorkbookRepository) SaveData(ctx context.Context, wb *Workbook) error {
	query := `
		UPDATE workbooks
		SET data = $2, status = $3, version = version + 1, updated_at = $4
		WHERE id = $1
		RETURNING version
	`

	err := r.db.QueryRow(ctx, query, wb.ID, wb.Data, wb.Status, wb.UpdatedAt).Scan(&wb.Version)
	if err == pgx.ErrNoRows {
		return errors.NotFound("workbook", strconv.FormatInt(wb.ID, 10))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to save workbook")
	}
	return nil
}

// List returns workbooks matching filter, most recently updated first, and
// the total match count.
func (r *WorkbookRepository) List(ctx context.Context, filter WorkbookFilter) ([]*Workbook, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 1

	if filter.CompanyID != nil {
		where += fmt.Sprintf(" AND company_id = $%d", argCount)
		args = append(args, *filter.CompanyID)
		argCount++
	}
	if filter.OwnerUserID != nil {
		where += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.OwnerUserID)
		argCount++
	}
	if filter.Kind != nil {
		where += fmt.Sprintf(" AND kind = $%d", argCount)
		args = append(args, *filter.Kind)
		argCount++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}
	if filter.Query != "" {
		where += fmt.Sprintf(" AND title ILIKE '%%' || $%d || '%%'", argCount)
		args = append(args, filter.Query)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM workbooks`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count workbooks")
	}

	query := `SELECT ` + workbookColumns + ` FROM workbooks` + where +
		fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, pageLimit(filter.Limit), filter.Offset)

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workbooks")
	}
	defer rows.Close()

	list, err := scanWorkbooks(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListBySubmission returns a bundle's workbooks in creation order.
func (r *WorkbookRepository) ListBySubmission(ctx context.Context, submissionID string) ([]*Workbook, error) {
	query := `SELECT ` + workbookColumns + ` FROM workbooks WHERE submission_id = $1 ORDER BY id`

	rows, err := r.db.Query(ctx, query, submissionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list submission workbooks")
	}
	defer rows.Close()

	return scanWorkbooks(rows)
}

// Delete removes a workbook.
func (r *WorkbookRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM workbooks WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete workbook")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("workbook", strconv.FormatInt(id, 10))
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkbook(sc rowScanner) (*Workbook, error) {
	wb := &Workbook{}
	var companyID, submissionID *string

	err := sc.Scan(
		&wb.ID,
		&wb.UserID,
		&companyID,
		&wb.Title,
		&wb.Kind,
		&wb.Data,
		&wb.Status,
		&wb.Version,
		&submissionID,
		&wb.CreatedAt,
		&wb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	wb.CompanyID = derefString(companyID)
	wb.SubmissionID = derefString(submissionID)
	return wb, nil
}

func scanWorkbooks(rows pgx.Rows) ([]*Workbook, error) {
	list := make([]*Workbook, 0)
	for rows.Next() {
		wb, err := scanWorkbook(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workbook")
		}
		list = append(list, wb)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read workbooks")
	}
	return list, nil
}
