package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/database"
	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
	"github.com/pesio-ai/be-compliance-workbooks/internal/workbook"
)

const submissionColumns = `
	id, owner_user_id, company_id, status, decision_note,
	decided_by_user_id, decided_at, created_at, updated_at`

// SubmissionRepository stores bundles.
type SubmissionRepository struct {
	db *database.DB
}

// NewSubmissionRepository creates a new SubmissionRepository.
func NewSubmissionRepository(db *database.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// CreateWithWorkbooks inserts the bundle and its workbooks in one
// transaction. s.ID must already be set.
func (r *SubmissionRepository) CreateWithWorkbooks(ctx context.Context, s *Submission, workbooks []*Workbook) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO submissions (id, owner_user_id, company_id, status)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			s.ID,
			s.OwnerUserID,
			nullIfEmpty(s.CompanyID),
			s.Status,
		).Scan(&s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create submission")
		}

		for _, wb := range workbooks {
			wb.SubmissionID = s.ID
			if err := insertWorkbook(ctx, tx, wb); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID loads a bundle.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("submission", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get submission")
	}
	return s, nil
}

// FindActive returns the newest reusable bundle the user owns within
// companyID, or outside any company when companyID is empty.
func (r *SubmissionRepository) FindActive(ctx context.Context, ownerUserID, companyID string) (*Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE status = ANY($1) AND owner_user_id = $2`
	args := []any{activeBundleStatuses, ownerUserID}
	if companyID != "" {
		query += ` AND company_id = $3`
		args = append(args, companyID)
	} else {
		query += ` AND company_id IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT 1`

	s, err := scanSubmission(r.db.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find active submission")
	}
	return s, nil
}

// List returns bundles matching filter, newest first, and the total count.
func (r *SubmissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]*Submission, int64, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 1

	if filter.CompanyID != nil {
		where += fmt.Sprintf(" AND company_id = $%d", argCount)
		args = append(args, *filter.CompanyID)
		argCount++
	}
	if filter.OwnerUserID != nil {
		where += fmt.Sprintf(" AND owner_user_id = $%d", argCount)
		args = append(args, *filter.OwnerUserID)
		argCount++
	}
	if filter.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filter.Status)
		argCount++
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM submissions`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count submissions")
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, pageLimit(filter.Limit), filter.Offset)

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list submissions")
	}
	defer rows.Close()

	list := make([]*Submission, 0)
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan submission")
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to read submissions")
	}
	return list, total, nil
}

// UpdateStatus stores a recomputed status. A bundle that is already
// submitted or decided is not touched and ErrCodeConflict is returned.
func (r *SubmissionRepository) UpdateStatus(ctx context.Context, id string, status workbook.BundleStatus, at time.Time) error {
	query := `
		UPDATE submissions SET status = $2, updated_at = $3
		WHERE id = $1 AND status NOT IN ('submitted', 'approved', 'rejected')
	`
	tag, err := r.db.Exec(ctx, query, id, status, at)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update submission status")
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, id, errSubmissionLocked)
	}
	return nil
}

// SaveDecision stores the status and decision metadata of s.
func (r *SubmissionRepository) SaveDecision(ctx context.Context, s *Submission) error {
	query := `
		UPDATE submissions
		SET status = $2, decision_note = $3, decided_by_user_id = $4, decided_at = $5, updated_at = $6
		WHERE id = $1 AND status = 'submitted'
	`
	tag, err := r.db.Exec(ctx, query,
		s.ID,
		s.Status,
		s.DecisionNote,
		s.DecidedByUserID,
		s.DecidedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to save submission decision")
	}
	if tag.RowsAffected() == 0 {
		return r.missingOr(ctx, s.ID, errSubmissionDecided)
	}
	return nil
}

// missingOr tells a guarded update that matched no row because the bundle is
// gone apart from one whose status blocked it.
func (r *SubmissionRepository) missingOr(ctx context.Context, id string, blocked error) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM submissions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to check submission")
	}
	if !exists {
		return errors.NotFound("submission", id)
	}
	return blocked
}

// Delete removes a bundle; its workbooks go with it through the foreign key.
func (r *SubmissionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete submission")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("submission", id)
	}
	return nil
}

func scanSubmission(sc rowScanner) (*Submission, error) {
	s := &Submission{}
	var companyID *string

	err := sc.Scan(
		&s.ID,
		&s.OwnerUserID,
		&companyID,
		&s.Status,
		&s.DecisionNote,
		&s.DecidedByUserID,
		&s.DecidedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.CompanyID = derefString(companyID)
	return s, nil
}
