package workbook

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

// BundleStatus is the lifecycle value of a submission bundle.
type BundleStatus string

const (
	BundleDraft      BundleStatus = "draft"
	BundleInProgress BundleStatus = "in_progress"
	BundleCompleted  BundleStatus = "completed"
	BundleSubmitted  BundleStatus = "submitted"
	BundleApproved   BundleStatus = "approved"
	BundleRejected   BundleStatus = "rejected"
)

// ParseBundleStatus accepts the canonical value, case-insensitively.
func ParseBundleStatus(s string) (BundleStatus, bool) {
	st := BundleStatus(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case BundleDraft, BundleInProgress, BundleCompleted, BundleSubmitted, BundleApproved, BundleRejected:
		return st, true
	}
	return "", false
}

// Locked reports whether the bundle's workbooks can no longer be edited.
func (s BundleStatus) Locked() bool {
	return s == BundleSubmitted || s == BundleApproved || s == BundleRejected
}

// Decided reports whether an administrator has ruled on the bundle.
func (s BundleStatus) Decided() bool {
	return s == BundleApproved || s == BundleRejected
}

// Active bundles are reused when the same user starts again.
func (s BundleStatus) Active() bool {
	return s == BundleDraft || s == BundleInProgress || s == BundleCompleted
}

// MaxDecisionNote is the longest decision note accepted, in characters.
const MaxDecisionNote = 2000

// Bundle is the state a submission needs for its transitions.
type Bundle struct {
	Status          BundleStatus
	Children        []Status
	DecisionNote    *string
	DecidedByUserID string
	DecidedAt       *time.Time
}

// Recompute derives the status from the child workbooks. Locked bundles
// keep their status. It returns the derived status and sets it on b.
func (b *Bundle) Recompute() BundleStatus {
	b.Status = DeriveBundleStatus(b.Status, b.Children)
	return b.Status
}

// DeriveBundleStatus is Completed when all three children are complete,
// InProgress when any is, else Draft. A locked status is returned as is.
func DeriveBundleStatus(current BundleStatus, children []Status) BundleStatus {
	if current.Locked() {
		return current
	}
	complete := 0
	for _, c := range children {
		if c.IsComplete() {
			complete++
		}
	}
	switch {
	case len(children) == len(Kinds) && complete == len(children):
		return BundleCompleted
	case complete > 0:
		return BundleInProgress
	default:
		return BundleDraft
	}
}

// Submit moves a bundle whose three workbooks are complete to Submitted.
// On failure b is unchanged.
func (b *Bundle) Submit() error {
	if b.Status.Locked() {
		return errors.New(errors.ErrCodeConflict, "This submission has already been finalized.")
	}
	if DeriveBundleStatus(b.Status, b.Children) != BundleCompleted {
		return errors.New(errors.ErrCodeConflict, "All three workbooks must be completed before submitting.")
	}
	b.Status = BundleSubmitted
	return nil
}

// Decision is an administrator ruling on a submitted bundle.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ParseDecision accepts approve or reject, case-insensitively.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(strings.ToLower(strings.TrimSpace(s))); d {
	case DecisionApprove, DecisionReject:
		return d, nil
	}
	return "", errors.InvalidInput("decision", fmt.Sprintf("Unknown decision %q", s))
}

// Decide approves or rejects a Submitted bundle and stamps the decision
// metadata. A blank note is stored as nil. On failure b is unchanged.
func (b *Bundle) Decide(d Decision, note, userID string, at time.Time) error {
	if b.Status.Decided() {
		return errors.New(errors.ErrCodeConflict, fmt.Sprintf("This submission has already been decided (status '%s').", b.Status))
	}
	if b.Status != BundleSubmitted {
		return errors.New(errors.ErrCodeConflict, "Only bundles with status 'Submitted' can be approved or rejected.")
	}

	var stored *string
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		if utf8.RuneCountInString(trimmed) > MaxDecisionNote {
			return errors.InvalidInput("note", fmt.Sprintf("must be at most %d characters", MaxDecisionNote))
		}
		stored = &trimmed
	}

	switch d {
	case DecisionApprove:
		b.Status = BundleApproved
	case DecisionReject:
		b.Status = BundleRejected
	default:
		return errors.InvalidInput("decision", fmt.Sprintf("Unknown decision %q", d))
	}
	decidedAt := at.UTC()
	b.DecisionNote = stored
	b.DecidedByUserID = userID
	b.DecidedAt = &decidedAt
	return nil
}

// CanDelete allows deleting only Draft bundles.
func (b *Bundle) CanDelete() error {
	if b.Status != BundleDraft {
		return errors.New(errors.ErrCodeConflict, "Only draft submissions can be deleted.")
	}
	return nil
}
