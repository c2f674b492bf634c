package workbook

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-compliance-workbooks/internal/platform/errors"
)

func TestDeriveBundleStatus(t *testing.T) {
	d, c := StatusDraft, StatusCompleted
	tests := []struct {
		name     string
		current  BundleStatus
		children []Status
		want     BundleStatus
	}{
		{"all draft", BundleDraft, []Status{d, d, d}, BundleDraft},
		{"one complete", BundleDraft, []Status{c, d, d}, BundleInProgress},
		{"all complete", BundleInProgress, []Status{c, c, c}, BundleCompleted},
		{"vestigial statuses count", BundleDraft, []Status{StatusSubmitted, StatusApproved, c}, BundleCompleted},
		{"regresses when a child is draft", BundleCompleted, []Status{c, c, d}, BundleInProgress},
		{"missing child is never complete", BundleDraft, []Status{c, c}, BundleInProgress},
		{"submitted is kept", BundleSubmitted, []Status{d, d, d}, BundleSubmitted},
		{"rejected is kept", BundleRejected, []Status{c, c, c}, BundleRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveBundleStatus(tt.current, tt.children))
		})
	}
}

func TestSubmit(t *testing.T) {
	b := &Bundle{Status: BundleCompleted, Children: []Status{StatusCompleted, StatusCompleted, StatusDraft}}
	err := b.Submit()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.Equal(t, BundleCompleted, b.Status)

	b.Children[2] = StatusCompleted
	require.NoError(t, b.Submit())
	assert.Equal(t, BundleSubmitted, b.Status)

	err = b.Submit()
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.Equal(t, BundleSubmitted, b.Status)
}

func TestDecideOnce(t *testing.T) {
	at := time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	b := &Bundle{Status: BundleSubmitted}

	require.NoError(t, b.Decide(DecisionApprove, "  looks good  ", "admin-1", at))
	assert.Equal(t, BundleApproved, b.Status)
	require.NotNil(t, b.DecisionNote)
	assert.Equal(t, "looks good", *b.DecisionNote)
	assert.Equal(t, "admin-1", b.DecidedByUserID)
	assert.Equal(t, at, *b.DecidedAt)

	err := b.Decide(DecisionReject, "changed my mind", "admin-2", at.Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))
	assert.Equal(t, BundleApproved, b.Status)
	assert.Equal(t, "looks good", *b.DecisionNote)
	assert.Equal(t, "admin-1", b.DecidedByUserID)
	assert.Equal(t, at, *b.DecidedAt)
}

func TestDecideRequiresSubmitted(t *testing.T) {
	for _, st := range []BundleStatus{BundleDraft, BundleInProgress, BundleCompleted} {
		b := &Bundle{Status: st}
		err := b.Decide(DecisionReject, "", "admin", time.Now())
		assert.True(t, errors.Is(err, errors.ErrCodeConflict), st)
		assert.Equal(t, st, b.Status)
		assert.Nil(t, b.DecidedAt)
	}
}

func TestDecideNote(t *testing.T) {
	b := &Bundle{Status: BundleSubmitted}
	err := b.Decide(DecisionReject, strings.Repeat("x", MaxDecisionNote+1), "admin", time.Now())
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	assert.Equal(t, BundleSubmitted, b.Status)

	require.NoError(t, b.Decide(DecisionReject, "   ", "admin", time.Now()))
	assert.Equal(t, BundleRejected, b.Status)
	assert.Nil(t, b.DecisionNote)
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("Approve")
	require.NoError(t, err)
	assert.Equal(t, DecisionApprove, d)

	_, err = ParseDecision("maybe")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestCanDelete(t *testing.T) {
	assert.NoError(t, (&Bundle{Status: BundleDraft}).CanDelete())
	for _, st := range []BundleStatus{BundleInProgress, BundleCompleted, BundleSubmitted, BundleApproved, BundleRejected} {
		assert.True(t, errors.Is((&Bundle{Status: st}).CanDelete(), errors.ErrCodeConflict), st)
	}
}

func TestBundleStatusPredicates(t *testing.T) {
	assert.True(t, BundleSubmitted.Locked())
	assert.False(t, BundleCompleted.Locked())
	assert.True(t, BundleCompleted.Active())
	assert.False(t, BundleRejected.Active())

	st, ok := ParseBundleStatus("IN_PROGRESS")
	assert.True(t, ok)
	assert.Equal(t, BundleInProgress, st)
}
