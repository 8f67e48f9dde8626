package services

import (
	"testing"

	"educenter_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentApproval(t *testing.T) {
	f := newFixture(t)
	svc := NewApprovalService(f.db, f.sink)
	scope := f.branch(f.w.BranchA)

	_, err := svc.SubmitDocument(f.ctx, scope, f.w.DirectorA.ID, DocumentInput{BranchID: f.w.BranchB.ID, DocumentType: "invoice"})
	requireKind(t, err, KindNotFound, "Branch not found")

	doc, err := svc.SubmitDocument(f.ctx, scope, f.w.DirectorA.ID, DocumentInput{BranchID: f.w.BranchA.ID, DocumentType: "invoice", Title: "Rent"})
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, doc.Status)

	approved, err := svc.ApproveDocument(f.ctx, scope, f.w.DirectorA.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)

	_, err = svc.ApproveDocument(f.ctx, scope, f.w.DirectorA.ID, doc.ID)
	requireKind(t, err, KindInvalidState, "Document is not pending")
	_, err = svc.RejectDocument(f.ctx, scope, f.w.DirectorA.ID, doc.ID, "late")
	requireKind(t, err, KindInvalidState, "Document is not pending")

	other, err := svc.SubmitDocument(f.ctx, scope, f.w.DirectorA.ID, DocumentInput{BranchID: f.w.BranchA.ID, DocumentType: "contract"})
	require.NoError(t, err)

	_, err = svc.RejectDocument(f.ctx, f.branch(f.w.BranchB), f.w.DirectorA.ID, other.ID, "")
	requireKind(t, err, KindNotFound, "Document not found")

	rejected, err := svc.RejectDocument(f.ctx, scope, f.w.DirectorA.ID, other.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, rejected.Status)

	var stored models.DocumentApproval
	require.NoError(t, f.db.First(&stored, other.ID).Error)
	assert.Equal(t, models.ApprovalRejected, stored.Status)
	assert.Equal(t, "", stored.RejectionReason)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, f.w.DirectorA.ID, *stored.ApprovedBy)
}
