package services

import (
	"context"
	"strings"
	"time"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type ApprovalService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewApprovalService(db *gorm.DB, sink *audit.Sink) *ApprovalService {
	return &ApprovalService{db: db, sink: sink}
}

type DocumentInput struct {
	BranchID     uint   `json:"branch_id" form:"branch_id" validate:"required"`
	DocumentType string `json:"document_type" form:"document_type" validate:"required,notblank,max=50"`
	Title        string `json:"title" form:"title" validate:"max=255"`
	FileURL      string `json:"file_url" form:"file_url" validate:"omitempty,max=500"`
}

// SubmitDocument creates a pending document in a branch the actor can see.
func (s *ApprovalService) SubmitDocument(ctx context.Context, scope access.Scope, actorID uint, in DocumentInput) (*models.DocumentApproval, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID}
	if strings.TrimSpace(in.DocumentType) == "" {
		return nil, finish("document_submit", fields, Malformedf("Document type is required"))
	}

	doc := models.DocumentApproval{
		BranchID:     in.BranchID,
		DocumentType: strings.TrimSpace(in.DocumentType),
		Title:        in.Title,
		FileURL:      in.FileURL,
		SubmittedBy:  actorID,
		Status:       models.ApprovalPending,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := access.FindScoped(tx, access.EntityBranch, scope, &branch, in.BranchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		if err := tx.Create(&doc).Error; err != nil {
			return errors.Wrap(err, "create document")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "document", doc.ID,
			map[string]interface{}{"document_type": doc.DocumentType})
	})
	if err != nil {
		return nil, finish("document_submit", fields, err)
	}
	fields["document_id"] = doc.ID
	return &doc, finish("document_submit", fields, nil)
}

// ApproveDocument moves a pending document to approved.
func (s *ApprovalService) ApproveDocument(ctx context.Context, scope access.Scope, actorID, docID uint) (*models.DocumentApproval, error) {
	return s.decide(ctx, scope, actorID, docID, models.ApprovalApproved, "")
}

// RejectDocument moves a pending document to rejected and stores reason,
// which may be empty.
func (s *ApprovalService) RejectDocument(ctx context.Context, scope access.Scope, actorID, docID uint, reason string) (*models.DocumentApproval, error) {
	return s.decide(ctx, scope, actorID, docID, models.ApprovalRejected, reason)
}

func (s *ApprovalService) decide(ctx context.Context, scope access.Scope, actorID, docID uint, to models.ApprovalStatus, reason string) (*models.DocumentApproval, error) {
	workflow := "document_" + string(to)
	fields := logrus.Fields{"actor_id": actorID, "document_id": docID}

	var doc models.DocumentApproval
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityDocument, scope, &doc, docID); err != nil {
			return notFoundOr(err, "Document not found")
		}
		if doc.Status != models.ApprovalPending {
			return InvalidStatef("Document is not pending")
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":      to,
			"approved_by": actorID,
			"approved_at": now,
		}
		if to == models.ApprovalRejected {
			updates["rejection_reason"] = reason
		}
		if err := tx.Model(&doc).Updates(updates).Error; err != nil {
			return errors.Wrap(err, "update document")
		}
		doc.Status = to
		doc.ApprovedBy = ptrUint(actorID)
		doc.ApprovedAt = &now
		if to == models.ApprovalRejected {
			doc.RejectionReason = reason
		}
		return s.sink.Activity(tx, actorID, strings.ToUpper(string(to)), "document", doc.ID,
			map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return nil, finish(workflow, fields, err)
	}
	return &doc, finish(workflow, fields, nil)
}
