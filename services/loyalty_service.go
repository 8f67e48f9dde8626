package services

import (
	"context"
	"strings"

	"educenter_go/models"
	"educenter_go/services/access"
	"educenter_go/services/audit"
	"educenter_go/utils"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LoyaltyService struct {
	db   *gorm.DB
	sink *audit.Sink
}

func NewLoyaltyService(db *gorm.DB, sink *audit.Sink) *LoyaltyService {
	return &LoyaltyService{db: db, sink: sink}
}

type LoyaltyBranchInput struct {
	BranchID             uint    `json:"branch_id" validate:"required"`
	Name                 string  `json:"name" validate:"max=255"`
	PointsMultiplier     float64 `json:"points_multiplier" validate:"gte=0"`
	MinPurchaseForPoints float64 `json:"min_purchase_for_points" validate:"gte=0"`
	IsPrimary            bool    `json:"is_primary"`
}

func (s *LoyaltyService) CreateLoyaltyBranch(ctx context.Context, scope access.Scope, actorID uint, in LoyaltyBranchInput) (*models.LoyaltyBranch, error) {
	fields := logrus.Fields{"actor_id": actorID, "branch_id": in.BranchID}
	mult := in.PointsMultiplier
	if mult == 0 {
		mult = 1
	}
	if mult < 0 || in.MinPurchaseForPoints < 0 {
		return nil, finish("loyalty_branch_create", fields, Malformedf("Multiplier and minimum purchase cannot be negative"))
	}

	var lb models.LoyaltyBranch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var branch models.Branch
		if err := access.FindScoped(tx, access.EntityBranch, scope, &branch, in.BranchID); err != nil {
			return notFoundOr(err, "Branch not found")
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = branch.Name
		}
		lb = models.LoyaltyBranch{
			BranchID:             branch.ID,
			OrganizationID:       branch.OrganizationID,
			Name:                 name,
			PointsMultiplier:     mult,
			MinPurchaseForPoints: round2(in.MinPurchaseForPoints),
			Status:               models.LoyaltyActive,
			IsPrimary:            in.IsPrimary,
			CreatedBy:            ptrUint(actorID),
		}
		if err := tx.Create(&lb).Error; err != nil {
			return dbErr(err, "Loyalty program already exists for this branch", "create loyalty branch")
		}
		return s.sink.Activity(tx, actorID, "CREATE", "loyalty_branch", lb.ID, nil)
	})
	if err != nil {
		return nil, finish("loyalty_branch_create", fields, err)
	}
	return &lb, finish("loyalty_branch_create", fields, nil)
}

// Enroll opens a points account for a user in a loyalty branch.
func (s *LoyaltyService) Enroll(ctx context.Context, scope access.Scope, actorID, loyaltyBranchID, userID uint) (*models.LoyaltyPoint, error) {
	fields := logrus.Fields{"actor_id": actorID, "loyalty_branch_id": loyaltyBranchID, "user_id": userID}
	var lp models.LoyaltyPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lb models.LoyaltyBranch
		if err := access.FindScoped(tx, access.EntityLoyaltyBranch, scope, &lb, loyaltyBranchID); err != nil {
			return notFoundOr(err, "Loyalty branch not found")
		}
		visible, err := access.Visible(tx, access.EntityUser, scope, userID)
		if err != nil {
			return errors.Wrap(err, "check user")
		}
		if !visible {
			return NotFoundf("User not found")
		}
		var n int64
		if err := tx.Model(&models.LoyaltyPoint{}).Where("loyalty_branch_id = ? AND user_id = ?", lb.ID, userID).Count(&n).Error; err != nil {
			return errors.Wrap(err, "check enrollment")
		}
		if n > 0 {
			return Conflictf("User is already enrolled")
		}
		lp = models.LoyaltyPoint{LoyaltyBranchID: lb.ID, UserID: userID}
		if err := tx.Create(&lp).Error; err != nil {
			return dbErr(err, "User is already enrolled", "create loyalty points")
		}
		return s.sink.Activity(tx, actorID, "ENROLL", "loyalty_point", lp.ID, map[string]interface{}{"user_id": userID})
	})
	if err != nil {
		return nil, finish("loyalty_enroll", fields, err)
	}
	return &lp, finish("loyalty_enroll", fields, nil)
}

// AddPoints credits an account of an active loyalty branch.
func (s *LoyaltyService) AddPoints(ctx context.Context, scope access.Scope, actorID, pointID uint, points float64) (*models.LoyaltyPoint, error) {
	fields := logrus.Fields{"actor_id": actorID, "loyalty_point_id": pointID, "points": points}
	if points <= 0 {
		return nil, finish("loyalty_add_points", fields, Malformedf("Points must be greater than 0"))
	}
	var lp models.LoyaltyPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityLoyaltyPoint, scope, &lp, pointID); err != nil {
			return notFoundOr(err, "Loyalty points not found")
		}
		var lb models.LoyaltyBranch
		if err := tx.First(&lb, lp.LoyaltyBranchID).Error; err != nil {
			return notFoundOr(err, "Loyalty branch not found")
		}
		if lb.Status != models.LoyaltyActive {
			return InvalidStatef("Loyalty program is not active")
		}
		lp.PointsEarned = round2(lp.PointsEarned + points)
		lp.TotalPoints = round2(lp.TotalPoints + points)
		if err := tx.Model(&lp).Updates(map[string]interface{}{
			"points_earned": lp.PointsEarned,
			"total_points":  lp.TotalPoints,
		}).Error; err != nil {
			return errors.Wrap(err, "add points")
		}
		return s.sink.Activity(tx, actorID, "ADD_POINTS", "loyalty_point", lp.ID,
			map[string]interface{}{"points": points, "total_points": lp.TotalPoints})
	})
	if err != nil {
		return nil, finish("loyalty_add_points", fields, err)
	}
	return &lp, finish("loyalty_add_points", fields, nil)
}

// RedeemPoints debits an account. The balance never goes below zero.
func (s *LoyaltyService) RedeemPoints(ctx context.Context, scope access.Scope, actorID, pointID uint, points float64) (*models.LoyaltyPoint, error) {
	fields := logrus.Fields{"actor_id": actorID, "loyalty_point_id": pointID, "points": points}
	if points <= 0 {
		return nil, finish("loyalty_redeem_points", fields, Malformedf("Points must be greater than 0"))
	}
	var lp models.LoyaltyPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityLoyaltyPoint, scope, &lp, pointID); err != nil {
			return notFoundOr(err, "Loyalty points not found")
		}
		if lp.TotalPoints < points {
			return InvalidStatef("Insufficient points. Available: %s", utils.FormatAmount(lp.TotalPoints))
		}
		lp.PointsRedeemed = round2(lp.PointsRedeemed + points)
		lp.TotalPoints = round2(lp.TotalPoints - points)
		if err := tx.Model(&lp).Updates(map[string]interface{}{
			"points_redeemed": lp.PointsRedeemed,
			"total_points":    lp.TotalPoints,
		}).Error; err != nil {
			return errors.Wrap(err, "redeem points")
		}
		return s.sink.Activity(tx, actorID, "REDEEM_POINTS", "loyalty_point", lp.ID,
			map[string]interface{}{"points": points, "total_points": lp.TotalPoints})
	})
	if err != nil {
		return nil, finish("loyalty_redeem_points", fields, err)
	}
	return &lp, finish("loyalty_redeem_points", fields, nil)
}

// ToggleStatus flips active and inactive. A suspended program becomes active.
func (s *LoyaltyService) ToggleStatus(ctx context.Context, scope access.Scope, actorID, loyaltyBranchID uint) (*models.LoyaltyBranch, error) {
	fields := logrus.Fields{"actor_id": actorID, "loyalty_branch_id": loyaltyBranchID}
	var lb models.LoyaltyBranch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockScoped(tx, access.EntityLoyaltyBranch, scope, &lb, loyaltyBranchID); err != nil {
			return notFoundOr(err, "Loyalty branch not found")
		}
		old := lb.Status
		next := models.LoyaltyActive
		if lb.Status == models.LoyaltyActive {
			next = models.LoyaltyInactive
		}
		if err := tx.Model(&lb).Update("status", next).Error; err != nil {
			return errors.Wrap(err, "toggle loyalty status")
		}
		lb.Status = next
		return s.sink.Activity(tx, actorID, "TOGGLE", "loyalty_branch", lb.ID,
			map[string]interface{}{"old_status": old, "new_status": next})
	})
	if err != nil {
		return nil, finish("loyalty_toggle_status", fields, err)
	}
	fields["status"] = lb.Status
	return &lb, finish("loyalty_toggle_status", fields, nil)
}

type LoyaltyStatistics struct {
	TotalMembers           int64   `json:"total_members"`
	PointsInCirculation    float64 `json:"points_in_circulation"`
	TotalPointsEarned      float64 `json:"total_points_earned"`
	TotalPointsRedeemed    float64 `json:"total_points_redeemed"`
	AveragePointsPerMember float64 `json:"average_points_per_member"`
}

func (s *LoyaltyService) Statistics(ctx context.Context, scope access.Scope, loyaltyBranchID uint) (*LoyaltyStatistics, error) {
	db := s.db.WithContext(ctx)
	var lb models.LoyaltyBranch
	if err := access.FindScoped(db, access.EntityLoyaltyBranch, scope, &lb, loyaltyBranchID); err != nil {
		return nil, notFoundOr(err, "Loyalty branch not found")
	}

	var row struct {
		Members  int64
		Total    float64
		Earned   float64
		Redeemed float64
	}
	err := db.Model(&models.LoyaltyPoint{}).
		Select("COUNT(*) AS members, COALESCE(SUM(total_points), 0) AS total, COALESCE(SUM(points_earned), 0) AS earned, COALESCE(SUM(points_redeemed), 0) AS redeemed").
		Where("loyalty_branch_id = ?", lb.ID).
		Scan(&row).Error
	if err != nil {
		return nil, errors.Wrap(err, "loyalty statistics")
	}

	stats := &LoyaltyStatistics{
		TotalMembers:        row.Members,
		PointsInCirculation: round2(row.Total),
		TotalPointsEarned:   round2(row.Earned),
		TotalPointsRedeemed: round2(row.Redeemed),
	}
	if row.Members > 0 {
		stats.AveragePointsPerMember = round2(row.Total / float64(row.Members))
	}
	return stats, nil
}
