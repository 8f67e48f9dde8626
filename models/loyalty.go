package models

type LoyaltyStatus string

const (
	LoyaltyActive    LoyaltyStatus = "active"
	LoyaltyInactive  LoyaltyStatus = "inactive"
	LoyaltySuspended LoyaltyStatus = "suspended"
)

// LoyaltyBranch enables the points program for one branch.
type LoyaltyBranch struct {
	BaseModel
	BranchID             uint          `json:"branch_id" gorm:"not null;uniqueIndex"`
	OrganizationID       uint          `json:"organization_id" gorm:"not null;index"`
	Name                 string        `json:"name" gorm:"size:255"`
	PointsMultiplier     float64       `json:"points_multiplier" gorm:"default:1"`
	MinPurchaseForPoints float64       `json:"min_purchase_for_points" gorm:"type:decimal(12,2);default:0"`
	Status               LoyaltyStatus `json:"status" gorm:"size:20;not null;default:'active'"`
	IsPrimary            bool          `json:"is_primary" gorm:"default:false"`
	CreatedBy            *uint         `json:"created_by"`
}

// LoyaltyPoint balance; TotalPoints == PointsEarned - PointsRedeemed >= 0.
type LoyaltyPoint struct {
	BaseModel
	LoyaltyBranchID uint    `json:"loyalty_branch_id" gorm:"not null;uniqueIndex:idx_loyalty_branch_user"`
	UserID          uint    `json:"user_id" gorm:"not null;uniqueIndex:idx_loyalty_branch_user"`
	PointsEarned    float64 `json:"points_earned" gorm:"default:0"`
	PointsRedeemed  float64 `json:"points_redeemed" gorm:"default:0"`
	TotalPoints     float64 `json:"total_points" gorm:"default:0"`

	LoyaltyBranch LoyaltyBranch `json:"loyalty_branch,omitempty" gorm:"foreignKey:LoyaltyBranchID"`
}
