package models

import "time"

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentApproved  PaymentStatus = "approved"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentRejected  PaymentStatus = "rejected"
)

type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodCard     PaymentMethod = "card"
	MethodTransfer PaymentMethod = "transfer"
	MethodBank     PaymentMethod = "bank"
	MethodWallet   PaymentMethod = "wallet"
	MethodOther    PaymentMethod = "other"
)

// StudentPayment: pending -> completed | failed. Completed payments feed
// Student.TotalPaid/TotalDebt.
type StudentPayment struct {
	BaseModel
	StudentID       uint          `json:"student_id" gorm:"not null;index"`
	BranchID        uint          `json:"branch_id" gorm:"not null;index"`
	Amount          float64       `json:"amount" gorm:"type:decimal(12,2);not null"`
	PaymentMethod   PaymentMethod `json:"payment_method" gorm:"size:20"`
	ReceiptNumber   string        `json:"receipt_number" gorm:"size:50;uniqueIndex"`
	Status          PaymentStatus `json:"status" gorm:"size:20;not null;default:'pending'"`
	ApprovedBy      *uint         `json:"approved_by"`
	PaidAt          *time.Time    `json:"paid_at"`
	RejectionReason string        `json:"rejection_reason" gorm:"type:text"`
	Notes           string        `json:"notes" gorm:"type:text"`

	Student Student `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

// TeacherPayment is unique per (teacher, branch, month):
// pending -> approved -> paid, or pending -> rejected.
type TeacherPayment struct {
	BaseModel
	TeacherID     uint          `json:"teacher_id" gorm:"not null;uniqueIndex:idx_teacher_branch_month"`
	BranchID      uint          `json:"branch_id" gorm:"not null;uniqueIndex:idx_teacher_branch_month"`
	Month         time.Time     `json:"month" gorm:"type:date;not null;uniqueIndex:idx_teacher_branch_month"`
	HourlyAmount  float64       `json:"hourly_amount" gorm:"type:decimal(12,2);default:0"`
	GroupAmount   float64       `json:"group_amount" gorm:"type:decimal(12,2);default:0"`
	Bonus         float64       `json:"bonus" gorm:"type:decimal(12,2);default:0"`
	Penalty       float64       `json:"penalty" gorm:"type:decimal(12,2);default:0"`
	TotalAmount   float64       `json:"total_amount" gorm:"type:decimal(12,2);default:0"`
	Status        PaymentStatus `json:"status" gorm:"size:20;not null;default:'pending'"`
	ApprovedBy    *uint         `json:"approved_by"`
	PaidDate      *time.Time    `json:"paid_date"`
	PaymentMethod PaymentMethod `json:"payment_method" gorm:"size:20;default:'bank'"`
	Notes         string        `json:"notes" gorm:"type:text"`

	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

// CalculateTotal sets TotalAmount from its components.
func (p *TeacherPayment) CalculateTotal() {
	p.TotalAmount = p.HourlyAmount + p.GroupAmount + p.Bonus - p.Penalty
}

// StaffPayment follows the TeacherPayment state machine without a wallet.
type StaffPayment struct {
	BaseModel
	StaffMemberID uint          `json:"staff_member_id" gorm:"not null;index"`
	BranchID      uint          `json:"branch_id" gorm:"not null;index"`
	Month         time.Time     `json:"month" gorm:"type:date;not null"`
	Position      string        `json:"position" gorm:"size:20"` // manager, admin, support, other
	Salary        float64       `json:"salary" gorm:"type:decimal(12,2);not null"`
	Bonus         float64       `json:"bonus" gorm:"type:decimal(12,2);default:0"`
	TotalAmount   float64       `json:"total_amount" gorm:"type:decimal(12,2);default:0"`
	Status        PaymentStatus `json:"status" gorm:"size:20;not null;default:'pending'"`
	ApprovedBy    *uint         `json:"approved_by"`
	PaidDate      *time.Time    `json:"paid_date"`
}

// Wallet is derived from the teacher's payments; see services.RecomputeWallet.
type Wallet struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	TeacherID    uint      `json:"teacher_id" gorm:"not null;uniqueIndex"`
	Balance      float64   `json:"balance" gorm:"type:decimal(12,2);default:0"`
	TotalEarned  float64   `json:"total_earned" gorm:"type:decimal(12,2);default:0"`
	TotalPaid    float64   `json:"total_paid" gorm:"type:decimal(12,2);default:0"`
	TotalPending float64   `json:"total_pending" gorm:"type:decimal(12,2);default:0"`
	UpdatedAt    time.Time `json:"updated_at"`

	Teacher Teacher `json:"teacher,omitempty" gorm:"foreignKey:TeacherID"`
}

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// DocumentApproval: pending -> approved | rejected.
type DocumentApproval struct {
	BaseModel
	BranchID        uint           `json:"branch_id" gorm:"not null;index"`
	DocumentType    string         `json:"document_type" gorm:"size:50;not null"`
	Title           string         `json:"title" gorm:"size:255"`
	FileURL         string         `json:"file_url" gorm:"size:500"`
	SubmittedBy     uint           `json:"submitted_by" gorm:"not null"`
	Status          ApprovalStatus `json:"status" gorm:"size:20;not null;default:'pending'"`
	ApprovedBy      *uint          `json:"approved_by"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	RejectionReason string         `json:"rejection_reason" gorm:"type:text"`
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PaymentDiscount records a reduction of a student's debt. Amount is what
// was actually taken off.
type PaymentDiscount struct {
	BaseModel
	StudentID    uint         `json:"student_id" gorm:"not null;index"`
	BranchID     uint         `json:"branch_id" gorm:"not null;index"`
	DiscountType DiscountType `json:"discount_type" gorm:"size:20;not null"`
	Value        float64      `json:"value" gorm:"type:decimal(12,2);not null"`
	Amount       float64      `json:"amount" gorm:"type:decimal(12,2);not null"`
	Reason       string       `json:"reason" gorm:"type:text"`
	AppliedBy    uint         `json:"applied_by" gorm:"not null"`
}

type ReportType string

const (
	ReportDaily   ReportType = "daily"
	ReportWeekly  ReportType = "weekly"
	ReportMonthly ReportType = "monthly"
)

// FinanceReport is unique per (branch, date, type); regenerating overwrites.
type FinanceReport struct {
	BaseModel
	BranchID             uint       `json:"branch_id" gorm:"not null;uniqueIndex:idx_branch_report"`
	ReportDate           time.Time  `json:"report_date" gorm:"type:date;not null;uniqueIndex:idx_branch_report"`
	ReportType           ReportType `json:"report_type" gorm:"size:20;not null;uniqueIndex:idx_branch_report"`
	TotalStudentPayments float64    `json:"total_student_payments" gorm:"type:decimal(12,2);default:0"`
	TeacherPayments      float64    `json:"teacher_payments" gorm:"type:decimal(12,2);default:0"`
	StaffPayments        float64    `json:"staff_payments" gorm:"type:decimal(12,2);default:0"`
	OtherExpenses        float64    `json:"other_expenses" gorm:"type:decimal(12,2);default:0"`
	Profit               float64    `json:"profit" gorm:"type:decimal(12,2);default:0"`
	GeneratedBy          *uint      `json:"generated_by"`
}
