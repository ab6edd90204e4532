package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/arnavshah/carelink-api-go/pkg/workflow"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin            Role = "ADMIN"
	RoleOperator         Role = "OPERATOR"
	RoleCaregiver        Role = "CAREGIVER"
	RoleFamily           Role = "FAMILY"
	RoleStaff            Role = "STAFF"
	RoleDischargePlanner Role = "DISCHARGE_PLANNER"
)

type UserStatus string

const (
	UserActive    UserStatus = "ACTIVE"
	UserSuspended UserStatus = "SUSPENDED"
	UserDeleted   UserStatus = "DELETED"
)

type HireStatus string

const (
	HireActive    HireStatus = "ACTIVE"
	HireCompleted HireStatus = "COMPLETED"
	HireCancelled HireStatus = "CANCELLED"
)

type NotificationType string

const (
	NotifyBooking NotificationType = "BOOKING"
	NotifyPayment NotificationType = "PAYMENT"
	NotifyInquiry NotificationType = "INQUIRY"
	NotifySystem  NotificationType = "SYSTEM"
)

type Urgency string

const (
	UrgencyLow    Urgency = "LOW"
	UrgencyMedium Urgency = "MEDIUM"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyUrgent Urgency = "URGENT"
)

// Urgencies lists the urgency levels from least to most severe.
var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent}

// UrgencyRankSQL is a SQL expression ranking the urgency column by severity.
func UrgencyRankSQL() string {
	var b strings.Builder
	b.WriteString("CASE urgency")
	for i, u := range Urgencies {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", u, i)
	}
	fmt.Fprintf(&b, " ELSE %d END", len(Urgencies))
	return b.String()
}

// Base carries the UUID key and timestamps every record shares.
type Base struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// User represents the users table
type User struct {
	Base
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Role         Role       `gorm:"index;not null" json:"role"`
	Status       UserStatus `gorm:"index;not null;default:ACTIVE" json:"status"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Operator struct {
	Base
	UserID      string `gorm:"uniqueIndex;not null" json:"userId"`
	CompanyName string `json:"companyName"`
	User        *User  `json:"user,omitempty"`
}

type Home struct {
	Base
	OperatorID string    `gorm:"index;not null" json:"operatorId"`
	Name       string    `gorm:"not null" json:"name"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Zip        string    `json:"zip"`
	Capacity   int       `json:"capacity"`
	Operator   *Operator `json:"operator,omitempty"`
}

type Caregiver struct {
	Base
	UserID          string  `gorm:"uniqueIndex;not null" json:"userId"`
	PayoutAccountID string  `json:"payoutAccountId,omitempty"`
	HourlyRate      float64 `json:"hourlyRate"`
	MaxWeeklyHours  float64 `json:"maxWeeklyHours"`
	RatingAverage   float64 `json:"ratingAverage"`
	User            *User   `json:"user,omitempty"`
}

type Shift struct {
	Base
	HomeID       string               `gorm:"index;not null" json:"homeId"`
	CaregiverID  *string              `gorm:"index" json:"caregiverId"`
	StartTime    time.Time            `gorm:"index;not null" json:"startTime"`
	EndTime      time.Time            `gorm:"not null" json:"endTime"`
	HourlyRate   float64              `gorm:"not null" json:"hourlyRate"`
	Notes        string               `json:"notes,omitempty"`
	Status       workflow.ShiftStatus `gorm:"index;not null" json:"status"`
	Home         *Home                `json:"home,omitempty"`
	Caregiver    *Caregiver           `json:"caregiver,omitempty"`
	Applications []ShiftApplication   `json:"applications,omitempty"`
}

type ShiftApplication struct {
	Base
	ShiftID     string                     `gorm:"uniqueIndex:idx_shift_caregiver;not null" json:"shiftId"`
	CaregiverID string                     `gorm:"uniqueIndex:idx_shift_caregiver;not null" json:"caregiverId"`
	Status      workflow.ApplicationStatus `gorm:"index;not null" json:"status"`
	Notes       string                     `json:"notes,omitempty"`
	OfferedAt   *time.Time                 `json:"offeredAt,omitempty"`
	AcceptedAt  *time.Time                 `json:"acceptedAt,omitempty"`
	RejectedAt  *time.Time                 `json:"rejectedAt,omitempty"`
	WithdrawnAt *time.Time                 `json:"withdrawnAt,omitempty"`
	Caregiver   *Caregiver                 `json:"caregiver,omitempty"`
}

// Hire is created when a shift is confirmed and anchors its payment.
type Hire struct {
	Base
	ShiftID     string     `gorm:"uniqueIndex;not null" json:"shiftId"`
	CaregiverID string     `gorm:"index;not null" json:"caregiverId"`
	OperatorID  string     `gorm:"index;not null" json:"operatorId"`
	Status      HireStatus `gorm:"not null" json:"status"`
}

type Timesheet struct {
	Base
	ShiftID      string                   `gorm:"uniqueIndex;not null" json:"shiftId"`
	CaregiverID  string                   `gorm:"index;not null" json:"caregiverId"`
	StartTime    time.Time                `gorm:"not null" json:"startTime"`
	EndTime      *time.Time               `json:"endTime"`
	BreakMinutes int                      `json:"breakMinutes"`
	Notes        string                   `json:"notes,omitempty"`
	Status       workflow.TimesheetStatus `gorm:"index;not null" json:"status"`
	ApprovedBy   *string                  `json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time               `json:"approvedAt,omitempty"`
	Shift        *Shift                   `json:"shift,omitempty"`
}

type Payment struct {
	Base
	HireID      string                 `gorm:"uniqueIndex;not null" json:"hireId"`
	PayerUserID string                 `gorm:"index" json:"payerUserId"`
	AmountCents int64                  `gorm:"not null" json:"amountCents"`
	Currency    string                 `gorm:"not null" json:"currency"`
	Status      workflow.PaymentStatus `gorm:"index;not null" json:"status"`
	TransferID  string                 `gorm:"index" json:"transferId,omitempty"`
	Attempts    int                    `gorm:"not null;default:0" json:"attempts"`
	Description string                 `json:"description,omitempty"`
}

type Notification struct {
	Base
	UserID  string           `gorm:"index;not null" json:"userId"`
	Type    NotificationType `gorm:"not null" json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Data    map[string]any   `gorm:"serializer:json" json:"data,omitempty"`
	ReadAt  *time.Time       `json:"readAt"`
}

type Inquiry struct {
	Base
	FamilyUserID      string                 `gorm:"index;not null" json:"familyUserId"`
	HomeID            string                 `gorm:"index;not null" json:"homeId"`
	ContactName       string                 `json:"contactName"`
	ContactEmail      string                 `json:"contactEmail"`
	ContactPhone      string                 `json:"contactPhone,omitempty"`
	CareRecipientName string                 `json:"careRecipientName,omitempty"`
	CareNeeds         string                 `json:"careNeeds,omitempty"`
	Message           string                 `json:"message,omitempty"`
	Urgency           Urgency                `gorm:"index;not null" json:"urgency"`
	Source            string                 `json:"source,omitempty"`
	Status            workflow.InquiryStatus `gorm:"index;not null" json:"status"`
	TourDate          *time.Time             `json:"tourDate,omitempty"`
	OperatorNotes     string                 `json:"operatorNotes,omitempty"`
	Home              *Home                  `json:"home,omitempty"`
}

// HomeDailyStat is one row of per-home daily activity
type HomeDailyStat struct {
	ID           uint    `gorm:"primaryKey" json:"id" csv:"-"`
	HomeID       string  `gorm:"uniqueIndex:idx_home_date;not null" json:"homeId" csv:"home_id"`
	Date         string  `gorm:"uniqueIndex:idx_home_date;not null" json:"date" csv:"date"`
	ShiftsPosted int     `gorm:"default:0" json:"shiftsPosted" csv:"shifts_posted"`
	ShiftsFilled int     `gorm:"default:0" json:"shiftsFilled" csv:"shifts_filled"`
	HoursFilled  float64 `gorm:"default:0" json:"hoursFilled" csv:"hours_filled"`
}

// All lists every model for migration.
func All() []any {
	return []any{
		&User{}, &Operator{}, &Home{}, &Caregiver{},
		&Shift{}, &ShiftApplication{}, &Hire{}, &Timesheet{}, &Payment{},
		&Notification{}, &Inquiry{}, &HomeDailyStat{},
	}
}
