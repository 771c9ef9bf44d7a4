package model

import "time"

// Approval states of a trip report.  A report is created pending and
// moves to approved or rejected by an approver decision.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ValidStatus reports whether s is one of the three approval states.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// TripReport is the central record of the application.  Company,
// customer and staff codes reference the external master data system
// and are not validated against it on write.
//
// Fields:
//  ID             – primary key identifier.
//  CompanyCd      – external company code.
//  CustomerCd     – external customer code.
//  StaffCd        – external staff code (customer contact).
//  EquipmentID    – equipment the trip concerned.
//  TripStartDate  – first day of the trip.
//  TripEndDate    – last day of the trip (never before TripStartDate).
//  Title          – short title.
//  Submitter      – free-text submitter name.
//  Companions     – optional free-text companions.
//  Content        – report body.
//  ApprovalStatus – pending, approved or rejected.
//  ApprovedBy     – approver user id; set together with ApprovedAt.
//  ApprovedAt     – decision timestamp.
//  Version        – row version, incremented by every edit or decision.
type TripReport struct {
	ID             uint64       `json:"id"`
	CompanyCd      string       `json:"company_cd"`
	CustomerCd     string       `json:"customer_cd"`
	StaffCd        string       `json:"staff_cd"`
	EquipmentID    uint64       `json:"equipment_id"`
	TripStartDate  time.Time    `json:"trip_start_date"`
	TripEndDate    time.Time    `json:"trip_end_date"`
	Title          string       `json:"title"`
	Submitter      string       `json:"submitter"`
	Companions     *string      `json:"companions"`
	Content        string       `json:"content"`
	ApprovalStatus string       `json:"approval_status"`
	ApprovedBy     *uint64      `json:"approved_by"`
	ApprovedAt     *time.Time   `json:"approved_at"`
	Version        int64        `json:"version"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Equipment      *Equipment   `json:"equipment,omitempty"`
	Approver       *UserSummary `json:"approver,omitempty"`
	Threads        []Thread     `json:"threads,omitempty"`
}

// ReadStatus records whether, and when, a user marked a report read.
// There is at most one row per (user, report) pair; a missing row
// means unread.
type ReadStatus struct {
	ID           uint64     `json:"id"`
	UserID       uint64     `json:"user_id"`
	TripReportID uint64     `json:"trip_report_id"`
	IsRead       bool       `json:"is_read"`
	ReadAt       *time.Time `json:"read_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Equipment is a machine installed at a customer site.  CompanyCd may be
// nil when the equipment is not linked to any external company.
type Equipment struct {
	ID           uint64    `json:"id"`
	CompanyCd    *string   `json:"company_cd"`
	Name         string    `json:"name"`
	TotalCounter *int64    `json:"total_counter"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
