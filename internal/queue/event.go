// Package queue defines message payloads exchanged over the message broker
// together with the publisher and the audit consumer.
package queue

import "time"

// ReportDecidedEvent is published after every approve or reject.  It keeps
// the previous decision so an overwritten decision is still on record.
type ReportDecidedEvent struct {
	ReportID           uint64  `json:"report_id"`
	Title              string  `json:"title"`
	Status             string  `json:"status"`
	ApproverID         uint64  `json:"approver_id"`
	PreviousStatus     string  `json:"previous_status"`
	PreviousApproverID *uint64 `json:"previous_approver_id,omitempty"`
	Version            int64   `json:"version"`
	DecidedAt          string  `json:"decided_at"`
}

// NewReportDecidedEvent stamps DecidedAt in RFC 3339 UTC.
func NewReportDecidedEvent(reportID uint64, title, status string, approverID uint64, prevStatus string, prevApprover *uint64, version int64, at time.Time) ReportDecidedEvent {
	return ReportDecidedEvent{
		ReportID:           reportID,
		Title:              title,
		Status:             status,
		ApproverID:         approverID,
		PreviousStatus:     prevStatus,
		PreviousApproverID: prevApprover,
		Version:            version,
		DecidedAt:          at.UTC().Format(time.RFC3339),
	}
}

// Overwrote reports whether the decision replaced an earlier decision.
func (e ReportDecidedEvent) Overwrote() bool {
	return e.PreviousStatus != "" && e.PreviousStatus != "pending"
}
