package models

import "time"

// IssueReport is a citizen report about an environmental problem.
type IssueReport struct {
	Location    string `json:"location" validate:"required,max=200"`
	IssueType   string `json:"issue_type" validate:"required,oneof=overflowing_bin illegal_dumping hazardous_spill missed_collection other"`
	Description string `json:"description" validate:"max=2000"`
}

// ReportReceipt acknowledges a submitted report.
type ReportReceipt struct {
	ID           string        `json:"id"`
	SubmittedAt  time.Time     `json:"submitted_at"`
	DismissAfter time.Duration `json:"dismiss_after"`
}
