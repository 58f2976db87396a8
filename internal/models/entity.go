package models

import (
	"fmt"
	"strings"
)

// Entity ID discriminator prefixes. Reports and groups share one store, so
// the prefix is the only type marker on a record key.
const (
	ReportIDPrefix = "RPT-"
	GroupIDPrefix  = "GRP-"
)

// IsReportID reports whether id names a report record.
func IsReportID(id string) bool { return strings.HasPrefix(id, ReportIDPrefix) }

// IsGroupID reports whether id names a group record.
func IsGroupID(id string) bool { return strings.HasPrefix(id, GroupIDPrefix) }

// Status is the workflow state of a report or group.
type Status string

// Workflow states. CREATED is used only as the initial group status.
const (
	StatusCreated    Status = "CREATED"
	StatusSubmitted  Status = "SUBMITTED"
	StatusProcessing Status = "PROCESSING"
	StatusResolved   Status = "RESOLVED"
)

// IsValid checks if the Status is recognized.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusSubmitted, StatusProcessing, StatusResolved:
		return true
	}
	return false
}

// Report is the primary-store record for a maintenance report.
// Keywords and PhotoLabels are filled in asynchronously by the enrichment
// workers; GroupID is absent until the report is grouped.
type Report struct {
	ReportID    string    `json:"reportID"`
	UserID      string    `json:"userID"`
	Title       string    `json:"title"`
	Building    string    `json:"building"`
	Description string    `json:"description"`
	CreatedDate string    `json:"createdDate"`
	ImageKeys   []string  `json:"imageKeys,omitempty"`
	Keywords    StringSet `json:"keywords,omitempty"`
	PhotoLabels StringSet `json:"photoLabels,omitempty"`
	GroupID     string    `json:"groupID,omitempty"`
	Status      Status    `json:"status"`
}

// Validate ensures that required fields are present on a Report.
func (r *Report) Validate() error {
	if !IsReportID(r.ReportID) {
		return fmt.Errorf("report ID must start with %s, got %q", ReportIDPrefix, r.ReportID)
	}
	if r.UserID == "" {
		return fmt.Errorf("report user ID is required")
	}
	if r.Title == "" {
		return fmt.Errorf("report title is required")
	}
	return nil
}

// Group is the primary-store record for a report group. Its status is the
// authoritative status member reports are driven toward.
type Group struct {
	GroupID     string `json:"groupID"`
	Title       string `json:"title"`
	Building    string `json:"building"`
	Description string `json:"description"`
	Status      Status `json:"status"`
}

// Validate ensures that required fields are present on a Group.
func (g *Group) Validate() error {
	if !IsGroupID(g.GroupID) {
		return fmt.Errorf("group ID must start with %s, got %q", GroupIDPrefix, g.GroupID)
	}
	if g.Title == "" {
		return fmt.Errorf("group title is required")
	}
	return nil
}
