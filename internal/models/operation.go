package models

import (
	"encoding/json"
	"fmt"
)

// OperationKind tags a queued command message. The set is closed; the
// processor dispatches over it exhaustively.
type OperationKind string

// Supported operations.
const (
	OpCreateReport  OperationKind = "CREATE_REPORT"
	OpDeleteReport  OperationKind = "DELETE_REPORT"
	OpUpdateReport  OperationKind = "UPDATE_REPORT"
	OpGroupReport   OperationKind = "GROUP_REPORT"
	OpUngroupReport OperationKind = "UNGROUP_REPORT"
	OpCreateGroup   OperationKind = "CREATE_GROUP"
	OpDeleteGroup   OperationKind = "DELETE_GROUP"
	OpUpdateGroup   OperationKind = "UPDATE_GROUP"
)

// IsValid checks if the OperationKind is recognized.
func (k OperationKind) IsValid() bool {
	switch k {
	case OpCreateReport, OpDeleteReport, OpUpdateReport, OpGroupReport,
		OpUngroupReport, OpCreateGroup, OpDeleteGroup, OpUpdateGroup:
		return true
	}
	return false
}

// ReportOperand carries the report fields an operation needs. Only ReportID
// is always present; the rest depend on the operation kind.
type ReportOperand struct {
	ReportID    string   `json:"reportID"`
	UserID      string   `json:"userID,omitempty"`
	Title       string   `json:"title,omitempty"`
	Building    string   `json:"building,omitempty"`
	Description string   `json:"description,omitempty"`
	CreatedDate string   `json:"createdDate,omitempty"`
	ImageKeys   []string `json:"imageKeys,omitempty"`
	GroupID     string   `json:"groupID,omitempty"`
	Status      Status   `json:"status,omitempty"`
}

// GroupOperand carries the group fields an operation needs. Reports lists
// member report IDs for CREATE_GROUP so the processor can fan the initial
// membership out.
type GroupOperand struct {
	GroupID     string   `json:"groupID"`
	Title       string   `json:"title,omitempty"`
	Building    string   `json:"building,omitempty"`
	Description string   `json:"description,omitempty"`
	Status      Status   `json:"status,omitempty"`
	Reports     []string `json:"reports,omitempty"`
}

// OperationMessage is the tagged union carried on the command topics:
// {"operation": kind, "report"|"reports"|"group": payload}. Messages are
// immutable once enqueued; delivery is at-least-once and unordered across
// messages.
type OperationMessage struct {
	Operation OperationKind   `json:"operation"`
	Report    *ReportOperand  `json:"report,omitempty"`
	Reports   []ReportOperand `json:"reports,omitempty"`
	Group     *GroupOperand   `json:"group,omitempty"`
}

// Validate ensures the message names a known operation and carries a payload.
func (m *OperationMessage) Validate() error {
	if !m.Operation.IsValid() {
		return fmt.Errorf("unknown operation %q", m.Operation)
	}
	if m.Report == nil && len(m.Reports) == 0 && m.Group == nil {
		return fmt.Errorf("operation %s carries no payload", m.Operation)
	}
	return nil
}

// ReportOperands flattens the single-report and batch forms into one slice.
// Ordering within the slice is the enqueuer's ordering.
func (m *OperationMessage) ReportOperands() []ReportOperand {
	if m.Report != nil {
		return append([]ReportOperand{*m.Report}, m.Reports...)
	}
	return m.Reports
}

// ToJSON serializes the message for the command topic.
func (m *OperationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ParseOperationMessage decodes a command-topic payload.
func ParseOperationMessage(data []byte) (*OperationMessage, error) {
	var m OperationMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode operation message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// KeywordCommand asks the keyword worker to enrich one report from its
// description text.
type KeywordCommand struct {
	ReportID    string `json:"reportID"`
	Description string `json:"description"`
}
