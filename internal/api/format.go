package api

import "facility-report-pipeline/internal/models"

// ReportView is the response shape for a report, identical whether the
// record came from the primary store or the search index. The group
// back-reference is visible to privileged callers only.
type ReportView struct {
	ReportID    string   `json:"reportId"`
	UserID      string   `json:"userId"`
	Title       string   `json:"title"`
	Building    string   `json:"building"`
	Description string   `json:"description"`
	CreatedDate string   `json:"createdDate"`
	Status      string   `json:"status"`
	Keywords    []string `json:"keywords,omitempty"`
	PhotoLabels []string `json:"photoLabels,omitempty"`
	Photos      []string `json:"photos,omitempty"`
	GroupID     string   `json:"groupId,omitempty"`
}

// GroupView is the response shape for a group.
type GroupView struct {
	GroupID     string `json:"groupId"`
	Title       string `json:"title"`
	Building    string `json:"building"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// FormatStoredReport shapes a primary-store report for a response.
func FormatStoredReport(report *models.Report, isAdmin bool) ReportView {
	view := ReportView{
		ReportID:    report.ReportID,
		UserID:      report.UserID,
		Title:       report.Title,
		Building:    report.Building,
		Description: report.Description,
		CreatedDate: report.CreatedDate,
		Status:      string(report.Status),
		Keywords:    report.Keywords.Values(),
		PhotoLabels: report.PhotoLabels.Values(),
	}
	if isAdmin {
		view.GroupID = report.GroupID
	}
	return view
}

// FormatIndexedReport shapes an index document for a response. The joined
// token fields are split back into sets here, so both read paths return the
// same shape.
func FormatIndexedReport(doc models.ReportDocument, isAdmin bool) ReportView {
	view := ReportView{
		ReportID:    doc.ReportID,
		UserID:      doc.UserID,
		Title:       doc.Title,
		Building:    doc.Building,
		Description: doc.Description,
		CreatedDate: doc.CreatedDate,
		Status:      doc.Status,
		Keywords:    models.SplitTokens(doc.Keywords).Values(),
		PhotoLabels: models.SplitTokens(doc.PhotoLabels).Values(),
	}
	if isAdmin {
		view.GroupID = doc.GroupID
	}
	return view
}

// FormatStoredGroup shapes a primary-store group for a response.
func FormatStoredGroup(group *models.Group) GroupView {
	return GroupView{
		GroupID:     group.GroupID,
		Title:       group.Title,
		Building:    group.Building,
		Description: group.Description,
		Status:      string(group.Status),
	}
}

// FormatIndexedGroup shapes a group index document for a response.
func FormatIndexedGroup(doc models.GroupDocument) GroupView {
	return GroupView{
		GroupID:     doc.GroupID,
		Title:       doc.Title,
		Building:    doc.Building,
		Description: doc.Description,
		Status:      doc.Status,
	}
}
