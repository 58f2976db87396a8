package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/search"
	"facility-report-pipeline/internal/store"
)

type postGroupRequest struct {
	Title       string   `json:"title"`
	Building    string   `json:"building"`
	Description string   `json:"description"`
	Reports     []string `json:"reports"`
}

// Group patches carry status only; title, building and description are
// fixed at creation.
type patchGroupRequest struct {
	Status string `json:"status"`
}

// memberReports resolves a group's member report IDs. A group record stores
// its own ID in the groupID field, so a raw membership scan can surface the
// group itself; only report keys may flow into member fan-outs, and anything
// else is dropped here.
func (s *Server) memberReports(r *http.Request, groupID string) ([]string, error) {
	ids, err := s.store.MembersOf(r.Context(), groupID)
	if err != nil {
		return nil, err
	}
	members := make([]string, 0, len(ids))
	for _, id := range ids {
		if models.IsReportID(id) {
			members = append(members, id)
		}
	}
	return members, nil
}

// requireAdmin gates group management, which is a privileged surface.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (AuthContext, bool) {
	auth, ok := AuthFromRequest(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing identity")
		return AuthContext{}, false
	}
	if !auth.IsAdmin {
		s.writeError(w, http.StatusForbidden, "insufficient privileges")
		return AuthContext{}, false
	}
	return auth, true
}

// handlePostGroup assigns the group its identity and enqueues the create,
// including the initial membership fan-out.
func (s *Server) handlePostGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req postGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Title == "" || req.Building == "" {
		s.writeError(w, http.StatusBadRequest, "title and building are required")
		return
	}
	for _, id := range req.Reports {
		if !models.IsReportID(id) {
			s.writeError(w, http.StatusBadRequest, "reports must list report IDs")
			return
		}
	}

	groupID := models.GroupIDPrefix + uuid.NewString()
	msg := models.OperationMessage{
		Operation: models.OpCreateGroup,
		Group: &models.GroupOperand{
			GroupID:     groupID,
			Title:       req.Title,
			Building:    req.Building,
			Description: req.Description,
			Reports:     req.Reports,
		},
	}
	if err := s.commands.PublishGroupOps(r.Context(), msg); err != nil {
		s.internalError(w, r, err, "failed to enqueue group")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"groupId": groupID})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]

	group, err := s.store.GetGroup(r.Context(), groupID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err, "failed to load group")
		return
	}

	members, err := s.memberReports(r, groupID)
	if err != nil {
		s.internalError(w, r, err, "failed to list group members")
		return
	}

	reports := make([]ReportView, 0, len(members))
	for _, id := range members {
		report, err := s.store.GetReport(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			// membership index can briefly outlive the record
			continue
		}
		if err != nil {
			s.internalError(w, r, err, "failed to load group member")
			return
		}
		reports = append(reports, FormatStoredReport(report, true))
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"group":   FormatStoredGroup(group),
		"reports": reports,
	})
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	params := r.URL.Query()
	docs, err := s.index.SearchGroups(r.Context(), search.GroupQuery{
		Building: params.Get("building"),
		Status:   params.Get("status"),
		Query:    params.Get("q"),
		From:     intParam(params.Get("from")),
		Size:     intParam(params.Get("size")),
	})
	if err != nil {
		s.internalError(w, r, err, "search failed")
		return
	}

	views := make([]GroupView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, FormatIndexedGroup(doc))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"groups": views})
}

// handlePutGroupReports enqueues membership for a batch of reports. The
// group must exist before members can point at it.
func (s *Server) handlePutGroupReports(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]

	var req struct {
		Reports []string `json:"reports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Reports) == 0 {
		s.writeError(w, http.StatusBadRequest, "reports must not be empty")
		return
	}

	if _, err := s.store.GetGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "group not found")
			return
		}
		s.internalError(w, r, err, "failed to load group")
		return
	}

	operands := make([]models.ReportOperand, 0, len(req.Reports))
	for _, id := range req.Reports {
		operands = append(operands, models.ReportOperand{ReportID: id, GroupID: groupID})
	}
	msg := models.OperationMessage{
		Operation: models.OpGroupReport,
		Reports:   operands,
	}
	if err := s.commands.PublishReportOps(r.Context(), msg); err != nil {
		s.internalError(w, r, err, "failed to enqueue membership")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"groupId": groupID,
		"reports": req.Reports,
	})
}

// handlePatchGroup updates the group record and fans the change out to its
// members so their inherited status follows. A patch against a vanished
// group repairs any members still pointing at it.
func (s *Server) handlePatchGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]

	var req patchGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	status := models.Status(req.Status)
	if req.Status != "" && !status.IsValid() {
		s.writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	group, err := s.store.GetGroup(r.Context(), groupID)
	if errors.Is(err, store.ErrNotFound) {
		s.ungroupStaleMembers(r, groupID)
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err, "failed to load group")
		return
	}
	if status == "" {
		status = group.Status
	}

	msg := models.OperationMessage{
		Operation: models.OpUpdateGroup,
		Group: &models.GroupOperand{
			GroupID: groupID,
			Status:  status,
		},
	}
	if err := s.commands.PublishGroupOps(r.Context(), msg); err != nil {
		s.internalError(w, r, err, "failed to enqueue group update")
		return
	}

	members, err := s.memberReports(r, groupID)
	if err != nil {
		s.internalError(w, r, err, "failed to list group members")
		return
	}
	if len(members) > 0 {
		operands := make([]models.ReportOperand, 0, len(members))
		for _, id := range members {
			operands = append(operands, models.ReportOperand{ReportID: id, Status: status})
		}
		fanout := models.OperationMessage{
			Operation: models.OpUpdateReport,
			Reports:   operands,
		}
		if err := s.commands.PublishReportOps(r.Context(), fanout); err != nil {
			s.internalError(w, r, err, "failed to enqueue member updates")
			return
		}
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"groupId": groupID,
		"reports": members,
	})
}

// handleDeleteGroup enqueues the group's removal. Members are either
// deleted with it (cascade=true) or released back to ungrouped.
func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]
	cascade := r.URL.Query().Get("cascade") == "true"

	if _, err := s.store.GetGroup(r.Context(), groupID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.ungroupStaleMembers(r, groupID)
			s.writeError(w, http.StatusNotFound, "group not found")
			return
		}
		s.internalError(w, r, err, "failed to load group")
		return
	}

	members, err := s.memberReports(r, groupID)
	if err != nil {
		s.internalError(w, r, err, "failed to list group members")
		return
	}

	if len(members) > 0 {
		kind := models.OpUngroupReport
		if cascade {
			kind = models.OpDeleteReport
		}
		operands := make([]models.ReportOperand, 0, len(members))
		for _, id := range members {
			operands = append(operands, models.ReportOperand{ReportID: id})
		}
		fanout := models.OperationMessage{Operation: kind, Reports: operands}
		if err := s.commands.PublishReportOps(r.Context(), fanout); err != nil {
			s.internalError(w, r, err, "failed to enqueue member fan-out")
			return
		}
	}

	msg := models.OperationMessage{
		Operation: models.OpDeleteGroup,
		Group:     &models.GroupOperand{GroupID: groupID},
	}
	if err := s.commands.PublishGroupOps(r.Context(), msg); err != nil {
		s.internalError(w, r, err, "failed to enqueue group removal")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"groupId": groupID,
		"reports": members,
		"cascade": cascade,
	})
}

// handleGroupSuggestions proposes ungrouped reports that resemble the
// group's title.
func (s *Server) handleGroupSuggestions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	groupID := mux.Vars(r)["groupId"]

	group, err := s.store.GetGroup(r.Context(), groupID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "group not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err, "failed to load group")
		return
	}

	docs, err := s.index.SuggestReports(r.Context(), group.Title, intParam(r.URL.Query().Get("size")))
	if err != nil {
		s.internalError(w, r, err, "search failed")
		return
	}

	views := make([]ReportView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, FormatIndexedReport(doc, true))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"suggestions": views})
}

// ungroupStaleMembers releases reports still pointing at a group record
// that no longer exists.
func (s *Server) ungroupStaleMembers(r *http.Request, groupID string) {
	members, err := s.memberReports(r, groupID)
	if err != nil {
		s.logger.WithError(err).WithField("groupID", groupID).Warn("failed to list stale members")
		return
	}
	if len(members) == 0 {
		return
	}
	operands := make([]models.ReportOperand, 0, len(members))
	for _, id := range members {
		operands = append(operands, models.ReportOperand{ReportID: id})
	}
	msg := models.OperationMessage{Operation: models.OpUngroupReport, Reports: operands}
	if err := s.commands.PublishReportOps(r.Context(), msg); err != nil {
		s.logger.WithError(err).WithField("groupID", groupID).Warn("failed to enqueue stale-member repair")
	}
}
