package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/search"
	"facility-report-pipeline/internal/store"
)

// createdDateLayout matches the date format stored on report records.
const createdDateLayout = "01/02/2006"

type postReportRequest struct {
	Title       string   `json:"title"`
	Building    string   `json:"building"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
}

type postReportResponse struct {
	ReportID string            `json:"reportId"`
	Uploads  map[string]string `json:"uploads,omitempty"`
}

// handlePostReport assigns the report its identity, presigns one upload URL
// per image, and enqueues the create. The record does not exist until the
// processor applies the operation.
func (s *Server) handlePostReport(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromRequest(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	var req postReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Title == "" || req.Building == "" {
		s.writeError(w, http.StatusBadRequest, "title and building are required")
		return
	}

	reportID := models.ReportIDPrefix + uuid.NewString()
	imageKeys := s.photos.ObjectKeys(reportID, req.Images)

	uploads := make(map[string]string, len(imageKeys))
	for i, key := range imageKeys {
		url, err := s.photos.PresignedPut(r.Context(), key)
		if err != nil {
			s.internalError(w, r, err, "failed to presign upload")
			return
		}
		uploads[req.Images[i]] = url
	}

	msg := models.OperationMessage{
		Operation: models.OpCreateReport,
		Report: &models.ReportOperand{
			ReportID:    reportID,
			UserID:      auth.UserID,
			Title:       req.Title,
			Building:    req.Building,
			Description: req.Description,
			CreatedDate: time.Now().Format(createdDateLayout),
			ImageKeys:   imageKeys,
		},
	}
	if err := s.commands.PublishReportOps(r.Context(), msg); err != nil {
		s.internalError(w, r, err, "failed to enqueue report")
		return
	}

	s.writeJSON(w, http.StatusCreated, postReportResponse{
		ReportID: reportID,
		Uploads:  uploads,
	})
}

// handleGetReport serves a report from the primary store. Non-privileged
// callers see only their own reports; anything else is indistinguishable
// from a missing record.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromRequest(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	reportID := mux.Vars(r)["reportId"]

	report, err := s.store.GetReport(r.Context(), reportID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}
	if err != nil {
		s.internalError(w, r, err, "failed to load report")
		return
	}
	if !auth.IsAdmin && report.UserID != auth.UserID {
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}

	view := FormatStoredReport(report, auth.IsAdmin)
	for _, key := range report.ImageKeys {
		url, err := s.photos.PresignedGet(r.Context(), key)
		if err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to presign photo")
			continue
		}
		view.Photos = append(view.Photos, url)
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleListReports serves filtered and full-text report queries from the
// search index. Non-privileged callers are always pinned to their own
// userID; the userId and ungrouped parameters are honored for privileged
// callers only.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromRequest(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	params := r.URL.Query()
	q := search.ReportQuery{
		UserID:   auth.UserID,
		Building: params.Get("building"),
		Status:   params.Get("status"),
		Query:    params.Get("q"),
		From:     intParam(params.Get("from")),
		Size:     intParam(params.Get("size")),
	}
	if auth.IsAdmin {
		q.UserID = params.Get("userId")
		q.OnlyUngrouped = params.Get("ungrouped") == "true"
	}

	docs, err := s.index.SearchReports(r.Context(), q)
	if err != nil {
		s.internalError(w, r, err, "search failed")
		return
	}

	views := make([]ReportView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, FormatIndexedReport(doc, auth.IsAdmin))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": views})
}

// handleDeleteReport removes a report synchronously. Privileged callers may
// delete any report; everyone else only their own, where a mismatched owner
// reads as a conflict rather than a missing record.
func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	auth, ok := AuthFromRequest(r)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "missing identity")
		return
	}
	reportID := mux.Vars(r)["reportId"]

	var (
		removed *models.Report
		err     error
	)
	if auth.IsAdmin {
		removed, err = s.store.RemoveReport(r.Context(), reportID)
	} else {
		removed, err = s.store.RemoveOwnedReport(r.Context(), reportID, auth.UserID)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	case errors.Is(err, store.ErrConflict):
		s.writeError(w, http.StatusForbidden, "report belongs to another user")
		return
	case err != nil:
		s.internalError(w, r, err, "failed to delete report")
		return
	case removed == nil:
		s.writeError(w, http.StatusNotFound, "report not found")
		return
	}

	if len(removed.ImageKeys) > 0 {
		if err := s.photos.RemoveImages(r.Context(), removed.ImageKeys); err != nil {
			s.logger.WithError(err).WithField("reportID", reportID).Warn("failed to remove report images")
		}
	}
	if err := s.changes.PublishChange(r.Context(), models.NewRemoveEvent(reportID)); err != nil {
		s.logger.WithError(err).WithField("reportID", reportID).Error("failed to publish removal")
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"reportId": reportID})
}

func intParam(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
