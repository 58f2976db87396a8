package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"facility-report-pipeline/internal/metrics"
	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/search"
)

// EntityReader is the slice of the primary store the gateway needs.
type EntityReader interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	MembersOf(ctx context.Context, groupID string) ([]string, error)
	RemoveReport(ctx context.Context, id string) (*models.Report, error)
	RemoveOwnedReport(ctx context.Context, id, userID string) (*models.Report, error)
}

// SearchIndex is the read side served from the search cluster.
type SearchIndex interface {
	SearchReports(ctx context.Context, q search.ReportQuery) ([]models.ReportDocument, error)
	SearchGroups(ctx context.Context, q search.GroupQuery) ([]models.GroupDocument, error)
	SuggestReports(ctx context.Context, title string, size int) ([]models.ReportDocument, error)
}

// CommandPublisher enqueues lifecycle operations for the processor.
type CommandPublisher interface {
	PublishReportOps(ctx context.Context, msg models.OperationMessage) error
	PublishGroupOps(ctx context.Context, msg models.OperationMessage) error
}

// ChangePublisher emits change events for writes the gateway performs
// synchronously instead of through the processor.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev models.ChangeEvent) error
}

// PhotoStorage covers presigning and cleanup of report images.
type PhotoStorage interface {
	ObjectKeys(reportID string, imageNames []string) []string
	PresignedGet(ctx context.Context, key string) (string, error)
	PresignedPut(ctx context.Context, key string) (string, error)
	RemoveImages(ctx context.Context, keys []string) error
}

// Server is the HTTP façade over the pipeline. Reads by ID hit the primary
// store, list/search reads hit the index, and writes are enqueued as
// operations except for report deletion, which is synchronous.
type Server struct {
	store    EntityReader
	index    SearchIndex
	commands CommandPublisher
	changes  ChangePublisher
	photos   PhotoStorage
	auth     AuthConfig
	logger   *logrus.Logger
}

// NewServer wires the façade's collaborators.
func NewServer(store EntityReader, index SearchIndex, commands CommandPublisher, changes ChangePublisher, photos PhotoStorage, auth AuthConfig, logger *logrus.Logger) *Server {
	return &Server{
		store:    store,
		index:    index,
		commands: commands,
		changes:  changes,
		photos:   photos,
		auth:     auth,
		logger:   logger,
	}
}

// Router builds the authenticated route table.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/reports", s.handlePostReport).Methods(http.MethodPost)
	r.HandleFunc("/reports", s.handleListReports).Methods(http.MethodGet)
	r.HandleFunc("/reports/{reportId}", s.handleGetReport).Methods(http.MethodGet)
	r.HandleFunc("/reports/{reportId}", s.handleDeleteReport).Methods(http.MethodDelete)

	r.HandleFunc("/groups", s.handlePostGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	r.HandleFunc("/groups/{groupId}", s.handleGetGroup).Methods(http.MethodGet)
	r.HandleFunc("/groups/{groupId}", s.handlePatchGroup).Methods(http.MethodPatch)
	r.HandleFunc("/groups/{groupId}", s.handleDeleteGroup).Methods(http.MethodDelete)
	r.HandleFunc("/groups/{groupId}/reports", s.handlePutGroupReports).Methods(http.MethodPut)
	r.HandleFunc("/groups/{groupId}/suggestions", s.handleGroupSuggestions).Methods(http.MethodGet)

	r.Use(s.observe)
	return AuthMiddleware(s.auth, r)
}

// observe counts requests per route and status class.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		metrics.GatewayRequests.WithLabelValues(route, statusClass(rec.status)).Inc()
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"route":    route,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Warn("failed to write response body")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"message": message})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Error(message)
	s.writeError(w, http.StatusInternalServerError, message)
}
