package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"facility-report-pipeline/internal/models"
	"facility-report-pipeline/internal/search"
	"facility-report-pipeline/internal/store"
)

const testSecret = "test-signing-secret"

type fakeEntities struct {
	reports map[string]*models.Report
	groups  map[string]*models.Group
	members map[string][]string
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		reports: make(map[string]*models.Report),
		groups:  make(map[string]*models.Group),
		members: make(map[string][]string),
	}
}

func (f *fakeEntities) GetReport(_ context.Context, id string) (*models.Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return report, nil
}

func (f *fakeEntities) GetGroup(_ context.Context, id string) (*models.Group, error) {
	group, ok := f.groups[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return group, nil
}

// MembersOf surfaces the group's own record alongside its members, the way
// a raw scan on the groupID field would, so handlers must not assume the
// result set holds only reports.
func (f *fakeEntities) MembersOf(_ context.Context, groupID string) ([]string, error) {
	var ids []string
	if _, ok := f.groups[groupID]; ok {
		ids = append(ids, groupID)
	}
	return append(ids, f.members[groupID]...), nil
}

func (f *fakeEntities) RemoveReport(_ context.Context, id string) (*models.Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return nil, nil
	}
	delete(f.reports, id)
	return report, nil
}

func (f *fakeEntities) RemoveOwnedReport(_ context.Context, id, userID string) (*models.Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if report.UserID != userID {
		return nil, store.ErrConflict
	}
	delete(f.reports, id)
	return report, nil
}

type fakeIndex struct {
	lastReportQuery search.ReportQuery
	lastGroupQuery  search.GroupQuery
	lastSuggestion  string
	reportDocs      []models.ReportDocument
	groupDocs       []models.GroupDocument
}

func (f *fakeIndex) SearchReports(_ context.Context, q search.ReportQuery) ([]models.ReportDocument, error) {
	f.lastReportQuery = q
	return f.reportDocs, nil
}

func (f *fakeIndex) SearchGroups(_ context.Context, q search.GroupQuery) ([]models.GroupDocument, error) {
	f.lastGroupQuery = q
	return f.groupDocs, nil
}

func (f *fakeIndex) SuggestReports(_ context.Context, title string, _ int) ([]models.ReportDocument, error) {
	f.lastSuggestion = title
	return f.reportDocs, nil
}

type fakePublisher struct {
	reportOps []models.OperationMessage
	groupOps  []models.OperationMessage
	changes   []models.ChangeEvent
}

func (f *fakePublisher) PublishReportOps(_ context.Context, msg models.OperationMessage) error {
	f.reportOps = append(f.reportOps, msg)
	return nil
}

func (f *fakePublisher) PublishGroupOps(_ context.Context, msg models.OperationMessage) error {
	f.groupOps = append(f.groupOps, msg)
	return nil
}

func (f *fakePublisher) PublishChange(_ context.Context, ev models.ChangeEvent) error {
	f.changes = append(f.changes, ev)
	return nil
}

type fakePhotoStorage struct {
	removed [][]string
}

func (f *fakePhotoStorage) ObjectKeys(reportID string, names []string) []string {
	keys := make([]string, 0, len(names))
	for _, name := range names {
		keys = append(keys, reportID+"/"+name)
	}
	return keys
}

func (f *fakePhotoStorage) PresignedGet(_ context.Context, key string) (string, error) {
	return "https://photos.test/get/" + key, nil
}

func (f *fakePhotoStorage) PresignedPut(_ context.Context, key string) (string, error) {
	return "https://photos.test/put/" + key, nil
}

func (f *fakePhotoStorage) RemoveImages(_ context.Context, keys []string) error {
	f.removed = append(f.removed, keys)
	return nil
}

type gatewayFixture struct {
	entities *fakeEntities
	index    *fakeIndex
	pub      *fakePublisher
	photos   *fakePhotoStorage
	handler  http.Handler
}

func newGatewayFixture() *gatewayFixture {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	f := &gatewayFixture{
		entities: newFakeEntities(),
		index:    &fakeIndex{},
		pub:      &fakePublisher{},
		photos:   &fakePhotoStorage{},
	}
	server := NewServer(f.entities, f.index, f.pub, f.pub, f.photos, AuthConfig{
		SigningSecret: testSecret,
		AdminPool:     "facility-admins",
		UserPool:      "facility-users",
	}, logger)
	f.handler = server.Router()
	return f
}

func mintToken(t *testing.T, subject, pool string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iss": "https://idp.test/pools/" + pool,
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *gatewayFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodGet, "/reports", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGatewayRejectsForeignPoolToken(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodGet, "/reports", mintToken(t, "user-1", "strangers"), nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPostReportEnqueuesCreate(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodPost, "/reports", mintToken(t, "user-1", "facility-users"), map[string]any{
		"title":       "Leaky pipe",
		"building":    "kitchen",
		"description": "Water under the sink",
		"images":      []string{"leak.jpg"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ReportID string            `json:"reportId"`
		Uploads  map[string]string `json:"uploads"`
	}
	decodeBody(t, rec, &resp)
	assert.True(t, models.IsReportID(resp.ReportID))
	assert.Equal(t, "https://photos.test/put/"+resp.ReportID+"/leak.jpg", resp.Uploads["leak.jpg"])

	require.Len(t, f.pub.reportOps, 1)
	msg := f.pub.reportOps[0]
	assert.Equal(t, models.OpCreateReport, msg.Operation)
	require.NotNil(t, msg.Report)
	// identity comes from the token, never the body
	assert.Equal(t, "user-1", msg.Report.UserID)
	assert.Equal(t, resp.ReportID, msg.Report.ReportID)
	assert.Equal(t, []string{resp.ReportID + "/leak.jpg"}, msg.Report.ImageKeys)
}

func TestPostReportRequiresTitleAndBuilding(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodPost, "/reports", mintToken(t, "user-1", "facility-users"), map[string]any{
		"description": "no title",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.pub.reportOps)
}

func TestGetReportVisibility(t *testing.T) {
	f := newGatewayFixture()
	f.entities.reports["RPT-1"] = &models.Report{
		ReportID:  "RPT-1",
		UserID:    "user-1",
		Title:     "Leaky pipe",
		Status:    models.StatusSubmitted,
		GroupID:   "GRP-1",
		ImageKeys: []string{"RPT-1/leak.jpg"},
	}

	// owner sees the report with presigned photo URLs, no group reference
	rec := f.do(t, http.MethodGet, "/reports/RPT-1", mintToken(t, "user-1", "facility-users"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view ReportView
	decodeBody(t, rec, &view)
	assert.Equal(t, []string{"https://photos.test/get/RPT-1/leak.jpg"}, view.Photos)
	assert.Empty(t, view.GroupID)

	// another user's report reads as missing, not forbidden
	rec = f.do(t, http.MethodGet, "/reports/RPT-1", mintToken(t, "user-2", "facility-users"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// admins see any report, including its group reference
	rec = f.do(t, http.MethodGet, "/reports/RPT-1", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &view)
	assert.Equal(t, "GRP-1", view.GroupID)
}

func TestGetReportMissing(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodGet, "/reports/RPT-gone", mintToken(t, "user-1", "facility-users"), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListReportsPinsUserForNonAdmins(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodGet, "/reports?userId=user-2&ungrouped=true&q=pipe", mintToken(t, "user-1", "facility-users"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "user-1", f.index.lastReportQuery.UserID)
	assert.False(t, f.index.lastReportQuery.OnlyUngrouped)
	assert.Equal(t, "pipe", f.index.lastReportQuery.Query)
}

func TestListReportsAdminFilters(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodGet, "/reports?userId=user-2&ungrouped=true&building=kitchen&status=SUBMITTED", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	q := f.index.lastReportQuery
	assert.Equal(t, "user-2", q.UserID)
	assert.True(t, q.OnlyUngrouped)
	assert.Equal(t, "kitchen", q.Building)
	assert.Equal(t, "SUBMITTED", q.Status)
}

func TestDeleteOwnReport(t *testing.T) {
	f := newGatewayFixture()
	f.entities.reports["RPT-1"] = &models.Report{
		ReportID:  "RPT-1",
		UserID:    "user-1",
		Title:     "Leaky pipe",
		ImageKeys: []string{"RPT-1/leak.jpg"},
	}

	rec := f.do(t, http.MethodDelete, "/reports/RPT-1", mintToken(t, "user-1", "facility-users"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, f.entities.reports)
	require.Len(t, f.photos.removed, 1)
	assert.Equal(t, []string{"RPT-1/leak.jpg"}, f.photos.removed[0])
	require.Len(t, f.pub.changes, 1)
	assert.Equal(t, models.ChangeRemove, f.pub.changes[0].EventName)
	assert.Equal(t, "RPT-1", f.pub.changes[0].ID)
}

func TestDeleteForeignReportIsForbidden(t *testing.T) {
	f := newGatewayFixture()
	f.entities.reports["RPT-1"] = &models.Report{ReportID: "RPT-1", UserID: "user-1", Title: "Leaky pipe"}

	rec := f.do(t, http.MethodDelete, "/reports/RPT-1", mintToken(t, "user-2", "facility-users"), nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, f.entities.reports, "RPT-1")
	assert.Empty(t, f.pub.changes)
}

func TestDeleteMissingReport(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodDelete, "/reports/RPT-gone", mintToken(t, "user-1", "facility-users"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/reports/RPT-gone", mintToken(t, "admin-1", "facility-admins"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminDeletesAnyReport(t *testing.T) {
	f := newGatewayFixture()
	f.entities.reports["RPT-1"] = &models.Report{ReportID: "RPT-1", UserID: "user-1", Title: "Leaky pipe"}

	rec := f.do(t, http.MethodDelete, "/reports/RPT-1", mintToken(t, "admin-1", "facility-admins"), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.entities.reports)
}

func TestGroupEndpointsRequireAdmin(t *testing.T) {
	f := newGatewayFixture()
	token := mintToken(t, "user-1", "facility-users")

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/groups"},
		{http.MethodGet, "/groups"},
		{http.MethodGet, "/groups/GRP-1"},
		{http.MethodPatch, "/groups/GRP-1"},
		{http.MethodDelete, "/groups/GRP-1"},
		{http.MethodPut, "/groups/GRP-1/reports"},
		{http.MethodGet, "/groups/GRP-1/suggestions"},
	}
	for _, p := range paths {
		rec := f.do(t, p.method, p.path, token, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, p.method+" "+p.path)
	}
}

func TestPostGroupEnqueuesCreateWithMembers(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodPost, "/groups", mintToken(t, "admin-1", "facility-admins"), map[string]any{
		"title":    "Plumbing",
		"building": "kitchen",
		"reports":  []string{"RPT-1", "RPT-2"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.True(t, strings.HasPrefix(resp["groupId"], models.GroupIDPrefix))

	require.Len(t, f.pub.groupOps, 1)
	msg := f.pub.groupOps[0]
	assert.Equal(t, models.OpCreateGroup, msg.Operation)
	require.NotNil(t, msg.Group)
	assert.Equal(t, []string{"RPT-1", "RPT-2"}, msg.Group.Reports)
}

func TestPostGroupRejectsNonReportMembers(t *testing.T) {
	f := newGatewayFixture()

	rec := f.do(t, http.MethodPost, "/groups", mintToken(t, "admin-1", "facility-admins"), map[string]any{
		"title":    "Plumbing",
		"building": "kitchen",
		"reports":  []string{"GRP-2"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.pub.groupOps)
}

func TestPutGroupReports(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}
	token := mintToken(t, "admin-1", "facility-admins")

	// empty batch is a client error
	rec := f.do(t, http.MethodPut, "/groups/GRP-1/reports", token, map[string]any{"reports": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// missing group is a client error
	rec = f.do(t, http.MethodPut, "/groups/GRP-gone/reports", token, map[string]any{"reports": []string{"RPT-1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/groups/GRP-1/reports", token, map[string]any{"reports": []string{"RPT-1", "RPT-2"}})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.reportOps, 1)
	msg := f.pub.reportOps[0]
	assert.Equal(t, models.OpGroupReport, msg.Operation)
	require.Len(t, msg.Reports, 2)
	assert.Equal(t, "GRP-1", msg.Reports[0].GroupID)
}

func TestPatchGroupFansOutStatus(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}
	f.entities.members["GRP-1"] = []string{"RPT-1", "RPT-2"}

	rec := f.do(t, http.MethodPatch, "/groups/GRP-1", mintToken(t, "admin-1", "facility-admins"), map[string]any{
		"status": "RESOLVED",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.groupOps, 1)
	assert.Equal(t, models.OpUpdateGroup, f.pub.groupOps[0].Operation)
	assert.Equal(t, models.StatusResolved, f.pub.groupOps[0].Group.Status)

	require.Len(t, f.pub.reportOps, 1)
	fanout := f.pub.reportOps[0]
	assert.Equal(t, models.OpUpdateReport, fanout.Operation)
	require.Len(t, fanout.Reports, 2)
	for _, op := range fanout.Reports {
		assert.True(t, models.IsReportID(op.ReportID), op.ReportID)
		assert.Equal(t, models.StatusResolved, op.Status)
	}
}

func TestPatchGroupRejectsUnknownStatus(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}

	rec := f.do(t, http.MethodPatch, "/groups/GRP-1", mintToken(t, "admin-1", "facility-admins"), map[string]any{
		"status": "DONE",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.pub.groupOps)
}

// Only status is patchable; other fields in the body are ignored rather
// than forwarded into the group update.
func TestPatchGroupIgnoresNonStatusFields(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}

	rec := f.do(t, http.MethodPatch, "/groups/GRP-1", mintToken(t, "admin-1", "facility-admins"), map[string]any{
		"title":    "Renamed",
		"building": "roof",
		"status":   "RESOLVED",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.groupOps, 1)
	op := f.pub.groupOps[0].Group
	require.NotNil(t, op)
	assert.Equal(t, models.StatusResolved, op.Status)
	assert.Empty(t, op.Title)
	assert.Empty(t, op.Building)
	assert.Empty(t, op.Description)
}

func TestPatchMissingGroupRepairsStaleMembers(t *testing.T) {
	f := newGatewayFixture()
	f.entities.members["GRP-gone"] = []string{"RPT-1"}

	rec := f.do(t, http.MethodPatch, "/groups/GRP-gone", mintToken(t, "admin-1", "facility-admins"), map[string]any{
		"status": "RESOLVED",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Len(t, f.pub.reportOps, 1)
	assert.Equal(t, models.OpUngroupReport, f.pub.reportOps[0].Operation)
}

func TestDeleteGroupReleasesMembers(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}
	f.entities.members["GRP-1"] = []string{"RPT-1", "RPT-2"}

	rec := f.do(t, http.MethodDelete, "/groups/GRP-1", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.reportOps, 1)
	assert.Equal(t, models.OpUngroupReport, f.pub.reportOps[0].Operation)
	require.Len(t, f.pub.groupOps, 1)
	assert.Equal(t, models.OpDeleteGroup, f.pub.groupOps[0].Operation)
}

func TestDeleteGroupCascadesMembers(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}
	f.entities.members["GRP-1"] = []string{"RPT-1"}

	rec := f.do(t, http.MethodDelete, "/groups/GRP-1?cascade=true", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.reportOps, 1)
	assert.Equal(t, models.OpDeleteReport, f.pub.reportOps[0].Operation)
	require.Len(t, f.pub.reportOps[0].Reports, 1)
	assert.Equal(t, "RPT-1", f.pub.reportOps[0].Reports[0].ReportID)
}

// A group record matches its own membership scan; the cascade must delete
// only the member reports, never route the group through report deletion.
func TestDeleteGroupCascadeSkipsGroupRecord(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Status: models.StatusCreated}
	f.entities.members["GRP-1"] = []string{"RPT-1"}

	rec := f.do(t, http.MethodDelete, "/groups/GRP-1?cascade=true", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.reportOps, 1)
	batch := f.pub.reportOps[0]
	assert.Equal(t, models.OpDeleteReport, batch.Operation)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, "RPT-1", batch.Reports[0].ReportID)

	var resp struct {
		Reports []string `json:"reports"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, []string{"RPT-1"}, resp.Reports)

	require.Len(t, f.pub.groupOps, 1)
	assert.Equal(t, models.OpDeleteGroup, f.pub.groupOps[0].Operation)
}

func TestGroupSuggestionsUseGroupTitle(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Broken windows", Status: models.StatusCreated}
	f.index.reportDocs = []models.ReportDocument{{ReportID: "RPT-1", Title: "Cracked window", Status: "SUBMITTED"}}

	rec := f.do(t, http.MethodGet, "/groups/GRP-1/suggestions", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "Broken windows", f.index.lastSuggestion)

	var resp struct {
		Suggestions []ReportView `json:"suggestions"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "RPT-1", resp.Suggestions[0].ReportID)
}

func TestGetGroupReturnsMemberReports(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Building: "kitchen", Status: models.StatusCreated}
	f.entities.members["GRP-1"] = []string{"RPT-1"}
	f.entities.reports["RPT-1"] = &models.Report{
		ReportID: "RPT-1",
		UserID:   "user-1",
		Title:    "Leaking sink",
		Building: "kitchen",
		Status:   models.StatusSubmitted,
		GroupID:  "GRP-1",
	}

	rec := f.do(t, http.MethodGet, "/groups/GRP-1", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Group   GroupView    `json:"group"`
		Reports []ReportView `json:"reports"`
	}
	decodeBody(t, rec, &resp)
	assert.Equal(t, "Plumbing", resp.Group.Title)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "RPT-1", resp.Reports[0].ReportID)
	assert.Equal(t, "Leaking sink", resp.Reports[0].Title)
	assert.Equal(t, "user-1", resp.Reports[0].UserID)
}

// The group's own record never shows up in its member list, and a member
// whose record has already been deleted is skipped rather than failing the
// whole read.
func TestGetGroupSkipsNonReportAndVanishedMembers(t *testing.T) {
	f := newGatewayFixture()
	f.entities.groups["GRP-1"] = &models.Group{GroupID: "GRP-1", Title: "Plumbing", Building: "kitchen", Status: models.StatusCreated}
	f.entities.members["GRP-1"] = []string{"RPT-1", "RPT-gone"}
	f.entities.reports["RPT-1"] = &models.Report{ReportID: "RPT-1", UserID: "user-1", Title: "Leaking sink", Status: models.StatusSubmitted}

	rec := f.do(t, http.MethodGet, "/groups/GRP-1", mintToken(t, "admin-1", "facility-admins"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Reports []ReportView `json:"reports"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Reports, 1)
	assert.Equal(t, "RPT-1", resp.Reports[0].ReportID)
}
