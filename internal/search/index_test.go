package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolClause(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	query, ok := body["query"].(map[string]any)
	require.True(t, ok)
	clause, ok := query["bool"].(map[string]any)
	require.True(t, ok)
	return clause
}

func TestBuildReportQueryFilters(t *testing.T) {
	body := buildReportQuery(ReportQuery{
		UserID:   "user-1",
		Building: "kitchen",
		Status:   "SUBMITTED",
	})

	clause := boolClause(t, body)
	must, ok := clause["must"].([]any)
	require.True(t, ok)
	require.Len(t, must, 3)

	assert.Equal(t, map[string]any{"term": map[string]any{"userID": "user-1"}}, must[0])
	assert.Equal(t, map[string]any{"term": map[string]any{"building": "kitchen"}}, must[1])
	assert.Equal(t, map[string]any{"term": map[string]any{"status": "SUBMITTED"}}, must[2])
	assert.Empty(t, clause["must_not"])
	assert.Empty(t, clause["should"])
}

func TestBuildReportQueryUngroupedExcludesGroupedDocs(t *testing.T) {
	body := buildReportQuery(ReportQuery{OnlyUngrouped: true})

	clause := boolClause(t, body)
	mustNot, ok := clause["must_not"].([]any)
	require.True(t, ok)
	require.Len(t, mustNot, 1)
	assert.Equal(t, map[string]any{"exists": map[string]any{"field": "groupID"}}, mustNot[0])
}

func TestBuildReportQueryFreeTextBoosts(t *testing.T) {
	body := buildReportQuery(ReportQuery{Query: "leaky pipe"})

	clause := boolClause(t, body)
	should, ok := clause["should"].([]any)
	require.True(t, ok)
	require.Len(t, should, 1)

	qs := should[0].(map[string]any)["query_string"].(map[string]any)
	assert.Equal(t, "leaky pipe", qs["query"])
	assert.Equal(t, []string{"title^4", "keywords^4", "photoLabels^2", "building^2", "description"}, qs["fields"])
}

func TestBuildGroupQuery(t *testing.T) {
	body := buildGroupQuery(GroupQuery{Building: "library", Query: "windows"})

	clause := boolClause(t, body)
	must, ok := clause["must"].([]any)
	require.True(t, ok)
	require.Len(t, must, 1)

	should, ok := clause["should"].([]any)
	require.True(t, ok)
	qs := should[0].(map[string]any)["query_string"].(map[string]any)
	assert.Equal(t, []string{"title^4", "building^2", "description"}, qs["fields"])
}

func TestClampPaging(t *testing.T) {
	from, size := clampPaging(0, 0)
	assert.Equal(t, 0, from)
	assert.Equal(t, DefaultPageSize, size)

	from, size = clampPaging(-5, 100)
	assert.Equal(t, 0, from)
	assert.Equal(t, MaxPageSize, size)

	from, size = clampPaging(40, 10)
	assert.Equal(t, 40, from)
	assert.Equal(t, 10, size)
}

func TestBuildReportQueryPagingApplied(t *testing.T) {
	body := buildReportQuery(ReportQuery{From: 20, Size: 10})

	assert.Equal(t, 20, body["from"])
	assert.Equal(t, 10, body["size"])
}

// The term filters above only hit if the filtered fields are mapped as
// keyword; dynamic mapping would type them as analyzed text.
func TestIndexMappingsPinTermFilteredFieldsToKeyword(t *testing.T) {
	properties := func(t *testing.T, mapping map[string]any) map[string]any {
		t.Helper()
		mappings, ok := mapping["mappings"].(map[string]any)
		require.True(t, ok)
		props, ok := mappings["properties"].(map[string]any)
		require.True(t, ok)
		return props
	}

	reports := properties(t, reportsIndexMapping())
	for _, field := range []string{"reportID", "userID", "groupID", "building", "status"} {
		assert.Equal(t, map[string]any{"type": "keyword"}, reports[field], field)
	}

	groups := properties(t, groupsIndexMapping())
	for _, field := range []string{"groupID", "building", "status"} {
		assert.Equal(t, map[string]any{"type": "keyword"}, groups[field], field)
	}
}
