// Package search wraps the OpenSearch domain holding the reports and groups
// indexes. Index documents are strictly derived projections: only the
// synchronizer writes them, and the gateway only reads them.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"facility-report-pipeline/internal/models"

	opensearch "github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sirupsen/logrus"
)

// Index names, split by entity type as in the primary store's prefixes.
const (
	ReportsIndex = "reports"
	GroupsIndex  = "groups"
)

// Paging bounds for searches.
const (
	DefaultPageSize = 20
	MaxPageSize     = 25
)

// Config holds connection details for the search domain.
type Config struct {
	Addresses []string
	Username  string
	Password  string
}

// Client talks to the search domain.
type Client struct {
	os     *opensearch.Client
	logger *logrus.Logger
}

// NewClient connects to the search domain.
func NewClient(cfg Config, logger *logrus.Logger) (*Client, error) {
	osc, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect search domain: %w", err)
	}

	logger.WithField("addresses", cfg.Addresses).Info("connected to search domain")
	return &Client{os: osc, logger: logger}, nil
}

// keywordMapping builds an index body pinning the given fields to keyword
// type. Left to dynamic mapping they would come up as analyzed text, and the
// exact-match term filters in the query builders would silently match
// nothing.
func keywordMapping(fields ...string) map[string]any {
	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{"type": "keyword"}
	}
	return map[string]any{"mappings": map[string]any{"properties": props}}
}

func reportsIndexMapping() map[string]any {
	return keywordMapping("reportID", "userID", "groupID", "building", "status")
}

func groupsIndexMapping() map[string]any {
	return keywordMapping("groupID", "building", "status")
}

// EnsureIndexes creates the reports and groups indexes with their field
// mappings. Indexes that already exist are left untouched, so the call is
// safe on every startup.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	for _, ix := range []struct {
		name    string
		mapping map[string]any
	}{
		{ReportsIndex, reportsIndexMapping()},
		{GroupsIndex, groupsIndexMapping()},
	} {
		if err := c.createIndex(ctx, ix.name, ix.mapping); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) createIndex(ctx context.Context, index string, mapping map[string]any) error {
	exists := opensearchapi.IndicesExistsRequest{Index: []string{index}}
	res, err := exists.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		c.logger.WithField("index", index).Debug("index already exists")
		return nil
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping for %s: %w", index, err)
	}
	create := opensearchapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader(body),
	}
	res, err = create.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}

	c.logger.WithField("index", index).Info("index created")
	return nil
}

// Index writes doc as the full document for id: a whole-document replace,
// so fields absent from doc (like a cleared groupID) disappear from the
// index rather than lingering stale.
func (c *Client) Index(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal index document %s: %w", id, err)
	}

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("index %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index %s/%s: %s", index, id, res.Status())
	}

	c.logger.WithFields(logrus.Fields{
		"index": index,
		"id":    id,
	}).Debug("document indexed")
	return nil
}

// Delete removes the document for id. A document that is already gone is
// not an error, which keeps REMOVE handling idempotent.
func (c *Client) Delete(ctx context.Context, index, id string) error {
	req := opensearchapi.DeleteRequest{
		Index:      index,
		DocumentID: id,
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", index, id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete %s/%s: %s", index, id, res.Status())
	}

	c.logger.WithFields(logrus.Fields{
		"index": index,
		"id":    id,
	}).Debug("document deleted")
	return nil
}

// ReportQuery filters a report search. UserID is an exact term; the façade
// pins it to the caller for non-privileged users. Query is free text over
// the report's searchable fields.
type ReportQuery struct {
	UserID        string
	Building      string
	Status        string
	OnlyUngrouped bool
	Query         string
	From          int
	Size          int
}

// GroupQuery filters a group search.
type GroupQuery struct {
	Building string
	Status   string
	Query    string
	From     int
	Size     int
}

// SearchReports runs a filtered/full-text query over the reports index.
func (c *Client) SearchReports(ctx context.Context, q ReportQuery) ([]models.ReportDocument, error) {
	body := buildReportQuery(q)

	var docs []models.ReportDocument
	err := c.search(ctx, ReportsIndex, body, func(source json.RawMessage) error {
		var doc models.ReportDocument
		if err := json.Unmarshal(source, &doc); err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"hits": len(docs),
		"from": q.From,
	}).Info("report search completed")
	return docs, nil
}

// SearchGroups runs a filtered/full-text query over the groups index.
func (c *Client) SearchGroups(ctx context.Context, q GroupQuery) ([]models.GroupDocument, error) {
	body := buildGroupQuery(q)

	var docs []models.GroupDocument
	err := c.search(ctx, GroupsIndex, body, func(source json.RawMessage) error {
		var doc models.GroupDocument
		if err := json.Unmarshal(source, &doc); err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// SuggestReports finds ungrouped reports whose text resembles the given
// group title, used to propose members for a group.
func (c *Client) SuggestReports(ctx context.Context, title string, size int) ([]models.ReportDocument, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	body := map[string]any{
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"should": map[string]any{
					"multi_match": map[string]any{
						"query": title,
						"fields": []string{
							"title^4", "keywords^2", "photoLabels^2", "building", "description",
						},
					},
				},
				"must_not": map[string]any{
					"exists": map[string]any{"field": "groupID"},
				},
			},
		},
	}

	var docs []models.ReportDocument
	err := c.search(ctx, ReportsIndex, body, func(source json.RawMessage) error {
		var doc models.ReportDocument
		if err := json.Unmarshal(source, &doc); err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// search executes a query body against one index and feeds each hit's
// _source to collect.
func (c *Client) search(ctx context.Context, index string, body map[string]any, collect func(json.RawMessage) error) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal search body: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return fmt.Errorf("search %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("search %s: %s", index, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode search response: %w", err)
	}

	for _, hit := range parsed.Hits.Hits {
		if err := collect(hit.Source); err != nil {
			c.logger.WithError(err).Warn("decode search hit")
		}
	}
	return nil
}

// buildReportQuery composes the bool query for SearchReports. Kept pure so
// the filter composition is testable without a search domain.
func buildReportQuery(q ReportQuery) map[string]any {
	from, size := clampPaging(q.From, q.Size)

	var must []any
	if q.UserID != "" {
		must = append(must, map[string]any{"term": map[string]any{"userID": q.UserID}})
	}
	if q.Building != "" {
		must = append(must, map[string]any{"term": map[string]any{"building": q.Building}})
	}
	if q.Status != "" {
		must = append(must, map[string]any{"term": map[string]any{"status": q.Status}})
	}

	var mustNot []any
	if q.OnlyUngrouped {
		mustNot = append(mustNot, map[string]any{"exists": map[string]any{"field": "groupID"}})
	}

	var should []any
	if q.Query != "" {
		should = append(should, map[string]any{
			"query_string": map[string]any{
				"query": q.Query,
				"fields": []string{
					"title^4", "keywords^4", "photoLabels^2", "building^2", "description",
				},
			},
		})
	}

	return map[string]any{
		"from": from,
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must":     must,
				"must_not": mustNot,
				"should":   should,
			},
		},
	}
}

// buildGroupQuery composes the bool query for SearchGroups.
func buildGroupQuery(q GroupQuery) map[string]any {
	from, size := clampPaging(q.From, q.Size)

	var must []any
	if q.Building != "" {
		must = append(must, map[string]any{"term": map[string]any{"building": q.Building}})
	}
	if q.Status != "" {
		must = append(must, map[string]any{"term": map[string]any{"status": q.Status}})
	}

	var should []any
	if q.Query != "" {
		should = append(should, map[string]any{
			"query_string": map[string]any{
				"query":  q.Query,
				"fields": []string{"title^4", "building^2", "description"},
			},
		})
	}

	return map[string]any{
		"from": from,
		"size": size,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"should": should,
			},
		},
	}
}

// clampPaging applies the paging defaults and bounds.
func clampPaging(from, size int) (int, int) {
	if from < 0 {
		from = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return from, size
}
