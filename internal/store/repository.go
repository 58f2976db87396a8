package store

import (
	"context"
	"errors"
	"fmt"

	"facility-report-pipeline/internal/models"

	"github.com/couchbase/gocb/v2"
	"github.com/sirupsen/logrus"
)

// Sentinel errors mapping the store's failure modes onto the pipeline's
// error taxonomy.
var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrConflict means a conditional write was rejected, e.g. a delete by a
	// caller who does not own the record.
	ErrConflict = errors.New("conditional write rejected")
)

// EntityRepository provides mutations and lookups over the polymorphic
// entity collection. Reports and groups share the collection; the record key
// is the entity ID itself, so the RPT-/GRP- prefix discriminates.
type EntityRepository struct {
	client *Client
	logger *logrus.Logger
}

// NewEntityRepository wires the repository with a client and logger.
func NewEntityRepository(client *Client, logger *logrus.Logger) *EntityRepository {
	return &EntityRepository{client: client, logger: logger}
}

// GetReport fetches a report by ID.
func (r *EntityRepository) GetReport(ctx context.Context, id string) (*models.Report, error) {
	res, err := r.client.collection.Get(id, &gocb.GetOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}

	var report models.Report
	if err := res.Content(&report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &report, nil
}

// GetGroup fetches a group by ID.
func (r *EntityRepository) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	res, err := r.client.collection.Get(id, &gocb.GetOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, fmt.Errorf("group %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get group %s: %w", id, err)
	}

	var group models.Group
	if err := res.Content(&group); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", id, err)
	}
	return &group, nil
}

// UpsertReport writes the full report record. Re-applying the same create
// is a no-op overwrite with identical values, which is what makes
// CREATE_REPORT idempotent under redelivery.
func (r *EntityRepository) UpsertReport(ctx context.Context, report *models.Report) error {
	_, err := r.client.collection.Upsert(report.ReportID, report, &gocb.UpsertOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", report.ReportID, err)
	}

	r.logger.WithFields(logrus.Fields{
		"report_id": report.ReportID,
		"status":    report.Status,
	}).Info("report stored")
	return nil
}

// UpsertGroup writes the full group record.
func (r *EntityRepository) UpsertGroup(ctx context.Context, group *models.Group) error {
	_, err := r.client.collection.Upsert(group.GroupID, group, &gocb.UpsertOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		return fmt.Errorf("upsert group %s: %w", group.GroupID, err)
	}

	r.logger.WithFields(logrus.Fields{
		"group_id": group.GroupID,
		"status":   group.Status,
	}).Info("group stored")
	return nil
}

// SetStatus overwrites the status field of a report or group. No transition
// legality is checked; RESOLVED back to SUBMITTED is permitted.
func (r *EntityRepository) SetStatus(ctx context.Context, id string, status models.Status) error {
	_, err := r.client.collection.MutateIn(id, []gocb.MutateInSpec{
		gocb.UpsertSpec("status", status, nil),
	}, &gocb.MutateInOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("entity %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("set status on %s: %w", id, err)
	}
	return nil
}

// SetGroup points a report at a group and copies the group's current status
// onto it, so a report joining an already-PROCESSING group inherits that
// status.
func (r *EntityRepository) SetGroup(ctx context.Context, reportID, groupID string, status models.Status) error {
	_, err := r.client.collection.MutateIn(reportID, []gocb.MutateInSpec{
		gocb.UpsertSpec("groupID", groupID, nil),
		gocb.UpsertSpec("status", status, nil),
	}, &gocb.MutateInOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return fmt.Errorf("report %s: %w", reportID, ErrNotFound)
		}
		return fmt.Errorf("set group on %s: %w", reportID, err)
	}
	return nil
}

// ClearGroup removes the groupID back-reference. Idempotent: a report that
// is already ungrouped (or deleted) is not an error.
func (r *EntityRepository) ClearGroup(ctx context.Context, reportID string) error {
	_, err := r.client.collection.MutateIn(reportID, []gocb.MutateInSpec{
		gocb.RemoveSpec("groupID", nil),
	}, &gocb.MutateInOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrPathNotFound) || errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil
		}
		return fmt.Errorf("clear group on %s: %w", reportID, err)
	}
	return nil
}

// AddToSet merges tokens into a set-valued field (keywords or photoLabels)
// using the store's atomic array-add-unique primitive, so concurrent
// enrichment workers cannot lose each other's updates. Tokens already
// present are skipped.
func (r *EntityRepository) AddToSet(ctx context.Context, id, field string, tokens []string) error {
	for _, token := range tokens {
		_, err := r.client.collection.MutateIn(id, []gocb.MutateInSpec{
			gocb.ArrayAddUniqueSpec(field, token, &gocb.ArrayAddUniqueSpecOptions{
				CreatePath: true,
			}),
		}, &gocb.MutateInOptions{
			Timeout: r.client.config.OperationTimeout,
			Context: ctx,
		})
		if err != nil {
			if errors.Is(err, gocb.ErrPathExists) {
				continue // token already in the set
			}
			if errors.Is(err, gocb.ErrDocumentNotFound) {
				return fmt.Errorf("entity %s: %w", id, ErrNotFound)
			}
			return fmt.Errorf("add %q to %s.%s: %w", token, id, field, err)
		}
	}

	r.logger.WithFields(logrus.Fields{
		"entity_id": id,
		"field":     field,
		"tokens":    len(tokens),
	}).Debug("set merge applied")
	return nil
}

// RemoveReport deletes a report and returns its last stored image so the
// caller can clean up photos and emit a REMOVE change event. An absent
// report returns (nil, nil): a silent no-op supporting idempotent
// redelivery and cascading deletes of already-removed members.
func (r *EntityRepository) RemoveReport(ctx context.Context, id string) (*models.Report, error) {
	res, err := r.client.collection.Get(id, &gocb.GetOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get report %s for delete: %w", id, err)
	}

	var report models.Report
	if err := res.Content(&report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}

	_, err = r.client.collection.Remove(id, &gocb.RemoveOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, nil // lost the race to another delete
		}
		return nil, fmt.Errorf("remove report %s: %w", id, err)
	}

	r.logger.WithField("report_id", id).Info("report deleted")
	return &report, nil
}

// RemoveOwnedReport deletes a report only if userID owns it. A mismatch or
// a concurrent overwrite surfaces as ErrConflict, which the gateway maps to
// an authorization failure.
func (r *EntityRepository) RemoveOwnedReport(ctx context.Context, id, userID string) (*models.Report, error) {
	res, err := r.client.collection.Get(id, &gocb.GetOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get report %s for delete: %w", id, err)
	}

	var report models.Report
	if err := res.Content(&report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	if report.UserID != userID {
		return nil, fmt.Errorf("report %s owned by another user: %w", id, ErrConflict)
	}

	_, err = r.client.collection.Remove(id, &gocb.RemoveOptions{
		Cas:     res.Cas(),
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		switch {
		case errors.Is(err, gocb.ErrDocumentNotFound):
			return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
		case errors.Is(err, gocb.ErrCasMismatch):
			return nil, fmt.Errorf("report %s changed concurrently: %w", id, ErrConflict)
		}
		return nil, fmt.Errorf("remove report %s: %w", id, err)
	}

	r.logger.WithFields(logrus.Fields{
		"report_id": id,
		"user_id":   userID,
	}).Info("report deleted by owner")
	return &report, nil
}

// RemoveGroup deletes a group record. Member reports are untouched; the
// caller is responsible for ungrouping or cascading. Absent groups are a
// no-op.
func (r *EntityRepository) RemoveGroup(ctx context.Context, id string) error {
	_, err := r.client.collection.Remove(id, &gocb.RemoveOptions{
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("remove group %s: %w", id, err)
	}

	r.logger.WithField("group_id", id).Info("group deleted")
	return nil
}

// MembersOf returns the IDs of the reports carrying the given groupID via
// the secondary index. The query matches on the groupID field alone, which
// a group record also carries for its own ID, so results are restricted to
// report keys to keep the group out of its own member list.
func (r *EntityRepository) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	q := fmt.Sprintf(
		"SELECT META(e).id AS id FROM %s AS e WHERE e.groupID = $groupID AND META(e).id LIKE $reportPrefix",
		r.qualifiedKeyspace(),
	)

	result, err := r.client.cluster.Query(q, &gocb.QueryOptions{
		NamedParameters: map[string]interface{}{
			"groupID":      groupID,
			"reportPrefix": models.ReportIDPrefix + "%",
		},
		Timeout: r.client.config.OperationTimeout,
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("membership query for %s: %w", groupID, err)
	}
	defer result.Close()

	var ids []string
	for result.Next() {
		var row struct {
			ID string `json:"id"`
		}
		if err := result.Row(&row); err != nil {
			r.logger.WithError(err).Warn("decode membership row")
			continue
		}
		ids = append(ids, row.ID)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate membership for %s: %w", groupID, err)
	}
	return ids, nil
}

// qualifiedKeyspace returns `bucket`.`scope`.`collection` for Server 7+
// collections.
func (r *EntityRepository) qualifiedKeyspace() string {
	return fmt.Sprintf("`%s`.`%s`.`%s`",
		r.client.config.BucketName,
		r.client.config.ScopeName,
		r.client.config.CollectionName,
	)
}
