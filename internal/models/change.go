package models

import (
	"encoding/json"
	"fmt"
)

// ChangeEventName classifies a primary-store mutation.
type ChangeEventName string

const (
	ChangeUpsert ChangeEventName = "UPSERT"
	ChangeRemove ChangeEventName = "REMOVE"
)

// ChangeEvent notifies the synchronizer that one entity was written or
// removed. For UPSERT, NewImage holds the entity's full field set as
// currently stored; the synchronizer decodes it by ID prefix. Events are
// published keyed by entity ID so the change topic preserves per-key order.
type ChangeEvent struct {
	ID        string          `json:"id"`
	EventName ChangeEventName `json:"eventName"`
	NewImage  json.RawMessage `json:"newImage,omitempty"`
}

// NewUpsertEvent snapshots entity into an UPSERT change event.
func NewUpsertEvent(id string, entity any) (ChangeEvent, error) {
	image, err := json.Marshal(entity)
	if err != nil {
		return ChangeEvent{}, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return ChangeEvent{ID: id, EventName: ChangeUpsert, NewImage: image}, nil
}

// NewRemoveEvent builds a REMOVE change event.
func NewRemoveEvent(id string) ChangeEvent {
	return ChangeEvent{ID: id, EventName: ChangeRemove}
}

// ParseChangeEvent decodes a change-topic payload.
func ParseChangeEvent(data []byte) (*ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode change event: %w", err)
	}
	if ev.ID == "" {
		return nil, fmt.Errorf("change event has no entity ID")
	}
	return &ev, nil
}

// ReportDocument is the search-index projection of a Report. Set-valued
// fields are space-joined token strings; GroupID is present only while the
// report is grouped.
type ReportDocument struct {
	ReportID    string `json:"reportID"`
	UserID      string `json:"userID"`
	Title       string `json:"title"`
	Building    string `json:"building"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedDate string `json:"createdDate"`
	GroupID     string `json:"groupID,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
	PhotoLabels string `json:"photoLabels,omitempty"`
}

// GroupDocument is the search-index projection of a Group.
type GroupDocument struct {
	GroupID     string `json:"groupID"`
	Title       string `json:"title"`
	Building    string `json:"building"`
	Description string `json:"description"`
	Status      string `json:"status"`
}
