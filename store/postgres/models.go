package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/internal/entity"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/reaction"
)

// marshalJSON encodes a payload column, mapping nil to SQL NULL.
func marshalJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: marshal json column: %w", err)
	}
	return raw, nil
}

// unmarshalPayload decodes a JSONB column into a map, mapping NULL to nil.
func unmarshalPayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("cascade/postgres: unmarshal json column: %w", err)
	}
	return m, nil
}

// eventRow mirrors one cascade_events row.
type eventRow struct {
	ID             string
	ActionType     string
	UserID         string
	MappingID      string
	Source         string
	Payload        []byte
	Status         string
	Error          string
	ProcessingMs   int64
	ProcessedAt    *time.Time
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *eventRow) toEvent() (*event.Event, error) {
	evtID, err := id.ParseEventID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", r.ID, err)
	}
	var mapID id.ID
	if r.MappingID != "" {
		mapID, err = id.ParseMappingID(r.MappingID)
		if err != nil {
			return nil, fmt.Errorf("parse mapping ID %q: %w", r.MappingID, err)
		}
	}
	payload, err := unmarshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return &event.Event{
		Entity: entity.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:             evtID,
		ActionType:     r.ActionType,
		UserID:         r.UserID,
		MappingID:      mapID,
		Source:         r.Source,
		Payload:        payload,
		Status:         event.Status(r.Status),
		Error:          r.Error,
		ProcessingMs:   r.ProcessingMs,
		ProcessedAt:    r.ProcessedAt,
		IdempotencyKey: r.IdempotencyKey,
	}, nil
}

// mappingRow mirrors one cascade_mappings row. The action config and the
// reaction list are stored as JSONB.
type mappingRow struct {
	ID           string
	UserID       string
	Name         string
	Active       bool
	ActionType   string
	ActionConfig []byte
	Reactions    []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *mappingRow) toMapping() (*mapping.Mapping, error) {
	mapID, err := id.ParseMappingID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse mapping ID %q: %w", r.ID, err)
	}
	actionConfig, err := unmarshalPayload(r.ActionConfig)
	if err != nil {
		return nil, err
	}
	var reactions []mapping.ReactionSpec
	if len(r.Reactions) > 0 {
		if err := json.Unmarshal(r.Reactions, &reactions); err != nil {
			return nil, fmt.Errorf("cascade/postgres: unmarshal reactions: %w", err)
		}
	}
	return &mapping.Mapping{
		Entity: entity.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:     mapID,
		UserID: r.UserID,
		Name:   r.Name,
		Active: r.Active,
		Action: mapping.ActionSpec{
			Type:   r.ActionType,
			Config: actionConfig,
		},
		Reactions: reactions,
	}, nil
}

// reactionRow mirrors one cascade_reactions row.
type reactionRow struct {
	ID           string
	EventID      string
	MappingID    string
	ReactionType string
	State        string
	Output       []byte
	Error        string
	ExecutionMs  int64
	ExecutedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *reactionRow) toRecord() (*reaction.Record, error) {
	recID, err := id.ParseReactionID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse reaction ID %q: %w", r.ID, err)
	}
	evtID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", r.EventID, err)
	}
	mapID, err := id.ParseMappingID(r.MappingID)
	if err != nil {
		return nil, fmt.Errorf("parse mapping ID %q: %w", r.MappingID, err)
	}
	output, err := unmarshalPayload(r.Output)
	if err != nil {
		return nil, err
	}
	return &reaction.Record{
		Entity: entity.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:           recID,
		EventID:      evtID,
		MappingID:    mapID,
		ReactionType: r.ReactionType,
		State:        reaction.State(r.State),
		Output:       output,
		Error:        r.Error,
		ExecutionMs:  r.ExecutionMs,
		ExecutedAt:   r.ExecutedAt,
	}, nil
}

// failureRow mirrors one cascade_failures row.
type failureRow struct {
	ID           string
	EventID      string
	MappingID    string
	ActionType   string
	ReactionType string
	Payload      []byte
	Error        string
	RetryCount   int
	Resolved     bool
	ResolvedAt   *time.Time
	FailedAt     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *failureRow) toRecord() (*failure.Record, error) {
	flrID, err := id.ParseFailureID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse failure ID %q: %w", r.ID, err)
	}
	evtID, err := id.ParseEventID(r.EventID)
	if err != nil {
		return nil, fmt.Errorf("parse event ID %q: %w", r.EventID, err)
	}
	var mapID id.ID
	if r.MappingID != "" {
		mapID, err = id.ParseMappingID(r.MappingID)
		if err != nil {
			return nil, fmt.Errorf("parse mapping ID %q: %w", r.MappingID, err)
		}
	}
	payload, err := unmarshalPayload(r.Payload)
	if err != nil {
		return nil, err
	}
	return &failure.Record{
		Entity: entity.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:           flrID,
		EventID:      evtID,
		MappingID:    mapID,
		ActionType:   r.ActionType,
		ReactionType: r.ReactionType,
		Payload:      payload,
		Error:        r.Error,
		RetryCount:   r.RetryCount,
		Resolved:     r.Resolved,
		ResolvedAt:   r.ResolvedAt,
		FailedAt:     r.FailedAt,
	}, nil
}
