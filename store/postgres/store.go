// Package postgres implements store.Store on PostgreSQL using pgx. Intake
// claims use FOR UPDATE SKIP LOCKED so concurrent engines never process the
// same event twice.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cascade "github.com/xraph/cascade"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/failure"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/mapping"
	"github.com/xraph/cascade/reaction"
	"github.com/xraph/cascade/stats"
	cascadestore "github.com/xraph/cascade/store"
)

// compile-time interface check
var _ cascadestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store over an existing connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes. Applied versions are
// tracked in cascade_migrations, so Migrate is safe to run on every start.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS cascade_migrations (
    version    TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	if err != nil {
		return fmt.Errorf("%w: create migrations table: %v", cascade.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("%w: %s: %v", cascade.ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var applied bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cascade_migrations WHERE version = $1)`, m.Version,
	).Scan(&applied)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO cascade_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Event Store ====================

const eventColumns = `id, action_type, user_id, mapping_id, source, payload, status, error, processing_ms, processed_at, idempotency_key, created_at, updated_at`

func scanEventRow(row pgx.Row) (*eventRow, error) {
	var r eventRow
	err := row.Scan(&r.ID, &r.ActionType, &r.UserID, &r.MappingID, &r.Source, &r.Payload,
		&r.Status, &r.Error, &r.ProcessingMs, &r.ProcessedAt, &r.IdempotencyKey,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectEventRows(rows pgx.Rows) ([]*event.Event, error) {
	defer rows.Close()
	var result []*event.Event
	for rows.Next() {
		r, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		evt, err := r.toEvent()
		if err != nil {
			return nil, err
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	payload, err := marshalJSON(evt.Payload)
	if err != nil {
		return err
	}

	mappingID := ""
	if !evt.MappingID.IsNil() {
		mappingID = evt.MappingID.String()
	}

	query := `
		INSERT INTO cascade_events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	if evt.IdempotencyKey != "" {
		query += ` ON CONFLICT (idempotency_key) WHERE idempotency_key != '' DO NOTHING`
	}

	tag, err := s.pool.Exec(ctx, query,
		evt.ID.String(), evt.ActionType, evt.UserID, mappingID, evt.Source, payload,
		string(evt.Status), evt.Error, evt.ProcessingMs, evt.ProcessedAt,
		evt.IdempotencyKey, evt.CreatedAt, evt.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cascade/postgres: create event: %w", err)
	}
	if evt.IdempotencyKey != "" && tag.RowsAffected() == 0 {
		return cascade.ErrDuplicateIdempotencyKey
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	r, err := scanEventRow(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM cascade_events WHERE id = $1`, evtID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, cascade.ErrEventNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get event: %w", err)
	}
	return r.toEvent()
}

func (s *Store) ListPendingEvents(ctx context.Context, limit int) ([]*event.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE cascade_events
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT id FROM cascade_events
			WHERE status = 'received'
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns, limit)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: claim pending events: %w", err)
	}
	events, err := collectEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: claim pending events: %w", err)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

func (s *Store) UpdateEvent(ctx context.Context, evt *event.Event) error {
	payload, err := marshalJSON(evt.Payload)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE cascade_events
		SET status = $2, error = $3, processing_ms = $4, processed_at = $5,
		    payload = $6, updated_at = NOW()
		WHERE id = $1`,
		evt.ID.String(), string(evt.Status), evt.Error, evt.ProcessingMs,
		evt.ProcessedAt, payload)
	if err != nil {
		return fmt.Errorf("cascade/postgres: update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrEventNotFound
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if opts.ActionType != "" {
		add("action_type = $%d", opts.ActionType)
	}
	if opts.Status != nil {
		add("status = $%d", string(*opts.Status))
	}
	if opts.From != nil {
		add("created_at >= $%d", *opts.From)
	}
	if opts.To != nil {
		add("created_at <= $%d", *opts.To)
	}

	query := `SELECT ` + eventColumns + ` FROM cascade_events`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list events: %w", err)
	}
	return collectEventRows(rows)
}

func (s *Store) ListEventsByUser(ctx context.Context, userID string, opts event.ListOpts) ([]*event.Event, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if opts.ActionType != "" {
		add("action_type = $%d", opts.ActionType)
	}
	if opts.Status != nil {
		add("status = $%d", string(*opts.Status))
	}
	if opts.From != nil {
		add("created_at >= $%d", *opts.From)
	}
	if opts.To != nil {
		add("created_at <= $%d", *opts.To)
	}

	query := `SELECT ` + eventColumns + ` FROM cascade_events WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list events by user: %w", err)
	}
	return collectEventRows(rows)
}

// ==================== Mapping Store ====================

const mappingColumns = `id, user_id, name, active, action_type, action_config, reactions, created_at, updated_at`

func scanMappingRow(row pgx.Row) (*mappingRow, error) {
	var r mappingRow
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.Active, &r.ActionType,
		&r.ActionConfig, &r.Reactions, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectMappingRows(rows pgx.Rows) ([]*mapping.Mapping, error) {
	defer rows.Close()
	var result []*mapping.Mapping
	for rows.Next() {
		r, err := scanMappingRow(rows)
		if err != nil {
			return nil, err
		}
		m, err := r.toMapping()
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func mappingArgs(m *mapping.Mapping) ([]any, error) {
	actionConfig, err := marshalJSON(m.Action.Config)
	if err != nil {
		return nil, err
	}
	reactions, err := marshalJSON(m.Reactions)
	if err != nil {
		return nil, err
	}
	if reactions == nil {
		reactions = []byte("[]")
	}
	return []any{
		m.ID.String(), m.UserID, m.Name, m.Active, m.Action.Type,
		actionConfig, reactions,
	}, nil
}

func (s *Store) CreateMapping(ctx context.Context, m *mapping.Mapping) error {
	args, err := mappingArgs(m)
	if err != nil {
		return err
	}
	args = append(args, m.CreatedAt, m.UpdatedAt)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cascade_mappings (`+mappingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, args...)
	if err != nil {
		return fmt.Errorf("cascade/postgres: create mapping: %w", err)
	}
	return nil
}

func (s *Store) GetMapping(ctx context.Context, mapID id.ID) (*mapping.Mapping, error) {
	r, err := scanMappingRow(s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM cascade_mappings WHERE id = $1`, mapID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, cascade.ErrMappingNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get mapping: %w", err)
	}
	return r.toMapping()
}

func (s *Store) UpdateMapping(ctx context.Context, m *mapping.Mapping) error {
	args, err := mappingArgs(m)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE cascade_mappings
		SET user_id = $2, name = $3, active = $4, action_type = $5,
		    action_config = $6, reactions = $7, updated_at = NOW()
		WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("cascade/postgres: update mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrMappingNotFound
	}
	return nil
}

func (s *Store) DeleteMapping(ctx context.Context, mapID id.ID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cascade_mappings WHERE id = $1`, mapID.String())
	if err != nil {
		return fmt.Errorf("cascade/postgres: delete mapping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrMappingNotFound
	}
	return nil
}

func (s *Store) ListMappings(ctx context.Context, opts mapping.ListOpts) ([]*mapping.Mapping, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if opts.UserID != "" {
		add("user_id = $%d", opts.UserID)
	}
	if opts.ActionType != "" {
		add("action_type = $%d", opts.ActionType)
	}
	if opts.Active != nil {
		add("active = $%d", *opts.Active)
	}

	query := `SELECT ` + mappingColumns + ` FROM cascade_mappings`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list mappings: %w", err)
	}
	return collectMappingRows(rows)
}

func (s *Store) GetOwnedActive(ctx context.Context, mapID id.ID, userID string) (*mapping.Mapping, error) {
	r, err := scanMappingRow(s.pool.QueryRow(ctx,
		`SELECT `+mappingColumns+` FROM cascade_mappings WHERE id = $1 AND user_id = $2 AND active`,
		mapID.String(), userID))
	if err != nil {
		if isNoRows(err) {
			return nil, cascade.ErrMappingNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get owned active mapping: %w", err)
	}
	return r.toMapping()
}

func (s *Store) ListActiveByAction(ctx context.Context, actionType string) ([]*mapping.Mapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM cascade_mappings WHERE action_type = $1 AND active ORDER BY created_at ASC`,
		actionType)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list active by action: %w", err)
	}
	return collectMappingRows(rows)
}

func (s *Store) ListActiveByOwnerAndAction(ctx context.Context, userID, actionType string) ([]*mapping.Mapping, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+mappingColumns+` FROM cascade_mappings WHERE user_id = $1 AND action_type = $2 AND active ORDER BY created_at ASC`,
		userID, actionType)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list active by owner and action: %w", err)
	}
	return collectMappingRows(rows)
}

func (s *Store) ListActiveUserIDs(ctx context.Context, actionPrefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT user_id FROM cascade_mappings
		WHERE active AND user_id != '' AND action_type LIKE $1 || '%'
		ORDER BY user_id ASC`, actionPrefix)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list active user ids: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

func (s *Store) SetMappingActive(ctx context.Context, mapID id.ID, active bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE cascade_mappings SET active = $2, updated_at = NOW() WHERE id = $1`,
		mapID.String(), active)
	if err != nil {
		return fmt.Errorf("cascade/postgres: set mapping active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrMappingNotFound
	}
	return nil
}

// ==================== Reaction Store ====================

const reactionColumns = `id, event_id, mapping_id, reaction_type, state, output, error, execution_ms, executed_at, created_at, updated_at`

func scanReactionRow(row pgx.Row) (*reactionRow, error) {
	var r reactionRow
	err := row.Scan(&r.ID, &r.EventID, &r.MappingID, &r.ReactionType, &r.State,
		&r.Output, &r.Error, &r.ExecutionMs, &r.ExecutedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReactionRows(rows pgx.Rows) ([]*reaction.Record, error) {
	defer rows.Close()
	var result []*reaction.Record
	for rows.Next() {
		r, err := scanReactionRow(rows)
		if err != nil {
			return nil, err
		}
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) CreateReaction(ctx context.Context, rec *reaction.Record) error {
	output, err := marshalJSON(rec.Output)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cascade_reactions (`+reactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID.String(), rec.EventID.String(), rec.MappingID.String(),
		rec.ReactionType, string(rec.State), output, rec.Error,
		rec.ExecutionMs, rec.ExecutedAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cascade/postgres: create reaction: %w", err)
	}
	return nil
}

func (s *Store) UpdateReaction(ctx context.Context, rec *reaction.Record) error {
	output, err := marshalJSON(rec.Output)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE cascade_reactions
		SET state = $2, output = $3, error = $4, execution_ms = $5,
		    executed_at = $6, updated_at = NOW()
		WHERE id = $1`,
		rec.ID.String(), string(rec.State), output, rec.Error,
		rec.ExecutionMs, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("cascade/postgres: update reaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrReactionNotFound
	}
	return nil
}

func (s *Store) GetReaction(ctx context.Context, recID id.ID) (*reaction.Record, error) {
	r, err := scanReactionRow(s.pool.QueryRow(ctx,
		`SELECT `+reactionColumns+` FROM cascade_reactions WHERE id = $1`, recID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, cascade.ErrReactionNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get reaction: %w", err)
	}
	return r.toRecord()
}

func (s *Store) ListReactionsByEvent(ctx context.Context, evtID id.ID) ([]*reaction.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reactionColumns+` FROM cascade_reactions WHERE event_id = $1 ORDER BY created_at ASC`,
		evtID.String())
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list reactions by event: %w", err)
	}
	return collectReactionRows(rows)
}

func (s *Store) ListReactions(ctx context.Context, opts reaction.ListOpts) ([]*reaction.Record, error) {
	var conds []string
	var args []any

	if opts.State != nil {
		args = append(args, string(*opts.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}

	query := `SELECT ` + reactionColumns + ` FROM cascade_reactions`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list reactions: %w", err)
	}
	return collectReactionRows(rows)
}

// ==================== Failure Store ====================

const failureColumns = `id, event_id, mapping_id, action_type, reaction_type, payload, error, retry_count, resolved, resolved_at, failed_at, created_at, updated_at`

func scanFailureRow(row pgx.Row) (*failureRow, error) {
	var r failureRow
	err := row.Scan(&r.ID, &r.EventID, &r.MappingID, &r.ActionType, &r.ReactionType,
		&r.Payload, &r.Error, &r.RetryCount, &r.Resolved, &r.ResolvedAt,
		&r.FailedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func collectFailureRows(rows pgx.Rows) ([]*failure.Record, error) {
	defer rows.Close()
	var result []*failure.Record
	for rows.Next() {
		r, err := scanFailureRow(rows)
		if err != nil {
			return nil, err
		}
		rec, err := r.toRecord()
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (s *Store) PushFailure(ctx context.Context, rec *failure.Record) error {
	payload, err := marshalJSON(rec.Payload)
	if err != nil {
		return err
	}
	mappingID := ""
	if !rec.MappingID.IsNil() {
		mappingID = rec.MappingID.String()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cascade_failures (`+failureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID.String(), rec.EventID.String(), mappingID, rec.ActionType,
		rec.ReactionType, payload, rec.Error, rec.RetryCount, rec.Resolved,
		rec.ResolvedAt, rec.FailedAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cascade/postgres: push failure: %w", err)
	}
	return nil
}

func (s *Store) ListFailures(ctx context.Context, opts failure.ListOpts) ([]*failure.Record, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if opts.ActionType != "" {
		add("action_type = $%d", opts.ActionType)
	}
	if opts.Resolved != nil {
		add("resolved = $%d", *opts.Resolved)
	}
	if opts.From != nil {
		add("failed_at >= $%d", *opts.From)
	}
	if opts.To != nil {
		add("failed_at <= $%d", *opts.To)
	}

	query := `SELECT ` + failureColumns + ` FROM cascade_failures`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY failed_at DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list failures: %w", err)
	}
	return collectFailureRows(rows)
}

func (s *Store) GetFailure(ctx context.Context, flrID id.ID) (*failure.Record, error) {
	r, err := scanFailureRow(s.pool.QueryRow(ctx,
		`SELECT `+failureColumns+` FROM cascade_failures WHERE id = $1`, flrID.String()))
	if err != nil {
		if isNoRows(err) {
			return nil, cascade.ErrFailureNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get failure: %w", err)
	}
	return r.toRecord()
}

func (s *Store) ResolveFailure(ctx context.Context, flrID id.ID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cascade_failures
		SET resolved = true, resolved_at = NOW(), updated_at = NOW()
		WHERE id = $1`, flrID.String())
	if err != nil {
		return fmt.Errorf("cascade/postgres: resolve failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cascade.ErrFailureNotFound
	}
	return nil
}

func (s *Store) PurgeFailures(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cascade_failures WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("cascade/postgres: purge failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountFailures(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cascade_failures WHERE NOT resolved`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("cascade/postgres: count failures: %w", err)
	}
	return count, nil
}

// ==================== Stats Store ====================

func (s *Store) IncrStats(ctx context.Context, key stats.Key, success bool, processingMs int64) error {
	successIncr := int64(0)
	errorIncr := int64(1)
	if success {
		successIncr, errorIncr = 1, 0
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cascade_stats (day, action_type, reaction_type, count, success_count, error_count, total_processing_ms)
		VALUES ($1, $2, $3, 1, $4, $5, $6)
		ON CONFLICT (day, action_type, reaction_type) DO UPDATE SET
		    count = cascade_stats.count + 1,
		    success_count = cascade_stats.success_count + EXCLUDED.success_count,
		    error_count = cascade_stats.error_count + EXCLUDED.error_count,
		    total_processing_ms = cascade_stats.total_processing_ms + EXCLUDED.total_processing_ms`,
		key.Day, key.ActionType, key.ReactionType, successIncr, errorIncr, processingMs)
	if err != nil {
		return fmt.Errorf("cascade/postgres: incr stats: %w", err)
	}
	return nil
}

func (s *Store) ListStats(ctx context.Context, day string) ([]*stats.Bucket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT day, action_type, reaction_type, count, success_count, error_count, total_processing_ms
		FROM cascade_stats WHERE day = $1
		ORDER BY action_type ASC, reaction_type ASC`, day)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list stats: %w", err)
	}
	defer rows.Close()

	var result []*stats.Bucket
	for rows.Next() {
		var b stats.Bucket
		if err := rows.Scan(&b.Key.Day, &b.Key.ActionType, &b.Key.ReactionType,
			&b.Count, &b.SuccessCount, &b.ErrorCount, &b.TotalProcessingMs); err != nil {
			return nil, err
		}
		result = append(result, &b)
	}
	return result, rows.Err()
}

// ==================== Scheduler State Store ====================

func (s *Store) GetState(ctx context.Context, kind, userID string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM cascade_scheduler_state WHERE kind = $1 AND user_id = $2`,
		kind, userID).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("cascade/postgres: get scheduler state: %w", err)
	}
	return value, nil
}

func (s *Store) SetState(ctx context.Context, kind, userID, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cascade_scheduler_state (kind, user_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (kind, user_id) DO UPDATE SET
		    value = EXCLUDED.value, updated_at = NOW()`,
		kind, userID, value)
	if err != nil {
		return fmt.Errorf("cascade/postgres: set scheduler state: %w", err)
	}
	return nil
}

// isNoRows checks for the pgx no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
