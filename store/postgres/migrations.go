package postgres

// migration is one versioned schema step. Steps run in order inside a
// transaction and are tracked in cascade_migrations.
type migration struct {
	Name    string
	Version string
	SQL     string
}

var migrations = []migration{
	{
		Name:    "create_cascade_events",
		Version: "20240101000001",
		SQL: `
CREATE TABLE IF NOT EXISTS cascade_events (
    id              TEXT PRIMARY KEY,
    action_type     TEXT NOT NULL DEFAULT '',
    user_id         TEXT NOT NULL DEFAULT '',
    mapping_id      TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    payload         JSONB,
    status          TEXT NOT NULL DEFAULT 'received',
    error           TEXT NOT NULL DEFAULT '',
    processing_ms   BIGINT NOT NULL DEFAULT 0,
    processed_at    TIMESTAMPTZ,
    idempotency_key TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cascade_events_pending ON cascade_events (created_at) WHERE status = 'received';
CREATE INDEX IF NOT EXISTS idx_cascade_events_user ON cascade_events (user_id);
CREATE INDEX IF NOT EXISTS idx_cascade_events_action ON cascade_events (action_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cascade_events_idempotency ON cascade_events (idempotency_key) WHERE idempotency_key != '';
`,
	},
	{
		Name:    "create_cascade_mappings",
		Version: "20240101000002",
		SQL: `
CREATE TABLE IF NOT EXISTS cascade_mappings (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL DEFAULT '',
    name        TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    action_type TEXT NOT NULL DEFAULT '',
    action_config JSONB,
    reactions   JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cascade_mappings_user ON cascade_mappings (user_id);
CREATE INDEX IF NOT EXISTS idx_cascade_mappings_action ON cascade_mappings (action_type) WHERE active;
`,
	},
	{
		Name:    "create_cascade_reactions",
		Version: "20240101000003",
		SQL: `
CREATE TABLE IF NOT EXISTS cascade_reactions (
    id            TEXT PRIMARY KEY,
    event_id      TEXT NOT NULL DEFAULT '',
    mapping_id    TEXT NOT NULL DEFAULT '',
    reaction_type TEXT NOT NULL DEFAULT '',
    state         TEXT NOT NULL DEFAULT 'pending',
    output        JSONB,
    error         TEXT NOT NULL DEFAULT '',
    execution_ms  BIGINT NOT NULL DEFAULT 0,
    executed_at   TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cascade_reactions_event ON cascade_reactions (event_id);
`,
	},
	{
		Name:    "create_cascade_failures",
		Version: "20240101000004",
		SQL: `
CREATE TABLE IF NOT EXISTS cascade_failures (
    id            TEXT PRIMARY KEY,
    event_id      TEXT NOT NULL DEFAULT '',
    mapping_id    TEXT NOT NULL DEFAULT '',
    action_type   TEXT NOT NULL DEFAULT '',
    reaction_type TEXT NOT NULL DEFAULT '',
    payload       JSONB,
    error         TEXT NOT NULL DEFAULT '',
    retry_count   INT NOT NULL DEFAULT 0,
    resolved      BOOLEAN NOT NULL DEFAULT FALSE,
    resolved_at   TIMESTAMPTZ,
    failed_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cascade_failures_unresolved ON cascade_failures (failed_at) WHERE NOT resolved;
`,
	},
	{
		Name:    "create_cascade_stats",
		Version: "20240101000005",
		SQL: `
CREATE TABLE IF NOT EXISTS cascade_stats (
    day                 TEXT NOT NULL,
    action_type         TEXT NOT NULL,
    reaction_type       TEXT NOT NULL DEFAULT '',
    count               BIGINT NOT NULL DEFAULT 0,
    success_count       BIGINT NOT NULL DEFAULT 0,
    error_count         BIGINT NOT NULL DEFAULT 0,
    total_processing_ms BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (day, action_type, reaction_type)
);
`,
	},
	{
		Name:    "create_cascade_scheduler_state",
		Version: "20240101000006",
		SQL: `
CREATE TABLE IF NOT EXISTS cascade_scheduler_state (
    kind       TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    value      TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (kind, user_id)
);
`,
	},
}
