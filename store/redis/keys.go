package redis

// Key prefixes for primary entity storage.
const (
	prefixEvent    = "cascade:evt:"
	prefixMapping  = "cascade:map:"
	prefixReaction = "cascade:rxn:"
	prefixFailure  = "cascade:flr:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventIdem = "cascade:u:evt:idem:"
)

// Key prefixes for sorted set indexes.
const (
	zEventAll          = "cascade:z:evt:all"
	zEventUser         = "cascade:z:evt:user:" // + user ID
	zEventPending      = "cascade:z:evt:pending"
	zMappingAll        = "cascade:z:map:all"
	zMappingUser       = "cascade:z:map:user:" // + user ID
	zReactionAll       = "cascade:z:rxn:all"
	zReactionEvent     = "cascade:z:rxn:evt:" // + event ID
	zFailureAll        = "cascade:z:flr:all"
	zFailureUnresolved = "cascade:z:flr:unresolved"
)

// Key prefixes for auxiliary storage.
const (
	hashStatsDay   = "cascade:h:stats:" // + day (YYYY-MM-DD)
	prefixSchedKey = "cascade:sched:"   // + kind + ":" + user ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// schedStateKey returns the key for one user's scheduler baseline.
func schedStateKey(kind, userID string) string {
	return prefixSchedKey + kind + ":" + userID
}
