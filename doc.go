// Package cascade provides a composable action-reaction automation engine
// for Go.
//
// Cascade is a library — not a service. Import it into your application to
// connect trigger actions from integration services to users' configured
// reactions, with retries, failure triage, and per-user polling schedulers.
//
// Key features:
//   - In-process service registry with JSON Schema validation of payloads
//     and mapping configs
//   - Asynchronous execution engine with a fixed retry budget per reaction
//     and persisted failure records for triage
//   - Template interpolation of {{action.payload.*}} tokens in reaction
//     configs
//   - Scheduler framework for per-user provider polling with rate limiting,
//     plus a calendar timer for time-based triggers
//   - Composable store pattern with multiple backends (Postgres, Redis,
//     Memory)
//
// Quick start:
//
//	c, err := cascade.New(
//	    cascade.WithStore(memoryStore),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c.RegisterService(&registry.Service{
//	    ID:   "notify",
//	    Name: "Notifications",
//	    Actions: []registry.ActionDefinition{
//	        {Type: "notify.ping", Name: "Ping received"},
//	    },
//	    Reactions: []registry.ReactionDefinition{
//	        {Type: "notify.send", Name: "Send a notification"},
//	    },
//	}, notifyExecutor)
//
//	c.Start(ctx)
//	defer c.Stop(ctx)
//
//	c.Ingest(ctx, &event.Event{
//	    ActionType: "notify.ping",
//	    UserID:     "user_123",
//	    Payload:    map[string]any{"message": "hello"},
//	})
package cascade
