// Package store defines the persistence contract shared by every backend.
//
// Jobs, usage records and outputs each declare their own store interface
// in their package. [Store] embeds all three and adds FinalizeJob, which
// writes the done output and the terminal job row in one atomic step so a
// canceled job can never gain a result. A backend implements Store once
// and serves the orchestrator, the API and the maintenance tasks.
//
// # Backends
//
//   - store/memory: maps behind a mutex, for tests and single-process use
//   - store/sqlite: embedded database via modernc.org/sqlite
//   - store/postgres: pgx/v5 pool with a partial unique index on active idempotency keys
//   - store/redis: Lua scripts for compare-and-set transitions, msgpack records
//
// store/storetest holds the conformance suite each backend runs.
//
// # Opening a backend
//
//	s, err := postgres.New(ctx, os.Getenv("ZIPCHECK_STORE_DSN"))
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
package store
