// Package zipcheck runs quote analyses against an external language model
// under hard guarantees: a request is processed at most once, every call
// stays inside token and cost ceilings, and a misbehaving provider cannot
// keep the loop alive forever.
//
// The root package holds the shared vocabulary (errors, entity timestamps,
// engine configuration). Each subsystem lives in its own package:
//
//   - analysis: quote request, prompt building and result validation
//   - preflight: cheap sizing pass before any budget is spent
//   - guard: the guarded provider call (retries, budgets, loop detection)
//   - provider, pricing, contextdata: model access, cost tables, prompt context
//   - job, usage, output: persisted records and their store contracts
//   - store: the composite store and its backends (memory, sqlite, postgres, redis)
//   - orchestrator: Submit, Cancel, Get and stale-job reaping
//   - middleware, ext, notify, observability: hooks around each job
//   - api, client: HTTP surface and its Go client
//   - session, cron, config: draft sessions, periodic tasks, file and env config
//
// The zipcheck command in cmd/zipcheck wires all of it into a server.
//
// # Quick Start
//
//	st := memory.New()
//	o, err := orchestrator.New(st, openai.New(apiKey),
//	    orchestrator.WithLogger(logger),
//	)
//	sub, err := o.Submit(ctx, req)
//
// All entity IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package zipcheck
