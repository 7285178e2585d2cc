// Package notify turns job lifecycle hooks into notification events and
// delivers them to a Sink. Delivery is fire-and-forget: sinks may fail,
// and failures are logged by the hook registry, never returned to the
// submitter.
//
// Usage:
//
//	sink := notify.NewAsync(notify.NewWebhookSink(url), 256, logger)
//	defer sink.Close(ctx)
//
//	orchestrator.New(st, p, orchestrator.WithExtension(notify.New(sink)))
//
// To restrict which events are emitted:
//
//	notify.New(sink, notify.WithEvents(notify.TypeError, notify.TypeThreshold))
package notify
